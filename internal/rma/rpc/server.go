package rpc

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/dreamware/debruijn/internal/rma"
)

// Handler returns the HTTP handler this rank mounts to serve one-sided
// requests from its peers against its own localTable. It is the server
// side of Substrate's non-local Put/Get/AtomicLoad/AtomicFetchAdd/Close
// paths: a ServeMux with one handler method on Substrate per route.
func (s *Substrate) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rma/put", s.handlePut)
	mux.HandleFunc("/rma/get", s.handleGet)
	mux.HandleFunc("/rma/atomic/load", s.handleAtomicLoad)
	mux.HandleFunc("/rma/atomic/fetch_add", s.handleAtomicFetchAdd)
	mux.HandleFunc("/rma/close", s.handleClose)
	return mux
}

func (s *Substrate) table(w http.ResponseWriter, tableID string) (*localTable, bool) {
	t, ok := s.local(tableID)
	if !ok {
		http.Error(w, "unknown table", http.StatusNotFound)
		return nil, false
	}
	if t.closed.Load() {
		http.Error(w, rma.ErrClosed.Error(), http.StatusGone)
		return nil, false
	}
	return t, true
}

func (s *Substrate) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	t, ok := s.table(w, req.TableID)
	if !ok {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Value)
	if err != nil {
		http.Error(w, "bad value encoding", http.StatusBadRequest)
		return
	}
	t.dataMu.Lock()
	t.data[req.Offset] = rma.Record{Bytes: raw}
	t.dataMu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Substrate) handleGet(w http.ResponseWriter, r *http.Request) {
	tableID := r.URL.Query().Get("table")
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil {
		http.Error(w, "bad offset", http.StatusBadRequest)
		return
	}
	t, ok := s.table(w, tableID)
	if !ok {
		return
	}
	t.dataMu.RLock()
	v := t.data[offset]
	t.dataMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(valueResponse{Value: base64.StdEncoding.EncodeToString(v.Bytes)})
}

func (s *Substrate) handleAtomicLoad(w http.ResponseWriter, r *http.Request) {
	tableID := r.URL.Query().Get("table")
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil {
		http.Error(w, "bad offset", http.StatusBadRequest)
		return
	}
	t, ok := s.table(w, tableID)
	if !ok {
		return
	}
	v := atomic.LoadInt64(&t.reservations[offset])
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(intResponse{Value: v})
}

func (s *Substrate) handleAtomicFetchAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req fetchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	t, ok := s.table(w, req.TableID)
	if !ok {
		return
	}
	after := atomic.AddInt64(&t.reservations[req.Offset], req.Delta)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(intResponse{Value: after - req.Delta})
}

func (s *Substrate) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if t, ok := s.local(req.TableID); ok {
		t.closed.Store(true)
	}
	w.WriteHeader(http.StatusNoContent)
}
