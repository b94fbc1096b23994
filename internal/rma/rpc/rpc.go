// Package rpc implements rma.Substrate across real OS processes: one-sided
// put/get and atomic operations are carried as HTTP requests to the target
// rank's RMA server, and the collective barrier is carried as a long-poll
// request to the coordinator. It is the networked counterpart of
// rma/inproc, grounded on cmd/node's HTTP server and
// internal/cluster.PostJSON/GetJSON.
package rpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/dreamware/debruijn/internal/cluster"
	"github.com/dreamware/debruijn/internal/rma"
)

// localTable is the storage this rank hosts on behalf of its peers: its
// shard of the data array and its shard of the reservation array, each
// served by the HTTP handler in server.go.
type localTable struct {
	data   []rma.Record
	dataMu sync.RWMutex

	reservations []int64

	closed atomic.Bool
}

// Substrate implements rma.Substrate over HTTP. addrs[rank] is the base URL
// of that rank's RMA server; addrs[me] is this process's own listen
// address and is never dialed — local operations short-circuit directly
// into this rank's own localTable.
type Substrate struct {
	me              int
	addrs           []string
	coordinatorAddr string

	mu     sync.RWMutex
	tables map[string]*localTable

	barrierClient *http.Client
}

var _ rma.Substrate = (*Substrate)(nil)

// New returns an RPC substrate for the rank at index me within addrs, using
// coordinatorAddr for the collective barrier.
func New(me int, addrs []string, coordinatorAddr string) *Substrate {
	return &Substrate{
		me:              me,
		addrs:           addrs,
		coordinatorAddr: coordinatorAddr,
		tables:          make(map[string]*localTable),
		// The barrier may legitimately wait as long as the slowest peer's
		// insert phase takes, so this client carries no fixed timeout — it
		// is bounded only by the caller's context.
		barrierClient: &http.Client{},
	}
}

// RankMe implements rma.Substrate.
func (s *Substrate) RankMe() int { return s.me }

// RankN implements rma.Substrate.
func (s *Substrate) RankN() int { return len(s.addrs) }

// NewArray implements rma.Substrate. Allocation is always local: a rank
// only ever allocates its own shard, so no network round trip is needed.
// Peers do not receive NewArray's return value: internal/directory builds
// every rank's ArrayRef locally from (tableID, kind, rank).
func (s *Substrate) NewArray(ctx context.Context, tableID string, kind rma.ArrayKind, n int) (rma.ArrayRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableID]
	if !ok {
		t = &localTable{}
		s.tables[tableID] = t
	}
	switch kind {
	case rma.ArrayData:
		if t.data == nil {
			t.data = make([]rma.Record, n)
		}
	case rma.ArrayReservation:
		if t.reservations == nil {
			t.reservations = make([]int64, n)
		}
	default:
		return rma.ArrayRef{}, fmt.Errorf("rpc: unknown array kind %q", kind)
	}
	return rma.ArrayRef{TableID: tableID, Kind: kind, Rank: s.me}, nil
}

func (s *Substrate) local(tableID string) (*localTable, bool) {
	s.mu.RLock()
	t, ok := s.tables[tableID]
	s.mu.RUnlock()
	return t, ok
}

// Put implements rma.Substrate. Remote writes complete before Put returns,
// so a caller that discards the handle can still rely on its next Barrier
// to order the write before every peer's reads.
func (s *Substrate) Put(ctx context.Context, ref rma.ArrayRef, offset int, value rma.Record) *rma.Handle[struct{}] {
	if ref.Rank == s.me {
		t, ok := s.local(ref.TableID)
		if !ok {
			return rma.Resolved(struct{}{}, fmt.Errorf("rpc: unknown table %q", ref.TableID))
		}
		if t.closed.Load() {
			return rma.Resolved(struct{}{}, rma.ErrClosed)
		}
		t.dataMu.Lock()
		t.data[offset] = value
		t.dataMu.Unlock()
		return rma.Resolved(struct{}{}, nil)
	}

	req := putRequest{TableID: ref.TableID, Kind: ref.Kind, Offset: offset, Value: base64.StdEncoding.EncodeToString(value.Bytes)}
	err := cluster.PostJSON(ctx, s.addrs[ref.Rank]+"/rma/put", req, nil)
	return rma.Resolved(struct{}{}, err)
}

// Get implements rma.Substrate.
func (s *Substrate) Get(ctx context.Context, ref rma.ArrayRef, offset int) *rma.Handle[rma.Record] {
	if ref.Rank == s.me {
		t, ok := s.local(ref.TableID)
		if !ok {
			return rma.Resolved(rma.Record{}, fmt.Errorf("rpc: unknown table %q", ref.TableID))
		}
		if t.closed.Load() {
			return rma.Resolved(rma.Record{}, rma.ErrClosed)
		}
		t.dataMu.RLock()
		v := t.data[offset]
		t.dataMu.RUnlock()
		return rma.Resolved(v, nil)
	}

	h, resolve := rma.NewHandle[rma.Record]()
	go func() {
		url := fmt.Sprintf("%s/rma/get?table=%s&offset=%d", s.addrs[ref.Rank], ref.TableID, offset)
		var resp valueResponse
		if err := cluster.GetJSON(ctx, url, &resp); err != nil {
			resolve(rma.Record{}, err)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(resp.Value)
		if err != nil {
			resolve(rma.Record{}, err)
			return
		}
		resolve(rma.Record{Bytes: raw}, nil)
	}()
	return h
}

// AtomicLoad implements rma.Substrate.
func (s *Substrate) AtomicLoad(ctx context.Context, ref rma.ArrayRef, offset int) *rma.Handle[int64] {
	if ref.Rank == s.me {
		t, ok := s.local(ref.TableID)
		if !ok {
			return rma.Resolved(int64(0), fmt.Errorf("rpc: unknown table %q", ref.TableID))
		}
		if t.closed.Load() {
			return rma.Resolved(int64(0), rma.ErrClosed)
		}
		return rma.Resolved(atomic.LoadInt64(&t.reservations[offset]), nil)
	}

	h, resolve := rma.NewHandle[int64]()
	go func() {
		url := fmt.Sprintf("%s/rma/atomic/load?table=%s&offset=%d", s.addrs[ref.Rank], ref.TableID, offset)
		var resp intResponse
		err := cluster.GetJSON(ctx, url, &resp)
		resolve(resp.Value, err)
	}()
	return h
}

// AtomicFetchAdd implements rma.Substrate.
func (s *Substrate) AtomicFetchAdd(ctx context.Context, ref rma.ArrayRef, offset int, delta int64) *rma.Handle[int64] {
	if ref.Rank == s.me {
		t, ok := s.local(ref.TableID)
		if !ok {
			return rma.Resolved(int64(0), fmt.Errorf("rpc: unknown table %q", ref.TableID))
		}
		if t.closed.Load() {
			return rma.Resolved(int64(0), rma.ErrClosed)
		}
		after := atomic.AddInt64(&t.reservations[offset], delta)
		return rma.Resolved(after-delta, nil)
	}

	h, resolve := rma.NewHandle[int64]()
	go func() {
		req := fetchAddRequest{TableID: ref.TableID, Offset: offset, Delta: delta}
		var resp intResponse
		err := cluster.PostJSON(ctx, s.addrs[ref.Rank]+"/rma/atomic/fetch_add", req, &resp)
		resolve(resp.Value, err)
	}()
	return h
}

// Barrier implements rma.Substrate by long-polling the coordinator's
// /barrier endpoint, which itself blocks server-side (via rma.CyclicBarrier)
// until every rank has issued the same call.
func (s *Substrate) Barrier(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.coordinatorAddr+"/barrier", nil)
	if err != nil {
		return err
	}
	resp, err := s.barrierClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("rpc: barrier: http %d", resp.StatusCode)
	}
	return nil
}

// Close implements rma.Substrate, marking this rank's own shard closed (so
// peers' remote operations against it fail) and posting /rma/close to every
// peer so each marks its own shard of the same table closed too. Errors
// from those posts are ignored.
func (s *Substrate) Close(ctx context.Context, tableID string) error {
	s.mu.Lock()
	t, ok := s.tables[tableID]
	s.mu.Unlock()
	if ok {
		t.closed.Store(true)
	}

	for rank, addr := range s.addrs {
		if rank == s.me {
			continue
		}
		_ = cluster.PostJSON(ctx, addr+"/rma/close", closeRequest{TableID: tableID}, nil)
	}
	return nil
}

// putRequest is the wire body of POST /rma/put.
type putRequest struct {
	TableID string        `json:"table_id"`
	Kind    rma.ArrayKind `json:"kind"`
	Offset  int           `json:"offset"`
	Value   string        `json:"value"` // base64
}

// fetchAddRequest is the wire body of POST /rma/atomic/fetch_add.
type fetchAddRequest struct {
	TableID string `json:"table_id"`
	Offset  int    `json:"offset"`
	Delta   int64  `json:"delta"`
}

// closeRequest is the wire body of POST /rma/close.
type closeRequest struct {
	TableID string `json:"table_id"`
}

// valueResponse is the wire body of GET /rma/get.
type valueResponse struct {
	Value string `json:"value"` // base64
}

// intResponse is the wire body of GET /rma/atomic/load and POST
// /rma/atomic/fetch_add.
type intResponse struct {
	Value int64 `json:"value"`
}

