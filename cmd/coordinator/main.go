// Command coordinator is the rendezvous server for a run of the
// distributed k-mer hash table: ranks register with it to discover each
// other, and it hosts the collective barrier every rank's phase
// transition blocks on. It holds no k-mer data itself and never joins the
// RMA substrate; once the directory has been handed out, ranks talk
// directly to each other and the coordinator is only consulted again for
// /barrier.
//
// Adapted from cmd/coordinator/main.go's server/newServer/signal-handling
// structure: node registration becomes rank registration, and shard
// assignment becomes the shard directory each rank needs to construct its
// DistributedHashMap.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/debruijn/internal/cluster"
	"github.com/dreamware/debruijn/internal/rma"
)

func main() {
	listen := pflag.String("listen", getenv("COORDINATOR_ADDR", ":8080"), "address the coordinator listens on")
	pflag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap.NewProduction: %v", err)
	}
	defer logger.Sync()

	srv := newServer(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/register", srv.handleRegister)
	mux.HandleFunc("/barrier", srv.handleBarrier)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("coordinator listening", zap.String("addr", *listen))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("coordinator stopped")
}

// server holds the join rendezvous and the collective barrier for a
// single run. It tracks exactly one collective for the process's whole
// lifetime, unlike a long-running cluster's membership list: rankCount is
// fixed by the first rank to register, and every later registration must
// agree with it.
type server struct {
	logger *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	rankCount int
	ranks     []cluster.RankInfo
	barrier   *rma.CyclicBarrier
}

func newServer(logger *zap.Logger) *server {
	s := &server{logger: logger}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// handleRegister implements the join protocol described on
// cluster.JoinRequest: it blocks the calling rank until RankCount ranks
// have all registered, then returns the complete, index-ordered
// directory to every one of them.
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Rank.Addr == "" || req.RankCount <= 0 {
		http.Error(w, "missing addr or rank_count", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.rankCount == 0 {
		s.rankCount = req.RankCount
		s.barrier = rma.NewCyclicBarrier(req.RankCount)
	} else if s.rankCount != req.RankCount {
		s.mu.Unlock()
		http.Error(w, fmt.Sprintf("rank_count disagreement: got %d, collective already set to %d", req.RankCount, s.rankCount), http.StatusConflict)
		return
	}
	if len(s.ranks) >= s.rankCount {
		s.mu.Unlock()
		http.Error(w, "collective already full", http.StatusConflict)
		return
	}

	idx := len(s.ranks)
	info := cluster.RankInfo{
		ID:     fmt.Sprintf("rank-%d", idx),
		Addr:   req.Rank.Addr,
		Index:  idx,
		Status: "healthy",
	}
	s.ranks = append(s.ranks, info)
	s.logger.Info("rank registered", zap.String("id", info.ID), zap.String("addr", info.Addr), zap.Int("joined", len(s.ranks)), zap.Int("rank_count", s.rankCount))

	if len(s.ranks) == s.rankCount {
		s.cond.Broadcast()
	}
	for len(s.ranks) < s.rankCount {
		s.cond.Wait()
	}

	directory := append([]cluster.RankInfo(nil), s.ranks...)
	s.mu.Unlock()

	slices.SortFunc(directory, func(a, b cluster.RankInfo) int { return a.Index - b.Index })

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cluster.JoinResponse{Ranks: directory, Index: idx}); err != nil {
		s.logger.Error("encoding join response", zap.Error(err))
	}
}

// handleBarrier blocks the caller until every rank in the collective has
// made the same call for the current round, releasing all of them
// together. It is the server-side half of rma/rpc.Substrate.Barrier.
func (s *server) handleBarrier(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	b := s.barrier
	s.mu.Unlock()
	if b == nil {
		http.Error(w, "collective not yet assembled", http.StatusServiceUnavailable)
		return
	}

	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
		// The caller gave up, but the abandoned b.Wait above still counts
		// as this rank's arrival for the current round; another /barrier
		// call from the same rank counts as a further arrival.
		http.Error(w, "request canceled", http.StatusRequestTimeout)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
