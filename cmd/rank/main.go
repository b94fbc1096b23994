// Command rank is one worker process in a run of the distributed k-mer
// hash table: it starts an RMA server for its peers' one-sided requests,
// joins the collective through the coordinator, and then drives
// internal/assembly to build its shard of the table, insert its k-mer
// partition, and walk its contigs.
//
// Adapted from cmd/node/main.go's structure: NODE_ID/NODE_LISTEN/NODE_ADDR/
// COORDINATOR_ADDR become RANK_LISTEN/RANK_ADDR/COORDINATOR_ADDR/RANK_COUNT,
// and the retrying register() call is reused almost verbatim, now carrying
// a rank count and receiving back the full collective directory instead of
// a bare 204.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dreamware/debruijn/internal/assembly"
	"github.com/dreamware/debruijn/internal/cluster"
	"github.com/dreamware/debruijn/internal/rma/rpc"
	"github.com/dreamware/debruijn/internal/telemetry"
)

func main() {
	listen := pflag.String("listen", getenv("RANK_LISTEN", ":8081"), "address this rank's RMA server listens on")
	public := pflag.String("addr", getenv("RANK_ADDR", "http://127.0.0.1:8081"), "address peers use to reach this rank")
	coord := pflag.String("coordinator", getenv("COORDINATOR_ADDR", ""), "coordinator base URL")
	rankCount := pflag.Int("rank-count", atoiOr(getenv("RANK_COUNT", ""), 0), "total number of ranks in this run")
	input := pflag.String("input", getenv("INPUT_PATH", ""), "path to the k-mer partition file, identical on every rank")
	output := pflag.String("output", getenv("OUTPUT_DIR", "."), "directory this rank writes its contigs file to")
	table := pflag.String("table", getenv("TABLE_ID", "kmers"), "name of the distributed hash table for this run")
	pflag.Parse()

	if *coord == "" {
		log.Fatal("missing --coordinator (or COORDINATOR_ADDR)")
	}
	if *rankCount <= 0 {
		log.Fatal("missing --rank-count (or RANK_COUNT), must be positive")
	}
	if *input == "" {
		log.Fatal("missing --input (or INPUT_PATH)")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap.NewProduction: %v", err)
	}
	defer logger.Sync()

	// Substrate is created after join, once we know our assigned index
	// and every peer's address, but the RMA server must already be
	// listening before we join: a peer could in principle reach us
	// before the coordinator has released everyone from registration.
	// Connections that arrive before Serve starts wait in the listen queue.
	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", *listen), zap.Error(err))
	}
	resp, err := register(context.Background(), *coord, *public, *rankCount, logger)
	if err != nil {
		logger.Fatal("failed to join collective", zap.Error(err))
	}

	addrs := make([]string, len(resp.Ranks))
	for _, r := range resp.Ranks {
		addrs[r.Index] = r.Addr
	}
	sub := rpc.New(resp.Index, addrs, *coord)

	httpSrv := &http.Server{
		Addr:              *listen,
		Handler:           sub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("rank RMA server listening", zap.Int("rank", resp.Index), zap.String("addr", *listen))
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	tel := telemetry.New(telemetry.WithLogger(logger))

	result, err := assembly.Run(context.Background(), sub, assembly.Config{
		InputPath: *input,
		OutputDir: *output,
		TableID:   *table,
	}, tel)
	if err != nil {
		logger.Fatal("assembly run failed", zap.Int("rank", resp.Index), zap.Error(err))
	}
	logger.Info("assembly run complete",
		zap.Int("rank", resp.Index),
		zap.String("run_id", result.RunID),
		zap.Int("table_capacity", result.TableCapacity),
		zap.Int("kmers_inserted", result.KmersInserted),
		zap.Int("contigs_walked", result.ContigsWalked),
		zap.String("output_path", result.OutputPath),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("RMA server shutdown error", zap.Error(err))
	}
}

// registerClient carries no fixed timeout: the coordinator holds a
// /register call open until every rank in the collective has joined,
// which can legitimately take as long as the slowest peer's startup, so
// this must not share cluster.httpClient's 5s overall timeout (the same
// reasoning rma/rpc.Substrate.Barrier applies to its own client).
var registerClient = &http.Client{}

// registerMaxAttempts and registerBackoff govern the retry loop in
// register; overridden by tests so a coordinator-unreachable scenario
// doesn't take several seconds of real time to exercise.
var (
	registerMaxAttempts = 10
	registerBackoff     = 400 * time.Millisecond
)

// register joins the collective by retrying the coordinator's /register
// call until it succeeds or attempts are exhausted, mirroring cmd/node's
// retry loop for coordinator startup delays. Unlike cmd/node's retry,
// which only guards against the coordinator not yet being up, a failed
// attempt here may also mean the call is still correctly blocked waiting
// on peers — only a connection-level error triggers a retry; a rejection
// from the coordinator (bad request, rank-count disagreement) is fatal
// and returned immediately.
func register(ctx context.Context, coord, addr string, rankCount int, logger *zap.Logger) (cluster.JoinResponse, error) {
	body := cluster.JoinRequest{Rank: cluster.RankInfo{Addr: addr}, RankCount: rankCount}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return cluster.JoinResponse{}, fmt.Errorf("marshaling join request: %w", err)
	}

	var lastErr error
	for i := 0; i < registerMaxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, coord+"/register", bytes.NewReader(reqBody))
		if err != nil {
			return cluster.JoinResponse{}, fmt.Errorf("building join request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := registerClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Info("register retry", zap.Int("attempt", i+1), zap.Error(lastErr))
			time.Sleep(registerBackoff)
			continue
		}

		out, err := decodeJoinResponse(resp)
		if err != nil {
			return cluster.JoinResponse{}, err
		}
		logger.Info("joined collective", zap.Int("index", out.Index), zap.Int("rank_count", len(out.Ranks)))
		return out, nil
	}
	return cluster.JoinResponse{}, fmt.Errorf("failed to join collective after %d attempts: %w", registerMaxAttempts, lastErr)
}

func decodeJoinResponse(resp *http.Response) (cluster.JoinResponse, error) {
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return cluster.JoinResponse{}, fmt.Errorf("coordinator rejected join: status %d", resp.StatusCode)
	}
	var out cluster.JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return cluster.JoinResponse{}, fmt.Errorf("decoding join response: %w", err)
	}
	return out, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}
