package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/debruijn/internal/cluster"
)

// TestGetenv mirrors cmd/coordinator's TestGetenv: a set environment
// variable is returned, and an unset one falls back to the default.
func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		set      bool
		def      string
		expected string
	}{
		{name: "set", key: "RANK_TEST_VAR", value: "custom", set: true, def: "default", expected: "custom"},
		{name: "unset", key: "RANK_TEST_VAR_UNSET", def: "default", expected: "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv(tt.key, tt.value)
			}
			if got := getenv(tt.key, tt.def); got != tt.expected {
				t.Errorf("getenv(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestAtoiOr(t *testing.T) {
	tests := []struct {
		name string
		in   string
		def  int
		want int
	}{
		{name: "empty uses default", in: "", def: 4, want: 4},
		{name: "valid integer", in: "3", def: 4, want: 3},
		{name: "garbage uses default", in: "not-a-number", def: 4, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := atoiOr(tt.in, tt.def); got != tt.want {
				t.Errorf("atoiOr(%q, %d) = %d, want %d", tt.in, tt.def, got, tt.want)
			}
		})
	}
}

func TestRegisterSucceedsOnFirstAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register" {
			t.Errorf("expected /register, got %s", r.URL.Path)
		}
		var req cluster.JoinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Rank.Addr != "http://rank0" || req.RankCount != 2 {
			t.Errorf("unexpected request body: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cluster.JoinResponse{
			Ranks: []cluster.RankInfo{
				{ID: "rank-0", Addr: "http://rank0", Index: 0},
				{ID: "rank-1", Addr: "http://rank1", Index: 1},
			},
			Index: 0,
		})
	}))
	defer server.Close()

	resp, err := register(context.Background(), server.URL, "http://rank0", 2, zap.NewNop())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.Index != 0 || len(resp.Ranks) != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestRegisterRetriesThenSucceeds(t *testing.T) {
	origBackoff := registerBackoff
	registerBackoff = time.Millisecond
	defer func() { registerBackoff = origBackoff }()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			// Simulate the coordinator not yet accepting connections by
			// hanging up without a response.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("ResponseWriter does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cluster.JoinResponse{Index: 0, Ranks: []cluster.RankInfo{{Index: 0, Addr: "http://rank0"}}})
	}))
	defer server.Close()

	resp, err := register(context.Background(), server.URL, "http://rank0", 1, zap.NewNop())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if attempts < 3 {
		t.Errorf("expected at least 3 attempts, got %d", attempts)
	}
	if resp.Index != 0 {
		t.Errorf("Index = %d, want 0", resp.Index)
	}
}

func TestRegisterFailsAfterMaxAttempts(t *testing.T) {
	origAttempts, origBackoff := registerMaxAttempts, registerBackoff
	registerMaxAttempts = 2
	registerBackoff = time.Millisecond
	defer func() { registerMaxAttempts, registerBackoff = origAttempts, origBackoff }()

	// Port 0 on loopback is never accepting connections, so every attempt
	// fails at the connection level.
	_, err := register(context.Background(), "http://127.0.0.1:0", "http://rank0", 1, zap.NewNop())
	if err == nil {
		t.Fatal("expected an error once attempts are exhausted")
	}
}

func TestRegisterRejectsCoordinatorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rank_count disagreement", http.StatusConflict)
	}))
	defer server.Close()

	_, err := register(context.Background(), server.URL, "http://rank0", 2, zap.NewNop())
	if err == nil {
		t.Fatal("expected an error on a coordinator rejection")
	}
}
