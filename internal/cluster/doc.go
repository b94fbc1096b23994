// Package cluster provides the collective-membership and transport plumbing
// shared by the coordinator and rank binaries of the distributed k-mer hash
// table.
//
// # Overview
//
// A run of the assembler is a fixed set of P peer processes ("ranks")
// launched together, plus one coordinator process that exists solely to
// let the ranks find each other and to provide the collective barrier. This
// package defines the wire types (RankInfo, JoinRequest/JoinResponse) and
// the HTTP/JSON transport helpers (PostJSON, GetJSON) both sides use.
//
// # Architecture
//
//	                 +---------------+
//	                 |  Coordinator  |
//	                 |  - /register  |
//	                 |  - /barrier   |
//	                 +-------+-------+
//	                         |
//	        +----------------+----------------+
//	        |                |                |
//	  +-----v-----+    +-----v-----+    +-----v-----+
//	  |  Rank 0   |    |  Rank 1   |    |  Rank 2   |
//	  | RMA server|<-->| RMA server|<-->| RMA server|
//	  +-----------+    +-----------+    +-----------+
//
// /register blocks every caller until RankCount ranks have all joined, then
// answers each of them with the same index-ordered rank directory in its
// own JoinResponse: there is no separate broadcast step. Every rank then
// proceeds to build its shard of the hash table (internal/directory,
// internal/hashtable). From that point on, ranks talk directly to each
// other's RMA servers for one-sided put/get/atomic operations; the
// coordinator is only consulted again for the phase-terminating barrier.
//
// # Failure model
//
// This package does not attempt to tolerate a rank failing mid-run:
// PostJSON/GetJSON return a plain error on any network failure, and callers
// (internal/hashtable, cmd/rank) treat that as fatal rather than retrying.
package cluster
