// Package harness runs YAML scenarios against the engine and checks the
// resulting event trace and final store state.
//
// # Scenario Format
//
//	name: retry_then_complete
//	description: "An interrupted item is retried and completes"
//	workers: 1
//	tie_break: fifo          # optional, fifo | lifo | id
//	retry:                   # optional
//	  max_attempts: 3
//	resume: false            # seed items as Pending and call Resume
//	items:
//	  - {id: tx-1, amount: 250, priority: 0.9}
//	outcomes:                # optional, per attempt: ok | interrupt | permanent | panic
//	  tx-1: [interrupt, ok]
//	assertions:
//	  - type: trace_order
//	    event: completed
//	    ids: [tx-1]
//	  - type: final_state
//	    id: tx-1
//	    status: Completed
//
// # Assertion Types
//
//   - trace_contains: an event of the given kind exists (optionally for id)
//   - trace_order: ids appear in this relative order among events of a kind
//   - trace_count: exactly count events of a kind (optionally for id)
//   - final_state: the stored status of id, or the number of stored
//     records matching a CEL where expression
//   - summary: subset match on the run result counters
//   - start_error: the run must be rejected with the given error code
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory SQLite store with instant work
// and zero retry delay. With one worker and no concurrent retries the trace
// is fully deterministic and can be compared with a golden file:
//
//	go test ./internal/harness -update
package harness
