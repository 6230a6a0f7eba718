/*
Package sps implements the single-partition scheduler: one instance per
partition replica, responsible for sp-handle assignment, k-safety
replica fan-out, determinism arbitration, command-log integration,
multi-partition fragment participation, FAST/SAFE read consistency, and
clean drain across leader migration.

# Dispatch

The scheduler is single-threaded with respect to its own state. All
mutation happens while holding the partition mutex; work destined for
execution is handed to an external task queue.

	inbound message
	      │
	      ▼
	┌──────────────────────────┐
	│ Dispatch: classify by    │
	│ message type             │
	└────────────┬─────────────┘
	             │
	  ┌──────────┼──────────────────────┐
	  ▼          ▼                      ▼
	stamp H   open DuplicateCounter   queue behind
	assign T  (replicated ops only)   MpDurabilityGate
	  │          │                      │
	  └──────────┴──────────┬───────────┘
	                        ▼
	              log to command log
	                        │
	                        ▼
	              offer to task queue
	                        │
	                        ▼
	        (execution, external) ──► response
	                        │
	                        ▼
	          DuplicateCounter.Offer
	           /            |            \
	        DONE        MISMATCH        ABORT
	          │              \            /
	          ▼               ▼          ▼
	  forward + advance τ   Fatal (cluster-fatal)

Every replicated write or fragment opens exactly one DuplicateCounter
keyed by {T,H}; it is destroyed the moment it reaches DONE, MISMATCH, or
ABORT.
*/
package sps
