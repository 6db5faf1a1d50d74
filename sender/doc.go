// Package sender implements the adaptive real-time transmission pipeline
// of framecast: the periodic tick/encode/send cycle, the deadline-bounded
// concurrent encode attempts, the feedback-driven target-size controller,
// and the fragment/acknowledgment bookkeeping that ties them together.
//
// Architecture:
//
//	Ticker ──tick──▶ Reactor ──jobs──▶ Encode attempts (goroutines)
//	                   ▲  ▲                  │
//	     acks ─────────┘  └──── resolution ──┘
//
// The Reactor (the Sender type) is a single-goroutine event multiplexer
// that owns every piece of mutable session state: the sequential encoder
// state, the cumulative fragment table, the feedback estimate, the skip
// counter and the frame sequence number. All concurrent units - the
// ticker, the frame pump, encode attempts and the transport's receive
// goroutine - communicate with it exclusively through channels and never
// write reactor-owned memory.
//
// Per frame sequence number a cycle resolves to exactly one of Sent,
// Skipped or Abandoned:
//
//   - Sent: an attempt completed before the deadline; its payload was
//     fragmented and transmitted, its encoder state adopted, and the
//     sequence number advanced.
//   - Skipped: the rate controller declined to encode; nothing ran and the
//     sequence number is retried on the next tick.
//   - Abandoned: the deadline elapsed with no completed attempt; the cycle
//     is cleared and the sequence number retried with a fresher frame.
//
// Encode attempts are never cancelled. An attempt that misses its deadline
// runs to completion on its own goroutine and its result, including its
// private encoder state snapshot, is discarded on arrival.
package sender
