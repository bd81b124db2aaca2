// Package llm adapts streaming chat backends to one canonical event stream.
//
// Invariants:
//   - A stream is finite, consumed once and closed by the adapter.
//   - Tool-call arguments are accumulated per stream index and emitted only
//     when the turn completes.
//   - Only the first finish signal of a stream is honored.
//   - Continuation tokens are stored and replayed byte-for-byte.
//
// Reasoning policy differs per backend: the OpenAI-compatible adapter flushes
// accumulated reasoning once, immediately before the final event; the
// Anthropic adapter emits one reasoning event per thinking delta.
package llm
