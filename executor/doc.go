// Package executor provides the building blocks for the work side of the
// mesh: routing, retries and circuit breaking around core.Executor
// implementations.
//
// Core pieces:
//   - Registry routes tasks to executors by required capability
//   - Retry wraps an executor with exponential backoff
//   - Breaker sheds load from a repeatedly failing executor
//
// The wrappers compose: NewRetry(NewBreaker(inner)) retries transient
// failures but stops as soon as the breaker opens. Provider-backed
// executors (Anthropic, OpenAI) live in subpackages so importing the
// routing layer does not pull in vendor SDKs.
package executor
