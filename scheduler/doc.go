// Package scheduler provides the priority task queue at the center of
// TaskMesh:
//
//   - Scheduler: a concurrency safe backlog ordered by priority then age,
//     with partitions tracking dispatched tasks through to their end state
//   - ValidatePlan: topological validation for batches of interdependent
//     tasks before they enter the backlog
//
// The scheduler never executes anything; agents do. It answers one question,
// which task should run next given a set of capabilities, and keeps the
// bookkeeping consistent while agents mutate task state concurrently.
package scheduler
