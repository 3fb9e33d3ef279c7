// Package agent provides the worker side of TaskMesh. An Agent advertises
// capabilities, accepts tasks that match them, runs each through its
// Executor with bounded concurrency, and reports the outcome back to the
// coordinator as a task_response message.
//
// Tasks beyond the concurrency limit wait in an internal queue that a
// background loop drains as slots free up. The queue is unbounded; admission
// control lives in the scheduler, not here.
package agent
