// Package core provides the foundational types shared by every TaskMesh
// component:
//
//   - Task: a schedulable unit of work with priority, capability
//     requirements, dependencies and a guarded lifecycle
//   - Message: an addressed, timestamped envelope for asynchronous
//     coordination
//   - Capabilities: set-based capability matching between tasks and agents
//   - Executor: the contract collaborators implement to supply the actual
//     work an agent performs
//
// Scheduling, transport and coordination deliberately live elsewhere (in
// the scheduler, bus and engine packages); core only defines the vocabulary
// they share.
package core
