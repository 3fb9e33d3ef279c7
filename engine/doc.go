// Package engine implements the coordination layer of TaskMesh.
//
// The Engine owns the agent registry, the task scheduler and the message
// bus, and runs the periodic coordination loop that moves work from the
// backlog onto agents and enforces execution deadlines. It is the one
// component that sees the whole system.
//
// # Core Responsibilities
//
// Agent Management:
//   - Thread-safe registry with name-based lookup, preserving
//     registration order for the assignment pass
//   - Response handler installation and bus subscription on registration
//   - Agent lifecycle coordination (agents start and stop with the engine)
//
// Task Flow:
//   - Submission into the scheduler, singly or as validated plans
//   - Periodic assignment of eligible tasks to idle agents
//   - Timeout enforcement for running tasks
//   - Outcome reconciliation from task_response messages
//
// Messaging:
//   - System-level bus subscription under the reserved "system" name
//   - Re-publication of agent responses for downstream observers
//   - Broadcasts to every registered agent
//
// # Coordination Model
//
//	            ┌────────────┐   Submit    ┌────────────┐
//	   caller ─▶│   Engine   │────────────▶│ Scheduler  │
//	            └────────────┘             └────────────┘
//	                  │  tick: Next/Claim/Assign   ▲
//	                  ▼                            │ Update
//	            ┌────────────┐  task_response      │
//	            │   Agents   │─────────────────────┘
//	            └────────────┘        (direct handler + bus)
//
// Every tick performs two passes. The assignment pass walks agents in
// registration order, offering each idle agent at most one eligible task;
// the task is claimed into the running partition before the offer so that
// even an instant completion finds the bookkeeping in place. The timeout
// pass fails running tasks that outlived their budget. Both passes settle
// races through the task's own guarded transitions: whichever side writes
// the end state first wins, and the loser's write is a no-op.
//
// # Usage
//
//	e := engine.New(func(o *engine.Options) {
//	    o.Logger = logger
//	})
//
//	_ = e.Register(agent.New("worker", []string{"calculation"}, executor))
//
//	if err := e.Start(ctx); err != nil {
//	    return err
//	}
//	defer e.Stop()
//
//	id := e.Submit(core.NewTask("sum the figures", func(o *core.TaskOptions) {
//	    o.Requires = []string{"calculation"}
//	}))
//
//	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
//	defer cancel()
//
//	if task, ok := e.WaitForTask(waitCtx, id); ok {
//	    fmt.Println(task.Result())
//	}
package engine
