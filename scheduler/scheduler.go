package scheduler

import (
	"sort"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Stats counts tasks per lifecycle stage.
type Stats struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// Options configures the scheduler.
type Options struct {
	// Logger receives queue activity at debug level.
	Logger logging.Logger
}

// Scheduler keeps the pending backlog ordered by priority (descending) then
// creation time (ascending), and tracks dispatched tasks in running,
// completed and failed partitions. All methods are safe for concurrent use.
//
// Agents mutate task state directly while the scheduler holds references to
// the same tasks, so partition membership is always reconciled from the
// task's own status rather than assumed.
type Scheduler struct {
	mu        sync.RWMutex
	logger    logging.Logger
	pending   []*core.Task
	running   map[string]*core.Task
	completed map[string]*core.Task
	failed    map[string]*core.Task
	tasks     map[string]*core.Task
}

// New creates an empty scheduler.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Scheduler{
		logger:    opts.Logger,
		running:   make(map[string]*core.Task),
		completed: make(map[string]*core.Task),
		failed:    make(map[string]*core.Task),
		tasks:     make(map[string]*core.Task),
	}
}

// Add queues a task and resorts the backlog. Re-adding a known task is a
// no-op, so callers never create duplicates.
func (s *Scheduler) Add(task *core.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return
	}

	s.tasks[task.ID] = task
	s.pending = append(s.pending, task)
	s.sortPendingLocked()

	s.logger.Debug("Task queued", "task_id", task.ID, "priority", task.Priority.String())
}

// Next removes and returns the highest priority pending task whose
// dependencies are all completed and whose required capabilities are covered
// by caps. It returns nil when nothing is eligible. Entries that left the
// pending status sideways (cancellation) are dropped during the scan.
func (s *Scheduler) Next(caps core.Capabilities) *core.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := s.completedIDsLocked()

	for i := 0; i < len(s.pending); i++ {
		task := s.pending[i]

		if task.Status() != core.TaskStatusPending {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			i--

			continue
		}

		if !task.CanStart(completed) || !task.Requires.SubsetOf(caps) {
			continue
		}

		s.pending = append(s.pending[:i], s.pending[i+1:]...)

		return task
	}

	return nil
}

// Claim moves a task into the running partition the moment it is handed to
// an agent. Claiming before the agent accepts closes the window where a
// fast agent finishes a task the scheduler still counts as pending.
func (s *Scheduler) Claim(task *core.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		s.tasks[task.ID] = task
	}

	s.running[task.ID] = task
}

// Release undoes a claim after an agent refused the task: the assignment is
// cleared and the task returns to the backlog.
func (s *Scheduler) Release(task *core.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, task.ID)
	task.Unassign()

	if task.Status() == core.TaskStatusPending {
		s.requeueLocked(task)
	}
}

// Update reconciles partition membership with the task's current status.
// Status transitions are guarded by the task itself, so a second Update for
// the same transition is harmless.
func (s *Scheduler) Update(task *core.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		s.tasks[task.ID] = task
	}

	status := task.Status()

	switch status {
	case core.TaskStatusPending:
		delete(s.running, task.ID)
		s.requeueLocked(task)
	case core.TaskStatusRunning:
		s.dropPendingLocked(task.ID)
		s.running[task.ID] = task
	case core.TaskStatusCompleted:
		s.dropPendingLocked(task.ID)
		delete(s.running, task.ID)
		s.completed[task.ID] = task
	case core.TaskStatusFailed:
		s.dropPendingLocked(task.ID)
		delete(s.running, task.ID)
		s.failed[task.ID] = task
	case core.TaskStatusCancelled:
		s.dropPendingLocked(task.ID)
		delete(s.running, task.ID)
	}

	s.logger.Debug("Task status recorded", "task_id", task.ID, "status", string(status))
}

// Get returns a task known to the scheduler by ID.
func (s *Scheduler) Get(id string) (*core.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]

	return task, ok
}

// Terminal returns the task when it has reached an end state, for callers
// polling on completion.
func (s *Scheduler) Terminal(id string) (*core.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok || !task.Status().Terminal() {
		return nil, false
	}

	return task, true
}

// Running returns a snapshot of the running partition, for timeout sweeps.
func (s *Scheduler) Running() []*core.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*core.Task, 0, len(s.running))
	for _, task := range s.running {
		tasks = append(tasks, task)
	}

	return tasks
}

// CompletedIDs returns the set of completed task IDs, the reference set for
// dependency gating.
func (s *Scheduler) CompletedIDs() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.completedIDsLocked()
}

// Stats summarizes queue occupancy.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Total:     len(s.tasks),
		Pending:   len(s.pending),
		Running:   len(s.running),
		Completed: len(s.completed),
		Failed:    len(s.failed),
	}
}

func (s *Scheduler) completedIDsLocked() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.completed))
	for id := range s.completed {
		ids[id] = struct{}{}
	}

	return ids
}

func (s *Scheduler) requeueLocked(task *core.Task) {
	for _, queued := range s.pending {
		if queued.ID == task.ID {
			return
		}
	}

	s.pending = append(s.pending, task)
	s.sortPendingLocked()
}

func (s *Scheduler) dropPendingLocked(id string) {
	for i, task := range s.pending {
		if task.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)

			return
		}
	}
}

func (s *Scheduler) sortPendingLocked() {
	sort.SliceStable(s.pending, func(i, j int) bool {
		if s.pending[i].Priority != s.pending[j].Priority {
			return s.pending[i].Priority > s.pending[j].Priority
		}

		return s.pending[i].CreatedAt.Before(s.pending[j].CreatedAt)
	})
}
