// internal/cosmetic/taskqueue.go
package cosmetic

import "sync"

// TaskQueue is a FIFO Scheduler for hosts without an event loop. The host
// calls Drain once its own turn is over.
type TaskQueue struct {
	mu    sync.Mutex
	tasks []func()
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

// Schedule appends a task.
func (q *TaskQueue) Schedule(task func()) {
	if task == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

// Len reports the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Drain runs queued tasks in order until the queue is empty, including tasks
// scheduled by the tasks it runs. It returns how many tasks ran.
func (q *TaskQueue) Drain() int {
	ran := 0
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return ran
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
		ran++
	}
}
