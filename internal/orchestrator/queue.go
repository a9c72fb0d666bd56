package orchestrator

import "container/heap"

// taskQueue is a min-heap ordered by (Priority, seq). Equal priorities are
// served in submission order. Not safe for concurrent use; the scheduler
// guards it.
type taskQueue []*ScheduledTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*ScheduledTask)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

func (q *taskQueue) push(t *ScheduledTask) { heap.Push(q, t) }

func (q *taskQueue) pop() *ScheduledTask {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*ScheduledTask)
}
