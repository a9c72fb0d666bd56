package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, handlers map[string]Handler) *Scheduler {
	t.Helper()
	reg := NewRegistry(zap.NewNop())
	for name, h := range handlers {
		reg.Register(name, h)
	}
	return NewScheduler(reg, Env{}, zap.NewNop(), WithPollInterval(10*time.Millisecond))
}

func echoHandler(_ context.Context, params map[string]any, _ Env) (any, error) {
	return params["msg"], nil
}

// collector gathers callback results delivered on the worker goroutine.
type collector struct {
	mu      sync.Mutex
	results []Result
	done    chan struct{}
	want    int
}

func newCollector(want int) *collector {
	return &collector{done: make(chan struct{}), want: want}
}

func (c *collector) add(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
	if len(c.results) == c.want {
		close(c.done)
	}
}

func (c *collector) wait(t *testing.T) []Result {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %d results", c.want)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...)
}

func TestSubmitInlineWhenStopped(t *testing.T) {
	s := newTestScheduler(t, map[string]Handler{"echo": echoHandler})

	var got Result
	res, err := s.Submit(context.Background(), "echo", map[string]any{"msg": "hi"},
		WithCallback(func(r Result) { got = r }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != TaskCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.Value != "hi" {
		t.Errorf("value = %v, want hi", res.Value)
	}
	if got.TaskID != res.TaskID || got.Value != "hi" {
		t.Errorf("callback got %+v, want same result", got)
	}
	if s.Len() != 0 {
		t.Errorf("queue length = %d, want 0", s.Len())
	}
}

func TestSubmitInlineHandlerError(t *testing.T) {
	boom := errors.New("boom")
	s := newTestScheduler(t, map[string]Handler{
		"fail": func(context.Context, map[string]any, Env) (any, error) { return nil, boom },
	})

	res, err := s.Submit(context.Background(), "fail", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if res.Status != TaskFailed || res.Error == "" {
		t.Errorf("got %+v, want failed result with error text", res)
	}
}

func TestSubmitUnknownTaskType(t *testing.T) {
	s := newTestScheduler(t, nil)

	res, err := s.Submit(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnknownTaskType) {
		t.Fatalf("err = %v, want ErrUnknownTaskType", err)
	}
	if res.Status != TaskFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
}

func TestHandlerReceivesParamsCopy(t *testing.T) {
	s := newTestScheduler(t, map[string]Handler{
		"mutate": func(_ context.Context, p map[string]any, _ Env) (any, error) {
			p["added"] = true
			return nil, nil
		},
	})

	params := map[string]any{"k": "v"}
	if _, err := s.Submit(context.Background(), "mutate", params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := params["added"]; ok {
		t.Error("handler mutated caller's params map")
	}
}

func TestQueuedTasksRunInPriorityOrder(t *testing.T) {
	gate := make(chan struct{})
	var order []int
	var mu sync.Mutex

	s := newTestScheduler(t, map[string]Handler{
		"gate": func(context.Context, map[string]any, Env) (any, error) {
			<-gate
			return nil, nil
		},
		"record": func(_ context.Context, p map[string]any, _ Env) (any, error) {
			mu.Lock()
			order = append(order, p["n"].(int))
			mu.Unlock()
			return nil, nil
		},
	})

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(time.Second)

	if _, err := s.Submit(ctx, "gate", nil, WithPriority(-100)); err != nil {
		t.Fatalf("submit gate: %v", err)
	}

	priorities := []int{7, 3, 9, 1, 5, 8, 2}
	c := newCollector(len(priorities))
	for _, p := range priorities {
		res, err := s.Submit(ctx, "record", map[string]any{"n": p},
			WithPriority(p), WithCallback(c.add))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if res.Status != TaskPending || res.TaskID == "" {
			t.Fatalf("queued submit returned %+v, want pending with id", res)
		}
	}
	close(gate)
	c.wait(t)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(order); i++ {
		if order[i-1] > order[i] {
			t.Fatalf("dequeue order %v is not non-decreasing", order)
		}
	}
}

func TestEqualPrioritiesAreFIFO(t *testing.T) {
	gate := make(chan struct{})
	s := newTestScheduler(t, map[string]Handler{
		"gate": func(context.Context, map[string]any, Env) (any, error) {
			<-gate
			return nil, nil
		},
		"echo": echoHandler,
	})

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(time.Second)

	s.Submit(ctx, "gate", nil, WithPriority(0))
	c := newCollector(4)
	for _, m := range []string{"a", "b", "c", "d"} {
		s.Submit(ctx, "echo", map[string]any{"msg": m}, WithPriority(3), WithCallback(c.add))
	}
	close(gate)

	results := c.wait(t)
	var got string
	for _, r := range results {
		got += r.Value.(string)
	}
	if got != "abcd" {
		t.Errorf("order = %q, want %q", got, "abcd")
	}
}

func TestWorkerSurvivesHandlerFailure(t *testing.T) {
	s := newTestScheduler(t, map[string]Handler{
		"fail":  func(context.Context, map[string]any, Env) (any, error) { return nil, errors.New("bad") },
		"panic": func(context.Context, map[string]any, Env) (any, error) { panic("kaboom") },
		"echo":  echoHandler,
	})

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(time.Second)

	c := newCollector(3)
	s.Submit(ctx, "fail", nil, WithPriority(1), WithCallback(c.add))
	s.Submit(ctx, "panic", nil, WithPriority(2), WithCallback(c.add))
	s.Submit(ctx, "echo", map[string]any{"msg": "still alive"}, WithPriority(3), WithCallback(c.add))

	results := c.wait(t)
	byName := make(map[string]Result)
	for _, r := range results {
		byName[r.Name] = r
	}
	if byName["fail"].Status != TaskFailed {
		t.Errorf("fail status = %s, want failed", byName["fail"].Status)
	}
	if byName["panic"].Status != TaskFailed {
		t.Errorf("panic status = %s, want failed", byName["panic"].Status)
	}
	if r := byName["echo"]; r.Status != TaskCompleted || r.Value != "still alive" {
		t.Errorf("echo result = %+v, want completed", r)
	}
	if !s.IsRunning() {
		t.Error("scheduler stopped after handler failures")
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	s := newTestScheduler(t, nil)
	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	if !s.IsRunning() {
		t.Fatal("expected running scheduler")
	}
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.IsRunning() {
		t.Error("expected stopped scheduler")
	}
	if err := s.Stop(time.Second); err != nil {
		t.Errorf("second stop returned %v, want nil", err)
	}
}

func TestStopAbandonsQueuedTasks(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	s := newTestScheduler(t, map[string]Handler{
		"gate": func(context.Context, map[string]any, Env) (any, error) {
			close(started)
			<-gate
			return "gate done", nil
		},
		"echo": echoHandler,
	})

	ctx := context.Background()
	s.Start(ctx)

	c := newCollector(3)
	s.Submit(ctx, "gate", nil, WithPriority(0), WithCallback(c.add))
	<-started
	s.Submit(ctx, "echo", map[string]any{"msg": "x"}, WithCallback(c.add))
	s.Submit(ctx, "echo", map[string]any{"msg": "y"}, WithCallback(c.add))

	if err := s.Stop(20 * time.Millisecond); !errors.Is(err, ErrStopTimeout) {
		t.Fatalf("stop err = %v, want ErrStopTimeout while handler is blocked", err)
	}
	close(gate)

	results := c.wait(t)
	var cancelled int
	for _, r := range results {
		switch r.Name {
		case "gate":
			if r.Status != TaskCompleted {
				t.Errorf("in-flight task status = %s, want completed", r.Status)
			}
		case "echo":
			if r.Status == TaskCancelled {
				cancelled++
			}
		}
	}
	if cancelled != 2 {
		t.Errorf("cancelled = %d, want 2", cancelled)
	}

	// Abandoned tasks are not re-run by a later start.
	if s.Len() != 0 {
		t.Errorf("queue length = %d after stop, want 0", s.Len())
	}
}

func TestCancelQueuedTask(t *testing.T) {
	gate := make(chan struct{})
	s := newTestScheduler(t, map[string]Handler{
		"gate": func(context.Context, map[string]any, Env) (any, error) {
			<-gate
			return nil, nil
		},
		"echo": echoHandler,
	})

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(time.Second)

	s.Submit(ctx, "gate", nil, WithPriority(0))
	c := newCollector(2)
	victim, _ := s.Submit(ctx, "echo", map[string]any{"msg": "victim"}, WithCallback(c.add))
	s.Submit(ctx, "echo", map[string]any{"msg": "kept"}, WithCallback(c.add))

	if !s.Cancel(victim.TaskID) {
		t.Fatal("cancel returned false for queued task")
	}
	if s.Cancel(victim.TaskID) {
		t.Error("second cancel returned true")
	}
	close(gate)

	for _, r := range c.wait(t) {
		if r.TaskID == victim.TaskID && r.Status != TaskCancelled {
			t.Errorf("victim status = %s, want cancelled", r.Status)
		}
		if r.TaskID != victim.TaskID && r.Status != TaskCompleted {
			t.Errorf("kept status = %s, want completed", r.Status)
		}
	}
}

func TestConcurrentSubmit(t *testing.T) {
	s := newTestScheduler(t, map[string]Handler{"echo": echoHandler})
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(time.Second)

	const n = 50
	c := newCollector(n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Submit(ctx, "echo", map[string]any{"msg": i}, WithPriority(i%5), WithCallback(c.add))
		}(i)
	}
	wg.Wait()

	if got := len(c.wait(t)); got != n {
		t.Errorf("got %d results, want %d", got, n)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []TaskEvent
}

func (n *recordingNotifier) Publish(_ context.Context, ev *TaskEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *ev)
	return nil
}

func TestNotifierReceivesLifecycle(t *testing.T) {
	n := &recordingNotifier{}
	reg := NewRegistry(zap.NewNop())
	reg.Register("echo", echoHandler)
	s := NewScheduler(reg, Env{}, zap.NewNop(), WithNotifier(n), WithPollInterval(10*time.Millisecond))

	ctx := context.Background()
	s.Start(ctx)
	c := newCollector(1)
	s.Submit(ctx, "echo", map[string]any{"msg": "x"}, WithCallback(c.add))
	c.wait(t)
	s.Stop(time.Second)

	n.mu.Lock()
	defer n.mu.Unlock()
	seen := make(map[TaskStatus]bool)
	for _, ev := range n.events {
		seen[ev.Status] = true
	}
	for _, want := range []TaskStatus{TaskPending, TaskRunning, TaskCompleted} {
		if !seen[want] {
			t.Errorf("no %s event in %+v", want, n.events)
		}
	}
	if len(n.events) != 3 {
		t.Errorf("got %d events, want 3", len(n.events))
	}
}
