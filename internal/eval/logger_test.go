package eval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu    sync.Mutex
	evals []Eval
	block chan struct{}
	err   error
}

func (s *recordingSink) InsertEval(_ context.Context, e Eval) error {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evals = append(s.evals, e)
	return nil
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.evals))
	for i, e := range s.evals {
		ids[i] = e.ID
	}
	return ids
}

func TestAsyncLogger_WritesInOrder(t *testing.T) {
	sink := &recordingSink{}
	l := NewAsyncLogger(sink, 8)

	for _, id := range []string{"a", "b", "c"} {
		l.LogEval(Eval{ID: id})
	}
	l.Close()

	ids := sink.ids()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("written = %v", ids)
	}
	if l.WrittenCount() != 3 || l.DroppedCount() != 0 {
		t.Errorf("written = %d, dropped = %d", l.WrittenCount(), l.DroppedCount())
	}
}

func TestAsyncLogger_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	l := NewAsyncLogger(sink, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			l.LogEval(Eval{ID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LogEval blocked on a full queue")
	}

	close(sink.block)
	l.Close()

	if l.DroppedCount() == 0 {
		t.Error("expected some evals to be dropped")
	}
	if got := l.WrittenCount() + l.DroppedCount(); got != 20 {
		t.Errorf("written + dropped = %d, want 20", got)
	}
}

func TestAsyncLogger_SinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	l := NewAsyncLogger(sink, 4)
	l.LogEval(Eval{ID: "a"})
	l.LogEval(Eval{ID: "b"})
	l.Close()

	if l.FailedCount() != 2 || l.WrittenCount() != 0 {
		t.Errorf("failed = %d, written = %d", l.FailedCount(), l.WrittenCount())
	}
}

func TestAsyncLogger_AfterClose(t *testing.T) {
	l := NewAsyncLogger(&recordingSink{}, 0)
	l.Close()
	l.Close()

	l.LogEval(Eval{ID: "late"})
	if l.DroppedCount() != 1 {
		t.Errorf("DroppedCount = %d, want 1", l.DroppedCount())
	}
}

func TestAsyncLogger_WithStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if err := s.StartRun(ctx, Run{ID: "r", RootTask: "t", TaskType: "general", Priority: "normal", StartedAt: time.Now()}); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	l := NewAsyncLogger(s, 4)
	l.LogEval(Eval{ID: "e1", RunID: "r", NodeID: 1, Task: "leaf", OK: true})
	l.Close()

	evals, err := s.ListEvals(ctx, "r")
	if err != nil {
		t.Fatalf("ListEvals failed: %v", err)
	}
	if len(evals) != 1 || evals[0].Task != "leaf" {
		t.Errorf("evals = %+v", evals)
	}
}
