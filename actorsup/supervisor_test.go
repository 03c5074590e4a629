package actorsup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeActor struct {
	name       string
	generation atomic.Uint64
	running    atomic.Bool
	stopCh     chan struct{}
}

func newFakeActor(name string) *fakeActor {
	return &fakeActor{name: name, stopCh: make(chan struct{})}
}

func (a *fakeActor) Run() error {
	a.running.Store(true)
	<-a.stopCh
	a.running.Store(false)
	return nil
}

func (a *fakeActor) Stop() {
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
}

func (a *fakeActor) Name() string             { return a.name }
func (a *fakeActor) BumpGeneration() uint64    { return a.generation.Add(1) }

func TestSupervisorRunsAndStopsActors(t *testing.T) {
	sup := New("test-supervisor", nil)
	actor := newFakeActor("fake")
	sup.Add(actor)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !actor.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("actor never reported running")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}

	if actor.running.Load() {
		t.Fatal("actor still running after supervisor shutdown")
	}
}
