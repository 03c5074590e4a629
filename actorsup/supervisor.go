// Package actorsup supervises the long-lived actors of the player (the
// driver's, engine's, each decoder's, the renderer's and the clock's
// Loopers) under a single suture supervision tree, restarting a crashed
// actor's goroutine and bumping its generation counter so in-flight stale
// messages are dropped after a restart (§5 "Ordering").
//
// Grounded on tomtom215-lyrebirdaudio-go, whose go.mod pulls in
// github.com/thejerf/suture/v4 for exactly this shape of problem (a fleet
// of independently-restartable long-running workers); this module wires
// that dependency directly instead of hand-rolling a second supervisor.
package actorsup

import (
	"context"

	"github.com/thejerf/suture/v4"

	"hpcplayer/logging"
)

// Actor is anything that can run a Looper's dispatch loop and be told to
// stop. *looper.Looper satisfies this directly.
type Actor interface {
	Run() error
	Stop()
	Name() string
	BumpGeneration() uint64
}

// service adapts an Actor to suture.Service, restarting (bumping its
// generation first) whenever Run returns due to a panic recovered inside
// the Looper's deliver().
type service struct {
	actor Actor
	log   *logging.Logger
}

func (s *service) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- s.actor.Run()
	}()

	select {
	case <-ctx.Done():
		s.actor.Stop()
		<-done
		return suture.ErrDoNotRestart
	case err := <-done:
		if err != nil {
			s.log.Warnf("actor %s exited with error, restarting: %v", s.actor.Name(), err)
			s.actor.BumpGeneration()
		}
		return err
	}
}

func (s *service) String() string { return s.actor.Name() }

// Supervisor wraps a suture.Supervisor over a fixed set of actors.
type Supervisor struct {
	sup *suture.Supervisor
	log *logging.Logger
}

// New creates a Supervisor. Actors are added with Add before Serve is
// called; suture restarts a Serve call that returns a non-nil,
// non-ErrDoNotRestart error using its default exponential backoff.
func New(name string, log *logging.Logger) *Supervisor {
	if log == nil {
		log = logging.Nop()
	}
	return &Supervisor{
		sup: suture.New(name, suture.Spec{}),
		log: log,
	}
}

// Add registers an actor for supervision and returns nothing: suture.Add
// must be called before the supervisor is serving for our usage (actors are
// fixed at Driver construction time, per §9 DESIGN NOTES' "central registry"
// guidance — no dynamic actor topology at runtime).
func (s *Supervisor) Add(actor Actor) {
	s.sup.Add(&service{actor: actor, log: s.log})
}

// Serve blocks until ctx is cancelled, running every registered actor and
// restarting any that exit abnormally.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.sup.Serve(ctx)
}
