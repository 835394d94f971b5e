package engine

import (
	"math/rand"
	"time"

	"tradingboard/internal/clock"

	"github.com/rs/zerolog/log"
)

// Dispatch runs f on the goroutine that owns the store and returns once f has
// completed.
type Dispatch func(f func())

// Simulator mutates the store on a fixed interval while Running. It owns at
// most one outstanding timer; the next tick is armed only after the previous
// one has been applied.
//
// Every method except the timer callback must be called from the goroutine
// owning the store.
type Simulator struct {
	store    *Store
	gen      *Generator
	policy   Policy
	clock    clock.Clock
	interval time.Duration
	rng      *rand.Rand
	dispatch Dispatch
	apply    func(Mutation) bool

	state FeedState
	timer clock.Timer
	// generation invalidates callbacks of timers that fired after a pause.
	generation uint64
}

func NewSimulator(
	store *Store,
	gen *Generator,
	policy Policy,
	clk clock.Clock,
	interval time.Duration,
	rng *rand.Rand,
	dispatch Dispatch,
) *Simulator {
	return &Simulator{
		store:    store,
		gen:      gen,
		policy:   policy,
		clock:    clk,
		interval: interval,
		rng:      rng,
		dispatch: dispatch,
		apply:    store.Apply,
		state:    Paused,
	}
}

func (s *Simulator) State() FeedState {
	return s.state
}

// Resume arms the tick timer. Resuming a running simulator does nothing.
func (s *Simulator) Resume() {
	if s.state == Running {
		return
	}
	s.state = Running
	s.generation++
	s.arm()
	log.Info().Dur("interval", s.interval).Msg("market feed running")
}

// Pause cancels the pending tick. A tick whose timer already fired but has
// not yet been dispatched is discarded when it arrives.
func (s *Simulator) Pause() {
	if s.state == Paused {
		return
	}
	s.state = Paused
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	log.Info().Msg("market feed paused")
}

func (s *Simulator) Toggle() FeedState {
	if s.state == Running {
		s.Pause()
	} else {
		s.Resume()
	}
	return s.state
}

func (s *Simulator) arm() {
	generation := s.generation
	s.timer = s.clock.AfterFunc(s.interval, func() {
		s.dispatch(func() {
			s.fire(generation)
		})
	})
}

func (s *Simulator) fire(generation uint64) {
	if s.state != Running || generation != s.generation {
		log.Debug().Uint64("generation", generation).Msg("discarding stale tick")
		return
	}
	s.timer = nil
	s.Step()
	s.arm()
}

// Plan draws the next mutation against book without applying it.
func (s *Simulator) Plan(book Book) Mutation {
	now := s.clock.Now()
	action := s.rng.Float64()
	p := s.policy

	switch {
	case action < p.InsertProbability:
		return Mutation{Kind: Insert, Order: s.gen.Order(now)}

	case action < p.InsertProbability+p.UpdateProbability && book.Len() > 0:
		window := min(p.UpdateWindow, book.Len())
		target, ok := book.At(s.rng.Intn(window))
		if !ok {
			return Mutation{Kind: NoOp}
		}
		return Mutation{
			Kind:  Update,
			ID:    target.ID,
			Price: target.Price.Add(s.gen.PriceDelta()),
			At:    now,
		}

	case action < p.InsertProbability+p.UpdateProbability+p.RemoveProbability && book.Len() > p.RemoveFloor:
		target, ok := book.At(s.rng.Intn(book.Len()))
		if !ok {
			return Mutation{Kind: NoOp}
		}
		return Mutation{Kind: Remove, ID: target.ID}
	}
	return Mutation{Kind: NoOp}
}

// Step runs exactly one tick synchronously, regardless of state.
func (s *Simulator) Step() Mutation {
	m := s.Plan(s.store.Snapshot())
	applied := s.apply(m)

	event := log.Debug().Str("kind", m.Kind.String()).Bool("applied", applied)
	if m.ID != "" {
		event = event.Str("order", m.ID)
	} else if m.Kind == Insert {
		event = event.Str("order", m.Order.ID)
	}
	event.Int("size", s.store.Len()).Msg("market tick")
	return m
}
