package engine

import (
	"context"
	"math/rand"
	"sync"

	"tradingboard/internal/clock"
	"tradingboard/internal/common"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"
)

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Board is the trading board: the order book store, the market simulator
// feeding it and the execution workflow acting on it. Every exported method
// is safe for concurrent use; the work itself runs on a single dispatcher
// goroutine.
type Board struct {
	settings   Settings
	clock      clock.Clock
	store      *Store
	gen        *Generator
	sim        *Simulator
	workflow   *Workflow
	dispatcher *Dispatcher
	t          *tomb.Tomb

	// Registered before Start, read only on the dispatcher goroutine.
	reporters []Reporter
	observers []Observer

	subsLock sync.Mutex
	subs     map[uint64]chan []common.Order
	nextSub  uint64
}

func NewBoard(settings Settings, clk clock.Clock) *Board {
	seed := settings.Seed
	if seed == 0 {
		seed = clk.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	board := &Board{
		settings:   settings,
		clock:      clk,
		store:      NewStore(settings.Capacity),
		dispatcher: NewDispatcher(),
		subs:       make(map[uint64]chan []common.Order),
	}
	board.gen = NewGenerator(settings.Vocabulary, settings.Policy, rng)
	board.sim = NewSimulator(
		board.store, board.gen, settings.Policy, clk, settings.TickInterval, rng, board.dispatch,
	)
	board.sim.apply = board.apply
	board.workflow = NewWorkflow(board.store, clk, settings.SubmitLatency, board.dispatch)
	board.workflow.remove = func(id string) bool {
		return board.apply(Mutation{Kind: Remove, ID: id})
	}
	board.workflow.report = board.reportExecution
	return board
}

func (b *Board) AddReporter(r Reporter) {
	b.reporters = append(b.reporters, r)
}

func (b *Board) AddObserver(o Observer) {
	b.observers = append(b.observers, o)
}

// Start launches the dispatcher, seeds the initial book and, unless
// configured to start paused, starts the market feed. The board stops when
// ctx is cancelled or Stop is called.
func (b *Board) Start(ctx context.Context) error {
	b.t, _ = tomb.WithContext(ctx)
	b.dispatcher.Start(b.t)

	return b.dispatcher.Do(func() {
		now := b.clock.Now()
		for i := 0; i < b.settings.InitialOrders; i++ {
			b.apply(Mutation{Kind: Insert, Order: b.gen.Order(now)})
		}
		if !b.settings.StartPaused {
			b.sim.Resume()
		}
		log.Info().
			Int("orders", b.store.Len()).
			Str("feed", b.sim.State().String()).
			Msg("board started")
	})
}

// Stop pauses the feed and shuts the dispatcher down. Pending submissions are
// dropped along with the board.
func (b *Board) Stop() error {
	if b.t == nil {
		return nil
	}
	_ = b.dispatcher.Do(b.sim.Pause)
	b.t.Kill(nil)
	err := b.t.Wait()
	log.Info().Msg("board stopped")
	return err
}

// Dying is closed once the board starts shutting down. A board that was
// never started reports as dying.
func (b *Board) Dying() <-chan struct{} {
	if b.t == nil {
		return closedChan
	}
	return b.t.Dying()
}

func (b *Board) dispatch(f func()) {
	if err := b.dispatcher.Do(f); err != nil {
		log.Debug().Err(err).Msg("dropping scheduled work")
	}
}

// apply is the only path by which the board mutates its store.
func (b *Board) apply(m Mutation) bool {
	applied := b.store.Apply(m)
	size := b.store.Len()
	for _, o := range b.observers {
		o.ObserveMutation(m, applied, size)
	}
	if applied {
		b.publish()
	}
	return applied
}

func (b *Board) reportExecution(exec common.Execution) {
	for _, r := range b.reporters {
		r.ReportExecution(exec)
	}
}

// ---- Book ----

// Snapshot returns the current book in display order, newest first.
func (b *Board) Snapshot() ([]common.Order, error) {
	var orders []common.Order
	err := b.dispatcher.Do(func() {
		orders = b.store.Snapshot().Orders()
	})
	return orders, err
}

// Insert places an order on the board directly, regardless of the feed
// state. Missing ids and timestamps are filled in.
func (b *Board) Insert(order common.Order) (common.Order, error) {
	err := b.dispatcher.Do(func() {
		if order.ID == "" {
			order.ID = common.NewOrderID()
		}
		if order.UpdatedAt.IsZero() {
			order.UpdatedAt = b.clock.Now()
		}
		order.Price = common.RoundPrice(order.Price)
		b.apply(Mutation{Kind: Insert, Order: order})
	})
	return order, err
}

// UpdatePrice reprices an order. It reports false when the order is gone.
func (b *Board) UpdatePrice(id string, price decimal.Decimal) (bool, error) {
	var applied bool
	err := b.dispatcher.Do(func() {
		applied = b.apply(Mutation{Kind: Update, ID: id, Price: price, At: b.clock.Now()})
	})
	return applied, err
}

// Remove takes an order off the board. Removing a missing order is a no-op.
func (b *Board) Remove(id string) (bool, error) {
	var applied bool
	err := b.dispatcher.Do(func() {
		applied = b.apply(Mutation{Kind: Remove, ID: id})
	})
	return applied, err
}

// Subscribe delivers a fresh snapshot after every change to the book. Slow
// readers only ever see the latest one.
func (b *Board) Subscribe() (<-chan []common.Order, func()) {
	ch := make(chan []common.Order, 1)

	b.subsLock.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.subsLock.Unlock()

	cancel := func() {
		b.subsLock.Lock()
		defer b.subsLock.Unlock()
		delete(b.subs, id)
	}
	return ch, cancel
}

func (b *Board) publish() {
	b.subsLock.Lock()
	defer b.subsLock.Unlock()
	if len(b.subs) == 0 {
		return
	}

	orders := b.store.Snapshot().Orders()
	for _, ch := range b.subs {
		// Only the dispatcher sends, so after draining there is room.
		select {
		case <-ch:
		default:
		}
		ch <- orders
	}
}

// ---- Market feed ----

func (b *Board) Pause() error {
	return b.dispatcher.Do(b.sim.Pause)
}

func (b *Board) Resume() error {
	return b.dispatcher.Do(b.sim.Resume)
}

func (b *Board) Toggle() (FeedState, error) {
	var state FeedState
	err := b.dispatcher.Do(func() {
		state = b.sim.Toggle()
	})
	return state, err
}

func (b *Board) Feed() (FeedState, error) {
	var state FeedState
	err := b.dispatcher.Do(func() {
		state = b.sim.State()
	})
	return state, err
}

// Step runs one market tick immediately, whatever the feed state.
func (b *Board) Step() (Mutation, error) {
	var m Mutation
	err := b.dispatcher.Do(func() {
		m = b.sim.Step()
	})
	return m, err
}

// ---- Execution ----

func (b *Board) Select(id string) error {
	return b.call(func() error { return b.workflow.Select(id) })
}

func (b *Board) SetQuantity(quantity string) error {
	return b.call(func() error { return b.workflow.SetQuantity(quantity) })
}

func (b *Board) Confirm() error {
	return b.call(b.workflow.Confirm)
}

func (b *Board) Cancel() error {
	return b.call(b.workflow.Cancel)
}

func (b *Board) Workflow() (WorkflowStatus, error) {
	var status WorkflowStatus
	err := b.dispatcher.Do(func() {
		status = b.workflow.Status()
	})
	return status, err
}

func (b *Board) call(f func() error) error {
	var result error
	if err := b.dispatcher.Do(func() { result = f() }); err != nil {
		return err
	}
	return result
}
