package engine

import (
	"time"

	"tradingboard/internal/clock"
	"tradingboard/internal/common"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// WorkflowStatus is what the confirmation dialog shows.
type WorkflowStatus struct {
	State    WorkflowState     `json:"state"`
	Order    *common.Order     `json:"order,omitempty"`    // Snapshot taken at selection
	Quantity string            `json:"quantity,omitempty"` // As typed by the viewer
	Stale    bool              `json:"stale"`              // The selected order has left the book
	Last     *common.Execution `json:"last,omitempty"`     // Most recent commit
}

// Workflow drives a single order through select, confirm and commit. The
// order it acts on is a copy taken at selection; later changes to the live
// order never reach the dialog.
//
// All methods must be called from the goroutine owning the store.
type Workflow struct {
	store    *Store
	clock    clock.Clock
	latency  time.Duration
	dispatch Dispatch
	remove   func(id string) bool
	report   func(common.Execution)

	state    WorkflowState
	pending  common.Order
	quantity string
	last     *common.Execution
}

func NewWorkflow(store *Store, clk clock.Clock, latency time.Duration, dispatch Dispatch) *Workflow {
	return &Workflow{
		store:    store,
		clock:    clk,
		latency:  latency,
		dispatch: dispatch,
		remove:   store.Remove,
		report:   func(common.Execution) {},
	}
}

func (w *Workflow) State() WorkflowState {
	return w.state
}

func (w *Workflow) Status() WorkflowStatus {
	status := WorkflowStatus{State: w.state, Last: w.last}
	if w.state == ConfirmPending || w.state == Submitting {
		order := w.pending
		status.Order = &order
		status.Quantity = w.quantity
		status.Stale = !w.store.Snapshot().Contains(order.ID)
	}
	return status
}

// Select captures the order the viewer acted on and opens the confirmation
// with the full amount as the default quantity.
func (w *Workflow) Select(id string) error {
	if w.state != Idle {
		return ErrWorkflowBusy
	}
	order, ok := w.store.Get(id)
	if !ok {
		return ErrOrderNotFound
	}

	w.pending = order
	w.quantity = common.FormatAmount(order.Amount)
	w.transition(ConfirmPending)
	return nil
}

func (w *Workflow) SetQuantity(quantity string) error {
	if w.state != ConfirmPending {
		return ErrNotPending
	}
	w.quantity = quantity
	return nil
}

// Cancel closes the confirmation without touching the book.
func (w *Workflow) Cancel() error {
	if w.state != ConfirmPending {
		return ErrNotPending
	}
	w.reset()
	return nil
}

// Confirm submits the pending order. After the submission latency the order
// is removed from the book and the execution reported, whatever happened to
// the order in between. There is no way to abort a submission.
func (w *Workflow) Confirm() error {
	if w.state != ConfirmPending {
		return ErrNotPending
	}
	w.transition(Submitting)

	w.clock.AfterFunc(w.latency, func() {
		w.dispatch(w.complete)
	})
	return nil
}

func (w *Workflow) complete() {
	if w.state != Submitting {
		return
	}
	order := w.pending
	quantity := ResolveQuantity(w.quantity, order.Amount)

	if !w.remove(order.ID) {
		log.Debug().Str("order", order.ID).Msg("committed order already left the book")
	}

	exec := common.Execution{
		OrderID:     order.ID,
		Borrower:    order.Borrower,
		Facility:    order.Facility,
		Dealer:      order.Dealer,
		Price:       order.Price,
		Quantity:    quantity,
		Side:        order.Side,
		Action:      order.Side.Action(),
		CommittedAt: w.clock.Now(),
	}
	w.last = &exec
	w.transition(Resolved)

	log.Info().
		Str("order", exec.OrderID).
		Str("action", exec.Action).
		Str("quantity", common.FormatAmount(exec.Quantity)).
		Str("price", exec.Price.StringFixed(common.PricePlaces)).
		Msg("execution committed")
	w.report(exec)
	w.reset()
}

func (w *Workflow) reset() {
	w.pending = common.Order{}
	w.quantity = ""
	w.transition(Idle)
}

func (w *Workflow) transition(to WorkflowState) {
	log.Debug().
		Str("from", w.state.String()).
		Str("to", to.String()).
		Str("order", w.pending.ID).
		Msg("execution workflow")
	w.state = to
}

// ResolveQuantity turns the viewer's quantity field into an amount. Blank or
// unparseable input falls back to the full amount, and the result never
// exceeds it.
func ResolveQuantity(input string, amount decimal.Decimal) decimal.Decimal {
	quantity, err := common.ParseAmount(input)
	if err != nil {
		return amount
	}
	if quantity.GreaterThan(amount) {
		return amount
	}
	return quantity
}
