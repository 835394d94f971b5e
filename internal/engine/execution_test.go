package engine

import (
	"testing"
	"time"

	"tradingboard/internal/clock"
	"tradingboard/internal/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

type workflowHarness struct {
	clock    *clock.Fake
	store    *Store
	workflow *Workflow
	reports  []common.Execution
}

func newWorkflowHarness() *workflowHarness {
	h := &workflowHarness{
		clock: clock.NewFake(epoch),
		store: NewStore(DefaultCapacity),
	}
	h.workflow = NewWorkflow(h.store, h.clock, time.Second, func(f func()) { f() })
	h.workflow.report = func(exec common.Execution) {
		h.reports = append(h.reports, exec)
	}
	return h
}

// --- Tests ------------------------------------------------------------------

func TestWorkflow_SelectCapturesSnapshot(t *testing.T) {
	h := newWorkflowHarness()
	h.store.Insert(testOrder("x", "Acme Corp", common.Bid, "99.75"))

	require.NoError(t, h.workflow.Select("x"))
	status := h.workflow.Status()
	assert.Equal(t, ConfirmPending, status.State)
	assert.Equal(t, "$50M", status.Quantity)

	// The live order moves; the dialog must not.
	h.store.UpdatePrice("x", decimal.NewFromInt(101), epoch.Add(time.Second))
	status = h.workflow.Status()
	require.NotNil(t, status.Order)
	assert.Equal(t, "99.75", status.Order.Price.StringFixed(2))
	assert.Equal(t, epoch, status.Order.UpdatedAt)
}

func TestWorkflow_SelectErrors(t *testing.T) {
	h := newWorkflowHarness()
	h.store.Insert(testOrder("x", "Acme Corp", common.Bid, "99.75"))
	h.store.Insert(testOrder("y", "Tech Holdings", common.Ask, "98.00"))

	assert.ErrorIs(t, h.workflow.Select("missing"), ErrOrderNotFound)
	assert.Equal(t, Idle, h.workflow.State())

	require.NoError(t, h.workflow.Select("x"))
	assert.ErrorIs(t, h.workflow.Select("y"), ErrWorkflowBusy)

	require.NoError(t, h.workflow.Confirm())
	assert.ErrorIs(t, h.workflow.Select("y"), ErrWorkflowBusy)
	assert.ErrorIs(t, h.workflow.Cancel(), ErrNotPending)
	assert.ErrorIs(t, h.workflow.Confirm(), ErrNotPending)
	assert.ErrorIs(t, h.workflow.SetQuantity("1M"), ErrNotPending)
}

func TestWorkflow_CancelLeavesBookAlone(t *testing.T) {
	h := newWorkflowHarness()
	h.store.Insert(testOrder("x", "Acme Corp", common.Bid, "99.75"))
	before := h.store.Snapshot().Orders()

	require.NoError(t, h.workflow.Select("x"))
	require.NoError(t, h.workflow.Cancel())

	assert.Equal(t, Idle, h.workflow.State())
	assert.Nil(t, h.workflow.Status().Order)
	h.clock.Advance(time.Minute)
	assert.Equal(t, before, h.store.Snapshot().Orders())
	assert.Empty(t, h.reports)
}

func TestWorkflow_ConfirmCommitsAfterLatency(t *testing.T) {
	h := newWorkflowHarness()
	h.store.Insert(testOrder("x", "Acme Corp", common.Ask, "99.75"))
	h.store.Insert(testOrder("y", "Tech Holdings", common.Bid, "98.00"))

	require.NoError(t, h.workflow.Select("x"))
	require.NoError(t, h.workflow.SetQuantity("$20M"))
	require.NoError(t, h.workflow.Confirm())
	assert.Equal(t, Submitting, h.workflow.State())

	h.clock.Advance(999 * time.Millisecond)
	assert.Empty(t, h.reports)
	assert.True(t, h.store.Snapshot().Contains("x"))

	h.clock.Advance(time.Millisecond)
	require.Len(t, h.reports, 1)
	exec := h.reports[0]
	assert.Equal(t, "x", exec.OrderID)
	assert.Equal(t, "Acme Corp", exec.Borrower)
	assert.Equal(t, "Term Loan B", exec.Facility)
	assert.Equal(t, "99.75", exec.Price.StringFixed(2))
	assert.True(t, exec.Quantity.Equal(decimal.NewFromInt(20_000_000)))
	assert.Equal(t, common.Ask, exec.Side)
	assert.Equal(t, "hit", exec.Action)
	assert.Equal(t, epoch.Add(time.Second), exec.CommittedAt)

	// The whole order leaves the book regardless of the quantity.
	assert.False(t, h.store.Snapshot().Contains("x"))
	assert.True(t, h.store.Snapshot().Contains("y"))
	assert.Equal(t, Idle, h.workflow.State())
	assert.Equal(t, &exec, h.workflow.Status().Last)
}

func TestWorkflow_StatusMarksRemovedOrderStale(t *testing.T) {
	h := newWorkflowHarness()
	h.store.Insert(testOrder("x", "Acme Corp", common.Bid, "99.75"))

	require.NoError(t, h.workflow.Select("x"))
	assert.False(t, h.workflow.Status().Stale)

	require.True(t, h.store.Remove("x"))
	status := h.workflow.Status()
	assert.Equal(t, ConfirmPending, status.State)
	assert.True(t, status.Stale)
	require.NotNil(t, status.Order)
	assert.Equal(t, "x", status.Order.ID)

	// Still confirmable; the commit itself is unchanged.
	require.NoError(t, h.workflow.Confirm())
	assert.True(t, h.workflow.Status().Stale)
	h.clock.Advance(time.Second)
	require.Len(t, h.reports, 1)
	assert.False(t, h.workflow.Status().Stale)
}

func TestWorkflow_CommitAfterOrderVanished(t *testing.T) {
	h := newWorkflowHarness()
	h.store.Insert(testOrder("x", "Acme Corp", common.Bid, "99.75"))

	require.NoError(t, h.workflow.Select("x"))
	require.NoError(t, h.workflow.SetQuantity("$50M"))
	require.NoError(t, h.workflow.Confirm())

	// Filled by someone else mid-flight.
	require.True(t, h.store.Remove("x"))
	before := h.store.Snapshot().Orders()

	assert.NotPanics(t, func() { h.clock.Advance(time.Second) })
	require.Len(t, h.reports, 1)
	assert.Equal(t, "99.75", h.reports[0].Price.StringFixed(2))
	assert.Equal(t, "lift", h.reports[0].Action)
	assert.Equal(t, before, h.store.Snapshot().Orders())
	assert.Equal(t, Idle, h.workflow.State())
}

func TestResolveQuantity(t *testing.T) {
	full := decimal.NewFromInt(50_000_000)
	cases := map[string]string{
		"":          "50000000",
		"   ":       "50000000",
		"abc":       "50000000",
		"-5M":       "50000000",
		"0":         "50000000",
		"$25M":      "25000000",
		"2.5m":      "2500000",
		"750K":      "750000",
		"1,000,000": "1000000",
		"$75M":      "50000000",
	}
	for input, want := range cases {
		got := ResolveQuantity(input, full)
		assert.Equal(t, want, got.String(), "input %q", input)
	}
}
