package engine

import (
	"errors"
	"fmt"
	"time"

	"tradingboard/internal/common"
)

var (
	ErrWorkflowBusy  = errors.New("execution already in progress")
	ErrNotPending    = errors.New("no execution awaiting confirmation")
	ErrOrderNotFound = errors.New("order not found")
	ErrBoardClosed   = errors.New("board closed")
)

type FeedState int

const (
	// Running means the simulator timer is armed and ticks mutate the book.
	Running FeedState = iota
	// Paused means no timer is pending and no tick will fire.
	Paused
)

var feedStateName = map[FeedState]string{
	Running: "running",
	Paused:  "paused",
}

func (s FeedState) String() string {
	return feedStateName[s]
}

type WorkflowState int

const (
	Idle WorkflowState = iota
	ConfirmPending
	Submitting
	Resolved
)

var workflowStateName = map[WorkflowState]string{
	Idle:           "idle",
	ConfirmPending: "confirm_pending",
	Submitting:     "submitting",
	Resolved:       "resolved",
}

func (s WorkflowState) String() string {
	return workflowStateName[s]
}

func (s WorkflowState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *WorkflowState) UnmarshalText(text []byte) error {
	for state, name := range workflowStateName {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown workflow state %q", text)
}

// Policy parameterises the simulated market.
type Policy struct {
	InsertProbability float64
	UpdateProbability float64
	RemoveProbability float64
	UpdateWindow      int     // Updates pick among this many newest orders
	RemoveFloor       int     // Removals need strictly more orders than this
	PriceMin          float64 //
	PriceMax          float64 //
	PriceDelta        float64 // Max absolute price move of an update
	SpreadMin         int     // Inclusive, bps
	SpreadMax         int     // Exclusive, bps
	AmountSteps       int     // Sizes are 1..AmountSteps multiples of $5M
}

func DefaultPolicy() Policy {
	return Policy{
		InsertProbability: 0.4,
		UpdateProbability: 0.2,
		RemoveProbability: 0.1,
		UpdateWindow:      5,
		RemoveFloor:       5,
		PriceMin:          95,
		PriceMax:          102,
		PriceDelta:        0.25,
		SpreadMin:         100,
		SpreadMax:         300,
		AmountSteps:       20,
	}
}

type Settings struct {
	TickInterval  time.Duration
	SubmitLatency time.Duration
	Capacity      int
	InitialOrders int
	StartPaused   bool
	Seed          int64 // Zero seeds from the clock
	Policy        Policy
	Vocabulary    Vocabulary
}

func DefaultSettings() Settings {
	return Settings{
		TickInterval:  2000 * time.Millisecond,
		SubmitLatency: 1000 * time.Millisecond,
		Capacity:      DefaultCapacity,
		InitialOrders: 8,
		Policy:        DefaultPolicy(),
		Vocabulary:    DefaultVocabulary(),
	}
}

// Reporter receives committed executions. It is called on the board's
// dispatcher goroutine and must not call back into the board.
type Reporter interface {
	ReportExecution(exec common.Execution)
}

// Observer sees every mutation the board attempts, whether or not it changed
// the book, together with the resulting book size. Same calling rules as
// Reporter.
type Observer interface {
	ObserveMutation(m Mutation, applied bool, size int)
}
