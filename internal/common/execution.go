package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Execution is the outcome reported when the viewer commits against an
// order. It is built from the snapshot taken at selection time, not from the
// live book.
type Execution struct {
	OrderID     string          `json:"orderId"`
	Borrower    string          `json:"borrower"`
	Facility    string          `json:"facility"`
	Dealer      string          `json:"dealer"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Side        Side            `json:"side"`
	Action      string          `json:"action"`
	CommittedAt time.Time       `json:"committedAt"`
}

func (e Execution) String() string {
	return fmt.Sprintf("%s %s %s %s @ %s",
		e.Action,
		FormatAmount(e.Quantity),
		e.Borrower,
		e.Facility,
		e.Price.StringFixed(PricePlaces),
	)
}
