package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricePlaces is the number of decimal places a quote is carried with.
const PricePlaces = 2

// Order is a single tradable quote on the board. Values are copied between
// the store and its readers; only the store ever replaces a revision.
type Order struct {
	ID        string          `json:"id"`        // Never reused
	Borrower  string          `json:"borrower"`  //
	Facility  string          `json:"facility"`  //
	Dealer    string          `json:"dealer"`    //
	Rating    string          `json:"rating"`    //
	Amount    decimal.Decimal `json:"amount"`    // Full size of the quote
	Price     decimal.Decimal `json:"price"`     // Quote, two decimals
	SpreadBps int             `json:"spreadBps"` //
	Side      Side            `json:"side"`      // Fixed for the life of the order
	UpdatedAt time.Time       `json:"updatedAt"` // Time of the last mutation
}

// NewOrderID returns a fresh opaque order identifier.
func NewOrderID() string {
	return uuid.NewString()
}

// RoundPrice truncates a quote to the board's price precision.
func RoundPrice(price decimal.Decimal) decimal.Decimal {
	return price.Round(PricePlaces)
}

func (order Order) String() string {
	return fmt.Sprintf(
		`ID:        %s
Borrower:  %s
Facility:  %s
Dealer:    %s
Rating:    %s
Amount:    %s
Price:     %s
Spread:    %d bps
Side:      %v
UpdatedAt: %v`,
		order.ID,
		order.Borrower,
		order.Facility,
		order.Dealer,
		order.Rating,
		FormatAmount(order.Amount),
		order.Price.StringFixed(PricePlaces),
		order.SpreadBps,
		order.Side,
		order.UpdatedAt.Format(time.RFC3339),
	)
}
