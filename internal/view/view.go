// Package view is the read path of the trading board: free-text filtering
// over book snapshots and a per-viewer view that stays consistent with the
// latest book.
package view

import (
	"strings"
	"sync"

	"tradingboard/internal/common"
	"tradingboard/internal/engine"
)

// Matches reports whether query is a case-insensitive substring of the
// order's borrower, facility or dealer. The empty query matches everything.
func Matches(order common.Order, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(order.Borrower), q) ||
		strings.Contains(strings.ToLower(order.Facility), q) ||
		strings.Contains(strings.ToLower(order.Dealer), q)
}

// Filter returns the orders matching query, preserving order.
func Filter(orders []common.Order, query string) []common.Order {
	filtered := make([]common.Order, 0, len(orders))
	for _, order := range orders {
		if Matches(order, query) {
			filtered = append(filtered, order)
		}
	}
	return filtered
}

// Feed is the control a view shares with the market simulator.
type Feed interface {
	Pause() error
	Resume() error
	Toggle() (engine.FeedState, error)
	Feed() (engine.FeedState, error)
}

// View holds one viewer's query and the rows derived from the latest book.
// Rows are recomputed whenever the book or the query changes, so a row is
// never shown for an order the latest book no longer has.
type View struct {
	feed Feed

	lock  sync.RWMutex
	query string
	book  []common.Order
	rows  []common.Order
}

func New(feed Feed) *View {
	return &View{feed: feed}
}

func (v *View) SetQuery(query string) []common.Order {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.query = query
	v.rows = Filter(v.book, v.query)
	return v.rows
}

func (v *View) Update(book []common.Order) []common.Order {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.book = book
	v.rows = Filter(v.book, v.query)
	return v.rows
}

func (v *View) Query() string {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.query
}

// Rows returns a copy of the current filtered rows.
func (v *View) Rows() []common.Order {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return append([]common.Order(nil), v.rows...)
}

// Paused reports the state of the shared feed control.
func (v *View) Paused() (bool, error) {
	state, err := v.feed.Feed()
	return state == engine.Paused, err
}

// TogglePause flips the shared feed between running and paused.
func (v *View) TogglePause() (engine.FeedState, error) {
	return v.feed.Toggle()
}
