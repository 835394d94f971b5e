package engine

import (
	"time"

	"tradingboard/internal/common"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// DefaultCapacity bounds the number of orders held on the board.
const DefaultCapacity = 20

type MutationKind int

const (
	NoOp MutationKind = iota
	Insert
	Update
	Remove
)

var mutationName = map[MutationKind]string{
	NoOp:   "noop",
	Insert: "insert",
	Update: "update",
	Remove: "remove",
}

func (k MutationKind) String() string {
	return mutationName[k]
}

// Mutation is a single change to the book. Only the fields relevant to Kind
// are read.
type Mutation struct {
	Kind  MutationKind
	Order common.Order    // Insert
	ID    string          // Update, Remove
	Price decimal.Decimal // Update
	At    time.Time       // Update
}

// entry pins an order to the sequence number it was inserted with. The
// sequence defines display order and is never changed by an update.
type entry struct {
	seq   uint64
	order common.Order
}

// Book is an immutable, ordered collection of orders, newest first. Every
// mutating method returns a new Book and leaves the receiver untouched; the
// two share structure through the trees' copy-on-write.
type Book struct {
	orders *btree.BTreeG[entry]
	index  *btree.Map[string, uint64]
	next   uint64
}

func NewBook() Book {
	return Book{
		// Newest (highest sequence) first.
		orders: btree.NewBTreeG(func(a, b entry) bool {
			return a.seq > b.seq
		}),
		index: new(btree.Map[string, uint64]),
	}
}

func (b Book) clone() Book {
	return Book{
		orders: b.orders.Copy(),
		index:  b.index.Copy(),
		next:   b.next,
	}
}

func (b Book) Len() int {
	return b.orders.Len()
}

func (b Book) Get(id string) (common.Order, bool) {
	seq, ok := b.index.Get(id)
	if !ok {
		return common.Order{}, false
	}
	e, ok := b.orders.Get(entry{seq: seq})
	return e.order, ok
}

func (b Book) Contains(id string) bool {
	_, ok := b.index.Get(id)
	return ok
}

// At returns the order at a display position, 0 being the newest.
func (b Book) At(i int) (common.Order, bool) {
	e, ok := b.orders.GetAt(i)
	return e.order, ok
}

// Orders copies the book out in display order.
func (b Book) Orders() []common.Order {
	orders := make([]common.Order, 0, b.orders.Len())
	b.orders.Scan(func(e entry) bool {
		orders = append(orders, e.order)
		return true
	})
	return orders
}

// Insert places the order at the front and evicts the oldest orders beyond
// capacity. An order reusing a live id replaces it but keeps the live side.
func (b Book) Insert(order common.Order, capacity int) Book {
	next := b.clone()
	if seq, ok := next.index.Get(order.ID); ok {
		live, _ := next.orders.Delete(entry{seq: seq})
		order.Side = live.order.Side
		next.index.Delete(order.ID)
	}

	next.next++
	next.orders.Set(entry{seq: next.next, order: order})
	next.index.Set(order.ID, next.next)

	// Max is the oldest given the newest-first ordering.
	for next.orders.Len() > capacity {
		evicted, ok := next.orders.PopMax()
		if !ok {
			break
		}
		next.index.Delete(evicted.order.ID)
	}
	return next
}

// UpdatePrice replaces the price and timestamp of id in place. A missing id
// is not an error: the receiver is returned and ok is false.
func (b Book) UpdatePrice(id string, price decimal.Decimal, at time.Time) (Book, bool) {
	seq, ok := b.index.Get(id)
	if !ok {
		return b, false
	}
	next := b.clone()
	e, _ := next.orders.Get(entry{seq: seq})
	e.order.Price = common.RoundPrice(price)
	e.order.UpdatedAt = at
	next.orders.Set(e)
	return next, true
}

// Remove deletes id from the book. Removal is total: a missing id returns the
// receiver unchanged with ok false.
func (b Book) Remove(id string) (Book, bool) {
	seq, ok := b.index.Get(id)
	if !ok {
		return b, false
	}
	next := b.clone()
	next.orders.Delete(entry{seq: seq})
	next.index.Delete(id)
	return next, true
}

// Apply is the single entry point through which every mutation reaches a
// book. The boolean reports whether the book changed.
func (b Book) Apply(m Mutation, capacity int) (Book, bool) {
	switch m.Kind {
	case Insert:
		return b.Insert(m.Order, capacity), true
	case Update:
		return b.UpdatePrice(m.ID, m.Price, m.At)
	case Remove:
		return b.Remove(m.ID)
	}
	return b, false
}

// Store owns the authoritative book. It is not safe for concurrent use; the
// board only touches it from its dispatcher goroutine.
type Store struct {
	book     Book
	capacity int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		book:     NewBook(),
		capacity: capacity,
	}
}

func (s *Store) Apply(m Mutation) bool {
	var changed bool
	s.book, changed = s.book.Apply(m, s.capacity)
	return changed
}

func (s *Store) Insert(order common.Order) {
	s.Apply(Mutation{Kind: Insert, Order: order})
}

func (s *Store) UpdatePrice(id string, price decimal.Decimal, at time.Time) bool {
	return s.Apply(Mutation{Kind: Update, ID: id, Price: price, At: at})
}

func (s *Store) Remove(id string) bool {
	return s.Apply(Mutation{Kind: Remove, ID: id})
}

func (s *Store) Get(id string) (common.Order, bool) {
	return s.book.Get(id)
}

func (s *Store) Len() int {
	return s.book.Len()
}

func (s *Store) Capacity() int {
	return s.capacity
}

// Snapshot returns the current book. The value is immutable and stays valid
// after further mutations of the store.
func (s *Store) Snapshot() Book {
	return s.book
}
