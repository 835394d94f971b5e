package net

import (
	"sync"
	"time"

	"tradingboard/internal/common"
	"tradingboard/internal/utils"
	"tradingboard/internal/view"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	clientSendSize   = 64
	writeTimeout     = 10 * time.Second
	executionBacklog = 64
)

// Client is a single connected viewer. Frames are queued on send and written
// by whichever pool worker picks the client up; writeLock keeps them in
// order.
type Client struct {
	id        string
	conn      *websocket.Conn
	view      *view.View
	send      chan []byte
	writeLock sync.Mutex
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil {
			log.Debug().Err(err).Str("client", c.id).Msg("error closing client")
		}
	})
}

// flush writes every queued frame. It runs on a pool worker.
func (c *Client) flush() {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("client", c.id).Msg("write failed")
				c.close()
				return
			}
		default:
			return
		}
	}
}

type queryChange struct {
	client *Client
	query  string
}

// Hub owns the set of connected viewers. Book snapshots, query changes and
// executions are all handled on the hub goroutine, so a viewer's rows are
// always derived from the newest book the hub has seen.
type Hub struct {
	updates    <-chan []common.Order
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	queries    chan queryChange
	executions chan common.Execution
	pool       utils.WorkerPool
	t          *tomb.Tomb
	book       []common.Order
}

func NewHub(updates <-chan []common.Order, workers uint) *Hub {
	return &Hub{
		updates:    updates,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		queries:    make(chan queryChange),
		executions: make(chan common.Execution, executionBacklog),
		pool:       utils.NewWorkerPool(workers),
	}
}

// Start runs the hub and its write workers under t.
func (h *Hub) Start(t *tomb.Tomb) {
	h.t = t
	h.pool.Setup(t, h.write)
	t.Go(h.run)
}

// ReportExecution implements engine.Reporter. It never blocks the board.
func (h *Hub) ReportExecution(exec common.Execution) {
	select {
	case h.executions <- exec:
	default:
		log.Warn().Str("order", exec.OrderID).Msg("execution backlog full, dropping notification")
	}
}

func (h *Hub) run() error {
	for {
		select {
		case <-h.t.Dying():
			for client := range h.clients {
				client.close()
			}
			return nil

		case client := <-h.register:
			// Catch up first so the new viewer starts from the newest book.
			select {
			case orders := <-h.updates:
				h.broadcastBook(orders)
			default:
			}
			h.clients[client] = true
			rows := client.view.Update(h.book)
			h.deliver(client, bookReport(client.view.Query(), rows))
			log.Info().Str("client", client.id).Int("clients", len(h.clients)).Msg("viewer connected")

		case client := <-h.unregister:
			if h.clients[client] {
				delete(h.clients, client)
				client.close()
				log.Info().Str("client", client.id).Int("clients", len(h.clients)).Msg("viewer disconnected")
			}

		case change := <-h.queries:
			if h.clients[change.client] {
				rows := change.client.view.SetQuery(change.query)
				h.deliver(change.client, bookReport(change.client.view.Query(), rows))
			}

		case orders := <-h.updates:
			h.broadcastBook(orders)

		case exec := <-h.executions:
			for client := range h.clients {
				h.deliver(client, Report{Type: ExecutionReport, Execution: &exec})
			}
		}
	}
}

func (h *Hub) broadcastBook(orders []common.Order) {
	h.book = orders
	for client := range h.clients {
		rows := client.view.Update(orders)
		h.deliver(client, bookReport(client.view.Query(), rows))
	}
}

// deliver queues a frame for the client and schedules a flush. A client
// whose queue is full is disconnected rather than stalling everyone else.
func (h *Hub) deliver(client *Client, report Report) {
	frame, err := encodeReport(report)
	if err != nil {
		log.Error().Err(err).Msg("unable to encode report")
		return
	}
	select {
	case client.send <- frame:
		h.pool.AddTask(h.t, client)
	default:
		log.Warn().Str("client", client.id).Msg("client too slow, disconnecting")
		delete(h.clients, client)
		client.close()
	}
}

// reply queues a frame from outside the hub goroutine. Replies never carry
// rows, so their ordering against book frames does not matter.
func (h *Hub) reply(client *Client, report Report) {
	frame, err := encodeReport(report)
	if err != nil {
		log.Error().Err(err).Msg("unable to encode report")
		return
	}
	select {
	case client.send <- frame:
		h.pool.AddTask(h.t, client)
	default:
		client.close()
	}
}

func (h *Hub) write(_ *tomb.Tomb, task any) error {
	client, ok := task.(*Client)
	if !ok {
		return ErrImproperConversion
	}
	client.flush()
	return nil
}

func (h *Hub) setQuery(client *Client, query string) {
	select {
	case h.queries <- queryChange{client: client, query: query}:
	case <-h.t.Dying():
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.t.Dying():
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.t.Dying():
	}
}
