package net

import (
	"net/http"

	"tradingboard/internal/engine"
	"tradingboard/internal/view"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// handleWebSocket upgrades the connection and registers a viewer with its
// own query. The handler goroutine then reads viewer messages until the
// connection closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(MAX_RECV_SIZE)

	client := &Client{
		id:   conn.RemoteAddr().String(),
		conn: conn,
		view: view.New(s.board),
		send: make(chan []byte, clientSendSize),
	}
	if !s.hub.join(client) {
		client.close()
		return
	}
	defer s.hub.leave(client)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("client", client.id).Msg("error reading from connection")
			}
			return
		}

		msg, err := parseMessage(data)
		if err != nil {
			log.Debug().Err(err).Str("client", client.id).Msg("error parsing message")
			s.hub.reply(client, Report{Type: ErrorReport, Error: err.Error()})
			continue
		}
		s.handleMessage(client, msg)
	}
}

func (s *Server) handleMessage(client *Client, msg Message) {
	switch msg.Type {
	case QueryMessage:
		s.hub.setQuery(client, msg.Query)
		return

	case PauseMessage, ResumeMessage, ToggleMessage:
		var feed engine.FeedState
		var err error
		switch msg.Type {
		case PauseMessage:
			feed, err = engine.Paused, s.board.Pause()
		case ResumeMessage:
			feed, err = engine.Running, s.board.Resume()
		default:
			feed, err = client.view.TogglePause()
		}
		if err != nil {
			s.hub.reply(client, Report{Type: ErrorReport, Error: err.Error()})
			return
		}
		s.hub.reply(client, Report{Type: FeedReport, Feed: feed.String()})
		return
	}

	var err error
	switch msg.Type {
	case SelectMessage:
		err = s.board.Select(msg.ID)
	case QuantityMessage:
		err = s.board.SetQuantity(msg.Quantity)
	case ConfirmMessage:
		err = s.board.Confirm()
	case CancelMessage:
		err = s.board.Cancel()
	}
	if err != nil {
		s.hub.reply(client, Report{Type: ErrorReport, Error: err.Error()})
		return
	}

	status, err := s.board.Workflow()
	if err != nil {
		s.hub.reply(client, Report{Type: ErrorReport, Error: err.Error()})
		return
	}
	s.hub.reply(client, Report{Type: WorkflowReport, Workflow: &status})
}
