package net

import (
	"encoding/json"
	"errors"
	"fmt"

	"tradingboard/internal/common"
	"tradingboard/internal/engine"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMissingOrderID     = errors.New("message missing order id")
)

// MessageType is the op of a viewer message received over the socket.
type MessageType string

const (
	QueryMessage    MessageType = "query"
	SelectMessage   MessageType = "select"
	QuantityMessage MessageType = "quantity"
	ConfirmMessage  MessageType = "confirm"
	CancelMessage   MessageType = "cancel"
	PauseMessage    MessageType = "pause"
	ResumeMessage   MessageType = "resume"
	ToggleMessage   MessageType = "toggle"
)

type ReportMessageType string

const (
	BookReport      ReportMessageType = "book"
	ExecutionReport ReportMessageType = "execution"
	WorkflowReport  ReportMessageType = "workflow"
	FeedReport      ReportMessageType = "feed"
	ErrorReport     ReportMessageType = "error"
)

type Message struct {
	Type     MessageType `json:"op"`
	Query    string      `json:"query,omitempty"`
	ID       string      `json:"id,omitempty"`
	Quantity string      `json:"quantity,omitempty"`
}

// Report is every frame the server pushes to a viewer.
type Report struct {
	Type      ReportMessageType      `json:"type"`
	Query     *string                `json:"query,omitempty"`
	Rows      []common.Order         `json:"rows,omitempty"` // Omitted when no order matches
	Execution *common.Execution      `json:"execution,omitempty"`
	Workflow  *engine.WorkflowStatus `json:"workflow,omitempty"`
	Feed      string                 `json:"feed,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func parseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("unable to decode message: %w", err)
	}

	switch msg.Type {
	case SelectMessage:
		if msg.ID == "" {
			return Message{}, ErrMissingOrderID
		}
	case QueryMessage, QuantityMessage, ConfirmMessage, CancelMessage,
		PauseMessage, ResumeMessage, ToggleMessage:
	default:
		return Message{}, ErrInvalidMessageType
	}
	return msg, nil
}

func bookReport(query string, rows []common.Order) Report {
	return Report{Type: BookReport, Query: &query, Rows: rows}
}

func encodeReport(report Report) ([]byte, error) {
	return json.Marshal(report)
}
