package common

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrInvalidSide = errors.New("invalid side")

type Side int

const (
	// Bid is a resting buy from the house. The viewer lifts it by selling
	// into it.
	Bid Side = iota
	// Ask is a resting sell from the house. The viewer hits it by buying
	// from it.
	Ask
)

var sideName = map[Side]string{
	Bid: "bid",
	Ask: "ask",
}

func (s Side) String() string {
	return sideName[s]
}

// Action is the verb the viewer performs when executing against this side.
func (s Side) Action() string {
	if s == Bid {
		return "lift"
	}
	return "hit"
}

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bid", "buy":
		return Bid, nil
	case "ask", "sell":
		return Ask, nil
	}
	return Bid, ErrInvalidSide
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	side, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = side
	return nil
}
