package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Direction names one side of an edge.
type Direction int

const (
	// From is the side stored in the edge's "from" column.
	From Direction = iota
	// To is the side stored in the edge's "to" column.
	To
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == From {
		return To
	}
	return From
}

// String returns "from" or "to".
func (d Direction) String() string {
	if d == To {
		return "to"
	}
	return "from"
}

// Column returns the edge table column holding this side's object id.
func (d Direction) Column() string {
	return d.String()
}

// OrderColumn returns the edge table column holding this side's position.
func (d Direction) OrderColumn() string {
	return "order_" + d.String()
}

// ParseDirection parses "from" or "to" (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "from":
		return From, nil
	case "to":
		return To, nil
	default:
		return From, fmt.Errorf("invalid direction %q: must be \"from\" or \"to\"", s)
	}
}

// MarshalJSON encodes the direction as its string name.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "from" or "to".
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("direction must be a string: %w", err)
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
