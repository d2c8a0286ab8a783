package valueobjects

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NodeID is a value object representing a unique node identifier.
//
// The textual form is "<unix-millis>-<seq>" with an optional "-<type>"
// suffix. The (millis, seq) pair is strictly increasing per generator, so
// ids order by creation and are never reissued.
type NodeID struct {
	value string
}

// ParseNodeID creates a NodeID from an existing string
func ParseNodeID(id string) (NodeID, error) {
	if id == "" {
		return NodeID{}, errors.New("node ID cannot be empty")
	}
	if _, _, err := splitNodeID(id); err != nil {
		return NodeID{}, err
	}
	return NodeID{value: id}, nil
}

// MustParseNodeID is ParseNodeID for ids known to be well formed.
func MustParseNodeID(id string) NodeID {
	nid, err := ParseNodeID(id)
	if err != nil {
		panic(err)
	}
	return nid
}

// String returns the string representation of the NodeID
func (id NodeID) String() string {
	return id.value
}

// Equals checks if two NodeIDs are equal
func (id NodeID) Equals(other NodeID) bool {
	return id.value == other.value
}

// IsZero checks if the NodeID is the zero value
func (id NodeID) IsZero() bool {
	return id.value == ""
}

// CreatedAt returns the creation timestamp carried by the id.
func (id NodeID) CreatedAt() time.Time {
	ms, _, err := splitNodeID(id.value)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Before reports whether id was issued before other.
func (id NodeID) Before(other NodeID) bool {
	ams, aseq, aerr := splitNodeID(id.value)
	bms, bseq, berr := splitNodeID(other.value)
	if aerr != nil || berr != nil {
		return id.value < other.value
	}
	if ams != bms {
		return ams < bms
	}
	return aseq < bseq
}

// MarshalJSON implements json.Marshaler
func (id NodeID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(id.value)), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *NodeID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return errors.New("NodeID must be a string")
	}
	parsed, err := ParseNodeID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func splitNodeID(s string) (int64, int64, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed node ID %q", s)
	}
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed node ID %q: timestamp: %w", s, err)
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed node ID %q: sequence: %w", s, err)
	}
	return ms, seq, nil
}

// IDGenerator issues NodeIDs. It is safe for concurrent use.
type IDGenerator struct {
	mu     sync.Mutex
	now    func() time.Time
	lastMs int64
	seq    int64
}

// NewIDGenerator creates a generator backed by the wall clock.
func NewIDGenerator() *IDGenerator {
	return NewIDGeneratorWithClock(time.Now)
}

// NewIDGeneratorWithClock creates a generator with an injected clock.
func NewIDGeneratorWithClock(now func() time.Time) *IDGenerator {
	return &IDGenerator{now: now}
}

// Next issues a fresh id. A clock that stalls or steps backwards keeps the
// last timestamp and bumps the sequence instead.
func (g *IDGenerator) Next(nodeType NodeType) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.lastMs {
		ms = g.lastMs
		g.seq++
	} else {
		g.lastMs = ms
		g.seq = 0
	}

	value := fmt.Sprintf("%d-%d", ms, g.seq)
	if nodeType != "" {
		value += "-" + string(nodeType)
	}
	return NodeID{value: value}
}
