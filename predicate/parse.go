package predicate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// jsonNode mirrors the Horizon claimant predicate wire format. Exactly one
// field group is expected per node; anything else is a parse error.
type jsonNode struct {
	Unconditional  *bool      `json:"unconditional"`
	AbsBefore      *string    `json:"abs_before"`
	AbsBeforeEpoch *string    `json:"abs_before_epoch"`
	RelBefore      *string    `json:"rel_before"`
	And            []jsonNode `json:"and"`
	Or             []jsonNode `json:"or"`
	Not            *jsonNode  `json:"not"`
}

// ParseJSON parses a Horizon claimant predicate document into the closed
// variant type. createdAt anchors rel_before conditions (seconds relative to
// the balance's creation); a zero createdAt makes rel_before unparseable.
//
// Callers must treat a parse error as "not claimable", never as fatal.
func ParseJSON(raw []byte, createdAt time.Time) (*Predicate, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("predicate: empty document")
	}
	var node jsonNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("predicate: decode: %w", err)
	}
	return fromJSON(&node, createdAt)
}

func fromJSON(n *jsonNode, createdAt time.Time) (*Predicate, error) {
	switch {
	case n.Unconditional != nil:
		if !*n.Unconditional {
			return nil, fmt.Errorf("predicate: unconditional=false has no meaning")
		}
		return Unconditional(), nil

	case n.AbsBefore != nil || n.AbsBeforeEpoch != nil:
		t, err := absInstant(n)
		if err != nil {
			return nil, err
		}
		// abs_before means "claimable strictly before T": the claim
		// window closes at T, exclusive.
		return Before(t), nil

	case n.RelBefore != nil:
		if createdAt.IsZero() {
			return nil, fmt.Errorf("predicate: rel_before without a creation time")
		}
		secs, err := strconv.ParseInt(*n.RelBefore, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("predicate: rel_before %q: %w", *n.RelBefore, err)
		}
		// rel_before is strict in the same way abs_before is.
		return Before(createdAt.Add(time.Duration(secs) * time.Second)), nil

	case n.And != nil:
		children, err := childrenFromJSON(n.And, createdAt)
		if err != nil {
			return nil, err
		}
		return And(children...), nil

	case n.Or != nil:
		children, err := childrenFromJSON(n.Or, createdAt)
		if err != nil {
			return nil, err
		}
		return Or(children...), nil

	case n.Not != nil:
		child, err := fromJSON(n.Not, createdAt)
		if err != nil {
			return nil, err
		}
		return Not(child), nil

	default:
		return nil, fmt.Errorf("predicate: node has no recognized variant")
	}
}

func childrenFromJSON(nodes []jsonNode, createdAt time.Time) ([]*Predicate, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("predicate: empty combinator")
	}
	children := make([]*Predicate, 0, len(nodes))
	for i := range nodes {
		c, err := fromJSON(&nodes[i], createdAt)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, nil
}

// absInstant prefers abs_before_epoch: Horizon emits it alongside abs_before
// because far-future abs_before values (year 9999+) are not representable in
// every RFC 3339 parser.
func absInstant(n *jsonNode) (time.Time, error) {
	if n.AbsBeforeEpoch != nil {
		epoch, err := strconv.ParseInt(*n.AbsBeforeEpoch, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("predicate: abs_before_epoch %q: %w", *n.AbsBeforeEpoch, err)
		}
		return time.Unix(epoch, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, *n.AbsBefore)
	if err != nil {
		return time.Time{}, fmt.Errorf("predicate: abs_before %q: %w", *n.AbsBefore, err)
	}
	return t.UTC(), nil
}
