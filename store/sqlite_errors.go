package store

import (
	"fmt"
	"strings"

	"github.com/thinkparq/mgmtd/errors"
)

// translateConstraint turns a raw sqlite constraint-violation message into
// the friendly Conflict carried back to callers (§4.A: "Alias X already
// exists" rather than the raw unique-constraint text).
func translateConstraint(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: entities.alias"):
		return errors.New(errors.KindConflict, op, "alias already exists")
	case strings.Contains(msg, "UNIQUE constraint failed: nodes.kind, nodes.node_id"):
		return errors.New(errors.KindConflict, op, "node id already assigned for this node kind")
	case strings.Contains(msg, "UNIQUE constraint failed: targets.kind, targets.target_id"):
		return errors.New(errors.KindConflict, op, "target id already assigned for this target kind")
	case strings.Contains(msg, "UNIQUE constraint failed: buddy_groups.kind, buddy_groups.group_id"):
		return errors.New(errors.KindConflict, op, "group id already assigned for this group kind")
	case strings.Contains(msg, "UNIQUE constraint failed: storage_pools.pool_id"):
		return errors.New(errors.KindConflict, op, "pool id already assigned")
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return errors.New(errors.KindConstraint, op, "operation would violate a reference constraint")
	case strings.Contains(msg, "CHECK constraint failed"):
		return errors.New(errors.KindConstraint, op, fmt.Sprintf("constraint check failed: %s", msg))
	default:
		return errors.Wrap(errors.KindIO, op, err)
	}
}
