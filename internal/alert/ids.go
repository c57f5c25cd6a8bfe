package alert

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// IDGenerator hands out opaque alert ids.
type IDGenerator interface {
	NewID() string
}

// SnowflakeIDs generates time-ordered ids that are unique per node.
type SnowflakeIDs struct {
	node *snowflake.Node
}

var _ IDGenerator = (*SnowflakeIDs)(nil)

// NewSnowflakeIDs creates a generator for the given node number (0-1023).
func NewSnowflakeIDs(node int64) (*SnowflakeIDs, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", node, err)
	}
	return &SnowflakeIDs{node: n}, nil
}

func (s *SnowflakeIDs) NewID() string {
	return s.node.Generate().String()
}
