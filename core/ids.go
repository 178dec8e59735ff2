package core

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SnowflakeGenerator issues time-ordered ids for membership rows.
type SnowflakeGenerator struct {
	node *snowflake.Node
}

func NewSnowflakeGenerator(nodeID int64) (*SnowflakeGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("core: snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeGenerator{node: node}, nil
}

func (g *SnowflakeGenerator) NewID() string {
	if g == nil || g.node == nil {
		return uuid.NewString()
	}
	return strconv.FormatInt(g.node.Generate().Int64(), 10)
}

var (
	_ IDGenerator = UUIDGenerator{}
	_ IDGenerator = (*SnowflakeGenerator)(nil)
)
