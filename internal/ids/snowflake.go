// Package ids issues account identifiers.
package ids

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator hands out time-ordered, node-unique snowflake ids.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator binds a generator to nodeID, which must be unique per process
// sharing the same account store.
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// Next returns the next id in decimal form.
func (g *Generator) Next() string {
	return g.node.Generate().String()
}
