// File: control/config.go
// Author: momentics <momentics@gmail.com>
//
// Static cluster membership table. Constructed once at startup from the
// deployment's ID-to-address list and passed explicitly; there is no
// free-standing global lookup state.

package control

import (
	"fmt"

	"github.com/momentics/hioload-rpc/api"
)

// Member is one cluster entry.
type Member struct {
	ID   api.NodeID
	Name string
	Addr string
}

// ClusterConfig is an immutable node-ID-to-address table.
type ClusterConfig struct {
	byID  map[api.NodeID]Member
	order []api.NodeID
}

// NewClusterConfig builds the table. Duplicate IDs are a configuration
// error surfaced at startup.
func NewClusterConfig(members []Member) (*ClusterConfig, error) {
	c := &ClusterConfig{byID: make(map[api.NodeID]Member, len(members))}
	for _, m := range members {
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("cluster config: duplicate node id %d", m.ID)
		}
		c.byID[m.ID] = m
		c.order = append(c.order, m.ID)
	}
	return c, nil
}

// Lookup returns the member for an ID.
func (c *ClusterConfig) Lookup(id api.NodeID) (Member, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Addr returns the address for an ID, or api.ErrNoSuchNode.
func (c *ClusterConfig) Addr(id api.NodeID) (string, error) {
	m, ok := c.byID[id]
	if !ok {
		return "", api.ErrNoSuchNode
	}
	return m.Addr, nil
}

// Name returns a human-readable peer name, falling back to the numeric ID.
func (c *ClusterConfig) Name(id api.NodeID) string {
	if m, ok := c.byID[id]; ok && m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("node-%d", id)
}

// IDs returns member IDs in declaration order.
func (c *ClusterConfig) IDs() []api.NodeID {
	return append([]api.NodeID(nil), c.order...)
}

// Size returns the member count.
func (c *ClusterConfig) Size() int { return len(c.byID) }
