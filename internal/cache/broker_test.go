package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/mqplane/internal/types"
)

func TestBrokerCache_SessionCount(t *testing.T) {
	c := NewBrokerCache()
	c.AddSession(&types.Session{ClusterName: "c1", ClientID: "a"})
	c.AddSession(&types.Session{ClusterName: "c1", ClientID: "b"})
	c.AddSession(&types.Session{ClusterName: "c2", ClientID: "a"})

	assert.Equal(t, 3, c.SessionCount())

	c.RemoveSession("c1", "a")
	assert.Equal(t, 2, c.SessionCount())
}

func TestBrokerCache_ConnectionCount(t *testing.T) {
	c := NewBrokerCache()
	c.AddConnection(&types.Connection{ConnectionID: 1})
	c.AddConnection(&types.Connection{ConnectionID: 2})
	assert.Equal(t, 2, c.ConnectionCount())

	c.RemoveConnection(1)
	assert.Equal(t, 1, c.ConnectionCount())
}
