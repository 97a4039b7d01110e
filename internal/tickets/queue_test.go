package tickets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQueue(t *testing.T) {
	assert.Equal(t, QueueMine, ParseQueue(""))
	assert.Equal(t, QueueMine, ParseQueue("bogus"))
	assert.Equal(t, QueueWaiting, ParseQueue(" ESPERA "))
	assert.Equal(t, QueueAll, ParseQueue("todos"))
}

func TestQueuesPartitionActiveTickets(t *testing.T) {
	closedOwned := ownedBy("u1")
	closedOwned.Status = StatusClosed
	pending := ownedBy("u2")
	pending.Status = StatusPending
	all := []Ticket{ownedBy(""), ownedBy("u1"), ownedBy("u1"), pending, ownedBy("admin"), closedOwned}

	count := func(f Filter) int {
		n := 0
		for _, tk := range all {
			if f.Matches(tk) {
				n++
			}
		}
		return n
	}

	// Closed tickets never show up in any queue.
	assert.Equal(t, 5, count(FilterFor(QueueAll, admin)))
	assert.Equal(t, 2, count(FilterFor(QueueMine, agent1)))
	assert.Equal(t, 1, count(FilterFor(QueueMine, agent2)))
	assert.Equal(t, 1, count(FilterFor(QueueWaiting, agent1)))
	assert.Equal(t, 3, count(FilterFor(QueueAll, agent1)))

	for _, tk := range all {
		mine1 := FilterFor(QueueMine, agent1).Matches(tk)
		mine2 := FilterFor(QueueMine, agent2).Matches(tk)
		waiting := FilterFor(QueueWaiting, agent1).Matches(tk)
		assert.False(t, mine1 && mine2, "ticket visible in two agents' meus")
		assert.False(t, mine1 && waiting, "ticket both owned and waiting")
	}
}
