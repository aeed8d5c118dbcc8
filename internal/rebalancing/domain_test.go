package rebalancing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusGuards(t *testing.T) {
	assert.True(t, StatusPending.CanApprove())
	assert.False(t, StatusApproved.CanApprove())

	assert.True(t, StatusApproved.CanStartTransit())
	assert.False(t, StatusPending.CanStartTransit())

	assert.True(t, StatusInTransit.CanComplete())
	assert.False(t, StatusApproved.CanComplete())

	for _, s := range []Status{StatusPending, StatusApproved, StatusInTransit} {
		assert.True(t, s.CanCancel(), s)
		assert.True(t, s.IsOpen(), s)
	}
	assert.False(t, StatusCompleted.CanCancel())
	assert.False(t, StatusCancelled.CanCancel())
}

func TestSourceStoresPutsImbalancedFirst(t *testing.T) {
	got := sourceStores(map[int64]int{1: 10, 2: 12, 3: 60})
	assert.Equal(t, []int64{3, 2, 1}, got)
}
