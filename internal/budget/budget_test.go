package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkLoadedIdempotent(t *testing.T) {
	tr := New(1000)
	tr.MarkLoaded("a", 300)
	tr.MarkLoaded("a", 300)
	assert.Equal(t, 300, tr.UsedMB())
	assert.Equal(t, 700, tr.RemainingMB())
	assert.True(t, tr.IsResident("a"))
}

func TestMarkUnloadedAbsentIsNoop(t *testing.T) {
	tr := New(1000)
	tr.MarkUnloaded("ghost")
	assert.Equal(t, 0, tr.UsedMB())

	tr.MarkLoaded("a", 200)
	tr.MarkUnloaded("a")
	tr.MarkUnloaded("a")
	assert.Equal(t, 0, tr.UsedMB())
	assert.False(t, tr.IsResident("a"))
}

func TestCanAccommodate(t *testing.T) {
	tr := New(500)
	assert.True(t, tr.CanAccommodate(500))
	assert.False(t, tr.CanAccommodate(501))

	tr.MarkLoaded("a", 400)
	assert.True(t, tr.CanAccommodate(100))
	assert.False(t, tr.CanAccommodate(101))
}

func TestUnlimitedBudget(t *testing.T) {
	tr := New(0)
	assert.True(t, tr.CanAccommodate(1<<20))
	tr.MarkLoaded("a", 9000)
	assert.True(t, tr.CanAccommodate(1<<20))
	assert.Equal(t, 9000, tr.UsedMB())
}

func TestInvariantHeldAcrossSequences(t *testing.T) {
	tr := New(1000)
	ops := []struct {
		load bool
		id   string
		cost int
	}{
		{true, "a", 400},
		{true, "b", 400},
		{false, "a", 0},
		{true, "c", 600},
		{true, "c", 600},
		{false, "b", 0},
		{false, "missing", 0},
		{true, "d", 300},
	}
	for _, op := range ops {
		if op.load {
			if tr.CanAccommodate(op.cost) {
				tr.MarkLoaded(op.id, op.cost)
			}
		} else {
			tr.MarkUnloaded(op.id)
		}
		assert.LessOrEqual(t, tr.UsedMB(), tr.TotalMB())
	}
}

func TestUsageSnapshot(t *testing.T) {
	tr := New(800)
	tr.MarkLoaded("a", 300)
	u := tr.Usage()
	assert.Equal(t, 800, u.TotalMB)
	assert.Equal(t, 300, u.UsedMB)
	assert.Equal(t, 500, u.RemainingMB)
}
