package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"orchd/internal/adapter"
	"orchd/pkg/types"
)

func TestMakeRoomEvictsLowerPriorityFirst(t *testing.T) {
	// A carries the higher priority number (less important to keep) and must
	// be evicted ahead of B regardless of recency.
	models := []types.Model{rpcModel("A", 2, 100), rpcModel("B", 1, 100)}
	to := newTestOrch(models, 200)
	to.setState("A", types.StatusOnline, to.clock.Add(-time.Minute))
	to.setState("B", types.StatusOnline, to.clock.Add(-time.Hour))

	ok := to.o.makeRoom(context.Background(), 100, "")
	assert.True(t, ok)
	assert.Equal(t, []string{"A"}, to.fakes["A"].unloadCalls())
	assert.Empty(t, to.fakes["B"].unloadCalls())
	assert.Equal(t, types.StatusAvailable, to.status("A"))
	assert.Equal(t, types.StatusOnline, to.status("B"))
}

func TestMakeRoomTieBreakByRecency(t *testing.T) {
	models := []types.Model{rpcModel("older", 1, 100), rpcModel("newer", 1, 100)}
	to := newTestOrch(models, 200)
	to.setState("older", types.StatusOnline, to.clock.Add(-2*time.Hour))
	to.setState("newer", types.StatusOnline, to.clock.Add(-time.Minute))

	ok := to.o.makeRoom(context.Background(), 100, "")
	assert.True(t, ok)
	assert.Equal(t, []string{"older"}, to.fakes["older"].unloadCalls())
	assert.Empty(t, to.fakes["newer"].unloadCalls())
}

func TestMakeRoomExcludesRequesterAndUnevictable(t *testing.T) {
	models := []types.Model{
		rpcModel("self", 9, 100),
		{ID: "advisory", Serving: types.ServingOllama, APIBase: "http://127.0.0.1:11434", EstVRAMMB: 100, Priority: 9},
	}
	to := newTestOrch(models, 200)
	to.setState("self", types.StatusOnline, to.clock)
	to.setState("advisory", types.StatusOnline, to.clock)

	ok := to.o.makeRoom(context.Background(), 100, "self")
	assert.False(t, ok)
	assert.Empty(t, to.fakes["self"].unloadCalls())
	assert.Empty(t, to.fakes["advisory"].unloadCalls())
}

func TestMakeRoomPartialEvictionKept(t *testing.T) {
	models := []types.Model{rpcModel("v1", 3, 100), rpcModel("v2", 2, 100)}
	to := newTestOrch(models, 200)
	to.setState("v1", types.StatusOnline, to.clock)
	to.setState("v2", types.StatusOnline, to.clock)

	// Even evicting everything cannot free 500 MB; the evictions stand.
	ok := to.o.makeRoom(context.Background(), 500, "")
	assert.False(t, ok)
	assert.Equal(t, 0, to.o.Usage().UsedMB)
	assert.Equal(t, types.StatusAvailable, to.status("v1"))
	assert.Equal(t, types.StatusAvailable, to.status("v2"))
}

func TestMakeRoomUnreachableVictimStillFreed(t *testing.T) {
	models := []types.Model{rpcModel("v", 1, 100)}
	to := newTestOrch(models, 100)
	to.setState("v", types.StatusOnline, to.clock)
	to.fakes["v"].unloadRes = adapter.Result{Status: types.StatusOffline, Err: errors.New("down")}

	ok := to.o.makeRoom(context.Background(), 100, "")
	assert.True(t, ok)
	assert.False(t, to.resident("v"))
	assert.Equal(t, types.StatusOffline, to.status("v"))
}

func TestMakeRoomNoopWhenAlreadyFits(t *testing.T) {
	to := newTestOrch([]types.Model{rpcModel("m", 1, 100)}, 500)
	to.setState("m", types.StatusOnline, to.clock)
	assert.True(t, to.o.makeRoom(context.Background(), 100, ""))
	assert.Empty(t, to.fakes["m"].unloadCalls())
}
