package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periodetl/internal/service"
)

// ─────────────────────────────────────────────────────────────
// runGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunGuard_TryLock(t *testing.T) {
	var g service.ExportedRunGuard

	require.True(t, g.TryLock("schools"))
	assert.False(t, g.TryLock("schools"), "second lock of the same family must fail")
	assert.True(t, g.Running("schools"))
	require.True(t, g.TryLock("districts"))

	g.Unlock("schools")
	g.Unlock("districts")
	assert.False(t, g.Running("schools"))

	require.True(t, g.TryLock("schools"))
	g.Unlock("schools")
}

func TestRunGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunGuard
	require.True(t, g.TryLock("schools"))

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	g.Unlock("schools")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitAll did not return after unlock")
	}
}

func TestRunGuard_WaitAllHonoursContext(t *testing.T) {
	var g service.ExportedRunGuard
	require.True(t, g.TryLock("schools"))
	defer g.Unlock("schools")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	g.WaitAll(ctx)
	assert.Error(t, ctx.Err())
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	require.Len(t, m.Events, 2)
	assert.Equal(t, []string{"test:event", "test:event2"}, m.Names())
	assert.Equal(t, map[string]string{"foo": "bar"}, m.Events[0].Data)
}
