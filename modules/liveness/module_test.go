package liveness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnections struct {
	clock    clock.Clock
	mu       sync.Mutex
	lastSeen map[string]time.Time
	kicked   []string
}

func (f *fakeConnections) touch(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen[id] = f.clock.Now()
}

func (f *fakeConnections) Stale(threshold time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, seen := range f.lastSeen {
		if f.clock.Now().Sub(seen) > threshold {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakeConnections) Kick(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = append(f.kicked, id)
	delete(f.lastSeen, id)
}

func (f *fakeConnections) Kicked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.kicked...)
}

func TestModule_KicksStaleConnections(t *testing.T) {
	mock := clock.NewMock()
	conns := &fakeConnections{clock: mock, lastSeen: make(map[string]time.Time)}
	conns.touch("quiet")
	conns.touch("chatty")

	m := NewModule(DefaultConfig(), conns, mock)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	// 30s: nobody is stale yet.
	mock.Add(30 * time.Second)
	conns.touch("chatty")

	// 60s: quiet is exactly at the threshold, which is not stale.
	mock.Add(30 * time.Second)
	conns.touch("chatty")
	assert.Empty(t, conns.Kicked())

	// 90s: quiet has been silent for 90s.
	mock.Add(30 * time.Second)
	require.Eventually(t, func() bool { return len(conns.Kicked()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"quiet"}, conns.Kicked())
	assert.Equal(t, 1, m.Kicked())
}

func TestModule_StopIsIdempotent(t *testing.T) {
	m := NewModule(Config{}, &fakeConnections{clock: clock.NewMock(), lastSeen: map[string]time.Time{}}, clock.NewMock())
	assert.NoError(t, m.Stop(context.Background()), "stop before start")

	require.NoError(t, m.Start(context.Background()))
	assert.NoError(t, m.Stop(context.Background()))
	assert.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, DefaultConfig(), m.config)
}
