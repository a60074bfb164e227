package modesync

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/herald/internal/access"
	"frameworks/herald/internal/controls"
	"frameworks/herald/internal/store/memory"
	"frameworks/herald/pkg/redis"
)

var admin = access.Actor{ID: "admin-1", Role: access.RoleAdmin}

type countingReloader struct{ calls chan struct{} }

func (c *countingReloader) Reload(context.Context) error {
	c.calls <- struct{}{}
	return nil
}

func startSyncer(t *testing.T, ctx context.Context, s *Syncer, r Reloader) {
	t.Helper()
	ready := make(chan struct{})
	go func() { _ = s.Run(ctx, r, func() { close(ready) }) }()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}
}

func TestPeersReloadOnModeChange(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := redis.NewClientFromURL(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	shared := memory.New()
	syncA := New(client, "", nil)
	syncB := New(client, "", nil)
	ctrlA := controls.New(shared, controls.WithNotifier(syncA))
	ctrlB := controls.New(shared)
	require.NoError(t, ctrlA.Init(ctx))
	require.NoError(t, ctrlB.Init(ctx))

	startSyncer(t, ctx, syncB, ctrlB)

	_, err = ctrlA.SetManual(ctx, admin, "holiday")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return ctrlB.State().Mode == controls.ModeManual
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOwnMessagesIgnored(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := redis.NewClientFromURL(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	self := New(client, "test:mode", nil)
	peer := New(client, "test:mode", nil)
	selfReloads := &countingReloader{calls: make(chan struct{}, 4)}
	peerReloads := &countingReloader{calls: make(chan struct{}, 4)}
	startSyncer(t, ctx, self, selfReloads)
	startSyncer(t, ctx, peer, peerReloads)

	require.NoError(t, self.NotifyModeChange(ctx, controls.State{Mode: controls.ModeCrisis, Paused: true}))

	select {
	case <-peerReloads.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not reload")
	}
	select {
	case <-selfReloads.calls:
		t.Fatal("origin reloaded its own change")
	case <-time.After(100 * time.Millisecond):
	}
	assert.NotEqual(t, self.Instance(), peer.Instance())
}
