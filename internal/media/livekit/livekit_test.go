package livekit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/media"
)

func newTestEngine() *Engine {
	logger := zerolog.Nop()
	return New(config.LiveKitConfig{
		APIKey:    "devkey",
		APISecret: "devsecret-devsecret-devsecret-32",
		WSURL:     "ws://localhost:7880",
	}, &logger)
}

func TestOpenRequiresRendezvousID(t *testing.T) {
	e := newTestEngine()
	_, err := e.Open(context.Background(), "")
	require.Error(t, err)
}

func TestPlaceAnswerPairsLegs(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	caller, err := e.Open(ctx, "user_1_aaaaaa")
	require.NoError(t, err)
	callee, err := e.Open(ctx, "user_2_bbbbbb")
	require.NoError(t, err)

	require.True(t, caller.Reachable("user_2_bbbbbb"))

	outbound, err := caller.Place(ctx, "user_2_bbbbbb", media.NewStream("local-1"))
	require.NoError(t, err)

	var inbound media.Call
	select {
	case inbound = <-callee.Incoming():
	case <-time.After(time.Second):
		t.Fatal("inbound call never delivered")
	}

	require.NoError(t, inbound.Answer(media.NewStream("local-2")))

	// Both sides see a remote stream handle for the same room.
	var callerRemote, calleeRemote *media.Stream
	select {
	case callerRemote = <-outbound.Remote():
	case <-time.After(time.Second):
		t.Fatal("caller never got remote stream")
	}
	select {
	case calleeRemote = <-inbound.Remote():
	case <-time.After(time.Second):
		t.Fatal("callee never got remote stream")
	}
	require.Equal(t, callerRemote.ID, calleeRemote.ID)

	// Hangup on one leg ends both.
	outbound.Hangup()
	select {
	case <-inbound.Done():
	case <-time.After(time.Second):
		t.Fatal("callee leg not closed after hangup")
	}
}

func TestPlaceToUnknownID(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	caller, err := e.Open(ctx, "user_1_aaaaaa")
	require.NoError(t, err)

	require.False(t, caller.Reachable("user_9_zzzzzz"))
	_, err = caller.Place(ctx, "user_9_zzzzzz", media.NewStream("local"))
	require.Error(t, err)
}

func TestReopenDisplacesRegistration(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	first, err := e.Open(ctx, "user_1_aaaaaa")
	require.NoError(t, err)
	_, err = e.Open(ctx, "user_1_aaaaaa")
	require.NoError(t, err)

	// The displaced connection's incoming channel is closed.
	select {
	case _, ok := <-first.Incoming():
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("displaced connection still open")
	}
}

func TestCloseUnregisters(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	caller, err := e.Open(ctx, "user_1_aaaaaa")
	require.NoError(t, err)
	callee, err := e.Open(ctx, "user_2_bbbbbb")
	require.NoError(t, err)

	require.NoError(t, callee.Close())
	require.False(t, caller.Reachable("user_2_bbbbbb"))

	_, err = caller.Place(ctx, "user_2_bbbbbb", media.NewStream("local"))
	require.Error(t, err)
}

func TestJoinInfoDeliveredToBothSides(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	var mu sync.Mutex
	infos := make(map[string]*JoinInfo)
	e.SetJoinInfoFunc(func(rendezvousID string, info *JoinInfo) {
		mu.Lock()
		defer mu.Unlock()
		infos[rendezvousID] = info
	})

	caller, err := e.Open(ctx, "user_1_aaaaaa")
	require.NoError(t, err)
	callee, err := e.Open(ctx, "user_2_bbbbbb")
	require.NoError(t, err)

	_, err = caller.Place(ctx, "user_2_bbbbbb", media.NewStream("local-1"))
	require.NoError(t, err)
	inbound := <-callee.Incoming()
	require.NoError(t, inbound.Answer(media.NewStream("local-2")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, infos, 2)
	for identity, info := range infos {
		require.Equal(t, identity, info.Identity)
		require.NotEmpty(t, info.Token)
		require.Equal(t, "ws://localhost:7880", info.URL)
		require.Equal(t, infos["user_1_aaaaaa"].RoomName, info.RoomName)
	}
}
