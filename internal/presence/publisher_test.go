package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/store"
)

type beat struct {
	online     bool
	rendezvous string
}

type fakeUserStore struct {
	mu    sync.Mutex
	beats []beat
}

func (f *fakeUserStore) CreateUser(context.Context, string, string) (*store.User, error) {
	return nil, nil
}

func (f *fakeUserStore) CreateGuestUser(context.Context, string) (*store.User, error) {
	return nil, nil
}

func (f *fakeUserStore) GetUserByID(context.Context, int64) (*store.User, error) {
	return nil, nil
}

func (f *fakeUserStore) GetUserByDisplayName(context.Context, string) (*store.User, error) {
	return nil, nil
}

func (f *fakeUserStore) UpdatePresence(_ context.Context, _ int64, online bool, rendezvousID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats = append(f.beats, beat{online: online, rendezvous: rendezvousID})
	return nil
}

func (f *fakeUserStore) RandomActiveUser(context.Context, int64) (*store.User, error) {
	return nil, nil
}

func (f *fakeUserStore) UpdateProfile(context.Context, int64, string, string) error {
	return nil
}

func (f *fakeUserStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.beats)
}

func (f *fakeUserStore) last() beat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.beats[len(f.beats)-1]
}

func testConfig() config.MatchConfig {
	return config.MatchConfig{
		HeartbeatInterval: 10 * time.Millisecond,
		EntryTTL:          time.Minute,
	}
}

func TestPublisherHeartbeats(t *testing.T) {
	users := &fakeUserStore{}
	logger := zerolog.Nop()
	p := NewPublisher(1, users, testConfig(), &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return users.count() >= 3 },
		time.Second, time.Millisecond)
	require.True(t, users.last().online)

	p.Stop()
	require.False(t, users.last().online)
	require.Empty(t, users.last().rendezvous)
}

func TestSetRendezvousBeatsImmediately(t *testing.T) {
	users := &fakeUserStore{}
	logger := zerolog.Nop()
	// Long interval: only explicit beats land during the test.
	cfg := config.MatchConfig{HeartbeatInterval: time.Hour, EntryTTL: time.Minute}
	p := NewPublisher(1, users, cfg, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return users.count() >= 1 },
		time.Second, time.Millisecond)

	p.SetRendezvous("user_1_abc123")
	require.Eventually(t, func() bool {
		return users.count() >= 2 && users.last().rendezvous == "user_1_abc123"
	}, time.Second, time.Millisecond)
	require.True(t, users.last().online)

	p.Stop()
	require.False(t, users.last().online)
}
