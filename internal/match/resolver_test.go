package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/store"
)

// fakeStore is an in-memory Store with switchable failure modes.
type fakeStore struct {
	mu      sync.Mutex
	users   map[int64]*store.User
	pool    map[int64]*store.WaitingEntry
	online  []*store.User
	failAll bool

	claimDenied bool // ClaimWaiting always loses
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[int64]*store.User),
		pool:  make(map[int64]*store.WaitingEntry),
	}
}

func (f *fakeStore) addUser(u *store.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	if u.Online {
		f.online = append(f.online, u)
	}
}

func (f *fakeStore) addWaiting(userID int64, rendezvousID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pool[userID] = &store.WaitingEntry{
		UserID:       userID,
		RendezvousID: rendezvousID,
		Available:    true,
		InsertedAt:   time.Now(),
	}
}

func (f *fakeStore) entry(userID int64) *store.WaitingEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pool[userID]
}

func (f *fakeStore) CreateUser(context.Context, string, string) (*store.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) CreateGuestUser(context.Context, string) (*store.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("store down")
	}
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (f *fakeStore) GetUserByDisplayName(context.Context, string) (*store.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) UpdatePresence(context.Context, int64, bool, string) error {
	return nil
}

func (f *fakeStore) RandomActiveUser(_ context.Context, excludeUserID int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("store down")
	}
	for _, u := range f.online {
		if u.ID != excludeUserID {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateProfile(context.Context, int64, string, string) error {
	return nil
}

func (f *fakeStore) UpsertWaiting(_ context.Context, userID int64, rendezvousID string, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("store down")
	}
	f.pool[userID] = &store.WaitingEntry{
		UserID:       userID,
		RendezvousID: rendezvousID,
		Available:    available,
		InsertedAt:   time.Now(),
	}
	return nil
}

func (f *fakeStore) ListAvailable(_ context.Context, excludeUserID int64, limit int) ([]*store.WaitingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("store down")
	}
	var out []*store.WaitingEntry
	for _, e := range f.pool {
		if e.UserID == excludeUserID || !e.Available {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ClaimWaiting(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errors.New("store down")
	}
	if f.claimDenied {
		return false, nil
	}
	e, ok := f.pool[userID]
	if !ok || !e.Available {
		return false, nil
	}
	e.Available = false
	return true, nil
}

func (f *fakeStore) RemoveWaiting(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pool, userID)
	return nil
}

func (f *fakeStore) PruneWaiting(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func testMatchConfig() config.MatchConfig {
	return config.MatchConfig{
		PoolLimit:      10,
		SyntheticDelay: 20 * time.Millisecond,
		ReplyDelayMin:  time.Millisecond,
		ReplyDelayMax:  2 * time.Millisecond,
	}
}

func newTestResolver(st *fakeStore) *Resolver {
	logger := zerolog.Nop()
	return NewResolver(st, testMatchConfig(), &logger)
}

func TestFindFromPool(t *testing.T) {
	st := newFakeStore()
	st.addUser(&store.User{ID: 2, DisplayName: "bob", Country: "DE"})
	st.addWaiting(2, "user_2_aaaaaa")

	r := newTestResolver(st)
	result, err := r.Find(context.Background(), 1)
	require.NoError(t, err)

	require.True(t, result.Partner.Real())
	require.Equal(t, int64(2), result.Partner.UserID)
	require.Equal(t, "user_2_aaaaaa", result.Partner.RendezvousID)
	require.Contains(t, result.SystemMessage, "bob")
	require.NotEmpty(t, result.SelfRendezvousID)

	// Candidate is claimed, searcher is parked unavailable.
	require.False(t, st.entry(2).Available)
	self := st.entry(1)
	require.NotNil(t, self)
	require.False(t, self.Available)
	require.Equal(t, result.SelfRendezvousID, self.RendezvousID)
}

func TestFindLostClaimFallsThrough(t *testing.T) {
	st := newFakeStore()
	st.addUser(&store.User{ID: 2, DisplayName: "bob"})
	st.addWaiting(2, "user_2_aaaaaa")
	st.claimDenied = true

	r := newTestResolver(st)
	result, err := r.Find(context.Background(), 1)
	require.NoError(t, err)

	// Claim lost and nobody is online, so the chain ends synthetic.
	require.Equal(t, PartnerSynthetic, result.Partner.Kind)
	require.NotEmpty(t, result.Partner.SyntheticID)

	// Degrading re-entered the searcher into the pool as available.
	self := st.entry(1)
	require.NotNil(t, self)
	require.True(t, self.Available)
}

func TestFindRandomActiveFallback(t *testing.T) {
	st := newFakeStore()
	st.addUser(&store.User{ID: 3, DisplayName: "carol", Online: true, RendezvousID: "user_3_bbbbbb"})

	r := newTestResolver(st)
	result, err := r.Find(context.Background(), 1)
	require.NoError(t, err)

	require.True(t, result.Partner.Real())
	require.Equal(t, int64(3), result.Partner.UserID)
	require.Equal(t, "user_3_bbbbbb", result.Partner.RendezvousID)
}

func TestFindSyntheticWhenStoreDown(t *testing.T) {
	st := newFakeStore()
	st.failAll = true

	r := newTestResolver(st)
	start := time.Now()
	result, err := r.Find(context.Background(), 1)
	require.NoError(t, err)

	require.Equal(t, PartnerSynthetic, result.Partner.Kind)
	require.NotEmpty(t, result.Partner.DisplayName)
	require.GreaterOrEqual(t, time.Since(start), testMatchConfig().SyntheticDelay)
}

func TestFindCancelled(t *testing.T) {
	st := newFakeStore() // empty pool forces the synthetic delay

	r := newTestResolver(st)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Find(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCancelRemovesPoolEntry(t *testing.T) {
	st := newFakeStore()
	st.addWaiting(1, "user_1_cccccc")

	r := newTestResolver(st)
	require.NoError(t, r.Cancel(context.Background(), 1))
	require.Nil(t, st.entry(1))

	// Cancelling again is a no-op.
	require.NoError(t, r.Cancel(context.Background(), 1))
}
