package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func createUser(t *testing.T, st *SQLiteStore, name string) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(), name, "hash")
	require.NoError(t, err)
	return user
}

func TestSchemaIdempotent(t *testing.T) {
	st, err := NewWithSetup(filepath.Join(t.TempDir(), "test.db"), func(db *sql.DB) error {
		// Applying the schema twice must not fail.
		if _, err := db.Exec(Schema); err != nil {
			return err
		}
		_, err := db.Exec(Schema)
		return err
	})
	require.NoError(t, err)
	defer st.Close()

	_, err = st.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)
}

func TestCreateAndGetUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := createUser(t, st, "alice")
	require.Equal(t, "alice", user.DisplayName)
	require.False(t, user.IsGuest)

	byName, err := st.GetUserByDisplayName(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, user.ID, byName.ID)

	_, err = st.GetUserByDisplayName(ctx, "nobody")
	require.Error(t, err)
}

func TestCreateGuestUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	guest, err := st.CreateGuestUser(ctx, "deadbeefcafe1234")
	require.NoError(t, err)
	require.True(t, guest.IsGuest)
	require.Equal(t, "guest_deadbeef", guest.DisplayName)
	require.Equal(t, "deadbeefcafe1234", guest.SessionID)

	// Guests are invisible to display-name lookup.
	_, err = st.GetUserByDisplayName(ctx, guest.DisplayName)
	require.Error(t, err)
}

func TestUpdatePresence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := createUser(t, st, "alice")
	require.NoError(t, st.UpdatePresence(ctx, user.ID, true, "user_1_abc123"))

	got, err := st.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.Online)
	require.Equal(t, "user_1_abc123", got.RendezvousID)

	require.NoError(t, st.UpdatePresence(ctx, user.ID, false, ""))
	got, err = st.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.Online)

	require.Error(t, st.UpdatePresence(ctx, 9999, true, "x"))
}

func TestRandomActiveUserExcludesSelf(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	require.NoError(t, st.UpdatePresence(ctx, alice.ID, true, "ra"))
	require.NoError(t, st.UpdatePresence(ctx, bob.ID, true, "rb"))

	for range 10 {
		got, err := st.RandomActiveUser(ctx, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, bob.ID, got.ID)
	}

	// Nobody else online.
	require.NoError(t, st.UpdatePresence(ctx, bob.ID, false, ""))
	got, err := st.RandomActiveUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestWaitingPoolLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")

	require.NoError(t, st.UpsertWaiting(ctx, alice.ID, "ra", true))
	require.NoError(t, st.UpsertWaiting(ctx, bob.ID, "rb", true))

	entries, err := st.ListAvailable(ctx, alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, bob.ID, entries[0].UserID)
	require.Equal(t, "rb", entries[0].RendezvousID)

	// Upsert flips availability in place.
	require.NoError(t, st.UpsertWaiting(ctx, bob.ID, "rb2", false))
	entries, err = st.ListAvailable(ctx, alice.ID, 10)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, st.RemoveWaiting(ctx, bob.ID))
	require.NoError(t, st.RemoveWaiting(ctx, bob.ID)) // absent row is fine
}

func TestClaimWaitingExactlyOneWinner(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice")
	require.NoError(t, st.UpsertWaiting(ctx, alice.ID, "ra", true))

	const searchers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, searchers)

	for range searchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := st.ClaimWaiting(ctx, alice.ID)
			require.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for won := range wins {
		if won {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestClaimWaitingAbsentEntry(t *testing.T) {
	st := newTestStore(t)

	claimed, err := st.ClaimWaiting(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestPruneWaiting(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	require.NoError(t, st.UpsertWaiting(ctx, alice.ID, "ra", true))
	require.NoError(t, st.UpsertWaiting(ctx, bob.ID, "rb", true))

	// Age alice's entry past the TTL.
	_, err := st.db.ExecContext(ctx,
		`UPDATE waiting_pool SET inserted_at = datetime('now', '-10 minutes') WHERE user_id = ?`, alice.ID)
	require.NoError(t, err)

	pruned, err := st.PruneWaiting(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	entries, err := st.ListAvailable(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, bob.ID, entries[0].UserID)
}

func TestMessagesChronologicalOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")

	base := time.Now().UTC().Truncate(time.Second)
	for i, body := range []string{"first", "second", "third"} {
		sender, receiver := alice.ID, bob.ID
		if i%2 == 1 {
			sender, receiver = bob.ID, alice.ID
		}
		require.NoError(t, st.SaveMessage(ctx, &store.Message{
			ID:         uuid.New().String(),
			SenderID:   sender,
			ReceiverID: receiver,
			Body:       body,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	messages, err := st.ListMessagesBetween(ctx, alice.ID, bob.ID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, "first", messages[0].Body)
	require.Equal(t, "third", messages[2].Body)

	// Limit keeps the most recent, still oldest first.
	messages, err = st.ListMessagesBetween(ctx, alice.ID, bob.ID, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "second", messages[0].Body)
	require.Equal(t, "third", messages[1].Body)
}

func TestFriendLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")

	friend, err := st.CreateFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, store.FriendStatusPending, friend.Status)

	ok, err := st.IsFriend(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, st.UpdateFriendStatus(ctx, alice.ID, bob.ID, store.FriendStatusAccepted))

	// Accepted friendship is visible in both directions.
	ok, err = st.IsFriend(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := st.GetFriendship(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, store.FriendStatusAccepted, got.Status)

	accepted := store.FriendStatusAccepted
	list, err := st.ListFriends(ctx, bob.ID, &accepted)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, st.DeleteFriendship(ctx, bob.ID, alice.ID))
	_, err = st.GetFriendship(ctx, alice.ID, bob.ID)
	require.Error(t, err)
}

func TestReports(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")

	require.NoError(t, st.SaveReport(ctx, &store.Report{
		ID:         uuid.New().String(),
		ReporterID: alice.ID,
		PartnerID:  bob.ID,
		Reason:     "spam",
		CreatedAt:  time.Now().UTC(),
	}))

	reports, err := st.ListReportsAgainst(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "spam", reports[0].Reason)
	require.Equal(t, alice.ID, reports[0].ReporterID)
}
