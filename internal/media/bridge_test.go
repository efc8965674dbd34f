package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat-server/internal/config"
)

type fakeCall struct {
	remote   chan *Stream
	done     chan struct{}
	doneOnce sync.Once

	mu       sync.Mutex
	answered *Stream
}

func newFakeCall() *fakeCall {
	return &fakeCall{
		remote: make(chan *Stream, 1),
		done:   make(chan struct{}),
	}
}

func (c *fakeCall) Answer(local *Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answered = local
	return nil
}

func (c *fakeCall) Remote() <-chan *Stream { return c.remote }
func (c *fakeCall) Done() <-chan struct{}  { return c.done }
func (c *fakeCall) Hangup()                { c.doneOnce.Do(func() { close(c.done) }) }

type fakeConn struct {
	mu          sync.Mutex
	placed      []*fakeCall
	placeTo     []string
	incoming    chan Call
	unreachable bool
	placeErr    error
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan Call, 4)}
}

func (c *fakeConn) Place(_ context.Context, remote string, _ *Stream) (Call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.placeErr != nil {
		return nil, c.placeErr
	}
	call := newFakeCall()
	c.placed = append(c.placed, call)
	c.placeTo = append(c.placeTo, remote)
	return call, nil
}

func (c *fakeConn) Incoming() <-chan Call { return c.incoming }

func (c *fakeConn) Reachable(string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.unreachable
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) placeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.placed)
}

func (c *fakeConn) lastCall() *fakeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.placed) == 0 {
		return nil
	}
	return c.placed[len(c.placed)-1]
}

type fakeSignaler struct {
	conn *fakeConn
	err  error
}

func (s *fakeSignaler) Open(context.Context, string) (Conn, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.conn, nil
}

type fakeSource struct {
	mu       sync.Mutex
	failures int // number of initial Acquire calls that fail
	calls    int
}

func (s *fakeSource) Acquire(context.Context) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("device busy")
	}
	return NewStream("local"), nil
}

func testMediaConfig() config.MediaConfig {
	return config.MediaConfig{AcquireRetries: 3, AcquireBackoff: time.Millisecond}
}

func newTestBridge(conn *fakeConn, source *fakeSource) *Bridge {
	logger := zerolog.Nop()
	return NewBridge(&fakeSignaler{conn: conn}, source, testMediaConfig(), &logger)
}

func mustEvent(t *testing.T, b *Bridge, kind EventKind) Event {
	t.Helper()
	for {
		select {
		case ev := <-b.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event kind %d", kind)
			return Event{}
		}
	}
}

func waitForPlace(t *testing.T, conn *fakeConn, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return conn.placeCount() == want },
		time.Second, time.Millisecond)
}

func TestPlaceWaitsForAllParts(t *testing.T) {
	conn := newFakeConn()
	b := newTestBridge(conn, &fakeSource{})
	ctx := context.Background()

	// Partner known before the local stream exists: nothing placed yet.
	require.NoError(t, b.Open(ctx, "user_1_local"))
	b.SetPartner(ctx, "user_2_remote")
	require.Zero(t, conn.placeCount())

	_, err := b.AcquireLocalStream(ctx)
	require.NoError(t, err)

	waitForPlace(t, conn, 1)
	conn.mu.Lock()
	require.Equal(t, "user_2_remote", conn.placeTo[0])
	conn.mu.Unlock()
}

func TestPlaceStreamFirst(t *testing.T) {
	conn := newFakeConn()
	b := newTestBridge(conn, &fakeSource{})
	ctx := context.Background()

	_, err := b.AcquireLocalStream(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx, "user_1_local"))
	require.Zero(t, conn.placeCount())

	b.SetPartner(ctx, "user_2_remote")
	waitForPlace(t, conn, 1)

	// The barrier fires once; repeated triggers do not re-place.
	b.tryPlace(ctx)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, conn.placeCount())
}

func TestAcquireRetriesThenReports(t *testing.T) {
	conn := newFakeConn()
	source := &fakeSource{failures: 2}
	b := newTestBridge(conn, source)

	stream, err := b.AcquireLocalStream(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stream)
	require.Equal(t, 3, source.calls)
}

func TestAcquireExhaustionEmitsMediaError(t *testing.T) {
	conn := newFakeConn()
	source := &fakeSource{failures: 10}
	b := newTestBridge(conn, source)

	_, err := b.AcquireLocalStream(context.Background())
	require.ErrorIs(t, err, ErrNoLocalStream)

	ev := mustEvent(t, b, EventMediaError)
	require.ErrorIs(t, ev.Err, ErrNoLocalStream)
	require.Equal(t, PhaseNoStream, b.Phase())
}

func TestUnreachablePartnerFailsWithoutRetry(t *testing.T) {
	conn := newFakeConn()
	conn.unreachable = true
	b := newTestBridge(conn, &fakeSource{})
	ctx := context.Background()

	_, err := b.AcquireLocalStream(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx, "user_1_local"))
	b.SetPartner(ctx, "user_2_gone")

	mustEvent(t, b, EventCallFailed)
	require.Zero(t, conn.placeCount())
}

func TestRemoteStreamThenClose(t *testing.T) {
	conn := newFakeConn()
	b := newTestBridge(conn, &fakeSource{})
	ctx := context.Background()

	_, err := b.AcquireLocalStream(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx, "user_1_local"))
	b.SetPartner(ctx, "user_2_remote")
	waitForPlace(t, conn, 1)

	call := conn.lastCall()
	call.remote <- NewStream("remote")
	ev := mustEvent(t, b, EventRemoteStream)
	require.Equal(t, "remote", ev.Stream.ID)
	require.Equal(t, PhaseInCall, b.Phase())

	call.Hangup()
	mustEvent(t, b, EventCallClosed)
}

func TestPartnerChangeDropsStaleCallEvents(t *testing.T) {
	conn := newFakeConn()
	b := newTestBridge(conn, &fakeSource{})
	ctx := context.Background()

	_, err := b.AcquireLocalStream(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx, "user_1_local"))
	b.SetPartner(ctx, "user_2_remote")
	waitForPlace(t, conn, 1)
	oldCall := conn.lastCall()

	// Switch partners, then have the old call end.
	b.SetPartner(ctx, "user_3_remote")
	waitForPlace(t, conn, 2)
	oldCall.remote <- NewStream("stale")

	// Only events from the new call surface.
	newCall := conn.lastCall()
	newCall.remote <- NewStream("fresh")
	ev := mustEvent(t, b, EventRemoteStream)
	require.Equal(t, "fresh", ev.Stream.ID)
}

func TestAnswerLoopRequiresLocalStream(t *testing.T) {
	conn := newFakeConn()
	b := newTestBridge(conn, &fakeSource{})
	ctx := context.Background()

	require.NoError(t, b.Open(ctx, "user_1_local"))

	// No local stream yet: inbound call is dropped.
	dropped := newFakeCall()
	conn.incoming <- dropped
	select {
	case <-dropped.Done():
	case <-time.After(time.Second):
		t.Fatal("inbound call without local stream was not hung up")
	}

	// With a local stream the call is answered.
	_, err := b.AcquireLocalStream(ctx)
	require.NoError(t, err)
	answered := newFakeCall()
	conn.incoming <- answered
	require.Eventually(t, func() bool {
		answered.mu.Lock()
		defer answered.mu.Unlock()
		return answered.answered != nil
	}, time.Second, time.Millisecond)
}

func TestToggleTracks(t *testing.T) {
	conn := newFakeConn()
	b := newTestBridge(conn, &fakeSource{})

	// No stream yet: toggles are no-ops.
	require.False(t, b.ToggleVideo())
	require.False(t, b.ToggleAudio())

	stream, err := b.AcquireLocalStream(context.Background())
	require.NoError(t, err)

	require.False(t, b.ToggleVideo())
	require.False(t, stream.VideoEnabled())
	require.True(t, b.ToggleVideo())
	require.True(t, stream.VideoEnabled())
	require.True(t, stream.AudioEnabled())
}
