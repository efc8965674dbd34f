package media

import (
	"context"
	"sync"
)

// Stream is a handle to a local or remote audio/video stream. The local
// stream is acquired once per logged-in session and reused across partner
// changes; remote streams live only as long as the current call.
type Stream struct {
	ID string

	mu    sync.Mutex
	video bool
	audio bool
}

// NewStream builds a stream with both tracks enabled.
func NewStream(id string) *Stream {
	return &Stream{ID: id, video: true, audio: true}
}

// ToggleVideo flips the video track's enabled flag without renegotiating.
func (s *Stream) ToggleVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = !s.video
	return s.video
}

// ToggleAudio flips the audio track's enabled flag without renegotiating.
func (s *Stream) ToggleAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = !s.audio
	return s.audio
}

// VideoEnabled reports the video track state.
func (s *Stream) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}

// AudioEnabled reports the audio track state.
func (s *Stream) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

// Source acquires the local camera+microphone stream.
type Source interface {
	Acquire(ctx context.Context) (*Stream, error)
}
