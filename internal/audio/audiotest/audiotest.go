// Package audiotest provides scripted in-memory implementations of
// [audio.Device] and [audio.Session] for unit tests.
//
// Set the exported fields before use; inspect the Call* fields after.
// A scripted session delivers its chunks in order and then either stays open
// until Close (normal capture) or closes its stream early to simulate the
// device disappearing mid-recording.
package audiotest

import (
	"context"
	"sync"

	"github.com/wisemama/wisemama/internal/audio"
)

// Device is a scripted implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// OpenErr, when non-nil, is returned by Open instead of a session.
	OpenErr error

	// Mime is the container type reported by opened sessions.
	// Defaults to "audio/webm" if empty.
	Mime string

	// Chunks is the script delivered by each opened session, in order.
	Chunks []audio.Chunk

	// FailMidStream makes the session close its chunk stream after the script
	// without Close being called, as a lost device would.
	FailMidStream bool

	// BlockOpen, when non-nil, makes Open wait until the channel is closed or
	// ctx expires. Used to exercise acquisition timeouts.
	BlockOpen chan struct{}

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// Sessions holds every session handed out, in order.
	Sessions []*Session
}

// Open implements [audio.Device].
func (d *Device) Open(ctx context.Context) (audio.Session, error) {
	d.mu.Lock()
	d.CallCountOpen++
	block := d.BlockOpen
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	mime := d.Mime
	if mime == "" {
		mime = "audio/webm"
	}
	s := &Session{
		mime:   mime,
		ch:     make(chan audio.Chunk),
		closed: make(chan struct{}),
	}
	go s.feed(append([]audio.Chunk(nil), d.Chunks...), d.FailMidStream)
	d.Sessions = append(d.Sessions, s)
	return s, nil
}

// Session is the scripted session type handed out by [Device].
type Session struct {
	mime   string
	ch     chan audio.Chunk
	closed chan struct{}

	once sync.Once

	mu             sync.Mutex
	CallCountClose int
}

func (s *Session) feed(chunks []audio.Chunk, failMidStream bool) {
	defer close(s.ch)
	for _, c := range chunks {
		select {
		case s.ch <- c:
		case <-s.closed:
			return
		}
	}
	if failMidStream {
		return
	}
	<-s.closed
}

// Chunks implements [audio.Session].
func (s *Session) Chunks() <-chan audio.Chunk { return s.ch }

// MimeType implements [audio.Session].
func (s *Session) MimeType() string { return s.mime }

// Close implements [audio.Session]. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	s.mu.Unlock()
	s.once.Do(func() { close(s.closed) })
	return nil
}

// Closed reports whether the session's input handle has been released.
func (s *Session) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
