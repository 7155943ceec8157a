package audio

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// State identifies where a [Recorder] is in its lifecycle.
type State int

const (
	// StateIdle means no recording is in progress and no clip is held.
	// Errors also land the recorder back here so a retry is always possible.
	StateIdle State = iota

	// StateRecording means the device is held and chunks are accumulating.
	StateRecording

	// StateStopped means a finalized clip is available via [Recorder.Clip].
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Clip is one finalized recording.
type Clip struct {
	Data     []byte
	MimeType string

	// Duration is the wall-clock delta between start and stop. It is not
	// derived from chunk contents, so it is deterministic regardless of how
	// the encoder splits its output.
	Duration time.Duration
}

// Snapshot is a point-in-time copy of recorder state for UI consumption.
type Snapshot struct {
	State   State
	Elapsed time.Duration
	Level   float64
	Err     string
	Clip    *Clip
}

// User-facing failure messages surfaced via [Recorder.Err].
const (
	msgNoDevice    = "Recording is not available on this device."
	msgOpenFailed  = "Microphone not authorized or unavailable."
	msgDeviceLost  = "The recording was interrupted."
	defaultAcquire = 5 * time.Second
)

// Recorder manages one microphone capture session at a time.
//
// The lifecycle is Idle → Recording → Stopped. Any device failure resets the
// recorder to Idle with a user-facing message in [Recorder.Err]; no failure is
// fatal and the caller may simply start again. The device handle is released
// on every exit path: stop, failure, and [Recorder.Close].
//
// Recorder is safe for concurrent use, but a single recorder never runs two
// sessions at once: Start while recording returns [ErrBusy].
type Recorder struct {
	dev     Device
	acquire time.Duration
	clock   func() time.Time
	notify  func(Snapshot)

	mu   lockedState
	done chan struct{}
}

// lockedState groups all fields guarded by its mutex.
type lockedState struct {
	sync.Mutex
	state     State
	session   Session
	buf       bytes.Buffer
	mime      string
	startedAt time.Time
	level     float64
	clip      *Clip
	errMsg    string
	stopping  bool
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithAcquireTimeout bounds how long Start waits for the device. Without a
// bound, a capture backend that never answers would leave Start pending forever.
func WithAcquireTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.acquire = d }
}

// WithClock injects the time source used for elapsed and final durations.
func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) { r.clock = clock }
}

// WithOnChange registers cb to be invoked after every state transition
// (start, stop, clear, failure). The callback runs outside the recorder's
// lock and must not call back into the recorder synchronously.
func WithOnChange(cb func(Snapshot)) Option {
	return func(r *Recorder) { r.notify = cb }
}

// NewRecorder returns a recorder capturing from dev. A nil dev is allowed and
// yields a recorder whose Start always fails with [ErrNoDevice].
func NewRecorder(dev Device, opts ...Option) *Recorder {
	r := &Recorder{
		dev:     dev,
		acquire: defaultAcquire,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start acquires the microphone and begins accumulating chunks.
//
// On failure the recorder stays Idle, records a user-facing message, and
// returns the underlying error. Starting while already recording returns
// [ErrBusy] without disturbing the active session.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.mu.state == StateRecording {
		r.mu.Unlock()
		return ErrBusy
	}
	// Reset transients from any previous take before acquiring.
	r.mu.clip = nil
	r.mu.errMsg = ""
	r.mu.level = 0
	r.mu.buf.Reset()
	r.mu.stopping = false
	r.mu.state = StateIdle
	r.mu.Unlock()

	if r.dev == nil {
		r.setError(msgNoDevice)
		return ErrNoDevice
	}

	openCtx, cancel := context.WithTimeout(ctx, r.acquire)
	defer cancel()

	sess, err := r.dev.Open(openCtx)
	if err != nil {
		r.setError(msgOpenFailed)
		return err
	}

	r.mu.Lock()
	r.mu.session = sess
	r.mu.mime = sess.MimeType()
	r.mu.startedAt = r.clock()
	r.mu.state = StateRecording
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.pump(sess, done)
	r.changed()
	return nil
}

// pump drains the session's chunk channel until it closes. A close that was
// not requested via Stop means the device failed mid-recording.
func (r *Recorder) pump(sess Session, done chan struct{}) {
	defer close(done)
	for chunk := range sess.Chunks() {
		r.mu.Lock()
		r.mu.buf.Write(chunk.Data)
		r.mu.level = chunk.Level
		r.mu.Unlock()
	}

	r.mu.Lock()
	if r.mu.state == StateRecording && !r.mu.stopping {
		// Device lost mid-recording: release the handle and force-reset so
		// the user can retry.
		r.mu.session.Close()
		r.mu.session = nil
		r.mu.state = StateIdle
		r.mu.errMsg = msgDeviceLost
		r.mu.level = 0
		r.mu.buf.Reset()
		r.mu.Unlock()
		r.changed()
		return
	}
	r.mu.Unlock()
}

// Stop finalizes the in-flight recording into a [Clip] and releases the
// device. It is a no-op returning nil when no recording is in progress.
func (r *Recorder) Stop() *Clip {
	r.mu.Lock()
	if r.mu.state != StateRecording {
		r.mu.Unlock()
		return nil
	}
	r.mu.stopping = true
	sess := r.mu.session
	duration := r.clock().Sub(r.mu.startedAt)
	done := r.done
	r.mu.Unlock()

	// Closing the session ends the chunk stream; wait for the pump to drain
	// whatever was already delivered so the clip is complete.
	sess.Close()
	<-done

	r.mu.Lock()
	data := make([]byte, r.mu.buf.Len())
	copy(data, r.mu.buf.Bytes())
	clip := &Clip{Data: data, MimeType: r.mu.mime, Duration: duration}
	r.mu.clip = clip
	r.mu.session = nil
	r.mu.state = StateStopped
	r.mu.level = 0
	r.mu.buf.Reset()
	r.mu.Unlock()

	r.changed()
	return clip
}

// Clear resets recorded audio, duration, level, and error without touching an
// active device. It is a no-op while recording; stop first.
func (r *Recorder) Clear() {
	r.mu.Lock()
	if r.mu.state == StateRecording {
		r.mu.Unlock()
		return
	}
	r.mu.clip = nil
	r.mu.errMsg = ""
	r.mu.level = 0
	r.mu.buf.Reset()
	r.mu.state = StateIdle
	r.mu.Unlock()
	r.changed()
}

// Close releases the device if a recording is still active. The recording in
// progress is discarded. Intended for component teardown.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.mu.state != StateRecording {
		r.mu.Unlock()
		return nil
	}
	r.mu.stopping = true
	sess := r.mu.session
	done := r.done
	r.mu.Unlock()

	err := sess.Close()
	<-done

	r.mu.Lock()
	r.mu.session = nil
	r.mu.state = StateIdle
	r.mu.level = 0
	r.mu.buf.Reset()
	r.mu.Unlock()
	r.changed()
	return err
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mu.state
}

// Recording reports whether a capture session is active.
func (r *Recorder) Recording() bool {
	return r.State() == StateRecording
}

// Clip returns the finalized recording, or nil when none is held.
func (r *Recorder) Clip() *Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mu.clip
}

// Err returns the user-facing message from the last failure, empty when none.
func (r *Recorder) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mu.errMsg
}

// Level returns the latest normalized input level in [0, 1]. Zero outside of
// an active recording.
func (r *Recorder) Level() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mu.level
}

// Elapsed returns the continuously updating wall-clock time of the active
// recording, the final duration once stopped, and zero otherwise.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.mu.state {
	case StateRecording:
		return r.clock().Sub(r.mu.startedAt)
	case StateStopped:
		if r.mu.clip != nil {
			return r.mu.clip.Duration
		}
	}
	return 0
}

// Snapshot returns a point-in-time copy of the recorder's observable state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	snap := Snapshot{
		State: r.mu.state,
		Level: r.mu.level,
		Err:   r.mu.errMsg,
		Clip:  r.mu.clip,
	}
	switch r.mu.state {
	case StateRecording:
		snap.Elapsed = r.clock().Sub(r.mu.startedAt)
	case StateStopped:
		if r.mu.clip != nil {
			snap.Elapsed = r.mu.clip.Duration
		}
	}
	r.mu.Unlock()
	return snap
}

func (r *Recorder) setError(msg string) {
	r.mu.Lock()
	r.mu.errMsg = msg
	r.mu.state = StateIdle
	r.mu.Unlock()
	r.changed()
}

func (r *Recorder) changed() {
	if r.notify != nil {
		r.notify(r.Snapshot())
	}
}
