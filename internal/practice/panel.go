package practice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wisemama/wisemama/internal/audio"
	"github.com/wisemama/wisemama/internal/storage"
)

// Store is the persistence contract the panel needs. *storage.DB satisfies it.
type Store interface {
	PutReferenceModel(ctx context.Context, rec *storage.ReferenceModel) error
	GetReferenceModel(ctx context.Context, cardKey string) (*storage.ReferenceModel, error)
	InsertAttempt(ctx context.Context, rec *storage.Attempt) (*storage.Attempt, error)
	SetAttemptKept(ctx context.Context, id string, kept bool) error
	ListAttemptsByCard(ctx context.Context, cardKey string) ([]storage.Attempt, error)
	ListAllAttempts(ctx context.Context) ([]storage.Attempt, error)
}

// Role selects which of the panel's two recorders an operation targets.
type Role string

const (
	// RoleReference records the model pronunciation (the parent side).
	RoleReference Role = "reference"

	// RoleAttempt records a practice attempt (the child side).
	RoleAttempt Role = "attempt"
)

// ErrNoClip is returned by the save paths when the targeted recorder holds no
// finalized recording.
var ErrNoClip = errors.New("practice: no recording to save")

// ErrConfirmReplace is returned by the first SaveReference when a model
// already exists; the save is held until ConfirmReplace or CancelReplace.
var ErrConfirmReplace = errors.New("practice: confirm replacing the saved model")

// User-facing status and error lines shown by the panel.
const (
	msgLoadFailed        = "Local recordings are unavailable."
	msgModelSaveFailed   = "Could not save the reference model."
	msgAttemptSaveFailed = "Could not save the attempt."
	msgConfirmReplace    = "Confirm replacing the saved reference model."
	msgModelSaved        = "Reference model saved."
	msgAttemptSaved      = "Attempt saved to your recordings."
)

// Panel orchestrates one flashcard's pronunciation practice: two recorders
// (reference and attempt role), loading and saving through the store, scoring
// via [Validate], and filtered history views.
//
// All state mutation goes through store operations; the panel holds only
// transient in-memory copies of the last load. A load started for one card is
// discarded if another card became active before it finished, so a slow load
// can never clobber a newer card's state.
type Panel struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time

	waveWindow    int
	meterInterval time.Duration

	recorders map[Role]*audio.Recorder

	mu             sync.Mutex
	cardKey        string
	loadSeq        uint64
	model          *storage.ReferenceModel
	cardAttempts   []storage.Attempt
	allAttempts    []storage.Attempt
	panelErr       string
	saveStatus     string
	confirmReplace bool
	filter         HistoryFilter
	waves          map[Role][]float64
	lastVerdict    *Verdict
}

// PanelOption configures a [Panel].
type PanelOption func(*Panel)

// WithLogger sets the logger used for load and save failures.
func WithLogger(logger *slog.Logger) PanelOption {
	return func(p *Panel) { p.logger = logger }
}

// WithClock injects the time source used for history date filtering.
func WithClock(clock func() time.Time) PanelOption {
	return func(p *Panel) { p.clock = clock }
}

// WithWaveWindow bounds the trailing live-level window kept per recorder.
func WithWaveWindow(n int) PanelOption {
	return func(p *Panel) { p.waveWindow = n }
}

// WithMeterInterval sets how often an active recorder's level is sampled
// into the wave window.
func WithMeterInterval(d time.Duration) PanelOption {
	return func(p *Panel) { p.meterInterval = d }
}

// NewPanel creates a panel over the given store and recorders.
func NewPanel(store Store, reference, attempt *audio.Recorder, opts ...PanelOption) *Panel {
	p := &Panel{
		store:         store,
		logger:        slog.Default(),
		clock:         time.Now,
		waveWindow:    40,
		meterInterval: 80 * time.Millisecond,
		recorders: map[Role]*audio.Recorder{
			RoleReference: reference,
			RoleAttempt:   attempt,
		},
		filter: DefaultFilter(),
		waves:  make(map[Role][]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Recorder returns the recorder serving the given role.
func (p *Panel) Recorder(role Role) *audio.Recorder {
	return p.recorders[role]
}

// SetCard activates the panel for cardKey: transient state, filters, and both
// recorders are reset, then the reference model and attempt history load
// concurrently. A failed load leaves empty lists and a panel error message.
func (p *Panel) SetCard(ctx context.Context, cardKey string) {
	p.mu.Lock()
	p.cardKey = cardKey
	p.loadSeq++
	seq := p.loadSeq
	p.saveStatus = ""
	p.panelErr = ""
	p.confirmReplace = false
	p.filter = DefaultFilter()
	p.waves = make(map[Role][]float64)
	p.lastVerdict = nil
	p.mu.Unlock()

	for _, rec := range p.recorders {
		rec.Clear()
	}

	p.load(ctx, cardKey, seq)
}

// Reload refreshes the active card's model and history.
func (p *Panel) Reload(ctx context.Context) {
	p.mu.Lock()
	cardKey := p.cardKey
	p.loadSeq++
	seq := p.loadSeq
	p.mu.Unlock()

	p.load(ctx, cardKey, seq)
}

// load fetches model and history concurrently, then applies the results only
// if no newer load superseded this one while it was in flight.
func (p *Panel) load(ctx context.Context, cardKey string, seq uint64) {
	var (
		model       *storage.ReferenceModel
		forCard     []storage.Attempt
		allAttempts []storage.Attempt
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		model, err = p.store.GetReferenceModel(gctx, cardKey)
		return err
	})
	g.Go(func() error {
		var err error
		forCard, err = p.store.ListAttemptsByCard(gctx, cardKey)
		return err
	})
	g.Go(func() error {
		var err error
		allAttempts, err = p.store.ListAllAttempts(gctx)
		return err
	})
	err := g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if seq != p.loadSeq {
		// A newer card or reload took over while this load was in flight.
		return
	}
	if err != nil {
		p.logger.Error("audio practice load failed", "card", cardKey, "error", err)
		p.model = nil
		p.cardAttempts = nil
		p.allAttempts = nil
		p.panelErr = msgLoadFailed
		return
	}
	p.model = model
	p.cardAttempts = forCard
	p.allAttempts = allAttempts
	p.panelErr = ""
}

// StartRecording starts the recorder for role and begins sampling its live
// level into the bounded wave window.
func (p *Panel) StartRecording(ctx context.Context, role Role) error {
	rec, ok := p.recorders[role]
	if !ok {
		return errors.New("practice: unknown recorder role")
	}
	if err := rec.Start(ctx); err != nil {
		return err
	}
	go p.meter(role, rec)
	return nil
}

// StopRecording finalizes the active recording for role, if any.
func (p *Panel) StopRecording(role Role) *audio.Clip {
	rec, ok := p.recorders[role]
	if !ok {
		return nil
	}
	return rec.Stop()
}

// meter samples the recorder's live level on a fixed interval, keeping a
// bounded trailing window for waveform display. The window is display-only:
// it is discarded when the recording ends and never persisted.
func (p *Panel) meter(role Role, rec *audio.Recorder) {
	ticker := time.NewTicker(p.meterInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !rec.Recording() {
			p.mu.Lock()
			delete(p.waves, role)
			p.mu.Unlock()
			return
		}
		level := rec.Level()
		p.mu.Lock()
		window := append(p.waves[role], level)
		if len(window) > p.waveWindow {
			window = window[len(window)-p.waveWindow:]
		}
		p.waves[role] = window
		p.mu.Unlock()
	}
}

// SaveReference persists the reference recorder's clip as this card's model.
//
// If a model already exists, the first call arms a confirmation instead of
// writing and returns [ErrConfirmReplace]; the caller either calls
// ConfirmReplace and saves again, or CancelReplace to back out. This guards
// an existing reference recording against accidental overwrite.
func (p *Panel) SaveReference(ctx context.Context) error {
	clip := p.recorders[RoleReference].Clip()
	if clip == nil {
		return ErrNoClip
	}

	p.mu.Lock()
	cardKey := p.cardKey
	if p.model != nil && !p.confirmReplace {
		p.confirmReplace = true
		p.saveStatus = msgConfirmReplace
		p.mu.Unlock()
		return ErrConfirmReplace
	}
	p.mu.Unlock()

	err := p.store.PutReferenceModel(ctx, &storage.ReferenceModel{
		CardKey:    cardKey,
		Audio:      clip.Data,
		MimeType:   clip.MimeType,
		DurationMs: clip.Duration.Milliseconds(),
	})
	if err != nil {
		p.logger.Error("reference model save failed", "card", cardKey, "error", err)
		p.mu.Lock()
		p.panelErr = msgModelSaveFailed
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.saveStatus = msgModelSaved
	p.confirmReplace = false
	p.mu.Unlock()

	p.Reload(ctx)
	return nil
}

// ConfirmReplace approves the pending model replacement and commits it.
func (p *Panel) ConfirmReplace(ctx context.Context) error {
	p.mu.Lock()
	p.confirmReplace = true
	p.mu.Unlock()
	// SaveReference sees the armed confirmation and writes through.
	err := p.SaveReference(ctx)
	if errors.Is(err, ErrConfirmReplace) {
		// Cannot happen once armed; keep the sentinel from escaping.
		return nil
	}
	return err
}

// CancelReplace disarms a pending model replacement.
func (p *Panel) CancelReplace() {
	p.mu.Lock()
	p.confirmReplace = false
	p.saveStatus = ""
	p.mu.Unlock()
}

// SaveAttempt persists the attempt recorder's clip: the attempt is scored
// against the loaded model, inserted, immediately marked kept, and the panel
// reloads and re-scores against the fresh model.
//
// The insert and the kept update are two separate store transactions; a crash
// between them leaves a kept=false attempt that never surfaces in history.
// That window is a documented property of the store contract.
func (p *Panel) SaveAttempt(ctx context.Context) error {
	clip := p.recorders[RoleAttempt].Clip()
	if clip == nil {
		return ErrNoClip
	}

	p.mu.Lock()
	cardKey := p.cardKey
	var refMs int64
	if p.model != nil {
		refMs = p.model.DurationMs
	}
	p.mu.Unlock()

	verdict := Validate(refMs, clip.Duration.Milliseconds())

	stored, err := p.store.InsertAttempt(ctx, &storage.Attempt{
		CardKey:    cardKey,
		Audio:      clip.Data,
		MimeType:   clip.MimeType,
		DurationMs: clip.Duration.Milliseconds(),
		Score:      verdict.Score,
		Note:       verdict.Note,
	})
	if err != nil {
		p.logger.Error("attempt save failed", "card", cardKey, "error", err)
		p.mu.Lock()
		p.panelErr = msgAttemptSaveFailed
		p.mu.Unlock()
		return err
	}

	if err := p.store.SetAttemptKept(ctx, stored.ID, true); err != nil {
		p.logger.Error("attempt kept update failed", "card", cardKey, "attempt", stored.ID, "error", err)
		p.mu.Lock()
		p.panelErr = msgAttemptSaveFailed
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.saveStatus = msgAttemptSaved
	p.mu.Unlock()

	p.Reload(ctx)

	p.mu.Lock()
	refMs = 0
	if p.model != nil {
		refMs = p.model.DurationMs
	}
	v := Validate(refMs, clip.Duration.Milliseconds())
	p.lastVerdict = &v
	p.mu.Unlock()
	return nil
}

// SetFilter updates the history facets.
func (p *Panel) SetFilter(f HistoryFilter) {
	p.mu.Lock()
	p.filter = f
	p.mu.Unlock()
}

// View is a point-in-time copy of everything the UI renders.
type View struct {
	CardKey        string
	Model          *storage.ReferenceModel
	History        []storage.Attempt
	Filter         HistoryFilter
	PanelErr       string
	SaveStatus     string
	ConfirmReplace bool
	LastVerdict    *Verdict
	Waves          map[Role][]float64
	Reference      audio.Snapshot
	Attempt        audio.Snapshot
}

// ReferenceWave returns the reference recorder's live-level window.
func (v View) ReferenceWave() []float64 {
	return v.Waves[RoleReference]
}

// AttemptWave returns the attempt recorder's live-level window.
func (v View) AttemptWave() []float64 {
	return v.Waves[RoleAttempt]
}

// View assembles the current render state, applying the history filter
// facets (kept-only, date range, card scope) against the wall clock.
func (p *Panel) View() View {
	refSnap := p.recorders[RoleReference].Snapshot()
	attSnap := p.recorders[RoleAttempt].Snapshot()

	p.mu.Lock()
	defer p.mu.Unlock()

	source := p.cardAttempts
	if p.filter.Cards == ScopeAllCards {
		source = p.allAttempts
	}

	waves := make(map[Role][]float64, len(p.waves))
	for role, w := range p.waves {
		waves[role] = append([]float64(nil), w...)
	}

	return View{
		CardKey:        p.cardKey,
		Model:          p.model,
		History:        FilterHistory(source, p.filter.Dates, p.clock()),
		Filter:         p.filter,
		PanelErr:       p.panelErr,
		SaveStatus:     p.saveStatus,
		ConfirmReplace: p.confirmReplace,
		LastVerdict:    p.lastVerdict,
		Waves:          waves,
		Reference:      refSnap,
		Attempt:        attSnap,
	}
}

// Close releases both recorders' devices.
func (p *Panel) Close() error {
	var firstErr error
	for _, rec := range p.recorders {
		if err := rec.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
