package studio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"shoe-concept-studio/internal/generation"
	"shoe-concept-studio/internal/history"
	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/lock"
	"shoe-concept-studio/internal/prompt"
	"shoe-concept-studio/internal/request"
)

const DefaultVariations = 2

var (
	// ErrBusy rejects an action while a generation is in flight.
	ErrBusy = errors.New("a generation is already in progress")
	// ErrNoSuchEntry is returned by Reuse for an index outside the history.
	ErrNoSuchEntry = errors.New("no such history entry")
)

type Phase string

const (
	PhaseInitial  Phase = "initial"
	PhaseRefining Phase = "refining"
)

// Recorder receives every completed attempt, including the ones history skips.
type Recorder interface {
	Record(ctx context.Context, session string, e history.Entry) error
}

type Options struct {
	Builder           *request.Builder
	Client            generation.Client
	History           *history.Store
	Recorder          Recorder
	SessionID         string
	Downscale         imaging.Options
	DefaultVariations int
	Logger            *slog.Logger
	Now               func() time.Time
}

// Studio owns the state of one design session: the last issued request, the
// lock flags and the history. Only one generation runs at a time.
type Studio struct {
	builder   *request.Builder
	client    generation.Client
	history   *history.Store
	recorder  Recorder
	session   string
	downscale imaging.Options
	variation int
	logger    *slog.Logger
	now       func() time.Time

	gate *semaphore.Weighted
	busy atomic.Bool

	mu         sync.Mutex
	last       *request.GenerationRequest
	locks      lock.State
	lastPrompt string
	prompted   bool
}

func New(opts Options) *Studio {
	builder := opts.Builder
	if builder == nil {
		builder = request.NewBuilder(request.DefaultConfig())
	}
	store := opts.History
	if store == nil {
		store = history.New(history.DefaultCapacity)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	downscale := opts.Downscale
	if downscale.MaxSide <= 0 {
		downscale = imaging.DefaultOptions()
	}
	variations := opts.DefaultVariations
	if variations <= 0 {
		variations = DefaultVariations
	}

	return &Studio{
		builder:   builder,
		client:    opts.Client,
		history:   store,
		recorder:  opts.Recorder,
		session:   opts.SessionID,
		downscale: downscale,
		variation: builder.ClampVariations(variations),
		logger:    logger.With("session", opts.SessionID),
		now:       now,
		gate:      semaphore.NewWeighted(1),
		locks:     lock.AllLocked(),
	}
}

// Ingest downscales an uploaded file before it enters a draft.
func (s *Studio) Ingest(name string, data []byte) imaging.Image {
	img := imaging.Downscale(name, data, s.downscale)
	if img.Passthrough {
		s.logger.Warn("downscale skipped, keeping original bytes", "file", name, "mime", img.MIMEType, "bytes", len(data))
	}
	return img
}

// Upload accepts a JPEG, PNG or WebP file and downscales it. Anything else is
// rejected with an *imaging.UnsupportedError before it can reach a draft.
func (s *Studio) Upload(name, declaredType string, data []byte) (imaging.Image, error) {
	if err := imaging.CheckSupported(name, declaredType, data); err != nil {
		s.logger.Info("unsupported upload rejected", "file", name, "type", declaredType)
		return imaging.Image{}, err
	}
	return s.Ingest(name, data), nil
}

// NewDraft returns an empty form with the default variation count.
func (s *Studio) NewDraft() request.Draft {
	return request.Draft{
		Images:     make(map[request.Slot]imaging.Image),
		Variations: s.variation,
	}
}

// Generate builds a request purely from the live form.
func (s *Studio) Generate(ctx context.Context, live request.Draft) (*generation.Result, error) {
	return s.attempt(ctx, "generate", func() request.Draft {
		return live.Clone()
	})
}

// Regenerate merges the live form with the last request according to the lock
// flags. Without a previous request it behaves like Generate.
func (s *Studio) Regenerate(ctx context.Context, live request.Draft) (*generation.Result, error) {
	return s.attempt(ctx, "regenerate", func() request.Draft {
		s.mu.Lock()
		defer s.mu.Unlock()
		return lock.Merge(s.last, s.locks, live)
	})
}

func (s *Studio) attempt(ctx context.Context, action string, draft func() request.Draft) (*generation.Result, error) {
	if !s.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	s.busy.Store(true)
	defer func() {
		s.busy.Store(false)
		s.gate.Release(1)
	}()

	if s.client == nil {
		return nil, errors.New("generation client is not configured")
	}

	d := draft()
	if d.Preset != "" {
		if _, ok := prompt.Lookup(d.Preset); !ok {
			s.logger.Warn("unknown preset ignored", "preset", d.Preset)
		}
	}

	req, err := s.builder.Build(d)
	if err != nil {
		var verr *request.ValidationError
		if errors.As(err, &verr) {
			s.logger.Info("validation rejected", "action", action, "missing", verr.Missing)
		}
		return nil, err
	}

	s.mu.Lock()
	s.lastPrompt = req.UserPrompt
	s.prompted = true
	s.mu.Unlock()

	start := s.now()
	s.logger.Info("generation started", "action", action, "images", len(req.Images), "collage", req.Collage, "n", req.Variations)

	res, err := s.client.Send(ctx, req)
	entry := history.Entry{Request: req, Result: res, At: s.now()}

	if err != nil {
		var genErr *generation.Error
		if !errors.As(err, &genErr) {
			genErr = &generation.Error{Kind: generation.KindTransport, Err: err}
		}
		entry.Result = nil
		entry.Failure = genErr
		s.logger.Warn("generation failed", "action", action, "kind", genErr.Kind, "status", genErr.Status,
			"request_id", genErr.RequestID, "err", err, "dur_ms", s.now().Sub(start).Milliseconds())

		if keepsHistory(genErr.Kind) {
			s.history.Append(entry)
		}
		s.record(ctx, entry)
		return nil, genErr
	}

	s.mu.Lock()
	s.last = req
	s.mu.Unlock()

	s.history.Append(entry)
	s.record(ctx, entry)
	s.logger.Info("generation finished", "action", action, "request_id", res.ID, "images", len(res.Images),
		"dur_ms", s.now().Sub(start).Milliseconds())
	return res, nil
}

// keepsHistory reports whether a failed attempt is shown in history: only when
// the service actually answered.
func keepsHistory(kind generation.Kind) bool {
	switch kind {
	case generation.KindBadStatus, generation.KindEmptyResult:
		return true
	default:
		return false
	}
}

func (s *Studio) record(ctx context.Context, e history.Entry) {
	if s.recorder == nil {
		return
	}
	// The attempt is already complete; a cancelled caller should not drop the row.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.recorder.Record(ctx, s.session, e); err != nil {
		s.logger.Error("journal write failed", "err", err)
	}
}

func (s *Studio) Busy() bool {
	return s.busy.Load()
}

func (s *Studio) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return PhaseInitial
	}
	return PhaseRefining
}

// LastRequest is the request regenerate locks against.
func (s *Studio) LastRequest() *request.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Studio) Locks() lock.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks
}

func (s *Studio) ToggleLock(f lock.Field) lock.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = s.locks.Toggle(f)
	return s.locks
}

func (s *Studio) SetLock(f lock.Field, locked bool) lock.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = s.locks.With(f, locked)
	return s.locks
}

func (s *Studio) History() []history.Entry {
	return s.history.Entries()
}

func (s *Studio) ClearHistory() {
	s.history.Clear()
}

// Reuse returns a history entry's values so a form can be refilled. A
// successful entry also becomes the request regenerate locks against; a failed
// one leaves the lock source and phase alone.
func (s *Studio) Reuse(index int) (request.Draft, error) {
	if !s.gate.TryAcquire(1) {
		return request.Draft{}, ErrBusy
	}
	defer s.gate.Release(1)

	entry, ok := s.history.At(index)
	if !ok || entry.Request == nil {
		return request.Draft{}, ErrNoSuchEntry
	}

	s.mu.Lock()
	if entry.OK() {
		s.last = entry.Request
	}
	s.lastPrompt = entry.Request.UserPrompt
	s.prompted = true
	s.mu.Unlock()

	return entry.Request.Draft(), nil
}

// LastPrompt returns the user prompt of the most recently issued request.
func (s *Studio) LastPrompt() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrompt, s.prompted
}

// Message turns any error from Studio into one line of user-facing text.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var verr *request.ValidationError
	if errors.As(err, &verr) {
		return verr.Message()
	}
	var genErr *generation.Error
	if errors.As(err, &genErr) {
		return genErr.UserMessage()
	}
	var unsupported *imaging.UnsupportedError
	if errors.As(err, &unsupported) {
		return "Unsupported image: " + unsupported.Label() + ". Use JPEG, PNG or WebP."
	}
	switch {
	case errors.Is(err, ErrBusy):
		return "A generation is already running. Please wait for it to finish."
	case errors.Is(err, ErrNoSuchEntry):
		return "That history entry no longer exists."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "The request was cancelled before it finished."
	}

	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "Something went wrong."
	}
	return "Something went wrong: " + msg
}
