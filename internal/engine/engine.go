package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/onepurp/Mutarjim-Pro/internal/assemble"
	"github.com/onepurp/Mutarjim-Pro/internal/backup"
	"github.com/onepurp/Mutarjim-Pro/internal/epub"
	"github.com/onepurp/Mutarjim-Pro/internal/segment"
	"github.com/onepurp/Mutarjim-Pro/internal/store"
	"github.com/onepurp/Mutarjim-Pro/internal/translator"
)

// ErrNoSegments is returned by ImportProject when segmentation produced no
// translation units at all.
var ErrNoSegments = errors.New("engine: no segments extracted")

// Config holds the engine's scheduling and export parameters.
type Config struct {
	WorkerConcurrency int
	MaxRetries        int
	BatchCharLimit    int
	TargetLanguage    string
	TargetDirection   string
	TextAlignment     string
	ForceAlignment    bool
}

// Engine owns the durable store, the state machine and the worker pool. It
// is the only writer of engine state; workers read it between segments.
type Engine struct {
	store      *store.Store
	reader     *epub.Reader
	segmenter  *segment.Segmenter
	assembler  *assemble.Assembler
	translator translator.Translator
	logger     *logrus.Logger
	hub        *Hub
	cfg        Config

	mu          sync.Mutex
	state       State
	poolRunning bool
	poolDone    chan struct{}
}

func New(st *store.Store, tr translator.Translator, cfg Config, logger *logrus.Logger) *Engine {
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Engine{
		store:      st,
		reader:     epub.NewReader(logger),
		segmenter:  segment.NewSegmenter(logger, cfg.BatchCharLimit),
		assembler:  assemble.NewAssembler(logger),
		translator: tr,
		logger:     logger,
		hub:        NewHub(logger),
		cfg:        cfg,
		state:      StateIdle,
	}
}

// Hub exposes the engine-to-UI subscription contract.
func (e *Engine) Hub() *Hub {
	return e.hub
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.hub.publishState(s)
}

// ImportProject wipes the store and replaces it with a freshly segmented
// project built from the archive bytes. Import is refused while the worker
// pool is running; otherwise any state may import, and the engine ends IDLE.
func (e *Engine) ImportProject(ctx context.Context, bookBytes []byte) (*store.Project, error) {
	e.mu.Lock()
	if e.poolRunning {
		e.mu.Unlock()
		return nil, fmt.Errorf("cannot import while translation workers are running; pause first")
	}
	e.mu.Unlock()

	e.setState(StateAnalyzing)

	project, segments, err := e.analyze(bookBytes)
	if err != nil {
		e.setState(StateIdle)
		e.hub.Log(LogError, fmt.Sprintf("Import failed: %v", err))
		return nil, err
	}

	if err := e.store.ImportProject(ctx, project, segments); err != nil {
		e.setState(StateIdle)
		return nil, fmt.Errorf("failed to write project: %w", err)
	}

	docs := make(map[string]struct{})
	for _, seg := range segments {
		docs[seg.DocPath] = struct{}{}
	}

	e.setState(StateIdle)
	e.hub.Log(LogSuccess, fmt.Sprintf("Imported %q: %d documents, %d segments",
		project.Title, len(docs), project.TotalSegments))
	e.publishStats(ctx)
	return project, nil
}

func (e *Engine) analyze(bookBytes []byte) (*store.Project, []segment.Segment, error) {
	book, err := e.reader.Open(bookBytes)
	if err != nil {
		return nil, nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(bookBytes), int64(len(bookBytes)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reopen archive: %w", err)
	}

	var segments []segment.Segment
	for _, doc := range book.Documents {
		markup, err := epub.ReadArchiveFile(zr, doc.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read content document %s: %w", doc.Path, err)
		}
		docSegments, err := e.segmenter.SegmentDocument(doc.Path, markup, book.SchemaVersion)
		if err != nil {
			return nil, nil, err
		}
		segments = append(segments, docSegments...)
	}

	if len(segments) == 0 {
		return nil, nil, ErrNoSegments
	}

	project := &store.Project{
		ID:             uuid.New().String(),
		Title:          book.Title,
		Author:         book.Author,
		SourceBytes:    bookBytes,
		TotalSegments:  len(segments),
		SchemaVersion:  book.SchemaVersion,
		BatchCharLimit: e.segmenter.CharLimit(),
		TextAlignment:  e.cfg.TextAlignment,
		ForceAlignment: e.cfg.ForceAlignment,
	}
	return project, segments, nil
}

// Start begins scheduling from IDLE (or COMPLETED, after a retry of skipped
// segments).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateIdle, StateCompleted:
	default:
		e.mu.Unlock()
		return fmt.Errorf("cannot start translation from state %s", e.state)
	}
	e.state = StateTranslating
	e.startPoolLocked(ctx)
	e.mu.Unlock()

	e.hub.publishState(StateTranslating)
	e.hub.Log(LogInfo, "Translation started")
	return nil
}

// Pause stops claiming. In-flight translations complete and their results
// are written.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.state != StateTranslating {
		e.mu.Unlock()
		return fmt.Errorf("cannot pause from state %s", e.state)
	}
	e.state = StatePaused
	e.mu.Unlock()

	e.hub.publishState(StatePaused)
	e.hub.Log(LogInfo, "Translation paused")
	return nil
}

// Resume continues scheduling after a pause or a quota pause.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StatePaused, StateQuotaPaused:
	default:
		e.mu.Unlock()
		return fmt.Errorf("cannot resume from state %s", e.state)
	}
	e.state = StateTranslating
	e.startPoolLocked(ctx)
	e.mu.Unlock()

	e.hub.publishState(StateTranslating)
	e.hub.Log(LogInfo, "Translation resumed")
	return nil
}

// Wait blocks until the current worker pool drains. It returns at once when
// no pool is running.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.poolDone
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *Engine) startPoolLocked(ctx context.Context) {
	if e.poolRunning {
		return
	}
	e.poolRunning = true
	e.poolDone = make(chan struct{})
	go e.runPool(ctx, e.poolDone)
}

func (e *Engine) runPool(ctx context.Context, done chan struct{}) {
	defer close(done)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.WorkerConcurrency; i++ {
		g.Go(func() error { return e.worker(gctx) })
	}
	err := g.Wait()

	e.mu.Lock()
	e.poolRunning = false
	state := e.state
	e.mu.Unlock()

	if err != nil {
		e.setState(StateError)
		e.hub.Log(LogError, fmt.Sprintf("Worker pool aborted: %v", err))
		return
	}

	if state != StateTranslating {
		// Paused or quota-paused while draining; leave that state alone.
		return
	}

	stats, serr := e.store.Stats(context.Background())
	if serr != nil {
		e.setState(StateError)
		e.hub.Log(LogError, fmt.Sprintf("Failed to read stats after drain: %v", serr))
		return
	}

	if stats.Total > 0 && stats.Translated == stats.Total {
		e.setState(StateCompleted)
		e.hub.Log(LogSuccess, "Translation completed")
	} else {
		// Drained with skipped or failed segments left over.
		e.setState(StateIdle)
		e.hub.Log(LogWarning, fmt.Sprintf("Queue drained: %d of %d translated, %d skipped",
			stats.Translated, stats.Total, stats.Skipped))
	}
	e.publishStats(context.Background())
}

// worker claims, translates and records one segment per iteration until the
// queue drains or the engine leaves TRANSLATING.
func (e *Engine) worker(ctx context.Context) error {
	for {
		if e.State() != StateTranslating {
			return nil
		}

		seg, err := e.store.ClaimNext(ctx)
		if err != nil {
			return fmt.Errorf("claim failed: %w", err)
		}
		if seg == nil {
			return nil
		}
		e.hub.publishSegment(*seg)

		translated, terr := e.translator.Translate(ctx, seg.OriginalHTML)
		if terr == nil {
			if err := e.store.CompleteSegment(ctx, seg.ID, translated); err != nil {
				return err
			}
			e.hub.Log(LogSuccess, fmt.Sprintf("Translated segment %s", seg.ID))
		} else if translator.IsQuota(terr) {
			if _, err := e.store.FailSegment(ctx, seg.ID, terr.Error(), true, e.cfg.MaxRetries); err != nil {
				return err
			}
			e.quotaPause()
			e.hub.Log(LogWarning, fmt.Sprintf("Quota exhausted on segment %s; pausing", seg.ID))
		} else {
			status, err := e.store.FailSegment(ctx, seg.ID, terr.Error(), false, e.cfg.MaxRetries)
			if err != nil {
				return err
			}
			level := LogWarning
			if status == segment.StatusSkipped {
				level = LogError
			}
			e.hub.Log(level, fmt.Sprintf("Segment %s failed (%s): %v", seg.ID, status, terr))
		}

		e.publishSegmentUpdate(ctx, seg.ID)
		e.publishStats(ctx)
	}
}

// quotaPause flips TRANSLATING to QUOTA_PAUSED exactly once; later quota
// failures from other in-flight workers are no-ops.
func (e *Engine) quotaPause() {
	e.mu.Lock()
	if e.state != StateTranslating {
		e.mu.Unlock()
		return
	}
	e.state = StateQuotaPaused
	e.mu.Unlock()
	e.hub.publishState(StateQuotaPaused)
}

func (e *Engine) publishSegmentUpdate(ctx context.Context, id string) {
	if seg, err := e.store.GetSegment(ctx, id); err == nil {
		e.hub.publishSegment(*seg)
	}
}

func (e *Engine) publishStats(ctx context.Context) {
	if stats, err := e.store.Stats(ctx); err == nil {
		e.hub.publishStats(stats)
	}
}

// RetrySkipped resets every SKIPPED segment to PENDING with retry count 0.
func (e *Engine) RetrySkipped(ctx context.Context) (int, error) {
	n, err := e.store.RetrySkipped(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.hub.Log(LogInfo, fmt.Sprintf("Reset %d skipped segments", n))
		e.publishStats(ctx)
	}
	return n, nil
}

// Stats returns the segment counters.
func (e *Engine) Stats(ctx context.Context) (store.Stats, error) {
	return e.store.Stats(ctx)
}

// Segments returns the full segment list.
func (e *Engine) Segments(ctx context.Context) ([]segment.Segment, error) {
	return e.store.ListSegments(ctx)
}

// Project returns the current project record.
func (e *Engine) Project(ctx context.Context) (*store.Project, error) {
	return e.store.GetProject(ctx)
}

// UpdateProject mutates the user-editable project fields.
func (e *Engine) UpdateProject(ctx context.Context, translatedTitle string, cover []byte, alignment string, force bool) error {
	return e.store.UpdateProjectSettings(ctx, translatedTitle, cover, alignment, force)
}

// Backup packages the project and its segments into a portable bundle.
func (e *Engine) Backup(ctx context.Context) ([]byte, error) {
	project, err := e.store.GetProject(ctx)
	if err != nil {
		return nil, err
	}
	segments, err := e.store.ListSegments(ctx)
	if err != nil {
		return nil, err
	}
	return backup.Write(project, segments)
}

// Restore wipes the store and loads the bundle's project and segments. A
// malformed bundle fails before anything is written.
func (e *Engine) Restore(ctx context.Context, data []byte) error {
	bundle, err := backup.Read(data)
	if err != nil {
		return err
	}
	if err := e.store.ImportProject(ctx, bundle.Project, bundle.Segments); err != nil {
		return fmt.Errorf("failed to load bundle: %w", err)
	}
	e.setState(StateIdle)
	e.hub.Log(LogSuccess, fmt.Sprintf("Restored project %q (%d segments, %d translated)",
		bundle.Project.Title, bundle.Project.TotalSegments, bundle.Project.TranslatedSegments))
	e.publishStats(ctx)
	return nil
}

// Export reassembles the archive with every TRANSLATED segment spliced in.
func (e *Engine) Export(ctx context.Context) ([]byte, error) {
	project, err := e.store.GetProject(ctx)
	if err != nil {
		return nil, err
	}
	segments, err := e.store.ListSegments(ctx)
	if err != nil {
		return nil, err
	}
	return e.assembler.Assemble(project, segments, assemble.Options{
		Language:  e.cfg.TargetLanguage,
		Direction: e.cfg.TargetDirection,
	})
}
