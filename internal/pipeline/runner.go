// Package pipeline runs one harvest per session: fetch the index, extract
// candidates, parse them with the session's layout, normalize, deduplicate
// and write the snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/extract"
	"github.com/JakeFAU/inc-submissions-harvester/internal/langdetect"
	"github.com/JakeFAU/inc-submissions-harvester/internal/layout"
	"github.com/JakeFAU/inc-submissions-harvester/internal/metrics"
	"github.com/JakeFAU/inc-submissions-harvester/internal/snapshot"
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
	"github.com/JakeFAU/inc-submissions-harvester/internal/taxonomy"
)

// Candidate orders are composite: source index, then contact-group index,
// then in-page position.
const (
	groupStride  = 1 << 20
	sourceStride = 1 << 40
)

func sourceOffset(i int) int64 { return int64(i) * sourceStride }

func groupOffset(i int) int64 { return int64(i) * groupStride }

const defaultRecentRuns = 50

// Source is one index page contributing to a session.
type Source struct {
	URL                    string
	DocumentType           string
	Groups                 []string
	GroupPattern           *regexp.Regexp
	PreventDuplicateGroups bool
	// ContactGroups treats URL as a contact-group index whose sub-pages carry
	// field blocks.
	ContactGroups bool
}

// Session is the per-session configuration a run consumes. Sources are
// harvested in order and share one snapshot.
type Session struct {
	ID      string
	Layout  layout.Kind
	Sources []Source
}

// Deps are the collaborators a Runner needs. Runs and Detector are optional.
type Deps struct {
	Fetcher    submission.Fetcher
	Normalizer *taxonomy.Normalizer
	Writer     *snapshot.Writer
	Runs       submission.RunStore
	Clock      submission.Clock
	IDs        submission.IDGenerator
	Detector   *langdetect.Detector
	Logger     *zap.Logger
}

// Runner executes session harvests.
type Runner struct {
	deps Deps
	pool *ants.Pool

	mu     sync.RWMutex
	recent []submission.RunRecord
}

// NewRunner validates deps and sizes the contact-group pool. A concurrency
// below 2 fetches sub-pages sequentially.
func NewRunner(deps Deps, concurrency int) (*Runner, error) {
	if deps.Fetcher == nil || deps.Normalizer == nil || deps.Writer == nil {
		return nil, errors.New("fetcher, normalizer and writer are required")
	}
	if deps.Clock == nil || deps.IDs == nil {
		return nil, errors.New("clock and id generator are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("pipeline")
	r := &Runner{deps: deps}
	if concurrency > 1 {
		pool, err := ants.NewPool(concurrency)
		if err != nil {
			return nil, fmt.Errorf("create worker pool: %w", err)
		}
		r.pool = pool
	}
	return r, nil
}

// Release frees the worker pool.
func (r *Runner) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}

// Recent returns the latest run summaries, newest first.
func (r *Runner) Recent() []submission.RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]submission.RunRecord, len(r.recent))
	for i, run := range r.recent {
		out[len(r.recent)-1-i] = run
	}
	return out
}

// RunAll harvests sessions one after another. A failed session does not
// stop the rest.
func (r *Runner) RunAll(ctx context.Context, sessions []Session) []submission.RunRecord {
	runs := make([]submission.RunRecord, 0, len(sessions))
	for _, s := range sessions {
		if ctx.Err() != nil {
			break
		}
		run, err := r.Run(ctx, s)
		if err != nil {
			r.deps.Logger.Error("session run failed", zap.String("session", s.ID), zap.Error(err))
		}
		runs = append(runs, run)
	}
	return runs
}

// Run harvests one session and records its summary. The returned error is
// non-nil only when the session aborted before writing a snapshot.
func (r *Runner) Run(ctx context.Context, s Session) (submission.RunRecord, error) {
	started := r.deps.Clock.Now()
	id, err := r.deps.IDs.NewID()
	if err != nil {
		return submission.RunRecord{}, fmt.Errorf("run id: %w", err)
	}
	run := submission.RunRecord{ID: id, Session: s.ID, StartedAt: started}
	logger := r.deps.Logger.With(zap.String("session", s.ID), zap.String("run_id", id))
	logger.Info("session run started", zap.Int("sources", len(s.Sources)), zap.String("layout", string(s.Layout)))

	runErr := r.harvest(ctx, s, &run, logger)
	run.FinishedAt = r.deps.Clock.Now()
	if runErr != nil {
		run.Status = submission.RunFailed
		run.Error = runErr.Error()
	} else {
		run.Status = submission.RunSucceeded
	}
	metrics.ObserveRun(s.ID, string(run.Status), run.FinishedAt.Sub(started))
	r.remember(run)

	if r.deps.Runs != nil {
		if err := r.deps.Runs.RecordRun(ctx, run); err != nil {
			logger.Error("record run failed", zap.Error(err))
		}
	}
	logger.Info("session run finished",
		zap.String("status", string(run.Status)),
		zap.Int("candidates", run.Candidates),
		zap.Int("records", run.Records),
		zap.Int("failures", run.Failures),
		zap.Duration("duration", run.FinishedAt.Sub(started)),
	)
	return run, runErr
}

type pending struct {
	candidate    submission.RawCandidate
	documentType string
}

func (r *Runner) harvest(ctx context.Context, s Session, run *submission.RunRecord, logger *zap.Logger) error {
	parser, err := layout.New(s.Layout)
	if err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}
	if len(s.Sources) == 0 {
		return fmt.Errorf("session %s has no sources", s.ID)
	}

	var work []pending
	for i, src := range s.Sources {
		candidates, err := r.sourceCandidates(ctx, src, logger)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			c.Order += sourceOffset(i)
			work = append(work, pending{candidate: c, documentType: src.DocumentType})
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}
	run.Candidates = len(work)
	metrics.ObserveCandidates(s.ID, len(work))

	now := r.deps.Clock.Now()
	records := make([]submission.NormalizedSubmission, 0, len(work))
	for _, w := range work {
		c := w.candidate
		md, err := parser.Parse(c, w.documentType)
		if err != nil {
			run.Failures++
			metrics.ObserveParseFailure(s.ID, string(s.Layout))
			logger.Warn("parse candidate failed", zap.String("url", c.Href), zap.String("page", c.PageURL), zap.Error(err))
			continue
		}
		md.CreatedAt = now
		md.Order = c.Order
		md.Languages = r.deps.Detector.Fill(md.Languages, md.Description, c.LinkText)
		rec, _ := r.deps.Normalizer.Normalize(md, s.ID)
		records = append(records, rec)
	}

	snap := snapshot.Finalize(s.ID, records, now)
	uri, digest, err := r.deps.Writer.Write(ctx, snap)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	run.Records = len(snap.Submissions)
	run.SnapshotURI = uri
	run.SnapshotSHA256 = digest
	metrics.ObserveRecordsWritten(s.ID, run.Records)
	return nil
}

// sourceCandidates fetches one index page. Failing to fetch it aborts the
// session.
func (r *Runner) sourceCandidates(ctx context.Context, src Source, logger *zap.Logger) ([]submission.RawCandidate, error) {
	index, err := r.deps.Fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", src.URL, err)
	}
	pageURL := index.URL
	if pageURL == "" {
		pageURL = src.URL
	}
	var candidates []submission.RawCandidate
	if src.ContactGroups {
		candidates, err = r.contactGroupCandidates(ctx, index.Body, pageURL, logger)
	} else {
		candidates, err = extract.Candidates(index.Body, pageURL, extract.Options{
			IncludeGroups:          src.Groups,
			GroupPattern:           src.GroupPattern,
			PreventDuplicateGroups: src.PreventDuplicateGroups,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	logger.Debug("source extracted", zap.String("url", pageURL), zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// contactGroupCandidates fetches every contact-group sub-page and returns
// their field-block candidates ordered by group then position. Sub-page
// failures are logged and skipped.
func (r *Runner) contactGroupCandidates(ctx context.Context, page []byte, pageURL string, logger *zap.Logger) ([]submission.RawCandidate, error) {
	groups, skipped, err := extract.ContactGroups(page, pageURL)
	if err != nil {
		return nil, err
	}
	for _, text := range skipped {
		logger.Warn("contact group without link", zap.String("group", text))
	}

	results := make([][]submission.RawCandidate, len(groups))
	var wg sync.WaitGroup
	for i, g := range groups {
		task := func() {
			defer wg.Done()
			results[i] = r.groupCandidates(ctx, g, logger)
		}
		wg.Add(1)
		if r.pool == nil {
			task()
			continue
		}
		if err := r.pool.Submit(task); err != nil {
			wg.Done()
			logger.Error("submit contact group failed", zap.String("group", g.Text), zap.Error(err))
		}
	}
	wg.Wait()

	var out []submission.RawCandidate
	for _, batch := range results {
		out = append(out, batch...)
	}
	return out, nil
}

func (r *Runner) groupCandidates(ctx context.Context, g submission.ContactGroup, logger *zap.Logger) []submission.RawCandidate {
	page, err := r.deps.Fetcher.Fetch(ctx, g.URL)
	if err != nil {
		logger.Warn("fetch contact group failed", zap.String("group", g.Text), zap.String("url", g.URL), zap.Error(err))
		return nil
	}
	candidates, err := extract.FieldBlocks(page.Body, g.URL, g.Text)
	if err != nil {
		logger.Warn("contact group skipped", zap.String("group", g.Text), zap.String("url", g.URL), zap.Error(err))
		return nil
	}
	for i := range candidates {
		candidates[i].Order += groupOffset(g.Index)
	}
	return candidates
}

func (r *Runner) remember(run submission.RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent = append(r.recent, run)
	if len(r.recent) > defaultRecentRuns {
		r.recent = r.recent[len(r.recent)-defaultRecentRuns:]
	}
}
