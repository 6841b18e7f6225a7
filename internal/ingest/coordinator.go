// Package ingest drives one pass over the archive: walk, route, parse,
// normalize, write and record every artifact, then resolve votes.
package ingest

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/congress-cli/internal/archive"
	"github.com/sells-group/congress-cli/internal/config"
	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/normalize"
	"github.com/sells-group/congress-cli/internal/parse"
	"github.com/sells-group/congress-cli/internal/resilience"
	"github.com/sells-group/congress-cli/internal/resolve"
	"github.com/sells-group/congress-cli/internal/router"
	"github.com/sells-group/congress-cli/internal/store"
	"github.com/sells-group/congress-cli/internal/writer"
)

// CheckpointName is the checkpoint slot used by ingestion runs.
const CheckpointName = "ingest"

// recordTimeout bounds the final record write of an artifact whose own
// deadline already expired.
const recordTimeout = 10 * time.Second

// ErrSystemic marks a run that could not do its job at all: the archive
// root was unreadable, or a supported era produced nothing but failures
// (see Summary.DeadEras).
var ErrSystemic = eris.New("ingest: systemic failure")

// Options select what one run covers.
type Options struct {
	// Root overrides archive.root.
	Root string
	// Resume skips artifacts whose last attempt succeeded on the same file.
	Resume bool
	// FromCheckpoint starts the walk after the saved checkpoint.
	FromCheckpoint bool
	// Congresses restricts the run. Empty means all.
	Congresses []int
	// Concurrency overrides ingest.concurrency when positive.
	Concurrency int
	// SkipResolve leaves vote links untouched.
	SkipResolve bool
	// Recheck rewrites unchanged vote links in the resolution pass.
	Recheck bool
}

// Coordinator runs ingestion passes.
type Coordinator struct {
	cfg      *config.Config
	st       store.Store
	table    *router.Table
	parsers  *parse.Registry
	writer   *writer.Writer
	ready    *archive.Readiness
	resolver *resolve.Resolver
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time
}

// New wires a coordinator. The era table must only name registered parser
// variants.
func New(cfg *config.Config, st store.Store, table *router.Table, parsers *parse.Registry) (*Coordinator, error) {
	if err := table.Validate(parsers.Known); err != nil {
		return nil, eris.Wrap(err, "ingest: era table")
	}
	return &Coordinator{
		cfg:      cfg,
		st:       st,
		table:    table,
		parsers:  parsers,
		writer:   writer.New(st, cfg.Ingest.WriteAttempts),
		ready:    archive.NewReadiness(cfg.Archive.Settle(), cfg.Archive.StableInterval()),
		resolver: resolve.New(st, cfg.Resolve),
		metrics:  NewMetrics(),
		log:      zap.L().With(zap.String("component", "ingest")),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Metrics returns the coordinator's collectors.
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

// Run performs one pass. Per-artifact failures are recorded and counted;
// only systemic breakage or cancellation is returned as an error.
func (c *Coordinator) Run(ctx context.Context, opts Options) (*Summary, error) {
	root := opts.Root
	if root == "" {
		root = c.cfg.Archive.Root
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = c.cfg.Ingest.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	sum := newSummary(uuid.NewString(), c.now())
	sum.deadAfter = c.cfg.Ingest.SystemicMinAttempts
	log := c.log.With(zap.String("run_id", sum.RunID))

	run := &model.IngestRun{ID: sum.RunID, StartedAt: sum.StartedAt, Status: model.RunRunning, Root: root, Resume: opts.Resume}
	if err := c.st.StartRun(ctx, run); err != nil {
		return nil, err
	}

	runErr := c.run(ctx, root, concurrency, opts, sum, log)

	sum.Duration = c.now().Sub(sum.StartedAt)
	done := c.now()
	run.CompletedAt = &done
	run.Status = model.RunComplete
	if runErr != nil {
		run.Status = model.RunFailed
		run.Error = runErr.Error()
	}
	run.Summary = sum.AsMap()
	c.metrics.runs.WithLabelValues(string(run.Status)).Inc()

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := c.st.FinishRun(finishCtx, run); err != nil {
		log.Error("ingest: finish run", zap.Error(err))
	}
	if path := c.cfg.Metrics.Textfile; path != "" {
		if err := c.metrics.WriteTextfile(path); err != nil {
			log.Warn("ingest: metrics textfile", zap.Error(err))
		}
	}

	log.Info("ingestion run finished",
		zap.String("status", string(run.Status)),
		zap.Int("seen", sum.Seen),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
		zap.Duration("duration", sum.Duration),
	)
	return sum, runErr
}

func (c *Coordinator) run(ctx context.Context, root string, concurrency int, opts Options, sum *Summary, log *zap.Logger) error {
	var from model.Checkpoint
	if opts.FromCheckpoint {
		cp, err := c.st.LoadCheckpoint(ctx, CheckpointName)
		if err != nil {
			return err
		}
		from = cp
		if !from.IsZero() {
			log.Info("starting from checkpoint", zap.Int64("ordinal", from.Ordinal), zap.String("artifact", from.ArtifactKey))
		}
	}

	var limiter *rate.Limiter
	if perSec := c.cfg.Ingest.MaxArtifactsPerSec; perSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}

	walker := archive.NewWalker(root)
	descs, walkErrs := walker.Walk(ctx, from)
	mark := newWatermark(from.Ordinal)
	every := c.cfg.Ingest.CheckpointEvery

	var g errgroup.Group
	g.SetLimit(concurrency)

	finished := 0
	cancelled := false
	for d := range descs {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if len(opts.Congresses) > 0 && !slices.Contains(opts.Congresses, d.Congress) {
			sum.filtered()
			mark.done(d)
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				cancelled = true
				break
			}
		}

		g.Go(func() error {
			// Nothing new starts once the run is cancelled.
			if ctx.Err() != nil {
				return nil
			}
			sum.seen(d)
			// An artifact still being written holds the mark back so a
			// checkpointed run revisits it.
			if c.processArtifact(ctx, d, opts, sum) {
				mark.done(d)
			}
			return nil
		})

		finished++
		if every > 0 && finished%every == 0 {
			c.saveCheckpoint(ctx, mark, sum, log)
		}
	}
	if cancelled {
		// Drain so the walker goroutine exits.
		for range descs {
		}
	}
	_ = g.Wait()

	stats := walker.Stats()
	sum.Unrecognized = stats.Unrecognized
	sum.Unreadable = stats.Unreadable

	var walkErr error
	for err := range walkErrs {
		walkErr = err
	}

	if cancelled || ctx.Err() != nil {
		c.saveCheckpoint(context.WithoutCancel(ctx), mark, sum, log)
		return eris.Wrap(ctx.Err(), "ingest: run cancelled")
	}
	if walkErr != nil {
		c.saveCheckpoint(ctx, mark, sum, log)
		return eris.Wrapf(ErrSystemic, "walk %s: %v", root, walkErr)
	}

	// The whole tree was walked; the next checkpointed run starts over.
	if err := c.st.SaveCheckpoint(ctx, CheckpointName, model.Checkpoint{}); err != nil {
		log.Warn("ingest: clear checkpoint", zap.Error(err))
	}

	if !opts.SkipResolve {
		for _, congress := range sum.Congresses() {
			res, err := c.resolver.Run(ctx, congress, resolve.Options{Recheck: opts.Recheck})
			if err != nil {
				log.Error("ingest: resolution pass", zap.Int("congress", congress), zap.Error(err))
				continue
			}
			sum.Resolution = append(sum.Resolution, *res)
		}
	}

	if dead := sum.DeadEras(); len(dead) > 0 {
		return eris.Wrapf(ErrSystemic, "no artifact succeeded in eras %v", dead)
	}
	return nil
}

func (c *Coordinator) saveCheckpoint(ctx context.Context, mark *watermark, sum *Summary, log *zap.Logger) {
	cp, moved := mark.checkpoint()
	if !moved {
		return
	}
	if err := c.st.SaveCheckpoint(ctx, CheckpointName, cp); err != nil {
		mark.retry()
		log.Warn("ingest: save checkpoint", zap.Error(err))
		return
	}
	sum.mu.Lock()
	sum.Checkpoint = &cp
	sum.mu.Unlock()
}

// processArtifact handles one descriptor end to end and reports whether it
// settled. It never returns an error: every failure ends up in the
// artifact's ingestion record.
func (c *Coordinator) processArtifact(parent context.Context, d model.Descriptor, opts Options, sum *Summary) bool {
	start := time.Now()
	defer func() {
		c.metrics.duration.WithLabelValues(string(d.Kind)).Observe(time.Since(start).Seconds())
	}()

	// In-flight artifacts finish after cancellation; the deadline still applies.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.Ingest.ArtifactTimeout())
	defer cancel()

	log := c.log.With(zap.String("artifact", d.Key()))
	at := attempt{d: d, runID: sum.RunID, attempts: 1}

	prev, err := c.st.GetArtifact(ctx, d.Key())
	if err != nil {
		c.fail(ctx, at, err, sum, log)
		return true
	}
	if prev != nil {
		at.attempts = prev.Attempts + 1
		at.prevHash = prev.ContentHash
	}
	if d.Missing {
		c.fail(ctx, at, resilience.Newf(resilience.MissingArtifact, "ingest: walk", "%s is absent", d.Path), sum, log)
		return true
	}

	d, ready, err := c.ready.Ready(ctx, d)
	at.d = d
	if err != nil {
		c.fail(ctx, at, err, sum, log)
		return true
	}
	if !ready {
		// Pending until it settles; a resumed run picks it up again.
		if err := c.writer.Record(ctx, at.record(model.ArtifactPending, c.now())); err != nil {
			log.Error("ingest: record pending", zap.Error(err))
		}
		sum.notReady(d)
		c.metrics.artifacts.WithLabelValues(string(d.Kind), "not_ready", "").Inc()
		log.Debug("artifact still being written")
		return false
	}

	era, eraErr := c.table.Select(d.Kind, d.Congress)
	if era.Variant != "" {
		at.eraID = era.ID()
	}

	if opts.Resume && Decide(prev, d) == DecideSkip {
		sum.skipped(d, at.eraID)
		c.metrics.artifacts.WithLabelValues(string(d.Kind), "skipped", "").Inc()
		return true
	}

	if at.eraID != "" {
		sum.attempted(at.eraID, era.Supported())
	}
	if eraErr != nil {
		c.fail(ctx, at, eraErr, sum, log)
		return true
	}

	rec := at.record(model.ArtifactPending, c.now())
	if err := c.writer.Record(ctx, rec); err != nil {
		c.fail(ctx, at, err, sum, log)
		return true
	}

	hash, outcome, err := c.ingest(ctx, d, era)
	if err != nil {
		c.fail(ctx, at, err, sum, log)
		return true
	}

	rec.Status = model.ArtifactSucceeded
	rec.Outcome = outcome
	rec.ContentHash = hash
	if err := c.writer.Record(ctx, rec); err != nil {
		// The entity is committed; the next resume reprocesses this artifact
		// and finds it unchanged.
		log.Error("ingest: record success", zap.Error(err))
	}
	sum.succeeded(d, at.eraID, outcome)
	c.metrics.artifacts.WithLabelValues(string(d.Kind), string(model.ArtifactSucceeded), string(outcome)).Inc()
	return true
}

// attempt is the bookkeeping of one artifact within a run.
type attempt struct {
	d        model.Descriptor
	runID    string
	eraID    string
	attempts int
	// prevHash is the content hash of the last successful parse. Pending and
	// failed records keep it.
	prevHash string
}

func (a attempt) record(status model.ArtifactStatus, at time.Time) model.ArtifactRecord {
	rec := model.NewArtifactRecord(a.d)
	rec.ContentHash = a.prevHash
	rec.Status = status
	rec.Attempts = a.attempts
	rec.LastAttemptAt = at
	rec.RunID = a.runID
	return rec
}

// ingest runs read, parse, normalize and write for one ready artifact.
func (c *Coordinator) ingest(ctx context.Context, d model.Descriptor, era router.Era) (string, model.Outcome, error) {
	data, err := archive.ReadArtifact(d.Path)
	if err != nil {
		return "", "", err
	}
	if err := ctx.Err(); err != nil {
		return "", "", resilience.New(resilience.Timeout, "ingest: read", err)
	}

	p, err := c.parsers.Get(era.Variant)
	if err != nil {
		return "", "", resilience.New(resilience.UnsupportedFormatEra, "ingest: parser", err)
	}
	rec, err := p.Parse(ctx, parse.Input{Descriptor: d, Data: data})
	if err != nil {
		return "", "", err
	}

	entity, err := normalize.Entity(d, rec)
	if err != nil {
		return "", "", err
	}
	outcome, err := c.writer.Upsert(ctx, entity)
	if err != nil {
		return "", "", err
	}
	return rec.ContentHash(), outcome, nil
}

func (c *Coordinator) fail(ctx context.Context, at attempt, cause error, sum *Summary, log *zap.Logger) {
	kind := resilience.KindOf(cause)
	if kind == resilience.Internal && ctx.Err() != nil {
		kind = resilience.Timeout
	}

	rec := at.record(model.ArtifactFailed, c.now())
	rec.ErrorKind = string(kind)
	rec.ErrorDetail = cause.Error()

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := c.writer.Record(recCtx, rec); err != nil {
		log.Error("ingest: record failure", zap.Error(err))
	}

	sum.failed(at.d, at.eraID, kind)
	c.metrics.artifacts.WithLabelValues(string(at.d.Kind), string(model.ArtifactFailed), "").Inc()
	c.metrics.failures.WithLabelValues(string(at.d.Kind), string(kind)).Inc()
	log.Warn("artifact failed", zap.String("error_kind", string(kind)), zap.Error(cause))
}
