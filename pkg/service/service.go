// Package service wires ingestion, resolution, execution, and composition
// into the four boundary operations of the query core.
package service

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mobilityedgeai/chatplanilha/pkg/cache"
	"github.com/mobilityedgeai/chatplanilha/pkg/compose"
	"github.com/mobilityedgeai/chatplanilha/pkg/engine"
	"github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/infrastructure/memory"
	"github.com/mobilityedgeai/chatplanilha/pkg/ingest"
	"github.com/mobilityedgeai/chatplanilha/pkg/llm"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
	"github.com/mobilityedgeai/chatplanilha/pkg/profile"
	"github.com/mobilityedgeai/chatplanilha/pkg/report"
	"github.com/mobilityedgeai/chatplanilha/pkg/resolver"
	"github.com/mobilityedgeai/chatplanilha/pkg/schema"
	"github.com/mobilityedgeai/chatplanilha/pkg/store"
)

// unavailableAnswer is returned when the model cannot be reached after
// retries. The question still lands in history so the conversation record
// stays complete.
const unavailableAnswer = "The analysis service is temporarily unavailable. Please try again in a moment."

// Options configures the core.
type Options struct {
	MaxRows        int
	IdleWindow     time.Duration
	AskTimeout     time.Duration
	MaxDisplayRows int
	Workers        int
}

// Core is the façade over the whole pipeline. All boundary operations pass
// through a weighted semaphore bounding concurrent work.
type Core struct {
	stor      *store.Store
	resolver  *resolver.Resolver
	composer  *compose.Composer
	assembler *report.Assembler
	results   *cache.ResultCache

	sem  *semaphore.Weighted
	opts Options

	logger  Logger
	metrics MetricsCollector
}

// NewCore builds the core around a model client.
func NewCore(opts Options, client llm.Client, logger Logger, metrics MetricsCollector) *Core {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxDisplayRows <= 0 {
		opts.MaxDisplayRows = engine.DefaultMaxDisplayRows
	}
	return &Core{
		stor:      store.New(opts.MaxRows, opts.IdleWindow, logger),
		resolver:  resolver.New(client, logger),
		composer:  compose.New(client, logger),
		assembler: report.New(report.Options{MaxDisplayRows: opts.MaxDisplayRows}),
		results:   cache.New(0, opts.IdleWindow),
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// Ingest parses an uploaded spreadsheet, infers its schema, and opens a
// session under the caller-supplied identifier holding the typed dataset and
// its profile. Re-ingesting under the same identifier replaces the session.
func (c *Core) Ingest(ctx context.Context, sessionID string, raw []byte, format ingest.Format) (*models.DatasetSummary, error) {
	if sessionID == "" {
		return nil, errors.New(errors.CodeInvalidRequest, "session id is required")
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, errors.CodeDeadlineExceeded, "ingest canceled while waiting for a worker")
	}
	defer c.sem.Release(1)

	timer := c.metrics.StartTimer("ingest_duration_seconds")
	defer timer.Stop()

	headers, rows, err := ingest.Parse(raw, format)
	if err != nil {
		c.metrics.IncrementCounter("ingest_errors", "stage", "parse")
		return nil, err
	}

	// The row count is known before any Arrow buffers exist. Rejecting here
	// keeps an oversized upload from being materialized just to be thrown
	// away at the store boundary.
	if ceiling := c.stor.RowCeiling(); len(rows) > ceiling {
		c.metrics.IncrementCounter("ingest_errors", "stage", "capacity")
		return nil, errors.ErrCapacityExceeded.
			WithDetail("rows", len(rows)).
			WithDetail("ceiling", ceiling)
	}

	ds, err := schema.Infer(headers, rows, schema.DefaultOptions())
	if err != nil {
		c.metrics.IncrementCounter("ingest_errors", "stage", "schema")
		return nil, err
	}

	prof := profile.Build(ds)

	sess, err := c.stor.Load(sessionID, ds, prof)
	if err != nil {
		c.metrics.IncrementCounter("ingest_errors", "stage", "capacity")
		return nil, err
	}
	// A replaced dataset invalidates any results computed for the old one.
	c.results.InvalidateSession(sessionID)

	c.metrics.IncrementCounter("ingest_total")
	c.metrics.RecordGauge("resident_sessions", float64(c.stor.Len()))
	c.metrics.RecordGauge("resident_rows", float64(c.stor.TotalRows()))
	c.metrics.RecordGauge("resident_bytes", float64(memory.Default().BytesUsed()))

	c.logger.Info("Session opened",
		"session_id", sess.ID,
		"format", string(format),
		"rows", ds.RowCount(),
		"columns", len(ds.Columns()))

	return c.summaryOf(sess), nil
}

// Ask answers one natural-language question against a session's dataset.
// Questions on the same session run one at a time; the history entry is
// appended whether the ask succeeds or not.
func (c *Core) Ask(ctx context.Context, sessionID, question string) (models.Answer, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return models.Answer{}, errors.Wrap(err, errors.CodeDeadlineExceeded, "ask canceled while waiting for a worker")
	}
	defer c.sem.Release(1)

	timer := c.metrics.StartTimer("ask_duration_seconds")
	defer timer.Stop()

	sess, err := c.stor.Get(sessionID)
	if err != nil {
		c.metrics.IncrementCounter("ask_errors", "stage", "session")
		return models.Answer{}, err
	}

	sess.LockAsk()
	defer sess.UnlockAsk()

	if c.opts.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.AskTimeout)
		defer cancel()
	}

	answer, err := c.ask(ctx, sess, question)
	sess.AppendHistory(models.HistoryEntry{
		Question: question,
		Answer:   answer,
		AskedAt:  time.Now().UTC(),
	})
	if err != nil {
		return models.Answer{}, err
	}
	return answer, nil
}

// ask runs the resolve, execute, compose pipeline. It returns a non-error
// fallback answer when only the final prose step failed, since the computed
// result is still valid.
func (c *Core) ask(ctx context.Context, sess *store.Session, question string) (models.Answer, error) {
	ds := sess.AcquireDataset()
	if ds == nil {
		return failedAnswer("session is no longer available"),
			errors.ErrSessionNotFound.WithDetail("session_id", sess.ID)
	}
	defer ds.Release()

	plan, err := c.resolver.Resolve(ctx, question, ds, sess.Profile(), sess.History())
	if err != nil {
		c.metrics.IncrementCounter("ask_errors", "stage", "resolve")
		if errors.IsExternalService(err) {
			return failedAnswer(unavailableAnswer), nil
		}
		return failedAnswer(errors.GetMessage(err)), err
	}

	// The session may have been closed or replaced while the model call was
	// in flight. The pin kept the dataset readable, but the answer would
	// describe data the caller already discarded.
	if sess.Evicted() {
		return failedAnswer("session is no longer available"),
			errors.ErrSessionNotFound.WithDetail("session_id", sess.ID)
	}

	// The dataset is immutable and execution is deterministic, so a repeated
	// plan replays its cached result.
	key := cache.Key(sess.ID, plan)
	result, ok := c.results.Get(key)
	if ok {
		c.metrics.IncrementCounter("query_cache", "outcome", "hit")
	} else {
		c.metrics.IncrementCounter("query_cache", "outcome", "miss")
		result, err = engine.Execute(plan, ds, engine.Options{MaxDisplayRows: c.opts.MaxDisplayRows})
		if err != nil {
			c.metrics.IncrementCounter("ask_errors", "stage", "execute")
			return failedAnswer(errors.GetMessage(err)), err
		}
		c.results.Put(key, result)
	}

	answer, err := c.composer.Compose(ctx, question, result)
	if err != nil {
		// The result was computed; only the prose failed. Fall back to the
		// bare table rather than discarding the work.
		c.metrics.IncrementCounter("ask_errors", "stage", "compose")
		c.logger.Warn("Answer composition failed, returning raw result",
			"session_id", sess.ID, "error", err)
		fallback := failedAnswer(unavailableAnswer)
		fallback.Result = result
		return fallback, nil
	}

	c.metrics.IncrementCounter("ask_total")
	return answer, nil
}

// AssembleReport builds the structured tables for one report type.
func (c *Core) AssembleReport(ctx context.Context, sessionID string, typ models.ReportType) (*models.ReportTables, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, errors.CodeDeadlineExceeded, "report canceled while waiting for a worker")
	}
	defer c.sem.Release(1)

	timer := c.metrics.StartTimer("report_duration_seconds")
	defer timer.Stop()

	sess, err := c.stor.Get(sessionID)
	if err != nil {
		c.metrics.IncrementCounter("report_errors", "stage", "session")
		return nil, err
	}

	ds := sess.AcquireDataset()
	if ds == nil {
		return nil, errors.ErrSessionNotFound.WithDetail("session_id", sessionID)
	}
	defer ds.Release()

	tables, err := c.assembler.Assemble(typ, ds)
	if err != nil {
		c.metrics.IncrementCounter("report_errors", "stage", "assemble")
		return nil, err
	}

	c.metrics.IncrementCounter("report_total", "type", string(typ))
	return tables, nil
}

// CloseSession evicts a session and frees its dataset. Closing an unknown or
// already closed session is a no-op.
func (c *Core) CloseSession(sessionID string) {
	c.stor.Evict(sessionID)
	c.results.InvalidateSession(sessionID)
	c.metrics.RecordGauge("resident_sessions", float64(c.stor.Len()))
	c.metrics.RecordGauge("resident_rows", float64(c.stor.TotalRows()))
	c.metrics.RecordGauge("resident_bytes", float64(memory.Default().BytesUsed()))
}

// Summary returns the dataset summary for a resident session.
func (c *Core) Summary(sessionID string) (*models.DatasetSummary, error) {
	sess, err := c.stor.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return c.summaryOf(sess), nil
}

// Profile returns the session's dataset profile text.
func (c *Core) Profile(sessionID string) (string, error) {
	sess, err := c.stor.Get(sessionID)
	if err != nil {
		return "", err
	}
	return sess.Profile(), nil
}

// History returns the session's conversation history in arrival order.
func (c *Core) History(sessionID string) ([]models.HistoryEntry, error) {
	sess, err := c.stor.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.History(), nil
}

// Close releases every session and stops background eviction.
func (c *Core) Close() {
	c.stor.Close()
}

func (c *Core) summaryOf(sess *store.Session) *models.DatasetSummary {
	ds := sess.AcquireDataset()
	if ds == nil {
		return &models.DatasetSummary{SessionID: sess.ID, LoadedAt: sess.CreatedAt}
	}
	defer ds.Release()
	return &models.DatasetSummary{
		SessionID: sess.ID,
		RowCount:  ds.RowCount(),
		Columns:   ds.Columns(),
		LoadedAt:  sess.CreatedAt,
	}
}

func failedAnswer(text string) models.Answer {
	return models.Answer{Text: text, Failed: true}
}
