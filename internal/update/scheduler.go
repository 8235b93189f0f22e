// Package update is the default cooperative update loop for model trees:
// it collects update requests from mounted roots and flushes them in
// coalesced passes.
package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentic-research/fastener/internal/fastener"
	"github.com/agentic-research/fastener/internal/model"
)

// ErrNotQuiescent is returned by Flush when work remains after MaxPasses.
var ErrNotQuiescent = errors.New("update did not settle")

const tracerName = "github.com/agentic-research/fastener/internal/update"

// Stats summarizes a Flush.
type Stats struct {
	Passes    int
	Recohered int
}

// Scheduler implements model.UpdateHost. It is single-threaded: requests,
// attach and flush must come from the goroutine driving the tree.
type Scheduler struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	start   time.Time
	last    int64
	pending []*model.Model
	flags   map[*model.Model]fastener.UpdateFlags
}

var _ model.UpdateHost = (*Scheduler)(nil)

// New returns a scheduler configured by cfg.
func New(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "update"),
		metrics: NewMetrics(cfg.Registerer),
		tracer:  cfg.TracerProvider.Tracer(tracerName),
		start:   time.Now(),
		flags:   make(map[*model.Model]fastener.UpdateFlags),
	}
}

// Metrics returns the scheduler's collectors.
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// Attach makes s the update host of root and mounts it.
func (s *Scheduler) Attach(root *model.Model) error {
	if root.Parent() != nil {
		return fmt.Errorf("attach %s: %w", root.Key(), model.ErrAttached)
	}
	root.SetUpdateHost(s)
	if root.Mounted() {
		if root.NeedsUpdate() {
			s.RequireUpdate(root, fastener.NeedsRecohere)
		}
		return nil
	}
	return root.Mount()
}

// Detach unmounts root and drops its pending work.
func (s *Scheduler) Detach(root *model.Model) error {
	if err := root.Unmount(); err != nil {
		return err
	}
	root.SetUpdateHost(nil)
	if _, ok := s.flags[root]; ok {
		delete(s.flags, root)
		s.pending = slices.DeleteFunc(s.pending, func(m *model.Model) bool { return m == root })
	}
	return nil
}

// RequireUpdate queues root for the next pass.
func (s *Scheduler) RequireUpdate(root *model.Model, flags fastener.UpdateFlags) {
	s.metrics.Requests.Inc()
	if prev, ok := s.flags[root]; ok {
		s.flags[root] = prev | flags
		return
	}
	s.flags[root] = flags
	s.pending = append(s.pending, root)
}

// Pending reports whether a pass is due.
func (s *Scheduler) Pending() bool {
	return len(s.pending) > 0
}

// Flush runs passes until no root requests more work, at most MaxPasses
// times. The context is checked between passes.
func (s *Scheduler) Flush(ctx context.Context) (Stats, error) {
	var stats Stats
	for s.Pending() {
		if stats.Passes >= s.cfg.MaxPasses {
			s.metrics.NotQuiescent.Inc()
			s.logger.Warn("update did not settle", "passes", stats.Passes, "roots", len(s.pending))
			return stats, fmt.Errorf("after %d passes: %w", stats.Passes, ErrNotQuiescent)
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Recohered += s.pass(ctx)
		stats.Passes++
	}
	return stats, nil
}

// now returns a strictly increasing timestamp in nanoseconds since the
// scheduler was created.
func (s *Scheduler) now() int64 {
	t := time.Since(s.start).Nanoseconds()
	if t <= s.last {
		t = s.last + 1
	}
	s.last = t
	return t
}

func (s *Scheduler) pass(ctx context.Context) int {
	id := uuid.New()
	t := s.now()
	roots := s.pending
	s.pending = nil
	clear(s.flags)

	_, span := s.tracer.Start(ctx, "update.pass", trace.WithAttributes(
		attribute.String("pass.id", id.String()),
		attribute.Int64("pass.time", t),
		attribute.Int("pass.roots", len(roots)),
	))
	defer span.End()

	began := time.Now()
	n := 0
	for _, root := range roots {
		if root.Mounted() {
			n += root.RecohereFasteners(t)
		}
	}
	elapsed := time.Since(began)

	span.SetAttributes(attribute.Int("pass.recohered", n))
	s.metrics.Passes.Inc()
	s.metrics.Recohered.Add(float64(n))
	s.metrics.PassDuration.Observe(elapsed.Seconds())
	s.logger.Debug("update pass",
		"pass_id", id.String(),
		"time", t,
		"roots", len(roots),
		"recohered", n,
		"duration", elapsed,
	)
	return n
}
