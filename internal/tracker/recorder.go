package tracker

import (
	"context"
	"log/slog"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/telemetry"
)

const (
	rollupChanSize   = 1000
	rollupFlushEvery = 5 * time.Second
)

// Rollup is one finished request's contribution to the usage metrics.
type Rollup struct {
	Model   string
	Status  gateway.RequestStatus
	Tokens  int
	Credits int64
}

// Recorder buffers rollups off the request path and flushes aggregates to
// the metrics and the log on a timer. Record never blocks; rollups are
// dropped when the channel is full.
type Recorder struct {
	ch     chan Rollup
	logger *slog.Logger
	prom   *telemetry.Metrics
}

// NewRecorder returns a Recorder; run it as a worker.
func NewRecorder(logger *slog.Logger, prom *telemetry.Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		ch:     make(chan Rollup, rollupChanSize),
		logger: logger,
		prom:   prom,
	}
}

// Name returns the worker identifier.
func (r *Recorder) Name() string { return "tracker_recorder" }

// Record enqueues one rollup. It never blocks; drops on full channel.
func (r *Recorder) Record(u Rollup) {
	select {
	case r.ch <- u:
	default:
		r.logger.Warn("tracker rollup dropped, channel full")
	}
	if r.prom != nil {
		r.prom.TrackerQueueLen.Set(float64(len(r.ch)))
	}
}

type rollupAgg struct {
	completed int64
	failed    int64
	tokens    int64
	credits   int64
}

// Run aggregates rollups until ctx is cancelled, flushing every interval.
// A final flush covers whatever is buffered at shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(rollupFlushEvery)
	defer ticker.Stop()

	agg := make(map[string]*rollupAgg)

	for {
		select {
		case u := <-r.ch:
			r.apply(agg, u)

		case <-ticker.C:
			r.flush(ctx, agg)
			clear(agg)

		case <-ctx.Done():
			for {
				select {
				case u := <-r.ch:
					r.apply(agg, u)
					continue
				default:
				}
				break
			}
			r.flush(context.WithoutCancel(ctx), agg)
			return nil
		}
	}
}

func (r *Recorder) apply(agg map[string]*rollupAgg, u Rollup) {
	a := agg[u.Model]
	if a == nil {
		a = &rollupAgg{}
		agg[u.Model] = a
	}
	if u.Status == gateway.StatusCompleted {
		a.completed++
	} else {
		a.failed++
	}
	a.tokens += int64(u.Tokens)
	a.credits += u.Credits
	if r.prom != nil {
		r.prom.TrackerQueueLen.Set(float64(len(r.ch)))
	}
}

func (r *Recorder) flush(ctx context.Context, agg map[string]*rollupAgg) {
	for model, a := range agg {
		if r.prom != nil && a.tokens > 0 {
			r.prom.TokensProcessed.WithLabelValues(model, "total").Add(float64(a.tokens))
		}
		r.logger.LogAttrs(ctx, slog.LevelDebug, "usage rollup",
			slog.String("model", model),
			slog.Int64("completed", a.completed),
			slog.Int64("failed", a.failed),
			slog.Int64("tokens", a.tokens),
			slog.Int64("credits", a.credits),
		)
	}
}
