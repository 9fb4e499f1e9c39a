package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/trace"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/balancer"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/tracker"
)

// streamStallTimeout aborts a stream that stops producing chunks. Upstream
// video/reasoning models can pause between tokens; a minute covers them.
const streamStallTimeout = 60 * time.Second

// runStream drives the retry loop until an upstream stream opens, then
// relays chunks to the returned channel. The finalizer — billing, tracker,
// balancer release — runs exactly once on every exit path: normal end,
// upstream error, stall, or client cancellation.
func (d *Dispatcher) runStream(ctx context.Context, p *request, open func(context.Context, gateway.Adapter) (<-chan gateway.StreamChunk, error)) (<-chan gateway.StreamChunk, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch "+p.endpoint, trace.WithAttributes(spanAttrs(p)...))

	excluded := make(map[string]bool)
	attempt := 0
	var lastErr error

	for ; attempt < p.retries; attempt++ {
		sel, err := d.balancer.Select(balancer.SelectRequest{
			Model:           p.model,
			Capability:      p.cap,
			EstimatedTokens: p.estTokens,
			ExcludeIDs:      excluded,
		})
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		adapter, err := d.adapterFor(sel)
		if err != nil {
			lastErr = err
			exclude(excluded, sel)
			continue
		}

		subID := subProviderID(sel)
		d.balancer.RecordRequestStart(subID, p.estTokens)

		upstream, err := open(ctx, adapter)
		if err != nil {
			d.balancer.RecordRequestComplete(balancer.Outcome{
				ProviderID:    sel.Provider.ID,
				SubProviderID: subID,
				Latency:       d.now().Sub(p.start),
				ErrorMessage:  err.Error(),
			})
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			kind := balancer.ClassifyErr(err)
			if d.prom != nil {
				d.prom.UpstreamErrors.WithLabelValues(sel.Provider.Name, string(kind)).Inc()
			}
			if !errors.Is(err, gateway.ErrUnsupportedOperation) && !balancer.Retryable(kind) {
				break
			}
			exclude(excluded, sel)
			if d.prom != nil {
				d.prom.UpstreamRetries.WithLabelValues(p.endpoint).Inc()
			}
			continue
		}

		out := make(chan gateway.StreamChunk, 16)
		go d.relay(ctx, span, p, sel, attempt, upstream, out)
		return out, nil
	}

	span.End()
	d.settleFailure(ctx, p, attempt, lastErr)
	return nil, lastErr
}

// streamOutcome is what the single-shot finalizer needs to settle a stream.
type streamOutcome struct {
	err      error // nil means clean end or client cancel
	canceled bool
	usage    *gateway.Usage
	text     string // accumulated delta text for the token estimator
	sentAny  bool
	respSize int
}

// relay pumps upstream chunks to the client channel, enforcing the stall
// deadline and accumulating usage for the finalizer.
func (d *Dispatcher) relay(ctx context.Context, span trace.Span, p *request, sel *balancer.Selection, attempt int, upstream <-chan gateway.StreamChunk, out chan<- gateway.StreamChunk) {
	defer close(out)
	defer span.End()

	var o streamOutcome
	var once sync.Once
	finalize := func() {
		once.Do(func() { d.settleStream(ctx, p, sel, attempt, &o) })
	}
	defer finalize()

	stall := time.NewTimer(streamStallTimeout)
	defer stall.Stop()

	for {
		select {
		case chunk, ok := <-upstream:
			if !ok {
				return // clean end
			}
			if !stall.Stop() {
				<-stall.C
			}
			stall.Reset(streamStallTimeout)

			if chunk.Err != nil {
				o.err = chunk.Err
				select {
				case out <- chunk:
				case <-ctx.Done():
				}
				return
			}
			o.text += chunk.Text
			if chunk.Usage != nil {
				o.usage = chunk.Usage
			}
			chunk.Data = maskModel(chunk.Data, p.model)
			select {
			case out <- chunk:
				o.sentAny = true
				o.respSize += len(chunk.Data)
			case <-ctx.Done():
				o.canceled = true
				return
			}

		case <-stall.C:
			o.err = fmt.Errorf("%w: no chunk for %s", gateway.ErrTimeout, streamStallTimeout)
			select {
			case out <- gateway.StreamChunk{Err: o.err}:
			default:
			}
			return

		case <-ctx.Done():
			o.canceled = true
			return
		}
	}
}

// maskModel rewrites the chunk's model field to the catalog id. Sub-provider
// model mappings send the upstream a different name, and relayed chunks must
// not leak it back to the client.
func maskModel(data []byte, model string) []byte {
	if len(data) == 0 || model == "" {
		return data
	}
	if m := gjson.GetBytes(data, "model"); m.Exists() && m.String() != model {
		if out, err := sjson.SetBytes(data, "model", model); err == nil {
			return out
		}
	}
	return data
}

// settleStream is the stream finalizer body: balancer outcome, billing from
// observed usage, tracker close-out. Cancellation is not a provider error;
// the record completes when usage is known and fails otherwise.
func (d *Dispatcher) settleStream(ctx context.Context, p *request, sel *balancer.Selection, attempt int, o *streamOutcome) {
	ctx = context.WithoutCancel(ctx)
	latency := d.now().Sub(p.start)
	subID := subProviderID(sel)

	outcome := balancer.Outcome{
		ProviderID:    sel.Provider.ID,
		SubProviderID: subID,
		Success:       o.err == nil,
		Latency:       latency,
	}
	if o.err != nil {
		outcome.ErrorMessage = o.err.Error()
		if d.prom != nil {
			d.prom.UpstreamErrors.WithLabelValues(sel.Provider.Name, string(balancer.ClassifyErr(o.err))).Inc()
		}
	}
	d.balancer.RecordRequestComplete(outcome)
	if d.prom != nil {
		d.prom.UpstreamDuration.WithLabelValues(sel.Provider.Name, p.model).Observe(latency.Seconds())
	}

	tokens := p.estTokens
	if o.usage != nil {
		tokens = o.usage.TotalTokens
	} else if o.text != "" {
		tokens += d.tokens.CountText(p.model, o.text)
	}

	// Bill once content was delivered, whether the stream then ended,
	// stalled, or the client hung up.
	if !p.master && (o.sentAny || o.usage != nil) {
		if err := d.credits.Debit(ctx, p.user, p.model, p.cost, tokens); err != nil {
			d.logger.LogAttrs(ctx, slog.LevelError, "stream debit failed",
				slog.String("request_id", p.record.ID),
				slog.String("user_id", p.user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	switch {
	case o.err == nil && (!o.canceled || o.usage != nil):
		c := tracker.Completion{
			Tokens:        tokens,
			Credits:       p.cost,
			Latency:       latency,
			ResponseSize:  o.respSize,
			StatusCode:    200,
			ProviderID:    sel.Provider.ID,
			SubProviderID: subID,
			RetryCount:    attempt,
		}
		if err := d.tracker.Complete(ctx, p.record.ID, c); err != nil {
			d.logger.LogAttrs(ctx, slog.LevelWarn, "tracker complete failed",
				slog.String("request_id", p.record.ID),
				slog.String("error", err.Error()),
			)
		}
	case o.err == nil:
		// Canceled before usage arrived.
		if err := d.tracker.Fail(ctx, p.record.ID, 499, "client closed request", latency, attempt); err != nil {
			d.logger.LogAttrs(ctx, slog.LevelWarn, "tracker fail failed",
				slog.String("request_id", p.record.ID),
				slog.String("error", err.Error()),
			)
		}
	default:
		d.settleFailure(ctx, p, attempt, o.err)
	}
}
