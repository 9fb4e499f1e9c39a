package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/balancer"
)

// run drives the provider retry loop for a unary call. It returns the
// response, the winning selection and the zero-based attempt index.
func run[T any](ctx context.Context, d *Dispatcher, p *request, call func(context.Context, gateway.Adapter) (T, error)) (T, *balancer.Selection, int, error) {
	var zero T

	ctx, span := d.tracer.Start(ctx, "dispatch "+p.endpoint, trace.WithAttributes(spanAttrs(p)...))
	defer span.End()

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

		value, err := invoke(ctx, d, p, sel, func(ctx context.Context) (T, error) {
			return call(ctx, adapter)
		})
		if err == nil {
			return value, sel, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break // client is gone; no point retrying
		}
		kind := balancer.ClassifyErr(err)
		// Unsupported on this adapter is retryable on another; everything
		// else consults the kind table.
		if !errors.Is(err, gateway.ErrUnsupportedOperation) && !balancer.Retryable(kind) {
			break
		}
		exclude(excluded, sel)
		if d.prom != nil {
			d.prom.UpstreamRetries.WithLabelValues(p.endpoint).Inc()
		}
	}
	return zero, nil, attempt, lastErr
}

// invoke brackets one adapter call with the balancer bookkeeping.
func invoke[T any](ctx context.Context, d *Dispatcher, p *request, sel *balancer.Selection, call func(context.Context) (T, error)) (T, error) {
	subID := subProviderID(sel)
	d.balancer.RecordRequestStart(subID, p.estTokens)

	start := d.now()
	value, err := call(ctx)
	latency := d.now().Sub(start)

	o := balancer.Outcome{
		ProviderID:    sel.Provider.ID,
		SubProviderID: subID,
		Success:       err == nil,
		Latency:       latency,
		Tokens:        p.estTokens,
	}
	if err != nil {
		o.ErrorMessage = err.Error()
	}
	d.balancer.RecordRequestComplete(o)

	if d.prom != nil {
		d.prom.UpstreamDuration.WithLabelValues(sel.Provider.Name, p.model).Observe(latency.Seconds())
		if err != nil {
			d.prom.UpstreamErrors.WithLabelValues(sel.Provider.Name, string(balancer.ClassifyErr(err))).Inc()
		}
	}
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "upstream attempt failed",
			slog.String("request_id", p.record.ID),
			slog.String("provider", sel.Provider.Name),
			slog.String("sub_provider_id", subID),
			slog.String("error", err.Error()),
		)
	}
	return value, err
}

func subProviderID(sel *balancer.Selection) string {
	if sel.SubProvider != nil {
		return sel.SubProvider.ID
	}
	return ""
}

// exclude bars the failed account from the rest of the retry loop: the
// sub-provider when one was selected, otherwise the provider itself.
func exclude(excluded map[string]bool, sel *balancer.Selection) {
	if sel.SubProvider != nil {
		excluded[sel.SubProvider.ID] = true
		return
	}
	excluded[sel.Provider.ID] = true
}

// jsonSize approximates the response payload size for the tracker.
func jsonSize(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
