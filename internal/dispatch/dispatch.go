// Package dispatch orchestrates one request end to end: validation,
// content policy, request tracking, the provider retry loop, and billing.
// The server's handlers are thin wrappers over the per-endpoint methods.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/balancer"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/credit"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/discount"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/registry"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/secrets"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/security"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/storage"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/telemetry"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/tokencount"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/tracker"
)

// Retry budgets per endpoint family.
const (
	maxRetries      = 3
	maxVideoRetries = 5
)

// Config wires a Dispatcher.
type Config struct {
	Catalog   *registry.Registry
	Adapters  *provider.Registry
	Balancer  *balancer.Balancer
	Credits   *credit.Engine
	Discounts *discount.Engine
	Security  *security.Service
	Tracker   *tracker.Tracker
	Vault     *secrets.Vault
	VideoJobs storage.VideoJobStore
	// SubProviders resolves the upstream account a video job was bound to.
	SubProviders storage.SubProviderStore
	Logger       *slog.Logger
	Metrics      *telemetry.Metrics
}

// Dispatcher runs the request pipeline.
type Dispatcher struct {
	catalog      *registry.Registry
	adapters     *provider.Registry
	balancer     *balancer.Balancer
	credits      *credit.Engine
	discounts    *discount.Engine
	security     *security.Service
	tracker      *tracker.Tracker
	vault        *secrets.Vault
	videoJobs    storage.VideoJobStore
	subProviders storage.SubProviderStore
	tokens       *tokencount.Counter
	logger       *slog.Logger
	prom         *telemetry.Metrics
	tracer       trace.Tracer
	now          func() time.Time
}

// New builds a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		catalog:      cfg.Catalog,
		adapters:     cfg.Adapters,
		balancer:     cfg.Balancer,
		credits:      cfg.Credits,
		discounts:    cfg.Discounts,
		security:     cfg.Security,
		tracker:      cfg.Tracker,
		vault:        cfg.Vault,
		videoJobs:    cfg.VideoJobs,
		subProviders: cfg.SubProviders,
		tokens:       tokencount.NewCounter(),
		logger:       logger,
		prom:         cfg.Metrics,
		tracer:       telemetry.Tracer("dispatch"),
		now:          time.Now,
	}
}

// request is the shared prelude state for one dispatched call.
type request struct {
	user      *gateway.User
	master    bool
	endpoint  string
	model     string
	cap       gateway.Capability
	stream    bool
	prompt    string // moderated text, empty to skip the scan
	bodySize  int
	estTokens int
	retries   int

	cost   int64 // effective credits for this request
	record *gateway.APIRequest
	start  time.Time
}

// validate enforces the catalog checks: the model exists, serves the
// endpoint, and is open to the caller's plan or covered by a live discount.
func (d *Dispatcher) validate(ctx context.Context, p *request) error {
	if p.model == "" {
		return fmt.Errorf("%w: model is required", gateway.ErrBadRequest)
	}
	if !d.catalog.Exists(p.model) {
		return gateway.ErrModelNotFound
	}
	if !d.catalog.SupportsEndpoint(p.model, p.endpoint) {
		return gateway.ErrEndpointNotSupported
	}
	if p.stream && !d.catalog.Get(p.model).SupportsStreaming {
		return gateway.ErrStreamingNotSupported
	}
	if p.master || d.catalog.HasAccess(p.model, p.user.Plan) {
		return nil
	}
	// A live discount opens a model the plan alone would not.
	if d.discounts.HasActive(ctx, p.user.ID, p.model) {
		return nil
	}
	return gateway.ErrModelAccessDenied
}

// begin runs the pre-dispatch pipeline after validation: security scan,
// credit authorization and the tracker record. On success p.record is
// processing.
func (d *Dispatcher) begin(ctx context.Context, p *request) error {
	if p.prompt != "" {
		if a := d.security.Analyze(ctx, p.prompt, p.user.ID); a.Blocked {
			return gateway.ErrContentPolicy
		}
	}

	m := d.catalog.Get(p.model)
	p.cost = credit.Cost(m.BaseCost, m.Multiplier, d.discounts.Multiplier(ctx, p.user.ID, p.model))
	if !p.master {
		if err := d.credits.Authorize(p.user, p.cost); err != nil {
			return err
		}
	}

	p.record = &gateway.APIRequest{
		UserID:      p.user.ID,
		Endpoint:    p.endpoint,
		Method:      http.MethodPost,
		Model:       p.model,
		Stream:      p.stream,
		RequestSize: p.bodySize,
		ClientIP:    gateway.ClientIPFromContext(ctx),
		UserAgent:   gateway.UserAgentFromContext(ctx),
	}
	if err := d.tracker.Create(ctx, p.record); err != nil {
		return err
	}
	if err := d.tracker.StartProcessing(ctx, p.record.ID); err != nil {
		return err
	}
	p.start = d.now()
	return nil
}

// adapterFor materializes the adapter for a selection: the provider's shared
// default adapter, or an ephemeral one keyed with the sub-provider's
// decrypted credential.
func (d *Dispatcher) adapterFor(sel *balancer.Selection) (gateway.Adapter, error) {
	if sel.SubProvider == nil {
		return d.adapters.Get(sel.Provider.Name)
	}
	key, err := d.vault.Decrypt(sel.SubProvider.EncryptedAPIKey, sel.SubProvider.Salt)
	if err != nil {
		return nil, fmt.Errorf("decrypt sub-provider key %s: %w", sel.SubProvider.ID, err)
	}
	return d.adapters.WithKey(sel.Provider.Name, key, sel.SubProvider)
}

// settleSuccess debits the user and closes the tracker record.
func (d *Dispatcher) settleSuccess(ctx context.Context, p *request, sel *balancer.Selection, tokens, respSize, attempt int) {
	ctx = context.WithoutCancel(ctx)
	if !p.master {
		if err := d.credits.Debit(ctx, p.user, p.model, p.cost, tokens); err != nil {
			d.logger.LogAttrs(ctx, slog.LevelError, "debit failed after success",
				slog.String("request_id", p.record.ID),
				slog.String("user_id", p.user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	c := tracker.Completion{
		Tokens:       tokens,
		Credits:      p.cost,
		Latency:      d.now().Sub(p.start),
		ResponseSize: respSize,
		StatusCode:   http.StatusOK,
		RetryCount:   attempt,
	}
	if sel != nil {
		c.ProviderID = sel.Provider.ID
		if sel.SubProvider != nil {
			c.SubProviderID = sel.SubProvider.ID
		}
	}
	if err := d.tracker.Complete(ctx, p.record.ID, c); err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "tracker complete failed",
			slog.String("request_id", p.record.ID),
			slog.String("error", err.Error()),
		)
	}
}

// settleFailure closes the tracker record for a failed dispatch.
func (d *Dispatcher) settleFailure(ctx context.Context, p *request, attempt int, cause error) {
	ctx = context.WithoutCancel(ctx)
	latency := d.now().Sub(p.start)

	var err error
	if balancer.ClassifyErr(cause) == gateway.KindTimeout {
		err = d.tracker.Timeout(ctx, p.record.ID, latency)
	} else {
		err = d.tracker.Fail(ctx, p.record.ID, upstreamStatus(cause), cause.Error(), latency, attempt)
	}
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "tracker fail failed",
			slog.String("request_id", p.record.ID),
			slog.String("error", err.Error()),
		)
	}
}

// upstreamStatus maps a dispatch failure to the status recorded on the
// request. Gateway-origin failures keep their own mapping at the edge; this
// covers the provider-loop outcomes.
func upstreamStatus(err error) int {
	switch balancer.ClassifyErr(err) {
	case gateway.KindTimeout:
		return http.StatusGatewayTimeout
	case gateway.KindRateLimit:
		return http.StatusTooManyRequests
	case gateway.KindAuthError, gateway.KindNetwork, gateway.KindServerError:
		return http.StatusBadGateway
	default:
		if errors.Is(err, gateway.ErrNoAvailableProviders) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

// spanAttrs is the common span decoration for dispatched requests.
func spanAttrs(p *request) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("gateway.endpoint", p.endpoint),
		attribute.String("gateway.model", p.model),
		attribute.Bool("gateway.stream", p.stream),
	}
}
