// Package chat runs one end-user message through the tenant pipeline:
// identity, admission, session, history, retrieval, prompt, generation and
// accounting.
package chat

import (
	"context"
	"fmt"
	"strings"

	"acm-chatbot/backend/internal/identity"
	"acm-chatbot/backend/internal/prompt"
	"acm-chatbot/backend/internal/ratelimit"
	"acm-chatbot/backend/internal/retrieval"
	"acm-chatbot/backend/internal/session"
	"acm-chatbot/backend/internal/tenant"
	"acm-chatbot/backend/internal/usage"
	apperrors "acm-chatbot/backend/pkg/errors"
	"acm-chatbot/backend/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultHistoryLimit = 5
	DefaultEndpoint     = "/chat"
)

var (
	// ErrEmptyMessage is returned when the message is blank.
	ErrEmptyMessage = fmt.Errorf("message is required: %w", apperrors.ErrInvalidInput)
	// ErrEmptySession is returned when the session id is blank.
	ErrEmptySession = fmt.Errorf("session_id is required: %w", apperrors.ErrInvalidInput)
)

// Sessions resolves conversations and reads their recent turns.
type Sessions interface {
	ResolveOrCreate(ctx context.Context, clientID, externalID string) (string, error)
	History(ctx context.Context, sessionID string, limit int) ([]session.Turn, error)
}

// Retriever finds grounding context. It never fails the request.
type Retriever interface {
	Retrieve(ctx context.Context, clientID, query string, k int) retrieval.Result
}

// Profiles returns per-tenant prompt settings.
type Profiles interface {
	Profile(ctx context.Context, clientID string) (*tenant.Profile, error)
}

// Generator turns a prompt into a reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recorder persists a completed exchange.
type Recorder interface {
	Record(ctx context.Context, ex usage.Exchange) (*usage.Receipt, error)
}

// Dependencies are the collaborators of a Service. All are required.
type Dependencies struct {
	Identity  identity.Resolver
	Limiter   ratelimit.Limiter
	Sessions  Sessions
	Retriever Retriever
	Profiles  Profiles
	Generator Generator
	Recorder  Recorder
}

// Config tunes a Service.
type Config struct {
	HistoryLimit int
	TopK         int
	Endpoint     string
}

// Request is one inbound chat message.
type Request struct {
	Credential string
	Message    string
	SessionID  string
}

// Response is the reply to a Request. Recorded is false when the reply could
// not be persisted.
type Response struct {
	Reply     string
	SessionID string
	Retrieval retrieval.Status
	Recorded  bool
}

// Service runs the chat pipeline. It holds no per-request state.
type Service struct {
	deps   Dependencies
	cfg    Config
	log    *logger.Logger
	tracer trace.Tracer

	retrievals metric.Int64Counter
	anomalies  metric.Int64Counter
	rejections metric.Int64Counter
}

// Option configures optional Service instrumentation.
type Option func(*options)

type options struct {
	meter  metric.Meter
	tracer trace.Tracer
	log    *logger.Logger
}

// WithMeter records pipeline metrics on m.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithTracer records pipeline spans on t.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// NewService creates a Service.
func NewService(deps Dependencies, cfg Config, opts ...Option) (*Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = noop.NewMeterProvider().Meter("chat")
	}
	if o.tracer == nil {
		o.tracer = tracenoop.NewTracerProvider().Tracer("chat")
	}
	if o.log == nil {
		o.log = logger.GetGlobal()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	s := &Service{deps: deps, cfg: cfg, log: o.log, tracer: o.tracer}
	var err error
	if s.retrievals, err = o.meter.Int64Counter("chat_retrievals_total",
		metric.WithDescription("Context retrievals by outcome")); err != nil {
		return nil, err
	}
	if s.anomalies, err = o.meter.Int64Counter("chat_persistence_anomalies_total",
		metric.WithDescription("Replies returned without being recorded")); err != nil {
		return nil, err
	}
	if s.rejections, err = o.meter.Int64Counter("chat_rejections_total",
		metric.WithDescription("Requests rejected before generation")); err != nil {
		return nil, err
	}
	return s, nil
}

// Chat answers req. Credential and admission failures end the request before
// any other work. Retrieval failures degrade to an empty context. A
// generation failure writes nothing. A reply that cannot be recorded is
// still returned.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	ctx, span := s.tracer.Start(ctx, "chat.Chat")
	defer span.End()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, s.reject(ctx, span, "invalid_input", ErrEmptyMessage)
	}
	externalID := strings.TrimSpace(req.SessionID)
	if externalID == "" {
		return nil, s.reject(ctx, span, "invalid_input", ErrEmptySession)
	}

	tc, err := s.deps.Identity.Resolve(ctx, req.Credential)
	if err != nil {
		return nil, s.reject(ctx, span, "credential", err)
	}
	log := s.log.WithTenant(tc.ClientID, tc.APIKeyID)
	span.SetAttributes(
		attribute.String("tenant.client_id", tc.ClientID),
		attribute.String("tenant.api_key_id", tc.APIKeyID),
	)

	if err := s.deps.Limiter.Admit(ctx, tc.APIKeyID, tc.RateLimitPerMinute); err != nil {
		log.Warn("Chat request rejected by rate limiter", "limit", tc.RateLimitPerMinute, "error", err.Error())
		return nil, s.reject(ctx, span, "rate_limit", err)
	}

	sessionID, err := s.deps.Sessions.ResolveOrCreate(ctx, tc.ClientID, externalID)
	if err != nil {
		return nil, s.fail(span, log, "resolve session", err)
	}
	history, err := s.deps.Sessions.History(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, s.fail(span, log, "read history", err)
	}

	found := s.retrieve(ctx, tc.ClientID, message)
	if found.Status == retrieval.StatusDegraded {
		log.Warn("Answering without context", "error", found.Err.Error())
	}

	systemPrompt := s.systemPrompt(ctx, log, tc.ClientID)
	text := prompt.Assemble(systemPrompt, history, found.Context, message)

	reply, err := s.generate(ctx, text)
	if err != nil {
		return nil, s.fail(span, log, "generate reply", err)
	}

	resp := &Response{Reply: reply, SessionID: sessionID, Retrieval: found.Status, Recorded: true}

	_, err = s.deps.Recorder.Record(ctx, usage.Exchange{
		Tenant:    *tc,
		SessionID: sessionID,
		Endpoint:  s.cfg.Endpoint,
		Query:     message,
		Prompt:    text,
		Reply:     reply,
	})
	if err != nil {
		resp.Recorded = false
		s.anomalies.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", tc.ClientID)))
		span.AddEvent("persistence anomaly")
		log.LogError(err, "Reply returned but exchange not recorded", "session_id", sessionID)
	}

	log.Info("Chat reply sent",
		"session_id", sessionID,
		"retrieval", string(found.Status),
		"history", len(history),
		"recorded", resp.Recorded,
	)
	return resp, nil
}

// Greeting returns the tenant greeting for a credential. It is not rate limited.
func (s *Service) Greeting(ctx context.Context, credential string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "chat.Greeting")
	defer span.End()

	tc, err := s.deps.Identity.Resolve(ctx, credential)
	if err != nil {
		return "", s.reject(ctx, span, "credential", err)
	}
	p, err := s.deps.Profiles.Profile(ctx, tc.ClientID)
	if err != nil {
		s.log.WithTenant(tc.ClientID, tc.APIKeyID).Warn("Tenant profile unavailable, using default greeting", "error", err.Error())
		return tenant.DefaultTemplateMessage, nil
	}
	return p.Greeting(), nil
}

func (s *Service) retrieve(ctx context.Context, clientID, query string) retrieval.Result {
	ctx, span := s.tracer.Start(ctx, "chat.Retrieve")
	defer span.End()

	res := s.deps.Retriever.Retrieve(ctx, clientID, query, s.cfg.TopK)
	span.SetAttributes(
		attribute.String("retrieval.status", string(res.Status)),
		attribute.Int("retrieval.matches", res.Matches),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	s.retrievals.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(res.Status))))
	return res
}

func (s *Service) generate(ctx context.Context, text string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "chat.Generate")
	defer span.End()

	reply, err := s.deps.Generator.Generate(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", err
	}
	return reply, nil
}

// systemPrompt falls back to the default prompt when the profile cannot be read.
func (s *Service) systemPrompt(ctx context.Context, log *logger.Logger, clientID string) string {
	p, err := s.deps.Profiles.Profile(ctx, clientID)
	if err != nil {
		log.Warn("Tenant profile unavailable, using default system prompt", "error", err.Error())
		return prompt.DefaultSystemPrompt
	}
	return prompt.SystemPromptFor(p.SystemPrompt)
}

func (s *Service) reject(ctx context.Context, span trace.Span, reason string, err error) error {
	s.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	span.SetStatus(codes.Error, reason)
	return err
}

func (s *Service) fail(span trace.Span, log *logger.Logger, step string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	log.LogError(err, "Chat request failed", "step", step)
	return fmt.Errorf("%s: %w", step, err)
}
