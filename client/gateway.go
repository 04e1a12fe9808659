package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mobil3/walletauth"
)

const tracerName = "github.com/mobil3/walletauth/client"

// Gateway holds the one backend instance used for the lifetime of the holder.
// The backend is chosen and built on first use; every caller, concurrent or not,
// gets the same instance. Gateway implements walletauth.Gateway.
type Gateway struct {
	mu      sync.Mutex
	cfg     Config
	detect  Detector
	factory BackendFactory
	logger  *slog.Logger
	tracer  trace.Tracer
	backend Backend

	httpOpts []HTTPOption
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithDetector replaces DetectPlatform
func WithDetector(d Detector) GatewayOption {
	return func(g *Gateway) {
		if d != nil {
			g.detect = d
		}
	}
}

// WithBackendFactory replaces the default factory, which builds an HTTPBackend
func WithBackendFactory(f BackendFactory) GatewayOption {
	return func(g *Gateway) {
		if f != nil {
			g.factory = f
		}
	}
}

// WithHTTPOptions passes options to the HTTPBackend built by the default factory
func WithHTTPOptions(opts ...HTTPOption) GatewayOption {
	return func(g *Gateway) {
		g.httpOpts = append(g.httpOpts, opts...)
	}
}

// WithLogger sets the logger used by the gateway and the fallback backend
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTracerProvider sets where gateway spans are recorded. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) GatewayOption {
	return func(g *Gateway) {
		if tp != nil {
			g.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewGateway returns an empty holder. Nothing is built until the first call.
func NewGateway(cfg Config, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		detect: DetectPlatform,
		logger: slog.Default(),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
	}
	g.factory = g.newHTTPBackend
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnsureClient returns the backend, building it on the first call. It never
// fails: if the real backend cannot be used, the fallback is returned.
func (g *Gateway) EnsureClient(ctx context.Context) Backend {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.backend == nil {
		g.backend = g.construct(ctx)
	}
	return g.backend
}

// Instance returns the backend if it has been built, nil otherwise
func (g *Gateway) Instance() Backend {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.backend
}

// construct is called with g.mu held
func (g *Gateway) construct(ctx context.Context) Backend {
	_, span := g.tracer.Start(ctx, "gateway.construct")
	defer span.End()

	platform := g.detect()
	span.SetAttributes(attribute.String("walletauth.platform", string(platform)))

	if platform == PlatformWeb {
		g.logger.Info("web environment detected, using fallback wallet backend")
		return g.fallback(span)
	}

	b, err := g.build()
	if err != nil {
		g.logger.Warn("wallet backend not available, using fallback", "err", err)
		return g.fallback(span)
	}

	attrs := []any{"backend", b.Name()}
	if e, ok := b.(interface{ Environment() walletauth.Environment }); ok {
		attrs = append(attrs, "env", e.Environment())
	}
	g.logger.Info("native environment detected, using wallet backend", attrs...)
	span.SetAttributes(attribute.String("walletauth.backend", b.Name()))
	return b
}

func (g *Gateway) newHTTPBackend(cfg Config) (Backend, error) {
	opts := append([]HTTPOption{WithBackendLogger(g.logger)}, g.httpOpts...)
	return NewHTTPBackend(cfg, opts...)
}

func (g *Gateway) fallback(span trace.Span) Backend {
	span.SetAttributes(attribute.String("walletauth.backend", "fallback"))
	return NewFallbackBackend(g.logger)
}

// build runs the factory, treating a panic or a nil backend as failure
func (g *Gateway) build() (b Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("backend construction panicked: %v", r)
		}
	}()
	b, err = g.factory(g.cfg)
	if err == nil && b == nil {
		err = fmt.Errorf("backend factory returned no backend")
	}
	return b, err
}

// Init initializes the backend. Safe to call repeatedly.
func (g *Gateway) Init(ctx context.Context) error {
	return g.call(ctx, walletauth.OpInit, func(ctx context.Context, b Backend) error {
		return b.Init(ctx)
	})
}

// SignUpOrLogIn implements walletauth.Gateway. A malformed credential fails
// without reaching the backend.
func (g *Gateway) SignUpOrLogIn(ctx context.Context, cred walletauth.Credential) (*walletauth.GatewayResponse, error) {
	if err := cred.Validate(); err != nil {
		return nil, walletauth.NewAuthError(walletauth.OpSignUpOrLogIn, walletauth.ErrCodeInvalidCredential, err.Error(), err)
	}
	var resp *walletauth.GatewayResponse
	err := g.call(ctx, walletauth.OpSignUpOrLogIn, func(ctx context.Context, b Backend) error {
		var err error
		resp, err = b.SignUpOrLogIn(ctx, cred)
		if resp != nil {
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("walletauth.response_stage", string(resp.Stage)))
		}
		return err
	}, attribute.String("walletauth.method", string(cred.Method())))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// VerifyNewAccount implements walletauth.Gateway
func (g *Gateway) VerifyNewAccount(ctx context.Context, code string) (*walletauth.AccountHandle, error) {
	var handle *walletauth.AccountHandle
	err := g.call(ctx, walletauth.OpVerifyNewAccount, func(ctx context.Context, b Backend) error {
		var err error
		handle, err = b.VerifyNewAccount(ctx, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// RegisterPasskey implements walletauth.Gateway
func (g *Gateway) RegisterPasskey(ctx context.Context, handle *walletauth.AccountHandle) error {
	return g.call(ctx, walletauth.OpRegisterPasskey, func(ctx context.Context, b Backend) error {
		return b.RegisterPasskey(ctx, handle)
	})
}

// LoginWithPasskey implements walletauth.Gateway
func (g *Gateway) LoginWithPasskey(ctx context.Context) (*walletauth.GatewayResponse, error) {
	var resp *walletauth.GatewayResponse
	err := g.call(ctx, walletauth.OpLoginWithPasskey, func(ctx context.Context, b Backend) error {
		var err error
		resp, err = b.LoginWithPasskey(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// call runs fn against the backend inside a span and normalizes its error
func (g *Gateway) call(ctx context.Context, op string, fn func(context.Context, Backend) error, attrs ...attribute.KeyValue) error {
	b := g.EnsureClient(ctx)

	attrs = append(attrs, attribute.String("walletauth.backend", b.Name()))
	ctx, span := g.tracer.Start(ctx, "gateway."+op, trace.WithAttributes(attrs...))
	defer span.End()

	if err := fn(ctx, b); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Debug("gateway call failed", "op", op, "backend", b.Name(), "err", err)
		return walletauth.AsAuthError(op, err)
	}
	return nil
}
