package walletauth

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultRedirectURI is where OAuth providers send the user back to
const DefaultRedirectURI = "http://127.0.0.1:8765/oauth/callback"

// State is a snapshot of the controller for the presentation layer
type State struct {
	AuthStage

	// Loading is true while a gateway call is in flight. Intents are ignored
	// until it clears.
	Loading bool

	// ErrorMessage is the user-facing text for Err
	ErrorMessage string
	Err          error

	// Code is the last verification code submitted in this session
	Code string

	SessionID string
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithLogger sets the logger used for failed and discarded actions
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers fn to receive a snapshot after every state change.
// fn is called without the controller lock held.
func WithObserver(fn func(State)) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithInputValidator replaces DefaultInputValidator
func WithInputValidator(v InputValidator) ControllerOption {
	return func(c *Controller) {
		if v != nil {
			c.validate = v
		}
	}
}

// WithRedirectURI sets the redirect URI sent with OAuth credentials
func WithRedirectURI(uri string) ControllerOption {
	return func(c *Controller) {
		if uri != "" {
			c.redirectURI = uri
		}
	}
}

// Controller sequences the authentication screens. It owns the AuthStage for a
// session, forwards user input to the Gateway and maps each response to the next
// stage. Gateway failures never escape an action: they are recorded in State.
type Controller struct {
	mu          sync.Mutex
	gateway     Gateway
	logger      *slog.Logger
	validate    InputValidator
	redirectURI string
	observers   []func(State)

	stage   AuthStage
	loading bool
	err     error
	code    string
	session string

	// verified account still waiting for passkey registration
	pending *AccountHandle
}

// NewController returns a controller in the Input stage
func NewController(gateway Gateway, opts ...ControllerOption) *Controller {
	c := &Controller{
		gateway:     gateway,
		logger:      slog.Default(),
		validate:    DefaultInputValidator,
		redirectURI: DefaultRedirectURI,
		stage:       inputStage(),
		session:     uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a snapshot of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	return State{
		AuthStage:    c.stage,
		Loading:      c.loading,
		ErrorMessage: UserMessage(c.err),
		Err:          c.err,
		Code:         c.code,
		SessionID:    c.session,
	}
}

// SubmitEmail starts sign up or log in with an email address
func (c *Controller) SubmitEmail(ctx context.Context, email string) {
	c.submitContact(ctx, MethodEmail, email)
}

// SubmitPhone starts sign up or log in with a phone number
func (c *Controller) SubmitPhone(ctx context.Context, phone string) {
	c.submitContact(ctx, MethodPhone, phone)
}

func (c *Controller) submitContact(ctx context.Context, method AuthMethod, raw string) {
	value, verr := c.validate(method, raw)
	session, ok := c.start("submit "+string(method), verr, StageInput)
	if !ok {
		return
	}

	cred := EmailCredential(value)
	if method == MethodPhone {
		cred = PhoneCredential(value)
	}
	resp, err := c.gateway.SignUpOrLogIn(ctx, cred)

	c.mu.Lock()
	if c.session != session {
		c.discardLocked(OpSignUpOrLogIn)
		return
	}
	chain := false
	switch {
	case err != nil:
		c.failLocked(AsAuthError(OpSignUpOrLogIn, err))
	case resp == nil || !resp.Stage.Known():
		c.unexpectedLocked(OpSignUpOrLogIn, resp)
	case resp.Stage == ResponseVerify:
		c.stage = contactStage(StageVerify, method, value)
	case resp.Stage == ResponseLogin:
		c.stage = contactStage(StageLogin, method, value)
		chain = true
	case resp.Stage == ResponseSuccess:
		c.stage = AuthStage{Stage: StageSuccess}
	}
	if !chain {
		c.loading = false
	}
	c.mu.Unlock()
	c.notify()

	// Existing account: continue straight into passkey login while still loading.
	if chain {
		c.passkeyLogin(ctx, session)
	}
}

// ChooseOAuth signs in through a third-party provider such as "google" or "apple"
func (c *Controller) ChooseOAuth(ctx context.Context, provider string) {
	provider, verr := c.validate(MethodOAuth, provider)
	session, ok := c.start("choose oauth", verr, StageInput)
	if !ok {
		return
	}

	resp, err := c.gateway.SignUpOrLogIn(ctx, OAuthCredentialFor(provider, c.redirectURI))
	c.finish(session, OpSignUpOrLogIn, func() {
		switch {
		case err != nil:
			c.failLocked(AsAuthError(OpSignUpOrLogIn, err))
		case resp != nil && resp.Stage == ResponseSuccess:
			c.stage = AuthStage{Stage: StageSuccess, Method: MethodOAuth}
		default:
			c.unexpectedLocked(OpSignUpOrLogIn, resp)
		}
	})
}

// LoginWithPasskey runs the passkey step for an existing account. It runs
// automatically after a login response; calling it again from the Login stage
// retries after a failure.
func (c *Controller) LoginWithPasskey(ctx context.Context) {
	session, ok := c.start("login with passkey", nil, StageLogin)
	if !ok {
		return
	}
	c.passkeyLogin(ctx, session)
}

// passkeyLogin expects loading to be set for session
func (c *Controller) passkeyLogin(ctx context.Context, session string) {
	resp, err := c.gateway.LoginWithPasskey(ctx)
	c.finish(session, OpLoginWithPasskey, func() {
		switch {
		case err != nil:
			c.failLocked(AsAuthError(OpLoginWithPasskey, err))
		case resp != nil && resp.Stage == ResponseSuccess:
			c.stage = AuthStage{Stage: StageSuccess}
		default:
			c.unexpectedLocked(OpLoginWithPasskey, resp)
		}
	})
}

// SubmitVerificationCode verifies a new account and registers its passkey. Both
// steps must succeed to reach Success. When verification succeeded but passkey
// registration failed, a later submit in the same session retries only the
// registration.
func (c *Controller) SubmitVerificationCode(ctx context.Context, code string) {
	code = strings.TrimSpace(code)
	var verr error
	if code == "" {
		verr = NewValidationError(ErrCodeMissingField, "Please enter the verification code", "code")
	}
	session, ok := c.start("submit verification code", verr, StageVerify)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.session != session {
		c.discardLocked(OpVerifyNewAccount)
		return
	}
	c.code = code
	handle := c.pending
	c.mu.Unlock()

	if handle == nil {
		h, err := c.gateway.VerifyNewAccount(ctx, code)
		if err == nil && h == nil {
			err = NewAuthError(OpVerifyNewAccount, ErrCodeRejected, "verification returned no account", nil)
		}
		if err != nil {
			c.finish(session, OpVerifyNewAccount, func() {
				c.failLocked(AsAuthError(OpVerifyNewAccount, err))
			})
			return
		}

		c.mu.Lock()
		if c.session != session {
			c.discardLocked(OpVerifyNewAccount)
			return
		}
		c.pending = h
		c.mu.Unlock()
		handle = h
	}

	err := c.gateway.RegisterPasskey(ctx, handle)
	c.finish(session, OpRegisterPasskey, func() {
		if err != nil {
			c.failLocked(&PartialCompletionError{
				Completed: OpVerifyNewAccount,
				Failed:    OpRegisterPasskey,
				Err:       AsAuthError(OpRegisterPasskey, err),
			})
			return
		}
		c.pending = nil
		c.stage = AuthStage{Stage: StageSuccess}
	})
}

// GoBack returns from Verify or Login to Input, clearing the code and contact.
// A call still in flight for the abandoned session is ignored when it resolves.
func (c *Controller) GoBack() {
	c.mu.Lock()
	if c.stage.Stage != StageVerify && c.stage.Stage != StageLogin {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	c.mu.Unlock()
	c.notify()
}

// Reset starts a new session from any stage, including Success
func (c *Controller) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) resetLocked() {
	c.stage = inputStage()
	c.err = nil
	c.code = ""
	c.pending = nil
	c.session = uuid.NewString()
}

// start validates that an action may run and marks the controller as loading.
// It returns the session the action belongs to.
func (c *Controller) start(action string, verr error, allowed ...Stage) (string, bool) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		c.logger.Debug("action ignored while loading", "action", action)
		return "", false
	}
	if !slices.Contains(allowed, c.stage.Stage) {
		stage := c.stage.Stage
		c.mu.Unlock()
		c.logger.Debug("action not available", "action", action, "stage", stage)
		return "", false
	}
	if verr != nil {
		c.err = verr
		c.mu.Unlock()
		c.notify()
		return "", false
	}
	c.loading = true
	c.err = nil
	session := c.session
	c.mu.Unlock()
	c.notify()
	return session, true
}

// finish clears loading and applies the result if session is still current
func (c *Controller) finish(session, op string, apply func()) {
	c.mu.Lock()
	if c.session != session {
		c.discardLocked(op)
		return
	}
	c.loading = false
	apply()
	c.mu.Unlock()
	c.notify()
}

// discardLocked drops a result for an abandoned session and releases the lock
func (c *Controller) discardLocked(op string) {
	c.loading = false
	c.mu.Unlock()
	c.logger.Debug("discarding stale response", "op", op)
	c.notify()
}

func (c *Controller) failLocked(err error) {
	c.err = err
	c.logger.Warn("auth action failed", "stage", c.stage.Stage, "err", err)
}

func (c *Controller) unexpectedLocked(op string, resp *GatewayResponse) {
	var stage ResponseStage
	if resp != nil {
		stage = resp.Stage
	}
	c.err = &UnexpectedResponseError{Op: op, Stage: stage}
	c.logger.Warn("unexpected gateway response", "op", op, "stage", stage, "current", c.stage.Stage)
}

func (c *Controller) notify() {
	if len(c.observers) == 0 {
		return
	}
	s := c.State()
	for _, fn := range c.observers {
		fn(s)
	}
}
