package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// SignInResult is returned on a successful sign-in.
type SignInResult struct {
	User    *User
	Token   string
	Session *Session
	Method  string
}

// Auther runs the sign-in state machine for every method. Whatever goes
// wrong, callers receive ErrSignInFailed; the FailureKind goes to the logger,
// the metrics recorder and the activity sink.
type Auther struct {
	store        UserStore
	verifier     *CredentialVerifier
	provisioner  *AccountProvisioner
	issuer       *SessionIssuer
	policy       PasswordPolicy
	storeTimeout time.Duration
	provisioned  map[string]bool
	logger       Logger
	activitySink ActivitySink
	metrics      MetricsRecorder
	now          func() time.Time
}

// AutherOption configures an Auther.
type AutherOption func(*Auther)

// WithPasswordPolicy replaces the default AcceptAnyPassword policy.
func WithPasswordPolicy(p PasswordPolicy) AutherOption {
	return func(a *Auther) {
		a.policy = p
	}
}

// WithStoreTimeout bounds every store call. Defaults to DefaultStoreTimeout.
func WithStoreTimeout(d time.Duration) AutherOption {
	return func(a *Auther) {
		a.storeTimeout = d
	}
}

// WithProvisionedProviders sets the federated providers whose identities get
// an account created on first sign-in. Defaults to github, google and email.
func WithProvisionedProviders(names ...string) AutherOption {
	return func(a *Auther) {
		a.provisioned = make(map[string]bool, len(names))
		for _, n := range names {
			a.provisioned[strings.ToLower(strings.TrimSpace(n))] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) AutherOption {
	return func(a *Auther) {
		a.logger = l
	}
}

// WithActivitySink sets the audit sink.
func WithActivitySink(s ActivitySink) AutherOption {
	return func(a *Auther) {
		a.activitySink = s
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) AutherOption {
	return func(a *Auther) {
		a.metrics = m
	}
}

// NewAuther wires the verifier, provisioner and issuer over a single
// timeout-guarded view of store.
func NewAuther(store UserStore, tokens *TokenService, opts ...AutherOption) *Auther {
	a := &Auther{
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
	}
	WithProvisionedProviders(MethodGitHub, MethodGoogle, MethodEmail)(a)
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	a.logger = normalizeLogger(a.logger)
	if a.activitySink == nil {
		a.activitySink = ActivitySinkFunc(nil)
	}
	a.metrics = normalizeMetrics(a.metrics)
	if a.policy == nil {
		a.policy = AcceptAnyPassword{}
	}
	if isUnsafePolicy(a.policy) {
		a.logger.Warn("password policy accepts any password for a known email; do not use in production")
	}

	a.store = NewTimeoutStore(store, a.storeTimeout)
	a.verifier = NewCredentialVerifier(a.store, a.policy)
	a.provisioner = NewAccountProvisioner(a.store, a.logger)
	a.issuer = NewSessionIssuer(a.store, tokens,
		WithSessionLogger(a.logger),
		WithSessionMetrics(a.metrics),
	)
	return a
}

// Sessions exposes the issuer for request middleware.
func (a *Auther) Sessions() *SessionIssuer {
	return a.issuer
}

// SignInWithCredentials authenticates an email and password. Accounts are
// never created on this path.
func (a *Auther) SignInWithCredentials(ctx context.Context, email, password string) (*SignInResult, error) {
	user, err := a.verifier.Verify(ctx, email, password)
	if err != nil {
		return nil, a.fail(ctx, MethodCredentials, email, err)
	}
	return a.complete(ctx, MethodCredentials, user)
}

// SignInWithIdentity completes a federated sign-in with an identity already
// asserted by a provider.
func (a *Auther) SignInWithIdentity(ctx context.Context, identity ExternalIdentity) (*SignInResult, error) {
	method := strings.ToLower(strings.TrimSpace(identity.Provider))
	if !identity.Valid() {
		return nil, a.fail(ctx, method, identity.Email,
			NewFailure(FailureProviderError, errors.New("provider returned an identity without email")))
	}

	var user *User
	if a.provisioned[method] {
		u, err := a.provisioner.EnsureAccount(ctx, identity)
		if err != nil {
			return nil, a.fail(ctx, method, identity.Email, err)
		}
		user = u
	} else {
		// not provisioned: the token is issued from the provider's assertion
		// and carries an id and role only if the email is already known
		user = &User{
			Email: strings.TrimSpace(identity.Email),
			Name:  identity.DisplayName(),
			Image: stringPtr(identity.Avatar),
		}
	}

	return a.complete(ctx, method, user)
}

// SignInFailed records a failure that happened before an identity could be
// produced, such as a provider exchange error, and returns ErrSignInFailed.
func (a *Auther) SignInFailed(ctx context.Context, method string, err error) error {
	return a.fail(ctx, method, "", err)
}

// SignOut records the end of session. Tokens are stateless, so the caller is
// responsible for dropping the cookie.
func (a *Auther) SignOut(ctx context.Context, session *Session) {
	if session == nil {
		return
	}
	a.record(ctx, sessionEvent(ActivityEventSignOut, session))
}

func (a *Auther) complete(ctx context.Context, method string, user *User) (*SignInResult, error) {
	token, err := a.issuer.IssueFor(ctx, user, method)
	if err != nil {
		return nil, a.fail(ctx, method, user.Email, err)
	}

	session := a.issuer.decode(token)
	if session == nil {
		return nil, a.fail(ctx, method, user.Email, NewFailure(FailureTokenInvalid, ErrTokenInvalid))
	}

	a.metrics.RecordSignIn(method, FailureNone)
	a.logger.Info("sign-in succeeded", "method", method, "email", session.Email, "role", session.Role)
	a.record(ctx, sessionEvent(ActivityEventSignInSuccess, session))

	return &SignInResult{User: user, Token: token, Session: session, Method: method}, nil
}

func (a *Auther) fail(ctx context.Context, method, email string, err error) error {
	kind := FailureKindOf(err)
	a.metrics.RecordSignIn(method, kind)

	var meta map[string]any
	logErr := err
	var f *AuthFailure
	if errors.As(err, &f) {
		meta = f.Metadata()
		logErr = f.Rich()
	}

	switch kind {
	case FailureStoreUnavailable, FailureDataIntegrity:
		a.logger.Error("sign-in failed", "method", method, "email", email, "kind", kind, "error", logErr)
	default:
		a.logger.Warn("sign-in failed", "method", method, "email", email, "kind", kind, "error", logErr)
	}
	a.record(ctx, failureEvent(method, email, kind, meta))

	return ErrSignInFailed
}

func (a *Auther) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = a.now()
	}
	if err := a.activitySink.Record(ctx, event); err != nil {
		a.logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}
