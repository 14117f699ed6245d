package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AdolfoEscobar473/hospital/internal/audit"
	"github.com/AdolfoEscobar473/hospital/internal/auth"
	"github.com/AdolfoEscobar473/hospital/internal/obs"
	"github.com/AdolfoEscobar473/hospital/internal/rbac"
	"github.com/AdolfoEscobar473/hospital/internal/sessions"
	"github.com/AdolfoEscobar473/hospital/pkg/logger"

	"github.com/google/uuid"
)

// Service implements the account lifecycle: login, refresh, logout, password
// changes and the administrative operations on accounts.
//
// Invariants:
// - A refresh token is usable at most once; rotation goes through the ledger.
// - Stored passwords are bcrypt hashes; plaintext is never logged or audited.
// - Role changes take effect on the next request; nothing is cached here.
type Service struct {
	store    Store
	ledger   sessions.Ledger
	tokens   *auth.Manager
	hasher   *auth.Hasher
	audit    *audit.Service
	notifier Notifier
	limiter  AttemptLimiter

	forgotInBand bool

	// clock is injectable for deterministic tests.
	clock func() time.Time
	log   *slog.Logger
}

// Option configures Service.
type Option func(*Service)

func WithAudit(a *audit.Service) Option { return func(s *Service) { s.audit = a } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithAttemptLimiter(l AttemptLimiter) Option { return func(s *Service) { s.limiter = l } }

// WithForgotPasswordInBand makes ForgotPassword return the temporary password
// to the caller. Intended for local development only.
func WithForgotPasswordInBand(enabled bool) Option {
	return func(s *Service) { s.forgotInBand = enabled }
}

func WithClock(clock func() time.Time) Option { return func(s *Service) { s.clock = clock } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(store Store, ledger sessions.Ledger, tokens *auth.Manager, hasher *auth.Hasher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: ledger,
		tokens: tokens,
		hasher: hasher,
		clock:  time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Log: s.log}
	}
	return s
}

// Roles makes Service usable as the gate's rbac.RoleProvider.
func (s *Service) Roles(ctx context.Context, userID string) ([]string, error) {
	return s.store.Roles(ctx, userID)
}

/* ===================== SESSION LIFECYCLE ===================== */

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, username)
		switch {
		case err != nil:
			// Fail open: throttling protects against guessing, it must not lock everyone out.
			s.logger(ctx).WarnContext(ctx, "login throttle unavailable", "err", err)
		case !ok:
			obs.AuthEvent("login", "throttled")
			return Session{}, ErrTooManyAttempts
		}
	}

	a, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.hasher.Burn(password)
			s.loginFailed(ctx, "", "unknown username")
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	// Inactive accounts are rejected whatever the password; the comparison
	// still runs so both paths cost the same.
	if !a.IsActive {
		s.hasher.Burn(password)
		s.loginFailed(ctx, a.ID, "inactive account")
		return Session{}, ErrAccountInactive
	}
	if !s.hasher.Verify(a.PasswordHash, password) {
		s.loginFailed(ctx, a.ID, "wrong password")
		return Session{}, ErrInvalidCredentials
	}

	sess, err := s.startSession(ctx, a)
	if err != nil {
		return Session{}, err
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, username); err != nil {
			s.logger(ctx).WarnContext(ctx, "login throttle reset failed", "err", err)
		}
	}
	obs.AuthEvent("login", "success")
	s.record(ctx, audit.Event{Type: audit.EventLogin, ActorUserID: a.ID, TargetUserID: a.ID})
	return sess, nil
}

func (s *Service) loginFailed(ctx context.Context, userID, reason string) {
	obs.AuthEvent("login", "rejected")
	if s.audit == nil {
		return
	}
	if err := s.audit.LogFailure(ctx, audit.EventLogin, userID, reason); err != nil {
		s.logger(ctx).WarnContext(ctx, "audit append failed", "err", err)
	}
}

func (s *Service) startSession(ctx context.Context, a Account) (Session, error) {
	roles, err := s.store.Roles(ctx, a.ID)
	if err != nil {
		return Session{}, err
	}
	pair, err := s.tokens.IssuePair(s.clock(), a.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.ledger.Record(ctx, a.ID, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		if errors.Is(err, sessions.ErrDuplicateSession) {
			s.logger(ctx).ErrorContext(ctx, "refresh token collision", "user_id", a.ID)
		}
		return Session{}, err
	}
	return newSession(pair, a, roles), nil
}

func newSession(pair auth.TokenPair, a Account, roles []string) Session {
	return Session{
		AccessToken:        pair.AccessToken,
		RefreshToken:       pair.RefreshToken,
		AccessExpiresAt:    pair.AccessExpiresAt,
		RefreshExpiresAt:   pair.RefreshExpiresAt,
		MustChangePassword: a.MustChangePassword,
		User:               profileOf(a, roles),
	}
}

// Refresh exchanges a live refresh token for a new pair. The presented token
// is consumed; presenting it again fails with auth.ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, fmt.Errorf("%w: refreshToken is required", ErrValidation)
	}
	now := s.clock()

	claims, err := s.tokens.Verify(refreshToken, auth.TokenTypeRefresh, now)
	if err != nil {
		obs.AuthEvent("refresh", "invalid_token")
		return Session{}, auth.ErrInvalidToken
	}

	a, err := s.store.Get(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.AuthEvent("refresh", "unknown_account")
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if !a.IsActive {
		obs.AuthEvent("refresh", "inactive")
		return Session{}, auth.ErrInvalidToken
	}

	pair, err := s.tokens.IssuePair(now, a.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.ledger.Rotate(ctx, a.ID, refreshToken, pair.RefreshToken, pair.RefreshExpiresAt, now); err != nil {
		if errors.Is(err, sessions.ErrSessionNotLive) {
			obs.AuthEvent("refresh", "not_live")
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	roles, err := s.store.Roles(ctx, a.ID)
	if err != nil {
		return Session{}, err
	}
	obs.AuthEvent("refresh", "success")
	s.record(ctx, audit.Event{Type: audit.EventTokenRefresh, ActorUserID: a.ID, TargetUserID: a.ID})
	return newSession(pair, a, roles), nil
}

// Logout revokes refreshToken. It always succeeds from the caller's view;
// storage failures are logged only.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if strings.TrimSpace(refreshToken) == "" {
		return
	}
	if err := s.ledger.RevokeByToken(ctx, refreshToken); err != nil {
		s.logger(ctx).WarnContext(ctx, "logout revoke failed", "err", err)
		return
	}
	obs.AuthEvent("logout", "success")
	if claims, err := s.tokens.Verify(refreshToken, auth.TokenTypeRefresh, s.clock()); err == nil {
		s.record(ctx, audit.Event{Type: audit.EventLogout, ActorUserID: claims.UserID(), TargetUserID: claims.UserID()})
	}
}

/* ===================== SELF-SERVICE PASSWORDS ===================== */

// ChangePassword replaces the caller's password and clears the must-change flag.
// A wrong current password leaves the stored hash untouched.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return fmt.Errorf("%w: currentPassword and newPassword are required", ErrValidation)
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	a, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(a.PasswordHash, current) {
		obs.AuthEvent("change_password", "wrong_current")
		s.record(ctx, audit.Event{Type: audit.EventPasswordChanged, Status: audit.StatusFailure, ActorUserID: userID, TargetUserID: userID})
		return ErrWrongCurrentPassword
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, userID, hash, false); err != nil {
		return err
	}
	obs.AuthEvent("change_password", "success")
	s.record(ctx, audit.Event{Type: audit.EventPasswordChanged, ActorUserID: userID, TargetUserID: userID})
	return nil
}

// ForgotPassword issues a temporary password for the account matching
// identifier (username first, then email) and delivers it out-of-band.
// Unknown identifiers are indistinguishable from known ones to the caller.
// The returned password is non-empty only when in-band delivery is enabled.
func (s *Service) ForgotPassword(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("%w: identifier is required", ErrValidation)
	}

	a, err := s.store.FindByLoginOrEmail(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger(ctx).WarnContext(ctx, "forgot password lookup failed", "err", err)
		}
		obs.AuthEvent("forgot_password", "unknown")
		return "", nil
	}

	temp, err := s.issueTemporaryPassword(ctx, a.ID)
	if err != nil {
		s.logger(ctx).ErrorContext(ctx, "forgot password reset failed", "user_id", a.ID, "err", err)
		return "", nil
	}
	if err := s.notifier.SendTemporaryPassword(ctx, a, temp); err != nil {
		s.logger(ctx).ErrorContext(ctx, "temporary password delivery failed", "user_id", a.ID, "err", err)
	}
	obs.AuthEvent("forgot_password", "issued")
	s.record(ctx, audit.Event{Type: audit.EventPasswordForgot, TargetUserID: a.ID})

	if s.forgotInBand {
		return temp, nil
	}
	return "", nil
}

func (s *Service) issueTemporaryPassword(ctx context.Context, userID string) (string, error) {
	temp, err := auth.TemporaryPassword()
	if err != nil {
		return "", err
	}
	hash, err := s.hasher.Hash(temp)
	if err != nil {
		return "", err
	}
	if err := s.store.SetPassword(ctx, userID, hash, true); err != nil {
		return "", err
	}
	return temp, nil
}

// Profile returns the caller's own account with current roles.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	return s.GetAccount(ctx, userID)
}

/* ===================== ADMINISTRATION ===================== */

func (s *Service) ListAccounts(ctx context.Context) ([]Profile, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	roles, err := s.store.RolesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(list))
	for _, a := range list {
		out = append(out, profileOf(a, roles[a.ID]))
	}
	return out, nil
}

func (s *Service) GetAccount(ctx context.Context, id string) (Profile, error) {
	if err := checkID(id); err != nil {
		return Profile{}, err
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	roles, err := s.store.Roles(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(a, roles), nil
}

// CreateAccount creates an account. When in.Password is empty a temporary
// password is generated, returned once, and must be changed on first login.
func (s *Service) CreateAccount(ctx context.Context, actorID string, in CreateInput) (Profile, string, error) {
	username := strings.TrimSpace(in.Username)
	if err := validateUsername(username); err != nil {
		return Profile{}, "", err
	}
	email := strings.TrimSpace(in.Email)
	if err := validateEmail(email); err != nil {
		return Profile{}, "", err
	}
	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{rbac.DefaultRole}
	}
	roles, ok := rbac.NormalizeRoles(roles)
	if !ok {
		return Profile{}, "", fmt.Errorf("%w: unknown role", ErrValidation)
	}

	var (
		temp       string
		password   = in.Password
		mustChange bool
	)
	if password == "" {
		t, err := auth.TemporaryPassword()
		if err != nil {
			return Profile{}, "", err
		}
		temp, password, mustChange = t, t, true
	} else if err := validatePassword(password); err != nil {
		return Profile{}, "", err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Profile{}, "", err
	}

	now := s.clock().UTC()
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	a := Account{
		ID:                 uuid.NewString(),
		Username:           username,
		Name:               strings.TrimSpace(in.Name),
		Email:              email,
		IsActive:           active,
		MustChangePassword: mustChange,
		PasswordHash:       hash,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Create(ctx, a, roles); err != nil {
		return Profile{}, "", err
	}
	s.record(ctx, audit.Event{Type: audit.EventAccountCreated, ActorUserID: actorID, TargetUserID: a.ID, EntityType: "user", EntityID: a.ID})
	return profileOf(a, roles), temp, nil
}

// UpdateAccount applies in to account id as one atomic write. Changing roles,
// the password or the active flag requires the actor to hold the admin role,
// even where the route itself admits leaders.
func (s *Service) UpdateAccount(ctx context.Context, actorID, id string, in UpdateInput) (Profile, error) {
	if err := checkID(id); err != nil {
		return Profile{}, err
	}
	if in.Roles != nil || in.Password != nil || in.IsActive != nil {
		if err := s.requireAdmin(ctx, actorID); err != nil {
			return Profile{}, err
		}
	}

	u := AccountUpdate{}
	if in.Roles != nil {
		normalized, ok := rbac.NormalizeRoles(*in.Roles)
		if !ok {
			return Profile{}, fmt.Errorf("%w: unknown role", ErrValidation)
		}
		u.Roles = normalized
		if u.Roles == nil {
			u.Roles = []string{}
		}
	}
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return Profile{}, err
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return Profile{}, err
		}
		u.PasswordHash = hash
	}

	a, err := s.store.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if in.Name != nil {
		a.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := validateEmail(email); err != nil {
			return Profile{}, err
		}
		a.Email = email
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	u.Account = a
	if err := s.store.Update(ctx, u); err != nil {
		return Profile{}, err
	}
	s.record(ctx, audit.Event{Type: audit.EventAccountUpdated, ActorUserID: actorID, TargetUserID: id, EntityType: "user", EntityID: id})
	return s.GetAccount(ctx, id)
}

// requireAdmin reuses the roles the gate loaded for this request when present.
func (s *Service) requireAdmin(ctx context.Context, actorID string) error {
	roles, ok := rbac.RolesFrom(ctx)
	if !ok {
		var err error
		if roles, err = s.store.Roles(ctx, actorID); err != nil {
			return err
		}
	}
	if !rbac.HasRole(roles, rbac.RoleAdmin) {
		return rbac.ErrForbidden
	}
	return nil
}

func (s *Service) DeleteAccount(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return fmt.Errorf("%w: cannot delete your own account", ErrValidation)
	}
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	// Postgres cascades; other ledgers need the explicit sweep.
	if _, err := s.ledger.RevokeAllForUser(ctx, id); err != nil {
		s.logger(ctx).WarnContext(ctx, "session cleanup after delete failed", "user_id", id, "err", err)
	}
	s.record(ctx, audit.Event{Type: audit.EventAccountDeleted, ActorUserID: actorID, TargetUserID: id, EntityType: "user", EntityID: id})
	return nil
}

// SetStatus toggles the active flag. Existing sessions are not revoked:
// an inactive account can no longer log in or refresh, and its outstanding
// access token expires on its own.
func (s *Service) SetStatus(ctx context.Context, actorID, id string, active bool) (Profile, error) {
	if err := checkID(id); err != nil {
		return Profile{}, err
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return Profile{}, err
	}
	msg := "deactivated"
	if active {
		msg = "activated"
	}
	s.record(ctx, audit.Event{Type: audit.EventAccountStatus, ActorUserID: actorID, TargetUserID: id, EntityType: "user", EntityID: id, Message: msg})
	return s.GetAccount(ctx, id)
}

// ResetPassword generates a temporary password for id and returns it to the
// calling administrator.
func (s *Service) ResetPassword(ctx context.Context, actorID, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return "", err
	}
	temp, err := s.issueTemporaryPassword(ctx, id)
	if err != nil {
		return "", err
	}
	s.record(ctx, audit.Event{Type: audit.EventPasswordReset, ActorUserID: actorID, TargetUserID: id, EntityType: "user", EntityID: id, Message: "temporary password"})
	return temp, nil
}

// SetPassword stores an administrator-chosen password; the owner must change
// it on next login.
func (s *Service) SetPassword(ctx context.Context, actorID, id, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, id, hash, true); err != nil {
		return err
	}
	s.record(ctx, audit.Event{Type: audit.EventPasswordReset, ActorUserID: actorID, TargetUserID: id, EntityType: "user", EntityID: id, Message: "password set by administrator"})
	return nil
}

// Bootstrap creates the initial administrator unless username already exists.
// When password is empty a temporary one is generated and returned.
func (s *Service) Bootstrap(ctx context.Context, username, password, email, name string) (created bool, temp string, err error) {
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return false, "", nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, "", err
	}
	_, temp, err = s.CreateAccount(ctx, "", CreateInput{
		Username: username,
		Name:     name,
		Email:    email,
		Password: password,
		Roles:    []string{rbac.RoleAdmin},
	})
	if err != nil {
		return false, "", err
	}
	return true, temp, nil
}

/* ===================== HELPERS ===================== */

// logger prefers the request-scoped logger so entries carry the request id.
func (s *Service) logger(ctx context.Context) *slog.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return s.log
}

func (s *Service) record(ctx context.Context, e audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, e); err != nil {
		s.logger(ctx).WarnContext(ctx, "audit append failed", "type", string(e.Type), "err", err)
	}
}

// checkID rejects ids that cannot name an account; they would otherwise reach
// the uuid column as a cast error instead of a miss.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return nil
}

func validatePassword(p string) error {
	if len(p) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	return nil
}

func validateUsername(u string) error {
	if u == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if len(u) > 150 || strings.ContainsAny(u, " \t\r\n") {
		return fmt.Errorf("%w: invalid username", ErrValidation)
	}
	return nil
}

func validateEmail(e string) error {
	if e == "" {
		return nil
	}
	at := strings.LastIndex(e, "@")
	if at <= 0 || at == len(e)-1 || strings.ContainsAny(e, " \t\r\n") {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return nil
}

// CountAccounts feeds the dashboard summary.
func (s *Service) CountAccounts(ctx context.Context) (int, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}
