package accounts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AdolfoEscobar473/hospital/internal/audit"
	"github.com/AdolfoEscobar473/hospital/internal/auth"
	"github.com/AdolfoEscobar473/hospital/internal/config"
	"github.com/AdolfoEscobar473/hospital/internal/rbac"
	"github.com/AdolfoEscobar473/hospital/internal/sessions"

	"golang.org/x/crypto/bcrypt"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string]string
}

func (n *recordingNotifier) SendTemporaryPassword(_ context.Context, a Account, temp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[string]string{}
	}
	n.sent[a.ID] = temp
	return nil
}

type stubLimiter struct {
	allow  bool
	err    error
	resets int
}

func (l *stubLimiter) Allow(context.Context, string) (bool, error) { return l.allow, l.err }
func (l *stubLimiter) Reset(context.Context, string) error        { l.resets++; return nil }

type fixture struct {
	svc      *Service
	store    *MemoryStore
	ledger   *sessions.MemoryLedger
	audits   *audit.MemoryRepo
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	tokens, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	hasher, err := auth.NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	f := fixture{
		store:    NewMemoryStore(),
		ledger:   sessions.NewMemoryLedger(),
		audits:   audit.NewMemoryRepo(),
		notifier: &recordingNotifier{},
	}
	base := []Option{WithAudit(audit.NewService(f.audits)), WithNotifier(f.notifier)}
	f.svc = NewService(f.store, f.ledger, tokens, hasher, append(base, opts...)...)
	return f
}

func (f fixture) createUser(t *testing.T, username, password string, roles ...string) Profile {
	t.Helper()
	p, _, err := f.svc.CreateAccount(context.Background(), "", CreateInput{
		Username: username,
		Name:     username,
		Email:    username + "@hospital.test",
		Password: password,
		Roles:    roles,
	})
	if err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return p
}

func TestLogin_SucceedsAndRecordsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "ana", "secreto1", rbac.RoleLeader)

	sess, err := f.svc.Login(ctx, "ana", "secreto1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.AccessToken == "" || sess.RefreshToken == "" {
		t.Fatalf("expected token pair")
	}
	if len(sess.User.Roles) != 1 || sess.User.Roles[0] != rbac.RoleLeader {
		t.Fatalf("expected leader role, got %v", sess.User.Roles)
	}
	live, err := f.ledger.IsLive(ctx, sess.RefreshToken, time.Now())
	if err != nil || !live {
		t.Fatalf("expected refresh session recorded, live=%v err=%v", live, err)
	}
}

func TestLogin_WrongPasswordAndUnknownUserAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "ana", "secreto1")

	_, errWrong := f.svc.Login(ctx, "ana", "nope")
	_, errUnknown := f.svc.Login(ctx, "nadie", "nope")
	if !errors.Is(errWrong, ErrInvalidCredentials) || !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", errWrong, errUnknown)
	}
	if errWrong.Error() != errUnknown.Error() {
		t.Fatalf("messages differ: %q vs %q", errWrong, errUnknown)
	}
}

func TestLogin_InactiveRejectedRegardlessOfPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "ana", "secreto1")
	if _, err := f.svc.SetStatus(ctx, "", p.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	for _, pw := range []string{"secreto1", "wrong"} {
		if _, err := f.svc.Login(ctx, "ana", pw); !errors.Is(err, ErrAccountInactive) {
			t.Fatalf("password %q: expected ErrAccountInactive, got %v", pw, err)
		}
	}
}

func TestLogin_Throttled(t *testing.T) {
	lim := &stubLimiter{allow: false}
	f := newFixture(t, WithAttemptLimiter(lim))
	f.createUser(t, "ana", "secreto1")

	if _, err := f.svc.Login(context.Background(), "ana", "secreto1"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestLogin_ThrottleFailsOpenAndResetsOnSuccess(t *testing.T) {
	lim := &stubLimiter{err: errors.New("redis down")}
	f := newFixture(t, WithAttemptLimiter(lim))
	f.createUser(t, "ana", "secreto1")

	if _, err := f.svc.Login(context.Background(), "ana", "secreto1"); err != nil {
		t.Fatalf("expected login despite limiter error, got %v", err)
	}
	if lim.resets != 1 {
		t.Fatalf("expected limiter reset after success, got %d", lim.resets)
	}
}

func TestRefresh_RotatesAndRejectsReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "ana", "secreto1")

	first, err := f.svc.Login(ctx, "ana", "secreto1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}
	if _, err := f.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected reuse to fail with ErrInvalidToken, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("rotated token should still work: %v", err)
	}
}

func TestRefresh_RejectsAccessTokenAndGarbage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "ana", "secreto1")
	sess, err := f.svc.Login(ctx, "ana", "secreto1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	for _, tok := range []string{sess.AccessToken, "garbage"} {
		if _, err := f.svc.Refresh(ctx, tok); !errors.Is(err, auth.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	}
}

func TestRefresh_InactiveAccountRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "ana", "secreto1")
	sess, err := f.svc.Login(ctx, "ana", "secreto1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, "", p.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, sess.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRefresh_ConcurrentRotationHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "ana", "secreto1")
	sess, err := f.svc.Login(ctx, "ana", "secreto1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Refresh(ctx, sess.RefreshToken); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful refresh, got %d", wins)
	}
}

func TestLogout_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "ana", "secreto1")
	sess, err := f.svc.Login(ctx, "ana", "secreto1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.svc.Logout(ctx, sess.RefreshToken)
	f.svc.Logout(ctx, sess.RefreshToken)
	f.svc.Logout(ctx, "")

	if _, err := f.svc.Refresh(ctx, sess.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected revoked token to fail refresh, got %v", err)
	}
}

func TestChangePassword_WrongCurrentLeavesHashUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "ana", "secreto1")
	before, _ := f.store.Get(ctx, p.ID)

	err := f.svc.ChangePassword(ctx, p.ID, "incorrecta", "nuevo123")
	if !errors.Is(err, ErrWrongCurrentPassword) {
		t.Fatalf("expected ErrWrongCurrentPassword, got %v", err)
	}
	after, _ := f.store.Get(ctx, p.ID)
	if after.PasswordHash != before.PasswordHash {
		t.Fatalf("hash changed after failed change")
	}
}

func TestChangePassword_ClearsMustChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "ana", "secreto1")
	temp, err := f.svc.ResetPassword(ctx, "", p.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	if err := f.svc.ChangePassword(ctx, p.ID, temp, "nuevo123"); err != nil {
		t.Fatalf("change: %v", err)
	}
	sess, err := f.svc.Login(ctx, "ana", "nuevo123")
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if sess.MustChangePassword {
		t.Fatalf("expected must-change cleared")
	}
}

func TestChangePassword_TooShort(t *testing.T) {
	f := newFixture(t)
	p := f.createUser(t, "ana", "secreto1")
	if err := f.svc.ChangePassword(context.Background(), p.ID, "secreto1", "12345"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestForgotPassword_DeliversOutOfBand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "ana", "secreto1")

	got, err := f.svc.ForgotPassword(ctx, "ana@hospital.test")
	if err != nil {
		t.Fatalf("forgot: %v", err)
	}
	if got != "" {
		t.Fatalf("temporary password must not be returned in-band")
	}
	temp := f.notifier.sent[p.ID]
	if temp == "" {
		t.Fatalf("expected notifier delivery")
	}
	sess, err := f.svc.Login(ctx, "ana", temp)
	if err != nil {
		t.Fatalf("login with temp: %v", err)
	}
	if !sess.MustChangePassword {
		t.Fatalf("expected must-change after forgot password")
	}
}

func TestForgotPassword_UnknownIdentifierIsGeneric(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.ForgotPassword(context.Background(), "nadie")
	if err != nil || got != "" {
		t.Fatalf("expected silent success, got %q %v", got, err)
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestForgotPassword_InBandWhenEnabled(t *testing.T) {
	f := newFixture(t, WithForgotPasswordInBand(true))
	f.createUser(t, "ana", "secreto1")
	got, err := f.svc.ForgotPassword(context.Background(), "ana")
	if err != nil || got == "" {
		t.Fatalf("expected in-band temp password, got %q %v", got, err)
	}
}

func TestCreateAccount_DefaultsAndConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, temp, err := f.svc.CreateAccount(ctx, "", CreateInput{Username: "luis"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if temp == "" || !p.MustChangePassword {
		t.Fatalf("expected generated temp password with must-change")
	}
	if len(p.Roles) != 1 || p.Roles[0] != rbac.DefaultRole {
		t.Fatalf("expected default role, got %v", p.Roles)
	}
	if _, _, err := f.svc.CreateAccount(ctx, "", CreateInput{Username: "luis", Password: "secreto1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, _, err := f.svc.CreateAccount(ctx, "", CreateInput{Username: "eva", Password: "secreto1", Roles: []string{"root"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
}

func TestUpdateAccount_RoleChangeRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.createUser(t, "lider", "secreto1", rbac.RoleLeader)
	admin := f.createUser(t, "admin", "secreto1", rbac.RoleAdmin)
	target := f.createUser(t, "ana", "secreto1", rbac.RoleReader)

	roles := []string{rbac.RoleLeader}
	if _, err := f.svc.UpdateAccount(ctx, leader.ID, target.ID, UpdateInput{Roles: &roles}); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for leader, got %v", err)
	}

	name := "Ana Maria"
	p, err := f.svc.UpdateAccount(ctx, leader.ID, target.ID, UpdateInput{Name: &name})
	if err != nil || p.Name != name {
		t.Fatalf("leader profile update: %v %+v", err, p)
	}

	p, err = f.svc.UpdateAccount(ctx, admin.ID, target.ID, UpdateInput{Roles: &roles})
	if err != nil {
		t.Fatalf("admin role update: %v", err)
	}
	if len(p.Roles) != 1 || p.Roles[0] != rbac.RoleLeader {
		t.Fatalf("expected leader role, got %v", p.Roles)
	}
}

func TestUpdateAccount_ActiveFlagRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.createUser(t, "lider", "secreto1", rbac.RoleLeader)
	admin := f.createUser(t, "admin", "secreto1", rbac.RoleAdmin)

	inactive := false
	if _, err := f.svc.UpdateAccount(ctx, leader.ID, admin.ID, UpdateInput{IsActive: &inactive}); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for leader, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "admin", "secreto1"); err != nil {
		t.Fatalf("admin must still log in: %v", err)
	}

	p, err := f.svc.UpdateAccount(ctx, admin.ID, leader.ID, UpdateInput{IsActive: &inactive})
	if err != nil || p.IsActive {
		t.Fatalf("admin deactivation: %v %+v", err, p)
	}
}

func TestUpdateAccount_AppliesEverythingTogether(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.createUser(t, "admin", "secreto1", rbac.RoleAdmin)
	target := f.createUser(t, "ana", "secreto1", rbac.RoleReader)

	name, password := "Ana Maria", "nueva123"
	roles := []string{rbac.RoleCollaborator}
	p, err := f.svc.UpdateAccount(ctx, admin.ID, target.ID, UpdateInput{Name: &name, Roles: &roles, Password: &password})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Name != name || len(p.Roles) != 1 || p.Roles[0] != rbac.RoleCollaborator {
		t.Fatalf("unexpected profile %+v", p)
	}
	sess, err := f.svc.Login(ctx, "ana", password)
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if !sess.MustChangePassword {
		t.Fatalf("expected must-change after admin edit")
	}
}

func TestAccountIDsThatAreNotUUIDsAreMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.createUser(t, "admin", "secreto1", rbac.RoleAdmin)
	name := "x"

	if _, err := f.svc.GetAccount(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.UpdateAccount(ctx, admin.ID, "abc", UpdateInput{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.SetStatus(ctx, admin.ID, "abc", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("status: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.ResetPassword(ctx, admin.ID, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reset: expected ErrNotFound, got %v", err)
	}
	if err := f.svc.DeleteAccount(ctx, admin.ID, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAccount_CannotDeleteSelf(t *testing.T) {
	f := newFixture(t)
	admin := f.createUser(t, "admin", "secreto1", rbac.RoleAdmin)
	if err := f.svc.DeleteAccount(context.Background(), admin.ID, admin.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSetPassword_MinLengthAndForcesChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "ana", "secreto1")

	if err := f.svc.SetPassword(ctx, "", p.ID, "12345"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := f.svc.SetPassword(ctx, "", p.ID, "123456"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	sess, err := f.svc.Login(ctx, "ana", "123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !sess.MustChangePassword {
		t.Fatalf("expected must-change after admin set")
	}
	if err := f.svc.SetPassword(ctx, "", "missing", "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBootstrap_CreatesAdminOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, temp, err := f.svc.Bootstrap(ctx, "admin", "", "admin@hospital.test", "Administrador")
	if err != nil || !created || temp == "" {
		t.Fatalf("first bootstrap: created=%v temp=%q err=%v", created, temp, err)
	}
	created, _, err = f.svc.Bootstrap(ctx, "admin", "", "", "")
	if err != nil || created {
		t.Fatalf("second bootstrap should be a no-op: created=%v err=%v", created, err)
	}
	a, _ := f.store.FindByUsername(ctx, "admin")
	roles, _ := f.svc.Roles(ctx, a.ID)
	if !rbac.HasRole(roles, rbac.RoleAdmin) {
		t.Fatalf("expected admin role, got %v", roles)
	}
}

func TestLifecycle_WritesAuditEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "ana", "secreto1")
	if _, err := f.svc.Login(ctx, "ana", "bad"); err == nil {
		t.Fatalf("expected failure")
	}
	if _, err := f.svc.Login(ctx, "ana", "secreto1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	var failures, successes int
	for _, e := range f.audits.Events() {
		if e.Type != audit.EventLogin {
			continue
		}
		if e.Status == audit.StatusFailure {
			failures++
		} else {
			successes++
		}
	}
	if failures != 1 || successes != 1 {
		t.Fatalf("expected one failed and one successful login event, got %d/%d", failures, successes)
	}
}
