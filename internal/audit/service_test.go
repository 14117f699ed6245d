package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestService_AppendRequiresType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{Type: EventLogin, Status: "maybe"}); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if len(repo.Events()) != 0 {
		t.Fatalf("invalid events must not be stored")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := WithRequestMeta(context.Background(), RequestMeta{IP: "1.2.3.4", UserAgent: "curl/8"})

	if err := svc.LogAccountAction(ctx, EventAccountStatus, "admin-1", "user-2", "deactivated"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.IPAddress != "1.2.3.4" || e.UserAgent != "curl/8" {
		t.Fatalf("expected request meta captured, got %+v", e)
	}
	if e.Status != StatusSuccess || e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected defaults filled, got %+v", e)
	}
	if e.EntityType != "user" || e.EntityID != "user-2" {
		t.Fatalf("expected user entity, got %+v", e)
	}
}

func TestPGRepo_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs("e1", "auth.login", StatusFailure, nil, "u1", "", "", "", "", "bad password", nil, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewPGRepo(db)
	err = repo.Append(context.Background(), Event{
		ID:           "e1",
		Type:         EventLogin,
		Status:       StatusFailure,
		TargetUserID: "u1",
		Message:      "bad password",
		CreatedAt:    now,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
