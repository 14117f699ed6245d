package accounts

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/AdolfoEscobar473/hospital/internal/config"
)

func TestSMTPNotifier_ComposesMessage(t *testing.T) {
	n := NewSMTPNotifier(config.MailConfig{Host: "smtp.hospital.test", Port: 587, From: "calidad@hospital.test"})

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	n.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := n.SendTemporaryPassword(context.Background(), Account{ID: "u1", Name: "Ana", Email: "ana@hospital.test"}, "tmp-XYZ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.hospital.test:587" {
		t.Fatalf("unexpected addr %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "ana@hospital.test" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
	if !strings.Contains(gotMsg, "tmp-XYZ") || !strings.Contains(gotMsg, "To: ana@hospital.test") {
		t.Fatalf("unexpected message:\n%s", gotMsg)
	}
}

func TestSMTPNotifier_RequiresEmail(t *testing.T) {
	n := NewSMTPNotifier(config.MailConfig{Host: "smtp.hospital.test", Port: 25})
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatalf("send must not be called")
		return nil
	}
	if err := n.SendTemporaryPassword(context.Background(), Account{ID: "u1"}, "x"); err != ErrNoRecipient {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}
