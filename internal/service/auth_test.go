package service

import (
	"context"
	"errors"
	"testing"

	"github.com/paperkeep/paperkeep/internal/middleware"
)

type fakeAuthRepo struct {
	exists     bool
	existsErr  error
	registered []string
}

func (f *fakeAuthRepo) UserExists(_ context.Context, login string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeAuthRepo) RegisterUser(_ context.Context, login string) error {
	f.registered = append(f.registered, login)
	return nil
}

func TestIssueTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(&fakeAuthRepo{}, "test-secret")

	token, err := svc.IssueToken("alice")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	owner, err := middleware.ResolveOwner(token, "test-secret")
	if err != nil {
		t.Fatalf("resolve owner: %v", err)
	}
	if owner != "alice" {
		t.Errorf("owner = %q, want alice", owner)
	}
}

func TestIssueTokenRejectedWithWrongSecret(t *testing.T) {
	svc := NewAuthService(&fakeAuthRepo{}, "test-secret")

	token, err := svc.IssueToken("alice")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := middleware.ResolveOwner(token, "other-secret"); err == nil {
		t.Error("expected validation error with a different secret")
	}
}

func TestAuthServiceDelegatesToRepository(t *testing.T) {
	repo := &fakeAuthRepo{exists: true}
	svc := NewAuthService(repo, "test-secret")
	ctx := context.Background()

	exists, err := svc.UserExists(ctx, "alice")
	if err != nil || !exists {
		t.Errorf("UserExists = (%v, %v), want (true, nil)", exists, err)
	}

	if err := svc.RegisterUser(ctx, "bob"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(repo.registered) != 1 || repo.registered[0] != "bob" {
		t.Errorf("registered = %v, want [bob]", repo.registered)
	}

	repo.existsErr = errors.New("db down")
	if _, err := svc.UserExists(ctx, "alice"); err == nil {
		t.Error("expected repository error to surface")
	}
}
