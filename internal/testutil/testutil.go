// Package testutil provides testing utilities for todohub tests.
package testutil

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/store"
)

// TestSecret is a signing secret long enough for auth.NewIssuer.
const TestSecret = "todohub-test-secret-0123456789"

// NewRedis starts a miniredis server that is stopped when the test ends.
func NewRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

// NewStore returns a store backed by a fresh miniredis server.
func NewStore(t *testing.T) (*store.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := NewRedis(t)
	s, err := store.New(&redis.Options{Addr: mr.Addr()}, "test")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// SeedUser logs name in, creating the user.
func SeedUser(t *testing.T, s *store.Store, name string) store.User {
	t.Helper()

	u, err := s.LoginOrCreate(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to seed user %q: %v", name, err)
	}
	return u
}

// SeedCollection creates a collection owned by owner.
func SeedCollection(t *testing.T, s *store.Store, owner store.User) store.Collection {
	t.Helper()

	c, err := s.CreateCollection(context.Background(), owner.ID)
	if err != nil {
		t.Fatalf("failed to seed collection: %v", err)
	}
	return c
}

// NewIssuer returns an issuer signing with TestSecret.
func NewIssuer(t *testing.T) *auth.Issuer {
	t.Helper()

	i, err := auth.NewIssuer(TestSecret, time.Hour, "todohub")
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	return i
}

// IssueToken signs a credential for user.
func IssueToken(t *testing.T, i *auth.Issuer, user store.User) string {
	t.Helper()

	token, err := i.Issue(auth.Identity{UserID: user.ID, Name: user.Name})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

// SkipIfNoGolangciLint skips the test if golangci-lint is not installed.
func SkipIfNoGolangciLint(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint not found in PATH, skipping test")
	}
}
