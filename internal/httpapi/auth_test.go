package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"crofflepos/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: domain.RoleAdmin, Active: true, CreatedAt: time.Now().UTC()},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, "123456", store)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if got := store.users["admin"].Password; got == "admin123" || !strings.HasPrefix(got, "$2") {
		t.Fatalf("expected password to be upgraded to bcrypt, got %q", got)
	}
	if store.updates != 1 {
		t.Fatalf("expected one password upgrade, got %d", store.updates)
	}

	// A second login must not rehash.
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if store.updates != 1 {
		t.Fatalf("expected no further upgrades, got %d", store.updates)
	}
}

func TestLoginTokenCarriesStoreScope(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"kiosk.manager": {Username: "kiosk.manager", Password: "kiosk-pass", Role: domain.RoleManager, StoreIDs: []string{"mall-kiosk"}, Active: true},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, "", store)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Kiosk.Manager ", Password: "kiosk-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "kiosk.manager" || actor.Role != domain.RoleManager {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if !actor.CanAccessStore("mall-kiosk") || actor.CanAccessStore("main-store") {
		t.Fatalf("unexpected store scope: %v", actor.StoreIDs)
	}
}

func TestLoginRejectsInactiveAndWrongPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"gone": {Username: "gone", Password: "secret-pass", Role: domain.RoleCashier, Active: false},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, "", store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "gone", Password: "secret-pass"}); err != errInactiveAccount {
		t.Fatalf("expected inactive account error, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "gone", Password: "nope"}); err != errInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "nobody", Password: "nope"}); err != errInvalidCredentials {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: domain.RoleAdmin, Active: true},
		},
	}
	issuer := NewAuthManager("first-secret", time.Hour, "", store)
	verifier := NewAuthManager("second-secret", time.Hour, "", store)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := issuer.ParseToken(resp.AccessToken + "x"); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "739154", &userStoreStub{users: map[string]domain.UserAccount{}})
	if manager.managerPIN == "739154" {
		t.Fatalf("expected manager PIN to be stored as hash")
	}
	if !manager.ValidateManagerPIN("739154") {
		t.Fatalf("expected PIN validation to succeed")
	}
	if manager.ValidateManagerPIN("000000") {
		t.Fatalf("expected wrong PIN to fail validation")
	}
}

func TestEmptyManagerPINNeverValidates(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "", nil)
	if manager.ValidateManagerPIN("") || manager.ValidateManagerPIN("123456") {
		t.Fatalf("expected validation to fail without a configured PIN")
	}
}
