/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func decodeAccount(t *testing.T, body []byte) accountResponse {
	t.Helper()

	var acct accountResponse
	if err := json.Unmarshal(body, &acct); err != nil {
		t.Fatalf("decoding %q: %v", body, err)
	}
	return acct
}

func TestRegisterEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodPost, "/auth/register", `{"username":"Alice","password":"correct horse"}`)
	expectStatus(t, w, http.StatusCreated)

	acct := decodeAccount(t, w.Body.Bytes())
	if acct.Username != "alice" || len(acct.ID) != 36 || acct.Token != "" {
		t.Fatalf("got %+v", acct)
	}

	w = s.do(http.MethodPost, "/auth/register", `{"username":"ALICE","password":"another one"}`)
	expectStatus(t, w, http.StatusConflict)

	for _, body := range []string{
		`{"username":"al","password":"long enough"}`,
		`{"username":"has space","password":"long enough"}`,
		`{"username":"bob","password":"short"}`,
		`{"username":"bob"}`,
		`{"username":`,
		``,
	} {
		w := s.do(http.MethodPost, "/auth/register", body)
		expectStatus(t, w, http.StatusBadRequest)
	}
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	expectStatus(t, s.do(http.MethodPost, "/auth/register", `{"username":"bob","password":"hunter2hunter2"}`), http.StatusCreated)

	wrongPassword := s.do(http.MethodPost, "/auth/login", `{"username":"bob","password":"hunter3hunter3"}`)
	unknownUser := s.do(http.MethodPost, "/auth/login", `{"username":"carol","password":"hunter2hunter2"}`)

	expectStatus(t, wrongPassword, http.StatusUnauthorized)
	expectStatus(t, unknownUser, http.StatusUnauthorized)
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Fatalf("login failures are distinguishable: %q vs %q", wrongPassword.Body.String(), unknownUser.Body.String())
	}

	w := s.do(http.MethodPost, "/auth/login", `{"username":"BOB","password":"hunter2hunter2"}`)
	expectStatus(t, w, http.StatusOK)

	login := decodeAccount(t, w.Body.Bytes())
	if login.Token == "" || login.Username != "bob" {
		t.Fatalf("got %+v", login)
	}

	w = s.do(http.MethodGet, "/auth/me", "", "Authorization", "Bearer "+login.Token)
	expectStatus(t, w, http.StatusOK)
	if me := decodeAccount(t, w.Body.Bytes()); me.ID != login.ID || me.Username != "bob" {
		t.Fatalf("me = %+v, want %+v", me, login)
	}

	expectStatus(t, s.do(http.MethodGet, "/auth/me", ""), http.StatusUnauthorized)
	expectStatus(t, s.do(http.MethodGet, "/auth/me", "", "Authorization", login.Token), http.StatusUnauthorized)
	expectStatus(t, s.do(http.MethodGet, "/auth/me", "", "Authorization", "Bearer garbage"), http.StatusUnauthorized)

	s.clock.advance(time.Hour + time.Second)
	expectStatus(t, s.do(http.MethodGet, "/auth/me", "", "Authorization", "Bearer "+login.Token), http.StatusUnauthorized)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	cfg := &Config{tokenTTL: time.Hour, jwtSecret: "first secret"}
	accounts := newMemoryAccounts()

	issuer, err := newAuthService(cfg, accounts)
	if err != nil {
		t.Fatalf("newAuthService failed: %v", err)
	}
	issuer.cost = bcrypt.MinCost

	if _, err := issuer.Register(context.Background(), "dave", "password123"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, token, err := issuer.Login(context.Background(), "dave", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := issuer.Verify(context.Background(), token); err != nil {
		t.Fatalf("Verify rejected its own token: %v", err)
	}

	other, _ := newAuthService(&Config{tokenTTL: time.Hour, jwtSecret: "second secret"}, accounts)
	if _, err := other.Verify(context.Background(), token); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for a foreign token, got %v", err)
	}

	// Signed correctly, but for an account that no longer resolves.
	empty, _ := newAuthService(cfg, newMemoryAccounts())
	if _, err := empty.Verify(context.Background(), token); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for an unknown subject, got %v", err)
	}
}

func TestMemoryAccounts(t *testing.T) {
	accounts := newMemoryAccounts()
	ctx := context.Background()

	acct, err := accounts.Create(ctx, "Erin", "hash")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := accounts.Create(ctx, "erin", "hash"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	byName, err := accounts.ByUsername(ctx, "ERIN")
	if err != nil || byName.ID != acct.ID {
		t.Fatalf("ByUsername = %+v, %v", byName, err)
	}

	if _, err := accounts.ByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := accounts.ByUsername(ctx, "frank"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
