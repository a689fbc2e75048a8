/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything past this
	tokenIssuer       = "codenames"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

type authService struct {
	accounts AccountStore
	secret   []byte
	tokenTTL time.Duration
	cost     int
	now      func() time.Time
}

func newAuthService(cfg *Config, accounts AccountStore) (*authService, error) {
	secret := []byte(cfg.jwtSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := crand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating token secret: %w", err)
		}
		logf(cfg, "AUTH: No --jwt-secret set, login tokens will not survive a restart")
	}

	return &authService{
		accounts: accounts,
		secret:   secret,
		tokenTTL: cfg.tokenTTL,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}, nil
}

func checkCredentials(username, password string) error {
	if !usernamePattern.MatchString(username) {
		return &ValidationError{Field: "username", Err: errors.New("must be 3-32 letters, digits, '.', '-' or '_'")}
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return &ValidationError{Field: "password", Err: fmt.Errorf("must be %d-%d bytes", minPasswordLength, maxPasswordLength)}
	}
	return nil
}

func (s *authService) Register(ctx context.Context, username, password string) (Account, error) {
	if err := checkCredentials(username, password); err != nil {
		return Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Account{}, err
	}

	return s.accounts.Create(ctx, username, string(hash))
}

// Login does not say whether the username or the password was wrong.
func (s *authService) Login(ctx context.Context, username, password string) (Account, string, error) {
	acct, err := s.accounts.ByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrNotFound):
		return Account{}, "", ErrInvalidCredentials
	case err != nil:
		return Account{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Account{}, "", ErrInvalidCredentials
	}

	now := s.now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   acct.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}).SignedString(s.secret)
	if err != nil {
		return Account{}, "", err
	}

	return acct, token, nil
}

// Verify resolves a login token back to its account.
func (s *authService) Verify(ctx context.Context, token string) (Account, error) {
	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Account{}, ErrInvalidCredentials
	}

	acct, err := s.accounts.ByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrNotFound):
		return Account{}, ErrInvalidCredentials
	case err != nil:
		return Account{}, err
	}

	return acct, nil
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, error) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			err = &ValidationError{Field: "body", Err: errors.New("username and password are required")}
		}
		return req, err
	}
	return req, nil
}

func serveRegister(cfg *Config, s *authService, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		req, err := decodeCredentials(w, r)
		if err != nil {
			serveError(cfg, w, r, "AUTH", "register", err, errs)

			return
		}

		acct, err := s.Register(r.Context(), req.Username, req.Password)
		if err != nil {
			serveError(cfg, w, r, "AUTH", "register "+req.Username, err, errs)

			return
		}

		logf(cfg, "AUTH: Registered %q (%s) for %s", acct.Username, acct.ID, realIP(r))

		if _, err := writeJSON(cfg, w, http.StatusCreated, accountResponse{ID: acct.ID, Username: acct.Username}); err != nil {
			errs <- err
		}
	}
}

func serveLogin(cfg *Config, s *authService, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		req, err := decodeCredentials(w, r)
		if err != nil {
			serveError(cfg, w, r, "AUTH", "login", err, errs)

			return
		}

		acct, token, err := s.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			serveError(cfg, w, r, "AUTH", "login "+req.Username, err, errs)

			return
		}

		logf(cfg, "AUTH: Logged in %q for %s", acct.Username, realIP(r))

		if _, err := writeJSON(cfg, w, http.StatusOK, accountResponse{ID: acct.ID, Username: acct.Username, Token: token}); err != nil {
			errs <- err
		}
	}
}

func serveMe(cfg *Config, s *authService, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			serveError(cfg, w, r, "AUTH", "whoami", ErrInvalidCredentials, errs)

			return
		}

		acct, err := s.Verify(r.Context(), token)
		if err != nil {
			serveError(cfg, w, r, "AUTH", "whoami", err, errs)

			return
		}

		if _, err := writeJSON(cfg, w, http.StatusOK, accountResponse{ID: acct.ID, Username: acct.Username}); err != nil {
			errs <- err
		}
	}
}

func registerAuthRoutes(cfg *Config, path string, mux *httprouter.Router, s *authService, errs chan<- error) {
	base := cfg.prefix + path

	mux.POST(base+"/register", serveRegister(cfg, s, errs))
	mux.POST(base+"/login", serveLogin(cfg, s, errs))
	mux.GET(base+"/me", serveMe(cfg, s, errs))
}
