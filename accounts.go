/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Account is a registered user. Accounts are unrelated to game state.
type Account struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Username     string    `gorm:"uniqueIndex;size:32;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// AccountStore persists accounts. Usernames are unique, case-insensitively.
type AccountStore interface {
	Create(ctx context.Context, username, passwordHash string) (Account, error)
	ByUsername(ctx context.Context, username string) (Account, error)
	ByID(ctx context.Context, id string) (Account, error)
	Close() error
}

// openAccounts uses Postgres when a dsn is configured, otherwise an
// in-process table that is lost on restart.
func openAccounts(cfg *Config) (AccountStore, error) {
	if cfg.databaseDSN == "" {
		logf(cfg, "AUTH: No --database-dsn set, keeping accounts in memory")

		return newMemoryAccounts(), nil
	}

	return newGormAccounts(cfg.databaseDSN)
}

type gormAccounts struct {
	db *gorm.DB
}

func newGormAccounts(dsn string) (*gormAccounts, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Account{}); err != nil {
		return nil, fmt.Errorf("failed to migrate accounts table: %w", err)
	}

	return &gormAccounts{db: db}, nil
}

func (s *gormAccounts) Create(ctx context.Context, username, passwordHash string) (Account, error) {
	acct := Account{
		ID:           uuid.NewString(),
		Username:     strings.ToLower(username),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Create(&acct).Error
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Account{}, ErrUsernameTaken
	case err != nil:
		return Account{}, err
	}

	return acct, nil
}

func (s *gormAccounts) first(ctx context.Context, query string, arg string) (Account, error) {
	var acct Account

	err := s.db.WithContext(ctx).Where(query, arg).First(&acct).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Account{}, ErrNotFound
	case err != nil:
		return Account{}, err
	}

	return acct, nil
}

func (s *gormAccounts) ByUsername(ctx context.Context, username string) (Account, error) {
	return s.first(ctx, "username = ?", strings.ToLower(username))
}

func (s *gormAccounts) ByID(ctx context.Context, id string) (Account, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *gormAccounts) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type memoryAccounts struct {
	mu         sync.RWMutex
	byID       map[string]Account
	byUsername map[string]string
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{
		byID:       make(map[string]Account),
		byUsername: make(map[string]string),
	}
}

func (s *memoryAccounts) Create(_ context.Context, username, passwordHash string) (Account, error) {
	username = strings.ToLower(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[username]; taken {
		return Account{}, ErrUsernameTaken
	}

	acct := Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[acct.ID] = acct
	s.byUsername[username] = acct.ID

	return acct, nil
}

func (s *memoryAccounts) ByUsername(ctx context.Context, username string) (Account, error) {
	s.mu.RLock()
	id, ok := s.byUsername[strings.ToLower(username)]
	s.mu.RUnlock()

	if !ok {
		return Account{}, ErrNotFound
	}

	return s.ByID(ctx, id)
}

func (s *memoryAccounts) ByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}

	return acct, nil
}

func (s *memoryAccounts) Close() error { return nil }
