// Package session resolves the bearer token the simulator reports with.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoToken means no usable token could be obtained.
var ErrNoToken = errors.New("no authentication token")

// TokenStore caches tokens between runs. A miss returns "", nil.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Authenticator logs a collector in.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

type Resolver struct {
	Auth  Authenticator
	Store TokenStore // optional
	TTL   time.Duration
	Log   *slog.Logger
}

// Resolve returns, in order of preference: the explicit token, a cached token
// for username, or a fresh one from Login (which is then cached).
func (r *Resolver) Resolve(ctx context.Context, explicit, username, password string) (string, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	if explicit != "" {
		return explicit, nil
	}

	key := tokenKey(username)
	if r.Store != nil {
		tok, err := r.Store.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("token cache read failed", "err", err)
		case tok != "":
			log.Info("using cached token", "username", username)
			return tok, nil
		}
	}

	if r.Auth == nil || username == "" {
		return "", ErrNoToken
	}
	log.Info("logging in", "username", username)
	tok, err := r.Auth.Login(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoToken, err)
	}
	log.Info("login successful", "username", username)

	if r.Store != nil && r.TTL > 0 {
		if err := r.Store.Set(ctx, key, tok, r.TTL); err != nil {
			log.Warn("token cache write failed", "err", err)
		}
	}
	return tok, nil
}

// Invalidate drops the cached token for username so the next Resolve logs in
// again. It is a no-op without a store.
func (r *Resolver) Invalidate(ctx context.Context, username string) error {
	if r.Store == nil || username == "" {
		return nil
	}
	if err := r.Store.Delete(ctx, tokenKey(username)); err != nil {
		return fmt.Errorf("drop cached token: %w", err)
	}
	return nil
}

func tokenKey(username string) string { return "collector-simulator:token:" + username }
