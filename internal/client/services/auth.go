// Package services contains the application services of the bizsync
// client: authentication and the per-entity Record Service façade.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bizsync/internal/client/client"
	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
)

// ErrNotLoggedIn is returned when no session is stored locally.
var ErrNotLoggedIn = errors.New("not logged in: run login first")

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Login: authenticate against the server and persist the session and
//     tokens locally so later runs (and offline runs) can restore them.
//   - RestoreSession: load the stored session and hand its tokens to the
//     transport; works offline.
//   - Register: create a new user (and company) on the server.
//   - Logout: forget the session and tokens, keeping offline records.
//   - ClearOfflineData: wipe every local record, queue entry and setting.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Login(ctx context.Context, email, password string) (models.SessionContext, error)
	RestoreSession(ctx context.Context) (models.SessionContext, error)
	Register(ctx context.Context, email, password, displayName, companyName string) error
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
}

type authService struct {
	client client.Transport
	store  store.Store
}

// NewAuthService binds the service to a transport and the local store.
// Tokens refreshed by the transport are written back to the store.
func NewAuthService(c client.Transport, s store.Store) AuthService {
	a := &authService{client: c, store: s}
	c.OnTokensRefreshed(func(t client.Tokens) {
		_ = a.saveTokens(context.Background(), t)
	})
	return a
}

func (a *authService) Login(ctx context.Context, email, password string) (models.SessionContext, error) {
	sess, err := a.client.Login(ctx, email, password)
	if err != nil {
		return models.SessionContext{}, fmt.Errorf("login error: %w", err)
	}
	if sess.Context.Email == "" {
		sess.Context.Email = email
	}

	err = a.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := metadata.SetJSON(ctx, tx.Metadata(), metadata.KeySession, sess.Context); err != nil {
			return err
		}
		if err := tx.Metadata().Set(ctx, metadata.KeyAccessToken, []byte(sess.Tokens.AccessToken)); err != nil {
			return err
		}
		return tx.Metadata().Set(ctx, metadata.KeyRefreshToken, []byte(sess.Tokens.RefreshToken))
	})
	if err != nil {
		return models.SessionContext{}, fmt.Errorf("session saving error: %w", err)
	}
	return sess.Context, nil
}

func (a *authService) saveTokens(ctx context.Context, t client.Tokens) error {
	return a.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Metadata().Set(ctx, metadata.KeyAccessToken, []byte(t.AccessToken)); err != nil {
			return err
		}
		return tx.Metadata().Set(ctx, metadata.KeyRefreshToken, []byte(t.RefreshToken))
	})
}

func (a *authService) RestoreSession(ctx context.Context) (models.SessionContext, error) {
	var sess models.SessionContext
	ok, err := metadata.GetJSON(ctx, a.store.Metadata(), metadata.KeySession, &sess)
	if err != nil {
		return models.SessionContext{}, err
	}
	if !ok {
		return models.SessionContext{}, ErrNotLoggedIn
	}

	access, err := a.store.Metadata().Get(ctx, metadata.KeyAccessToken)
	if err != nil {
		return models.SessionContext{}, err
	}
	refresh, err := a.store.Metadata().Get(ctx, metadata.KeyRefreshToken)
	if err != nil {
		return models.SessionContext{}, err
	}
	a.client.SetTokens(client.Tokens{AccessToken: string(access), RefreshToken: string(refresh)})
	return sess, nil
}

func (a *authService) Register(ctx context.Context, email, password, displayName, companyName string) error {
	if err := a.client.Register(ctx, email, password, displayName, companyName); err != nil {
		return fmt.Errorf("register error: %w", err)
	}
	return nil
}

func (a *authService) Logout(ctx context.Context) error {
	a.client.SetTokens(client.Tokens{})
	return a.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		for _, k := range []string{metadata.KeySession, metadata.KeyAccessToken, metadata.KeyRefreshToken} {
			if err := tx.Metadata().Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// ClearOfflineData wipes all local data, including the session.
func (a *authService) ClearOfflineData(ctx context.Context) error {
	a.client.SetTokens(client.Tokens{})
	return store.ClearAll(ctx, a.store)
}
