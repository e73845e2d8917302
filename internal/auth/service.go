package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akatsuki-labs/akatsuki/internal/credentials"
	"github.com/akatsuki-labs/akatsuki/internal/portal"
	"github.com/akatsuki-labs/akatsuki/internal/session"
)

var (
	// ErrLoginRejected means the portal still shows the login form, or an
	// error marker, after the second stage. It is never retried.
	ErrLoginRejected = errors.New("portal rejected login")
	// ErrCredentialsUnavailable wraps credential lookup and validation failures.
	ErrCredentialsUnavailable = errors.New("credentials unavailable")
)

// Session is the authenticated context threaded through funding and purchase.
type Session struct {
	Identity    string
	State       session.State
	Credentials credentials.Bundle
	Reused      bool
}

// Service owns the portal login lifecycle for one execution identity.
type Service struct {
	portal     portal.Portal
	provider   credentials.Provider
	sessions   session.Store
	secretName string
	identity   string
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(p portal.Portal, provider credentials.Provider, sessions session.Store, secretName, identity string, logger *slog.Logger) *Service {
	return &Service{
		portal:     p,
		provider:   provider,
		sessions:   sessions,
		secretName: secretName,
		identity:   identity,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Begin fetches credentials, reuses the stored session when the portal still
// accepts it, and otherwise logs in and stores the new session.
func (s *Service) Begin(ctx context.Context) (Session, error) {
	creds, err := s.provider.Get(ctx, s.secretName)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrCredentialsUnavailable, err)
	}
	if err := creds.Validate(); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrCredentialsUnavailable, err)
	}

	prior, err := s.sessions.Load(ctx, s.identity)
	if err != nil {
		s.logger.Warn("stored session unavailable, logging in", slog.String("identity", s.identity), slog.Any("error", err))
		prior = nil
	}

	state, reused, err := s.EnsureAuthenticated(ctx, creds, prior)
	if err != nil {
		return Session{}, err
	}
	if !reused {
		if err := s.sessions.Save(ctx, s.identity, state); err != nil {
			s.logger.Warn("save session failed", slog.String("identity", s.identity), slog.Any("error", err))
		}
	}
	return Session{Identity: s.identity, State: state, Credentials: creds, Reused: reused}, nil
}

// EnsureAuthenticated checks prior, when given, and performs the two-stage
// login only when the check finds the login form. reused reports whether
// prior was kept.
func (s *Service) EnsureAuthenticated(ctx context.Context, creds credentials.Bundle, prior *session.State) (session.State, bool, error) {
	if prior != nil && len(prior.Blob) > 0 {
		ok, err := s.sessionValid(ctx, prior.Blob)
		if err != nil {
			s.logger.Warn("session check failed", slog.Any("error", err))
		}
		if ok {
			s.logger.Info("session reused", slog.String("identity", s.identity), slog.Time("issued_at", prior.IssuedAt))
			return *prior, true, nil
		}
		s.logger.Info("stored session expired", slog.String("identity", s.identity))
	}

	if err := s.login(ctx, creds); err != nil {
		return session.State{}, false, err
	}
	blob, err := s.portal.ExportSession(ctx)
	if err != nil {
		return session.State{}, false, fmt.Errorf("export session: %w", err)
	}
	s.logger.Info("logged in", slog.String("identity", s.identity), slog.String("credentials", creds.Redacted()))
	return session.State{Blob: blob, IssuedAt: s.now()}, false, nil
}

func (s *Service) sessionValid(ctx context.Context, blob []byte) (bool, error) {
	if err := s.portal.RestoreSession(ctx, blob); err != nil {
		return false, err
	}
	if err := s.portal.OpenHome(ctx); err != nil {
		return false, err
	}
	return s.portal.IsAuthenticatedView(ctx)
}

func (s *Service) login(ctx context.Context, creds credentials.Bundle) error {
	if err := s.portal.OpenHome(ctx); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := s.portal.SubmitIdentifier(ctx, creds.Identifier); err != nil {
		return fmt.Errorf("login stage 1: %w", err)
	}
	if err := s.portal.SubmitAccount(ctx, creds.AccountNumber, creds.PIN, creds.SecondaryCode); err != nil {
		return fmt.Errorf("login stage 2: %w", err)
	}

	failed, err := s.portal.HasErrorMarker(ctx)
	if err != nil {
		return fmt.Errorf("check login result: %w", err)
	}
	if failed {
		return fmt.Errorf("%w: error marker shown", ErrLoginRejected)
	}
	ok, err := s.portal.IsAuthenticatedView(ctx)
	if err != nil {
		return fmt.Errorf("check login result: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: login form still shown", ErrLoginRejected)
	}
	return nil
}

// Forget drops the stored session so the next run logs in afresh.
func (s *Service) Forget(ctx context.Context) error {
	return s.sessions.Clear(ctx, s.identity)
}

// Stored returns the persisted session, or nil.
func (s *Service) Stored(ctx context.Context) (*session.State, error) {
	return s.sessions.Load(ctx, s.identity)
}
