package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/hospital-registration-agent/internal/observability/metrics"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

// DefaultTTL is how long a session may idle before it is treated as absent
const DefaultTTL = 30 * time.Minute

var (
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt means a stored session could not be decoded
	ErrCorrupt = errors.New("session corrupt")
)

// Repository persists raw sessions keyed by sender id. Implementations apply no expiry.
type Repository interface {
	Load(ctx context.Context, senderID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, senderID string) error
}

// Store applies the idle expiry policy on top of a Repository.
// Expiry is checked lazily on every read; there is no sweeper.
type Store struct {
	repo    Repository
	ttl     time.Duration
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

type Option func(*Store)

// WithClock overrides time.Now, used by tests to age sessions
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

func NewStore(repo Repository, ttl time.Duration, logger *logging.Logger, opts ...Option) *Store {
	if repo == nil {
		panic("session: repository required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{repo: repo, ttl: ttl, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the sender's session. Missing and expired sessions come back as a fresh
// StepNone session; expired ones are purged on the way. Undecodable sessions are
// purged too and reported as ErrCorrupt so the caller can tell the user.
func (s *Store) Get(ctx context.Context, senderID string) (*Session, error) {
	sess, err := s.repo.Load(ctx, senderID)
	if errors.Is(err, ErrNotFound) {
		return New(senderID), nil
	}
	if errors.Is(err, ErrCorrupt) {
		if derr := s.repo.Delete(ctx, senderID); derr != nil {
			return nil, fmt.Errorf("purge corrupt session: %w", derr)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if s.now().Sub(sess.UpdatedAt) > s.ttl {
		s.metrics.ObserveSessionExpired()
		if err := s.repo.Delete(ctx, senderID); err != nil {
			// still expired on the next read, so nothing can resurrect it
			s.logger.Warn("failed to purge expired session", "sender", senderID, "error", err)
		}
		return New(senderID), nil
	}

	if !sess.Active() {
		return New(senderID), nil
	}
	return sess, nil
}

// Set stamps UpdatedAt with the server clock and persists sess.
// Setting an idle session deletes it instead.
func (s *Store) Set(ctx context.Context, sess *Session) error {
	if !sess.Active() {
		return s.Delete(ctx, sess.SenderID)
	}
	sess.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, senderID string) error {
	if err := s.repo.Delete(ctx, senderID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// TTL returns the idle expiry window
func (s *Store) TTL() time.Duration {
	return s.ttl
}
