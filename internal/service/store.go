package service

import (
	"context"
	"errors"
	"time"

	"examhall/internal/database"
	"examhall/internal/models"
	"examhall/internal/repository"
)

// Store bundles the repositories the coordinators share, plus the per-key
// locks that stand in for row locks on stores without them.
type Store struct {
	DB          *database.DB
	Sessions    *repository.SessionRepository
	Enrollments *repository.EnrollmentRepository
	Stats       *repository.StatsRepository
	locks       *database.KeyedMutex
}

// NewStore creates a Store over db
func NewStore(db *database.DB) *Store {
	return &Store{
		DB:          db,
		Sessions:    repository.NewSessionRepository(db),
		Enrollments: repository.NewEnrollmentRepository(db),
		Stats:       repository.NewStatsRepository(db),
		locks:       database.NewKeyedMutex(),
	}
}

// txRepos are the repositories bound to one transaction
type txRepos struct {
	tx          *database.Tx
	sessions    *repository.SessionRepository
	enrollments *repository.EnrollmentRepository
}

// inLockedTx runs fn in a transaction serialized with every other holder of
// lockKey. Where the database has row locks, the SELECT ... FOR UPDATE issued
// inside fn is the serialization point; otherwise an in-process keyed mutex
// is held for the lifetime of the transaction.
func (s *Store) inLockedTx(ctx context.Context, lockKey string, fn func(r *txRepos) error) error {
	if !s.DB.Dialect.SupportsRowLocking() {
		unlock := s.locks.Lock(lockKey)
		defer unlock()
	}

	var rejected error
	err := s.DB.WithTx(ctx, func(tx *database.Tx) error {
		rejected = nil
		err := fn(&txRepos{
			tx:          tx,
			sessions:    s.Sessions.WithTx(tx),
			enrollments: s.Enrollments.WithTx(tx),
		})
		var rej *rejection
		if errors.As(err, &rej) {
			rejected = rej.err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return rejected
}

// rejection is an operation refused after the session status was brought up
// to date. The transaction still commits so the applied steps, and the
// timestamps they stamped, are kept.
type rejection struct {
	err error
}

func (r *rejection) Error() string { return r.err.Error() }

func (r *rejection) Unwrap() error { return r.err }

// reject refuses the operation but keeps the status steps already applied in
// the transaction. Only use it before the operation itself has written anything.
func reject(err error) error {
	return &rejection{err: err}
}

// advanceSession brings s up to its status at now, one conditional update per
// step. Losing an update means another caller moved the session first, so the
// row is re-read and the walk continues from there. Terminal statuses end the
// walk, as does the session disappearing.
func advanceSession(ctx context.Context, repo *repository.SessionRepository, s *models.Session, now time.Time) ([]models.Transition, error) {
	var applied []models.Transition

	for {
		target := models.StatusAt(s, now)
		if s.Status == target {
			return applied, nil
		}
		next := models.NextStep(s.Status)
		if next == "" {
			return applied, nil
		}

		won, err := repo.TransitionStatus(ctx, s.ID, s.Status, next, now)
		if err != nil {
			return applied, err
		}
		if !won {
			fresh, err := repo.GetByID(ctx, s.ID)
			if err != nil {
				return applied, err
			}
			if fresh == nil {
				return applied, nil
			}
			*s = *fresh
			continue
		}

		applied = append(applied, models.Transition{SessionID: s.ID, From: s.Status, To: next, At: now})
		models.ApplyStep(s, next, now)
	}
}
