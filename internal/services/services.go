// Package services holds the game, wallet and admin operations of the
// platform. Reads and writes made on behalf of a caller go through the
// guarded store so denials reach the caller's error channel; balance changes
// run as trusted atomic transactions after the caller has been authorized.
package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrBelowMinimum      = errors.New("amount is below the minimum withdrawal")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrAttemptLimit      = errors.New("daily attempt limit reached")
	ErrLevelTooLow       = errors.New("task requires a higher level")
	ErrTaskInactive      = errors.New("task is not active")
	ErrManualTask        = errors.New("task is completed by submitting proof")
	ErrNotManualTask     = errors.New("task does not take submissions")
	ErrAlreadyVisited    = errors.New("tile already visited")
	ErrAlreadyCheckedIn  = errors.New("already checked in today")
	ErrAlreadyReviewed   = errors.New("already reviewed")
	ErrInvalidInput      = errors.New("invalid input")
)

// Store is the guarded store: the document store plus one-shot queries.
type Store interface {
	store.Store
	GetMany(ctx context.Context, q store.Query) ([]store.Record, error)
}

// Clock returns the current time; tests replace it.
type Clock func() time.Time

func (c Clock) today() string {
	return c().UTC().Format("2006-01-02")
}

func money(v float64) float64 {
	return math.Round(v*100) / 100
}

// loadProfile reads users/<uid> with the caller's rights, which authorizes
// the caller to act on that profile.
func loadProfile(ctx context.Context, s Store, uid string) (*models.UserProfile, error) {
	rec, err := s.GetOne(ctx, store.UserPath(uid))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, models.ErrNotFound
	}
	var u models.UserProfile
	if err := store.Decode(rec, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func txProfile(tx store.Tx, uid string) (*models.UserProfile, error) {
	rec, err := tx.Get(store.UserPath(uid))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, models.ErrNotFound
	}
	var u models.UserProfile
	if err := store.Decode(rec, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func decodeAll[T any](recs []store.Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := store.Decode(rec, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ledgerEntry builds the record of a wallet transaction.
func ledgerEntry(t models.Transaction) store.Record {
	rec := store.Record{
		"id":        t.ID,
		"userId":    t.UserID,
		"kind":      t.Kind,
		"amount":    t.Amount,
		"status":    t.Status,
		"createdAt": t.CreatedAt,
	}
	if t.Method != "" {
		rec["method"] = t.Method
	}
	if t.Reference != "" {
		rec["reference"] = t.Reference
	}
	if t.Account != "" {
		rec["account"] = t.Account
	}
	return rec
}
