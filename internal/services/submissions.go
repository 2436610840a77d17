package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

const maxProofLength = 2000

// Submissions handles proof for manual tasks and its review.
type Submissions struct {
	store  Store
	play   *Play
	now    Clock
	logger *zap.Logger
}

func NewSubmissions(s Store, play *Play, now Clock, logger *zap.Logger) *Submissions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submissions{store: s, play: play, now: now, logger: logger}
}

// Submit files proof for a manual task. The record is written with the
// caller's rights: users may only create pending submissions of their own.
func (s *Submissions) Submit(ctx context.Context, uid, taskID, proof string) (*models.Submission, error) {
	proof = strings.TrimSpace(proof)
	if proof == "" || len(proof) > maxProofLength {
		return nil, ErrInvalidInput
	}
	task, err := s.play.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Kind != models.TaskManual {
		return nil, ErrNotManualTask
	}
	if !task.Active {
		return nil, ErrTaskInactive
	}

	sub := models.Submission{
		ID:        uuid.NewString(),
		UserID:    uid,
		TaskID:    taskID,
		Proof:     proof,
		Status:    models.SubmissionPending,
		Reward:    task.Reward,
		CreatedAt: s.now().UTC(),
	}
	rec, err := store.RecordFrom(sub)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, store.Join(store.CollectionSubmissions, sub.ID), rec); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Review approves or rejects a pending submission; approval credits the
// task reward. Admin only.
func (s *Submissions) Review(ctx context.Context, id string, approve bool, note string) (*models.Submission, error) {
	caller, _ := store.CallerFrom(ctx)
	path := store.Join(store.CollectionSubmissions, id)
	now := s.now().UTC()

	var sub models.Submission
	err := s.store.RunAtomic(ctx, func(tx store.Tx) error {
		rec, err := tx.Get(path)
		if err != nil {
			return err
		}
		if rec == nil {
			return models.ErrNotFound
		}
		if err := store.Decode(rec, &sub); err != nil {
			return err
		}
		if sub.Status != models.SubmissionPending {
			return ErrAlreadyReviewed
		}

		sub.Status = models.SubmissionRejected
		if approve {
			sub.Status = models.SubmissionApproved
		}
		sub.ReviewedBy = caller.UID
		sub.ReviewedAt = &now
		sub.Note = strings.TrimSpace(note)
		tx.Update(path, store.Record{
			"status":     sub.Status,
			"reviewedBy": sub.ReviewedBy,
			"reviewedAt": now,
			"note":       sub.Note,
		})
		if approve {
			u, err := txProfile(tx, sub.UserID)
			if err != nil {
				return err
			}
			tx.Update(store.UserPath(sub.UserID), store.Record{"walletBalance": money(u.WalletBalance + sub.Reward)})
			s.play.reward(tx, sub.UserID, sub.Reward, "submission:"+sub.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Submission reviewed",
		zap.String("submission", id),
		zap.String("status", sub.Status),
		zap.String("reviewer", caller.UID))
	return &sub, nil
}

// Mine lists uid's submissions, newest first.
func (s *Submissions) Mine(ctx context.Context, uid string) ([]models.Submission, error) {
	recs, err := s.store.GetMany(ctx, store.NewQuery(store.CollectionSubmissions).
		Where("userId", "==", uid).
		Order("createdAt", true))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Submission](recs)
}

// Pending lists submissions awaiting review, oldest first. Admin only.
func (s *Submissions) Pending(ctx context.Context) ([]models.Submission, error) {
	recs, err := s.store.GetMany(ctx, store.NewQuery(store.CollectionSubmissions).
		Where("status", "==", models.SubmissionPending).
		Order("createdAt", false))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Submission](recs)
}
