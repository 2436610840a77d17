package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
	"github.com/AnshRaj112/taskverse-backend/pkg/utils"
)

const maxDeposit = 100000

type Wallet struct {
	store    Store
	settings *Settings
	cipher   *utils.Cipher
	now      Clock
	logger   *zap.Logger
}

func NewWallet(s Store, settings *Settings, cipher *utils.Cipher, now Clock, logger *zap.Logger) *Wallet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wallet{store: s, settings: settings, cipher: cipher, now: now, logger: logger}
}

// Deposit credits amount to uid's wallet and records a completed deposit.
func (w *Wallet) Deposit(ctx context.Context, uid string, amount float64, method string) (*models.Transaction, error) {
	if amount <= 0 || amount > maxDeposit {
		return nil, ErrInvalidAmount
	}
	if _, err := loadProfile(ctx, w.store, uid); err != nil {
		return nil, err
	}

	entry := models.Transaction{
		ID:        uuid.NewString(),
		UserID:    uid,
		Kind:      models.TxDeposit,
		Amount:    money(amount),
		Status:    models.TxCompleted,
		Method:    strings.TrimSpace(method),
		CreatedAt: w.now().UTC(),
	}
	err := w.store.RunAtomic(store.SystemContext(ctx), func(tx store.Tx) error {
		u, err := txProfile(tx, uid)
		if err != nil {
			return err
		}
		tx.Update(store.UserPath(uid), store.Record{"walletBalance": money(u.WalletBalance + entry.Amount)})
		tx.Set(store.Join(store.CollectionTransactions, entry.ID), ledgerEntry(entry))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("depositing: %w", err)
	}
	w.logger.Info("Deposit recorded",
		zap.String("uid", uid),
		zap.Float64("amount", entry.Amount))
	return &entry, nil
}

// RequestWithdrawal holds amount from the wallet until an admin reviews the
// payout. The account number is stored encrypted.
func (w *Wallet) RequestWithdrawal(ctx context.Context, uid string, amount float64, account string) (*models.Transaction, error) {
	account = strings.TrimSpace(account)
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if account == "" {
		return nil, fmt.Errorf("%w: payout account is required", ErrInvalidInput)
	}
	settings, err := w.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if amount < settings.MinWithdrawal {
		return nil, ErrBelowMinimum
	}
	if _, err := loadProfile(ctx, w.store, uid); err != nil {
		return nil, err
	}

	sealed, err := w.cipher.Encrypt(account)
	if err != nil {
		return nil, fmt.Errorf("encrypting payout account: %w", err)
	}
	entry := models.Transaction{
		ID:        uuid.NewString(),
		UserID:    uid,
		Kind:      models.TxWithdrawal,
		Amount:    money(amount),
		Status:    models.TxPending,
		Reference: utils.Mask(account),
		Account:   sealed,
		CreatedAt: w.now().UTC(),
	}
	err = w.store.RunAtomic(store.SystemContext(ctx), func(tx store.Tx) error {
		u, err := txProfile(tx, uid)
		if err != nil {
			return err
		}
		if u.WalletBalance < entry.Amount {
			return ErrInsufficientFunds
		}
		tx.Update(store.UserPath(uid), store.Record{"walletBalance": money(u.WalletBalance - entry.Amount)})
		tx.Set(store.Join(store.CollectionTransactions, entry.ID), ledgerEntry(entry))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReviewWithdrawal completes or rejects a pending withdrawal. Rejection
// refunds the held amount. It runs with the caller's rights, so only admins
// get past the store rules.
func (w *Wallet) ReviewWithdrawal(ctx context.Context, txID string, approve bool) (*models.Transaction, error) {
	path := store.Join(store.CollectionTransactions, txID)
	var reviewed models.Transaction
	err := w.store.RunAtomic(ctx, func(tx store.Tx) error {
		rec, err := tx.Get(path)
		if err != nil {
			return err
		}
		if rec == nil {
			return models.ErrNotFound
		}
		if err := store.Decode(rec, &reviewed); err != nil {
			return err
		}
		if reviewed.Kind != models.TxWithdrawal || reviewed.Status != models.TxPending {
			return ErrAlreadyReviewed
		}

		reviewed.Status = models.TxCompleted
		if !approve {
			reviewed.Status = models.TxRejected
		}
		// The status write claims the withdrawal; the refund commits with it.
		tx.Update(path, store.Record{"status": reviewed.Status})
		if !approve {
			u, err := txProfile(tx, reviewed.UserID)
			if err != nil {
				return err
			}
			tx.Update(store.UserPath(reviewed.UserID), store.Record{"walletBalance": money(u.WalletBalance + reviewed.Amount)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reviewed, nil
}

// PayoutAccount reveals the account number of a withdrawal to an admin.
func (w *Wallet) PayoutAccount(ctx context.Context, txID string) (string, error) {
	caller, ok := store.CallerFrom(ctx)
	path := store.Join(store.CollectionTransactions, txID)
	if !ok || !caller.IsAdmin() {
		return "", models.NewPermissionError(path, models.OpReadOne, nil)
	}
	rec, err := w.store.GetOne(ctx, path)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", models.ErrNotFound
	}
	sealed, _ := rec["account"].(string)
	if sealed == "" {
		return "", errors.New("transaction has no payout account")
	}
	return w.cipher.Decrypt(sealed)
}

// History lists uid's latest transactions, newest first.
func (w *Wallet) History(ctx context.Context, uid string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	recs, err := w.store.GetMany(ctx, store.NewQuery(store.CollectionTransactions).
		Where("userId", "==", uid).
		Order("createdAt", true).
		WithLimit(limit))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Transaction](recs)
}

// Withdrawals lists withdrawals in the given status for admins.
func (w *Wallet) Withdrawals(ctx context.Context, status string) ([]models.Transaction, error) {
	q := store.NewQuery(store.CollectionTransactions).Where("kind", "==", models.TxWithdrawal)
	if status != "" {
		q = q.Where("status", "==", status)
	}
	recs, err := w.store.GetMany(ctx, q.Order("createdAt", false))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Transaction](recs)
}
