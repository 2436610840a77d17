package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

func TestDepositCreditsWallet(t *testing.T) {
	f := newFixture(t)
	f.seedUser("u1", 10, 1)

	entry, err := f.wallet.Deposit(f.as("u1"), "u1", 25.5, "agent")
	require.NoError(t, err)

	assert.Equal(t, 25.5, entry.Amount)
	assert.Equal(t, 35.5, f.profile("u1").WalletBalance)
	txs := f.ledger("u1")
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxDeposit, txs[0].Kind)
	assert.Equal(t, models.TxCompleted, txs[0].Status)
	assert.Equal(t, "agent", txs[0].Method)
}

func TestDepositForSomeoneElseIsDenied(t *testing.T) {
	f := newFixture(t)
	f.seedUser("u1", 10, 1)
	f.seedUser("u2", 10, 1)

	_, err := f.wallet.Deposit(f.as("u1"), "u2", 5, "")
	require.ErrorIs(t, err, models.ErrPermissionDenied)
	require.Len(t, f.denied, 1)
	assert.Equal(t, "users/u2", f.denied[0].Path())
	assert.Equal(t, models.OpReadOne, f.denied[0].Operation())
	assert.Equal(t, 10.0, f.profile("u2").WalletBalance)

	_, err = f.wallet.Deposit(f.as("u1"), "u1", 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWithdrawalLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedUser("u1", 50, 1)
	user := f.as("u1")

	_, err := f.wallet.RequestWithdrawal(user, "u1", 5, "1234567890")
	assert.ErrorIs(t, err, ErrBelowMinimum)
	_, err = f.wallet.RequestWithdrawal(user, "u1", 80, "1234567890")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	entry, err := f.wallet.RequestWithdrawal(user, "u1", 20, "1234567890")
	require.NoError(t, err)
	assert.Equal(t, models.TxPending, entry.Status)
	assert.Equal(t, "******7890", entry.Reference)
	assert.NotContains(t, entry.Account, "1234567890")
	assert.Equal(t, 30.0, f.profile("u1").WalletBalance)

	// Users cannot review their own payouts.
	_, err = f.wallet.ReviewWithdrawal(user, entry.ID, true)
	require.ErrorIs(t, err, models.ErrPermissionDenied)
	require.Len(t, f.denied, 1)
	assert.Equal(t, models.OpWrite, f.denied[0].Operation())

	account, err := f.wallet.PayoutAccount(f.asAdmin(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "1234567890", account)
	_, err = f.wallet.PayoutAccount(user, entry.ID)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	reviewed, err := f.wallet.ReviewWithdrawal(f.asAdmin(), entry.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.TxRejected, reviewed.Status)
	assert.Equal(t, 50.0, f.profile("u1").WalletBalance, "rejection refunds")

	_, err = f.wallet.ReviewWithdrawal(f.asAdmin(), entry.ID, true)
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestWithdrawalApprovalKeepsDebit(t *testing.T) {
	f := newFixture(t)
	f.seedUser("u1", 50, 1)

	entry, err := f.wallet.RequestWithdrawal(f.as("u1"), "u1", 15, "acct-0001")
	require.NoError(t, err)
	reviewed, err := f.wallet.ReviewWithdrawal(f.asAdmin(), entry.ID, true)
	require.NoError(t, err)

	assert.Equal(t, models.TxCompleted, reviewed.Status)
	assert.Equal(t, 35.0, f.profile("u1").WalletBalance)

	pending, err := f.wallet.Withdrawals(f.asAdmin(), models.TxPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHistoryIsScopedToCaller(t *testing.T) {
	f := newFixture(t)
	f.seedUser("u1", 0, 1)
	f.seedUser("u2", 0, 1)
	_, err := f.wallet.Deposit(f.as("u1"), "u1", 5, "")
	require.NoError(t, err)
	_, err = f.wallet.Deposit(f.as("u2"), "u2", 7, "")
	require.NoError(t, err)

	txs, err := f.wallet.History(f.as("u1"), "u1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 5.0, txs[0].Amount)

	_, err = f.wallet.History(f.as("u1"), "u2", 0)
	require.ErrorIs(t, err, models.ErrPermissionDenied)
	require.Len(t, f.denied, 1)
	assert.Equal(t, models.OpReadMany, f.denied[0].Operation())
}
