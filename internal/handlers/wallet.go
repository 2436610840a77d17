package handlers

import (
	"net/http"
	"strings"
)

type DepositRequest struct {
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
}

type WithdrawRequest struct {
	Amount  float64 `json:"amount"`
	Account string  `json:"account"`
}

func (a *API) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tx, err := a.Wallet.Deposit(r.Context(), principal(r).UID, req.Amount, req.Method)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Deposit completed", envelope{"transaction": tx})
}

// Withdraw files a withdrawal request; the amount is held until an admin
// reviews it.
func (a *API) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Account) == "" {
		writeError(w, http.StatusBadRequest, "Payout account is required")
		return
	}
	tx, err := a.Wallet.RequestWithdrawal(r.Context(), principal(r).UID, req.Amount, req.Account)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Withdrawal requested", envelope{"transaction": tx})
}

func (a *API) Transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := a.Wallet.History(r.Context(), principal(r).UID, queryInt(r, "limit", 50))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"transactions": txs, "total": len(txs)})
}
