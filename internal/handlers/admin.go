package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/pkg/clientip"
)

type SetRoleRequest struct {
	Role string `json:"role"`
}

type SetLevelRequest struct {
	Level int `json:"level"`
}

type AdjustBalanceRequest struct {
	Delta float64 `json:"delta"`
	Note  string  `json:"note"`
}

type ReviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note,omitempty"`
}

type UnblockIPRequest struct {
	IP string `json:"ip"`
}

// Admin rights on these endpoints are enforced by the store rules through the
// caller attached by Authenticate; a non-admin gets 403 with the denied
// operation.

func (a *API) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.Admin.ListUsers(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"users": users, "total": len(users)})
}

func (a *API) AdminSetRole(w http.ResponseWriter, r *http.Request) {
	var req SetRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.Admin.SetRole(r.Context(), chi.URLParam(r, "uid"), strings.TrimSpace(req.Role)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Role updated", nil)
}

func (a *API) AdminSetLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLevelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.Admin.SetLevel(r.Context(), chi.URLParam(r, "uid"), req.Level); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Level updated", nil)
}

func (a *API) AdminAdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req AdjustBalanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tx, err := a.Admin.AdjustBalance(r.Context(), chi.URLParam(r, "uid"), req.Delta, req.Note)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Balance adjusted", envelope{"transaction": tx})
}

func (a *API) AdminWithdrawals(w http.ResponseWriter, r *http.Request) {
	txs, err := a.Wallet.Withdrawals(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"withdrawals": txs, "total": len(txs)})
}

// AdminReviewWithdrawal approves a withdrawal or rejects it with a refund.
func (a *API) AdminReviewWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tx, err := a.Wallet.ReviewWithdrawal(r.Context(), chi.URLParam(r, "txID"), req.Approve)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Withdrawal reviewed", envelope{"transaction": tx})
}

// AdminPayoutAccount reveals the decrypted payout account of a withdrawal.
func (a *API) AdminPayoutAccount(w http.ResponseWriter, r *http.Request) {
	account, err := a.Wallet.PayoutAccount(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"account": account})
}

func (a *API) AdminPendingSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := a.Submissions.Pending(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"submissions": subs, "total": len(subs)})
}

func (a *API) AdminReviewSubmission(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := a.Submissions.Review(r.Context(), chi.URLParam(r, "submissionID"), req.Approve, req.Note)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Submission reviewed", envelope{"submission": sub})
}

func (a *API) AdminListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := a.Admin.ListAgents(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"agents": agents, "total": len(agents)})
}

func (a *API) AdminSaveAgent(w http.ResponseWriter, r *http.Request) {
	var req models.Agent
	if !decodeJSON(w, r, &req) {
		return
	}
	agent, err := a.Admin.SaveAgent(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Agent saved", envelope{"agent": agent})
}

func (a *API) AdminDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := a.Admin.DeleteAgent(r.Context(), chi.URLParam(r, "agentID")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Agent deleted", nil)
}

func (a *API) AdminSaveTask(w http.ResponseWriter, r *http.Request) {
	var req models.Task
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := a.Admin.SaveTask(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Task saved", envelope{"task": task})
}

func (a *API) AdminDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := a.Admin.DeleteTask(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Task deleted", nil)
}

func (a *API) AdminUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.PlatformSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.Settings.Update(r.Context(), req); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Settings updated", envelope{"settings": req})
}

// AdminDenials lists the most recent permission denials, newest first.
func (a *API) AdminDenials(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	if a.Audit == nil {
		writeSuccess(w, http.StatusOK, "", envelope{"denials": []any{}, "count": 0})
		return
	}
	entries, err := a.Audit.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"denials": entries, "count": len(entries)})
}

// AdminBlockedIPs returns all currently blocked IP addresses.
func (a *API) AdminBlockedIPs(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	if a.Blocklist == nil {
		writeSuccess(w, http.StatusOK, "", envelope{"blocked_ips": []string{}, "count": 0})
		return
	}
	ips, err := a.Blocklist.Blocked(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if ips == nil {
		ips = []string{}
	}
	writeSuccess(w, http.StatusOK, "", envelope{"blocked_ips": ips, "count": len(ips)})
}

// AdminUnblockIP unblocks an IP address.
func (a *API) AdminUnblockIP(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req UnblockIPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ip := clientip.Normalize(req.IP)
	if ip == "" {
		writeError(w, http.StatusBadRequest, "IP address is required")
		return
	}
	if a.Blocklist == nil {
		writeSuccess(w, http.StatusOK, "IP address is not currently blocked", nil)
		return
	}
	blocked, err := a.Blocklist.IsBlocked(r.Context(), ip)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !blocked {
		writeSuccess(w, http.StatusOK, "IP address is not currently blocked", nil)
		return
	}
	if err := a.Blocklist.Unblock(r.Context(), ip); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "IP address unblocked", nil)
}
