package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

type CompleteTaskRequest struct {
	Score int `json:"score"`
}

type SubmitProofRequest struct {
	Proof string `json:"proof"`
}

// ListTasks returns the active task catalogue.
func (a *API) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.Play.Catalog(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"tasks": tasks, "total": len(tasks)})
}

// PersonalizedTasks orders the tasks the caller may play, best first. The
// ordering falls back to the catalogue order when ranking is unavailable.
func (a *API) PersonalizedTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := a.profile(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	tasks, err := a.Play.Catalog(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	order := a.Personalizer.Personalize(ctx, profile, tasks)
	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	ordered := make([]models.Task, 0, len(order))
	for _, id := range order {
		ordered = append(ordered, byID[id])
	}
	writeSuccess(w, http.StatusOK, "", envelope{"order": order, "tasks": ordered})
}

func (a *API) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var req CompleteTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := a.Play.CompleteTask(r.Context(), principal(r).UID, chi.URLParam(r, "taskID"), req.Score)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	message := "Task failed, try again"
	if result.Passed {
		message = "Task completed"
	}
	writeSuccess(w, http.StatusOK, message, envelope{"result": result})
}

// ResetAttempts buys another round of attempts at the configured price.
func (a *API) ResetAttempts(w http.ResponseWriter, r *http.Request) {
	tx, err := a.Play.PurchaseAttemptReset(r.Context(), principal(r).UID, chi.URLParam(r, "taskID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Attempts reset", envelope{"transaction": tx})
}

func (a *API) VisitTile(w http.ResponseWriter, r *http.Request) {
	reward, err := a.Play.VisitTile(r.Context(), principal(r).UID, chi.URLParam(r, "tileID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Tile discovered", envelope{"reward": reward})
}

func (a *API) DailyCheckin(w http.ResponseWriter, r *http.Request) {
	reward, err := a.Play.DailyCheckin(r.Context(), principal(r).UID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Checked in", envelope{"reward": reward})
}

// SubmitProof files proof for a manual task.
func (a *API) SubmitProof(w http.ResponseWriter, r *http.Request) {
	var req SubmitProofRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Proof) == "" {
		writeError(w, http.StatusBadRequest, "Proof is required")
		return
	}
	sub, err := a.Submissions.Submit(r.Context(), principal(r).UID, chi.URLParam(r, "taskID"), req.Proof)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Submission received", envelope{"submission": sub})
}

func (a *API) MySubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := a.Submissions.Mine(r.Context(), principal(r).UID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"submissions": subs, "total": len(subs)})
}

// GetSettings exposes the platform settings players see (prices, limits).
func (a *API) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.Settings.Get(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"settings": settings})
}

// profile reads the caller's profile with the caller's rights.
func (a *API) profile(r *http.Request) (*models.UserProfile, error) {
	rec, err := a.Store.GetOne(r.Context(), store.UserPath(principal(r).UID))
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
