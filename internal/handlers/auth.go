package handlers

import (
	"net/http"
	"strings"

	"github.com/AnshRaj112/taskverse-backend/internal/middleware"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

// SignupRequest creates an email/password account.
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// SigninRequest exchanges credentials for a session token.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// Signup handles account registration. The profile record is provisioned on
// the client's first live session, not here.
func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, token, err := a.Auth.CreateAccount(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Account created successfully", envelope{"user": p, "token": token})
}

// Signin handles email/password login.
func (a *API) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	p, token, err := a.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Login successful", envelope{"user": p, "token": token})
}

// Signout revokes the bearer session.
func (a *API) Signout(w http.ResponseWriter, r *http.Request) {
	if err := a.Auth.SignOut(r.Context(), middleware.BearerToken(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Signed out", nil)
}

// Me returns the principal and, once provisioned, the profile.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	rec, err := a.Store.GetOne(r.Context(), store.UserPath(p.UID))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var profile *models.UserProfile
	if rec != nil {
		profile = &models.UserProfile{}
		if err := store.Decode(rec, profile); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	writeSuccess(w, http.StatusOK, "", envelope{"user": p, "profile": profile})
}

// ForgotPassword always answers the same way so accounts cannot be enumerated.
func (a *API) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	if err := a.Auth.SendPasswordReset(r.Context(), req.Email); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "If an account exists for that email, a reset link has been sent", nil)
}

func (a *API) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Reset token is required")
		return
	}
	if err := a.Auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password updated. Please sign in again", nil)
}

// SendVerification mails a fresh verification link to the signed-in principal.
func (a *API) SendVerification(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p.EmailVerified {
		writeSuccess(w, http.StatusOK, "Email already verified", nil)
		return
	}
	if err := a.Auth.SendEmailVerification(r.Context(), p); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Verification email sent", nil)
}

func (a *API) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.Auth.VerifyEmail(r.Context(), req.Token); err != nil {
		a.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Email verified", nil)
}
