package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/taskverse-backend/internal/handlers"
	"github.com/AnshRaj112/taskverse-backend/internal/middleware"
)

// SetupRoutes mounts the JSON API and the live gateway. authenticate resolves
// bearer tokens into the request caller.
func SetupRoutes(r chi.Router, api *handlers.API, gateway http.Handler, authenticate func(http.Handler) http.Handler) {
	r.Get("/health", handlers.Health)

	// Live gateway: authenticates its own connections (header, ?token= or an auth message)
	r.Handle("/ws/live", gateway)

	r.Route("/api", func(r chi.Router) {
		// Public auth routes
		r.Post("/auth/signup", api.Signup)
		r.Post("/auth/signin", api.Signin)
		r.Post("/auth/forgot-password", api.ForgotPassword)
		r.Post("/auth/reset-password", api.ResetPassword)
		r.Post("/auth/verify-email", api.VerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireAuth)

			r.Post("/auth/signout", api.Signout)
			r.Get("/auth/me", api.Me)
			r.Post("/auth/send-verification", api.SendVerification)

			// Profile
			r.Put("/profile", api.UpdateProfile)
			r.Post("/profile/avatar", api.UploadAvatar)

			// Tasks and play
			r.Get("/settings", api.GetSettings)
			r.Get("/tasks", api.ListTasks)
			r.With(middleware.RankingRateLimit()).Get("/tasks/personalized", api.PersonalizedTasks)
			r.Post("/tasks/{taskID}/complete", api.CompleteTask)
			r.Post("/tasks/{taskID}/reset-attempts", api.ResetAttempts)
			r.Post("/tasks/{taskID}/submissions", api.SubmitProof)
			r.Get("/submissions", api.MySubmissions)
			r.Post("/tiles/{tileID}/visit", api.VisitTile)
			r.Post("/checkin", api.DailyCheckin)

			// Wallet
			r.Post("/wallet/deposit", api.Deposit)
			r.Post("/wallet/withdraw", api.Withdraw)
			r.Get("/wallet/transactions", api.Transactions)

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Get("/users", api.AdminListUsers)
				r.Put("/users/{uid}/role", api.AdminSetRole)
				r.Put("/users/{uid}/level", api.AdminSetLevel)
				r.Post("/users/{uid}/adjust-balance", api.AdminAdjustBalance)

				r.Get("/withdrawals", api.AdminWithdrawals)
				r.Put("/withdrawals/{txID}", api.AdminReviewWithdrawal)
				r.Get("/withdrawals/{txID}/account", api.AdminPayoutAccount)

				r.Get("/submissions", api.AdminPendingSubmissions)
				r.Put("/submissions/{submissionID}", api.AdminReviewSubmission)

				r.Get("/agents", api.AdminListAgents)
				r.Post("/agents", api.AdminSaveAgent)
				r.Delete("/agents/{agentID}", api.AdminDeleteAgent)

				r.Post("/tasks", api.AdminSaveTask)
				r.Delete("/tasks/{taskID}", api.AdminDeleteTask)

				r.Put("/settings", api.AdminUpdateSettings)

				r.Get("/denials", api.AdminDenials)
				r.Get("/blocked-ips", api.AdminBlockedIPs)
				r.Put("/unblock-ip", api.AdminUnblockIP)
			})
		})
	})
}
