package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sondrmsk/divrec/internal/approve"
	"github.com/sondrmsk/divrec/internal/ingestion"
	"github.com/sondrmsk/divrec/internal/logging"
	"github.com/sondrmsk/divrec/internal/notify"
	"github.com/sondrmsk/divrec/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	ingestionSvc *ingestion.Service,
	approver *approve.Approver,
	notifier notify.Notifier,
	recRepo *repository.RecordRepo,
	pairRepo *repository.PairRepo,
	remRepo *repository.RemediationRepo,
) http.Handler {
	h := &Handlers{
		ingestionSvc: ingestionSvc,
		approver:     approver,
		notifier:     notifier,
		recRepo:      recRepo,
		pairRepo:     pairRepo,
		remRepo:      remRepo,
		log:          logging.New("api"),
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Reconciliation cycles.
		r.Post("/cycles/run", h.RunCycle)

		// Discrepancy pairs.
		r.Get("/pairs", h.ListPairs)
		r.Get("/pairs/{ref}/candidates", h.ListCandidates)

		// Decisions (human in the loop).
		r.Post("/candidates/{id}/decision", h.DecideCandidate)

		// Reporting.
		r.Get("/report", h.GetReport)
		r.Post("/report/notify", h.NotifyReport)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
