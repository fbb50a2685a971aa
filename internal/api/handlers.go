package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sondrmsk/divrec/internal/approve"
	"github.com/sondrmsk/divrec/internal/domain"
	"github.com/sondrmsk/divrec/internal/ingestion"
	"github.com/sondrmsk/divrec/internal/logging"
	"github.com/sondrmsk/divrec/internal/notify"
	"github.com/sondrmsk/divrec/internal/report"
	"github.com/sondrmsk/divrec/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	ingestionSvc *ingestion.Service
	approver     *approve.Approver
	notifier     notify.Notifier

	recRepo  *repository.RecordRepo
	pairRepo *repository.PairRepo
	remRepo  *repository.RemediationRepo

	log zerolog.Logger
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logging.New("api")
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var already *domain.AlreadyDecidedError
	var precondition *domain.PreconditionError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDecision):
		return http.StatusBadRequest
	case errors.As(err, &already):
		return http.StatusConflict
	case errors.As(err, &precondition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// --- RunCycle ---

// RunCycle accepts the two booking files as a multipart form (fields
// "origin" and "counterparty") and runs one reconciliation cycle.
func (h *Handlers) RunCycle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	originData, err := readFormFile(r, "origin")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	counterData, err := readFormFile(r, "counterparty")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.ingestionSvc.IngestPair(r.Context(), originData, counterData)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, errors.New(field + " file field is required")
	}
	defer file.Close()
	return io.ReadAll(file)
}

// --- ListPairs ---

func (h *Handlers) ListPairs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cycleID := q.Get("cycle_id")
	if cycleID == "" {
		var err error
		if cycleID, err = h.recRepo.LatestCycleID(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if cycleID == "" {
			writeJSON(w, http.StatusOK, map[string]any{"pairs": []any{}, "total": 0})
			return
		}
	}

	filter := repository.PairFilter{
		CycleID:     cycleID,
		Severity:    domain.Severity(q.Get("severity")),
		MinSeverity: domain.Severity(q.Get("min_severity")),
	}
	pairs, err := h.pairRepo.List(h.recRepo, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cycle_id": cycleID,
		"pairs":    pairs,
		"total":    len(pairs),
	})
}

// --- ListCandidates ---

func (h *Handlers) ListCandidates(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "ref is required")
		return
	}

	cands, err := h.remRepo.ListCandidates(ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"discrepancy_ref": ref,
		"candidates":      cands,
		"total":           len(cands),
	})
}

// --- DecideCandidate ---

type decisionRequest struct {
	Decision domain.Decision `json:"decision"`
	Approver string          `json:"approver"`
}

// DecideCandidate applies an ACCEPT or REJECT verdict to one candidate.
// This is the human-in-the-loop surface.
func (h *Handlers) DecideCandidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Approver == "" {
		writeError(w, http.StatusBadRequest, "approver is required")
		return
	}

	cand, _, err := h.remRepo.GetCandidate(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	approval, err := h.approver.Decide(r.Context(), *cand, req.Decision, req.Approver)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := map[string]any{"decision": req.Decision, "discrepancy_ref": cand.DiscrepancyRef}
	if approval != nil {
		resp["approval"] = approval
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- GetReport ---

func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.buildReport(r.URL.Query().Get("cycle_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// NotifyReport assembles the current report and hands it to the
// notifier collaborator.
func (h *Handlers) NotifyReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.buildReport(r.URL.Query().Get("cycle_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	delivered := true
	if err := h.notifier.Deliver(r.Context(), rep); err != nil {
		// Delivery is the collaborator's problem; the core only logs it.
		h.log.Warn().Err(err).Msg("notifier delivery failed")
		delivered = false
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": delivered, "summary": rep.Summary})
}

func (h *Handlers) buildReport(cycleID string) (*domain.Report, error) {
	if cycleID == "" {
		var err error
		if cycleID, err = h.recRepo.LatestCycleID(); err != nil {
			return nil, err
		}
	}

	var pairs []domain.DiscrepancyPair
	if cycleID != "" {
		var err error
		pairs, err = h.pairRepo.List(h.recRepo, repository.PairFilter{CycleID: cycleID})
		if err != nil {
			return nil, err
		}
	}

	approvals, err := h.remRepo.ListApprovals()
	if err != nil {
		return nil, err
	}
	return report.Build(pairs, approvals), nil
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	cycleID, err := h.recRepo.LatestCycleID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cycleID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"cycles": 0})
		return
	}

	severities, err := h.pairRepo.SeveritySummary(cycleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	approvals, err := h.remRepo.ListApprovals()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"latest_cycle": cycleID,
		"by_severity":  severities,
		"approvals":    len(approvals),
	})
}
