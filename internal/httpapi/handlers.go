package httpapi

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/Freeeeeet/tutorflow/internal/report"
	"github.com/Freeeeeet/tutorflow/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput("id", "must be a positive integer")
	}
	return id, nil
}

// POST /v1/requests
func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var in service.CreateRequestInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	req, err := s.engagement.CreateRequest(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GET /v1/requests?status=ready_to_match
func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	status := model.RequestStatusReadyToMatch
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := model.ParseRequestStatus(raw)
		if err != nil {
			writeError(w, apperrors.InvalidInput("status", err.Error()))
			return
		}
		status = parsed
	}
	requests, err := s.engagement.ListRequests(r.Context(), actorFrom(r.Context()), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// GET /v1/requests/{id}
func (s *Server) getEngagement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := s.engagement.GetEngagement(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// POST /v1/payments
func (s *Server) recordPayment(w http.ResponseWriter, r *http.Request) {
	var in service.RecordPaymentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	record, err := s.engagement.RecordPayment(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// POST /v1/payments/{id}/verify
func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pkg, err := s.engagement.VerifyPayment(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

// POST /v1/payments/{id}/reject
func (s *Server) rejectPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body reasonBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engagement.RejectPayment(r.Context(), actorFrom(r.Context()), id, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/matches
func (s *Server) assignTutor(w http.ResponseWriter, r *http.Request) {
	var in service.AssignTutorInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	matchID, err := s.engagement.AssignTutor(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"match_id": matchID})
}

// GET /v1/matches/{id}
func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	match, err := s.engagement.GetMatch(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

type matchDetailsBody struct {
	MeetLink        *string                `json:"meet_link"`
	SchedulePattern *model.SchedulePattern `json:"schedule_pattern"`
}

// PATCH /v1/matches/{id}
func (s *Server) updateMatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body matchDetailsBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ctx, actor := r.Context(), actorFrom(r.Context())
	if err := s.engagement.UpdateMatchDetails(ctx, actor, id, body.MeetLink, body.SchedulePattern); err != nil {
		writeError(w, err)
		return
	}
	match, err := s.engagement.GetMatch(ctx, actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

type reassignBody struct {
	TutorID int64  `json:"tutor_id"`
	Reason  string `json:"reason"`
}

// POST /v1/matches/{id}/reassign
func (s *Server) reassignTutor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body reassignBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engagement.ReassignTutor(r.Context(), actorFrom(r.Context()), id, body.TutorID, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/matches/{id}/generate
func (s *Server) generateSessions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.engagement.GenerateSessions(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type statusBody struct {
	Status string `json:"status"`
}

// POST /v1/matches/{id}/status
func (s *Server) setEngagementStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body statusBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	to, err := model.ParseMatchStatus(body.Status)
	if err != nil {
		writeError(w, apperrors.InvalidInput("status", err.Error()))
		return
	}
	if err := s.engagement.SetEngagementStatus(r.Context(), actorFrom(r.Context()), id, to); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/matches/{id}/sessions
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sessions, err := s.ledger.ListByMatch(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GET /v1/matches/{id}/ledger.xlsx
func (s *Server) exportLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, actor := r.Context(), actorFrom(r.Context())

	match, err := s.engagement.GetMatch(ctx, actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := s.engagement.GetEngagement(ctx, actor, match.RequestID)
	if err != nil {
		writeError(w, err)
		return
	}

	// файл целиком в памяти, чтобы ошибка excelize вернулась JSON-ом
	var buf bytes.Buffer
	if err := report.WriteLedger(&buf, report.Ledger{
		Request:  e.Request,
		Match:    e.Match,
		Packages: e.Packages,
		Sessions: e.Sessions,
	}); err != nil {
		s.logger.Error("Failed to build ledger export", zap.Int64("match_id", id), zap.Error(err))
		writeError(w, apperrors.Internal("failed to build ledger"))
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.FileName(id, s.now())+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GET /v1/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := s.ledger.Get(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type sessionStatusBody struct {
	RequestID int64   `json:"request_id"`
	Status    string  `json:"status"`
	Notes     *string `json:"notes"`
}

// POST /v1/sessions/{id}/status
func (s *Server) updateSessionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body sessionStatusBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	status, err := model.ParseSessionStatus(body.Status)
	if err != nil {
		writeError(w, apperrors.InvalidInput("status", err.Error()))
		return
	}
	res, err := s.ledger.UpdateStatus(r.Context(), actorFrom(r.Context()), id, body.RequestID, status, body.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rescheduleBody struct {
	StartUTC time.Time `json:"start_utc"`
	EndUTC   time.Time `json:"end_utc"`
	Reason   string    `json:"reason"`
}

// POST /v1/sessions/{id}/reschedule
func (s *Server) rescheduleSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body rescheduleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.ledger.Reschedule(r.Context(), actorFrom(r.Context()), id, body.StartUTC.UTC(), body.EndUTC.UTC(), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

var entityTypes = map[string]model.EntityType{
	string(model.EntityRequest): model.EntityRequest,
	string(model.EntityPackage): model.EntityPackage,
	string(model.EntityPayment): model.EntityPayment,
	string(model.EntityMatch):   model.EntityMatch,
	string(model.EntitySession): model.EntitySession,
}

// GET /v1/audit/{entity}/{id}
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	entity, ok := entityTypes[chi.URLParam(r, "entity")]
	if !ok {
		writeError(w, apperrors.InvalidInput("entity", "unknown entity type"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.engagement.History(r.Context(), actorFrom(r.Context()), entity, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// POST /v1/packages/expire запускает обход вне расписания
func (s *Server) expirePackages(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r.Context()).HasRole(model.RoleAdmin) {
		writeError(w, apperrors.Forbidden("admin role required"))
		return
	}
	n, err := s.engagement.ExpirePackages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}
