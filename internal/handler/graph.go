package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/service"
)

// GraphHandler exposes the follow-request lifecycle.
//
// Every route acts as the authenticated caller. The other side is named in
// the URL: by username when the caller acts on someone else's profile, by
// profile id when the caller handles a request on their own.
type GraphHandler struct {
	graph  *service.GraphService
	logger *slog.Logger
}

func NewGraphHandler(graph *service.GraphService, logger *slog.Logger) *GraphHandler {
	return &GraphHandler{graph: graph, logger: logger}
}

type followResponse struct {
	Outcome string `json:"outcome"`
}

// HandleRequestFollow asks to follow {username}.
//
// HTTP: POST /api/profiles/{username}/follow
//
// 202 with {"outcome": "requested"} for a new request, 200 with
// "already_requested" or "already_following" for a no-op.
func (h *GraphHandler) HandleRequestFollow(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := h.graph.RequestFollow(r.Context(), caller, chi.URLParam(r, "username"))
	if err != nil {
		logError(h.logger, "request follow", err)
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if outcome == model.OutcomeRequested {
		status = http.StatusAccepted
	}
	writeJSON(w, status, followResponse{Outcome: string(outcome)})
}

// HandleUnfollow stops following {username}.
//
// HTTP: DELETE /api/profiles/{username}/follow
func (h *GraphHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.graph.Unfollow(r.Context(), caller, chi.URLParam(r, "username")); err != nil {
		logError(h.logger, "unfollow", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWithdrawRequest cancels the caller's pending request on {username}.
//
// HTTP: DELETE /api/profiles/{username}/request
func (h *GraphHandler) HandleWithdrawRequest(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.graph.WithdrawRequest(r.Context(), caller, chi.URLParam(r, "username")); err != nil {
		logError(h.logger, "withdraw request", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListRequests lists who is waiting for the caller's approval.
//
// HTTP: GET /api/me/requests
func (h *GraphHandler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pending, err := h.graph.ListPendingRequests(r.Context(), caller)
	if err != nil {
		logError(h.logger, "list pending requests", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// HandleAcceptRequest accepts {requesterID}'s request.
//
// HTTP: POST /api/me/requests/{requesterID}/accept
func (h *GraphHandler) HandleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.graph.AcceptRequest(r.Context(), caller, chi.URLParam(r, "requesterID")); err != nil {
		logError(h.logger, "accept request", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeclineRequest drops {requesterID}'s request.
//
// HTTP: DELETE /api/me/requests/{requesterID}
func (h *GraphHandler) HandleDeclineRequest(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.graph.DeclineRequest(r.Context(), caller, chi.URLParam(r, "requesterID")); err != nil {
		logError(h.logger, "decline request", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
