package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/auth"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/service"
)

// ProfileHandler serves the caller's own profile, other profiles' views and
// the directory search.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

type addPostRequest struct {
	MediaRef string `json:"mediaRef"`
	Caption  string `json:"caption"`
}

// HandleMe returns the caller's full profile.
//
// HTTP: GET /api/me
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.profiles.Me(r.Context(), caller)
	if err != nil {
		logError(h.logger, "me", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleUpdateMe patches the caller's own scalar fields.
//
// HTTP: PATCH /api/me
// REQUEST BODY: any of {"displayName", "bio", "avatarRef", "contactPhone"}
//
// Any other key, e.g. "followers" or "username", is a 400.
func (h *ProfileHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var upd model.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.profiles.UpdateProfile(r.Context(), caller, upd)
	if err != nil {
		logError(h.logger, "update profile", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleAddPost appends a post to the caller's profile.
//
// HTTP: POST /api/me/posts
// REQUEST BODY: {"mediaRef": "...", "caption": "..."}
func (h *ProfileHandler) HandleAddPost(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req addPostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	post, err := h.profiles.AddPost(r.Context(), caller, req.MediaRef, req.Caption)
	if err != nil {
		logError(h.logger, "add post", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// HandleGetProfile returns the view of {username} the caller is allowed to see.
//
// HTTP: GET /api/profiles/{username}
//
// The body's "view" key is "full" or "restricted".
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.profiles.GetProfileView(r.Context(), caller, chi.URLParam(r, "username"))
	if err != nil {
		logError(h.logger, "get profile view", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSearch matches profiles by username or display name.
//
// HTTP: GET /api/search?q=ali
func (h *ProfileHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := h.profiles.SearchProfiles(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		logError(h.logger, "search profiles", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// principal returns the verified caller id RequireAuth put in the context.
func principal(r *http.Request) (string, error) {
	id, ok := auth.ProfileIDFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthenticated("valid authentication required")
	}
	return id, nil
}

// logError logs server-side failures. Client errors (4xx) are already in the
// request log and are not repeated here.
func logError(logger *slog.Logger, op string, err error) {
	if _, clientErr := statusByKind[apperror.Kind(err)]; clientErr {
		return
	}
	logger.Error(op+" failed", slog.String("error", err.Error()))
}
