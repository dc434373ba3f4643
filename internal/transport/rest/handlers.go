package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/100x-Engineers100/ugc-tracker/internal/export"
	appCtx "github.com/100x-Engineers100/ugc-tracker/internal/pkg/context"
	"github.com/100x-Engineers100/ugc-tracker/internal/service"
	"github.com/100x-Engineers100/ugc-tracker/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type Handler struct {
	cohorts *service.CohortService
	runner  *service.Runner
}

func NewHandler(cohorts *service.CohortService, runner *service.Runner) *Handler {
	return &Handler{cohorts: cohorts, runner: runner}
}

// userRow is the table shape: the snapshot row plus its 1-based rank.
type userRow struct {
	Rank          int     `json:"rank"`
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	TotalPosts    int     `json:"total_posts"`
	TotalLikes    int     `json:"total_likes"`
	TotalComments int     `json:"total_comments"`
	LastPosted    *string `json:"last_posted"`
}

func toRows(users []domain.CohortUser) []userRow {
	rows := make([]userRow, 0, len(users))
	for i, u := range users {
		row := userRow{
			Rank:          i + 1,
			ID:            u.ID,
			Name:          u.Name,
			Email:         u.Email,
			TotalPosts:    u.TotalPosts,
			TotalLikes:    u.TotalLikes,
			TotalComments: u.TotalComments,
		}
		if u.LastPosted != nil {
			s := u.LastPosted.UTC().Format(time.RFC3339)
			row.LastPosted = &s
		}
		rows = append(rows, row)
	}
	return rows
}

// Users returns the cohort table: all rows, snapshot order, ranks 1..N.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	cohortID := strings.TrimSpace(chi.URLParam(r, "cohortID"))

	users, err := h.cohorts.LoadUsers(r.Context(), cohortID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]any{
		"cohort_id": cohortID,
		"items":     toRows(users),
		"total":     len(users),
	})
}

// ReplaceUsers ingests a wholesale cohort snapshot from the upstream sync.
func (h *Handler) ReplaceUsers(w http.ResponseWriter, r *http.Request) {
	cohortID := strings.TrimSpace(chi.URLParam(r, "cohortID"))

	var req struct {
		Users []domain.CohortUser `json:"users"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	seen := make(map[string]bool, len(req.Users))
	for _, u := range req.Users {
		id := strings.TrimSpace(u.ID)
		if id == "" {
			fail(w, r, http.StatusBadRequest, "request.invalid", "every user needs an id", nil)
			return
		}
		if seen[id] {
			fail(w, r, http.StatusBadRequest, "request.invalid", "duplicate user id", map[string]string{"id": id})
			return
		}
		seen[id] = true
	}

	if err := h.cohorts.ReplaceSnapshot(r.Context(), cohortID, req.Users); err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]any{
		"cohort_id": cohortID,
		"rows":      len(req.Users),
	})
}

// StartRun kicks off one sequential batch fetch over the current snapshot.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	cohortID := strings.TrimSpace(chi.URLParam(r, "cohortID"))

	var req struct {
		LinkedInCookie string `json:"linkedin_cookie"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.LinkedInCookie) == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "linkedin_cookie is required", map[string]string{
			"linkedin_cookie": "must be a non-empty session cookie",
		})
		return
	}

	status, err := h.runner.Start(r.Context(), cohortID, req.LinkedInCookie)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusAccepted, status)
}

// RunStatus reports progress for the live display.
func (h *Handler) RunStatus(w http.ResponseWriter, r *http.Request) {
	response.Data(w, http.StatusOK, h.runner.Status())
}

// FetchUser triggers the per-user step from a single row's action control.
func (h *Handler) FetchUser(w http.ResponseWriter, r *http.Request) {
	cohortID := strings.TrimSpace(chi.URLParam(r, "cohortID"))
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))

	var req struct {
		LinkedInCookie string `json:"linkedin_cookie"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.LinkedInCookie) == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "linkedin_cookie is required", nil)
		return
	}

	if err := h.runner.FetchOne(r.Context(), cohortID, userID, req.LinkedInCookie); err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]string{
		"msg":     "fetched",
		"user_id": userID,
	})
}

// Export streams the snapshot as the CSV the admin table has always
// produced. An empty cohort yields no file.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	cohortID := strings.TrimSpace(chi.URLParam(r, "cohortID"))

	csv, err := h.cohorts.ExportCSV(r.Context(), cohortID)
	if err != nil {
		if errors.Is(err, domain.ErrNoUsers) {
			response.Data(w, http.StatusOK, map[string]string{
				"msg": "no users to export",
			})
			return
		}
		handleErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(csv))
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	var fe *domain.FetchError
	switch {
	case errors.Is(err, domain.ErrCohortRequired):
		fail(w, r, http.StatusBadRequest, "cohort.required", err.Error(), nil)
	case errors.Is(err, domain.ErrUserNotFound):
		fail(w, r, http.StatusNotFound, "user.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrRunInProgress):
		fail(w, r, http.StatusConflict, "run.in_progress", err.Error(), nil)
	case errors.Is(err, domain.ErrNoUsers):
		fail(w, r, http.StatusConflict, "cohort.empty", err.Error(), nil)
	case errors.As(err, &fe):
		// surface the platform's detail; the notification already fired
		fail(w, r, http.StatusBadGateway, "fetch.failed", domain.DetailOrDefault(err, "Failed to fetch posts."), nil)
	default:
		// Do not leak internal details by default.
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
