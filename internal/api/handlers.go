package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/engram/internal/knowledgeservice"
	"github.com/starford/engram/internal/vcs"
)

// Handler holds API route handlers.
type Handler struct {
	svc       *knowledgeservice.Service
	publisher HeadPublisher
}

// NewHandler creates a new Handler. publisher may be nil.
func NewHandler(svc *knowledgeservice.Service, publisher HeadPublisher) *Handler {
	return &Handler{svc: svc, publisher: publisher}
}

// urlParam returns a path parameter, unescaping encoded refs such as
// "main~2" sent by generated clients.
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func (h *Handler) announce(r *http.Request, op string) {
	if h.publisher == nil {
		return
	}
	head, err := h.svc.Repository().Head(r.Context())
	if err != nil {
		slog.Warn("read head for event failed", slog.String("error", err.Error()))
		return
	}
	h.publisher.PublishHead(op, head)
}

// Status handles GET /api/vcs/status.
//
//	@Summary		Staged and unstaged changes against HEAD
//	@Tags			vcs
//	@Produce		json
//	@Success		200	{object}	vcs.Status
//	@Security		BearerAuth
//	@Router			/vcs/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		writeError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Log handles GET /api/vcs/log.
//
//	@Summary		Commit history, newest first
//	@Tags			vcs
//	@Produce		json
//	@Param			from	query		string	false	"Start ref (default HEAD)"
//	@Param			limit	query		int		false	"Max commits"
//	@Param			grep	query		string	false	"Filter by message or session id"
//	@Success		200		{object}	LogResponse
//	@Security		BearerAuth
//	@Router			/vcs/log [get]
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	commits, err := h.svc.Log(r.Context(), vcs.LogOptions{
		From:  q.Get("from"),
		Limit: limit,
		Grep:  q.Get("grep"),
	})
	if err != nil {
		writeError(w, "log", err)
		return
	}
	writeJSON(w, http.StatusOK, LogResponse{Commits: commits})
}

// Show handles GET /api/vcs/show/{ref}.
//
//	@Summary		One commit and the blocks it records
//	@Tags			vcs
//	@Produce		json
//	@Param			ref			path		string	true	"Branch, hash prefix, HEAD or ref~N"
//	@Param			category	query		string	false	"Restrict to one category"
//	@Success		200			{object}	vcs.ShowResult
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vcs/show/{ref} [get]
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Show(r.Context(), urlParam(r, "ref"), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, "show", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Diff handles GET /api/vcs/diff.
//
//	@Summary		Block-level diff between two refs or a ref and the working tree
//	@Tags			vcs
//	@Produce		json
//	@Param			from		query		string	false	"From ref (default HEAD; WORKING for the working tree)"
//	@Param			to			query		string	false	"To ref (default working tree; WORKING also accepted)"
//	@Param			category	query		string	false	"Restrict to one category"
//	@Success		200			{object}	vcs.DiffResult
//	@Security		BearerAuth
//	@Router			/vcs/diff [get]
func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.Diff(r.Context(), q.Get("from"), q.Get("to"), q.Get("category"))
	if err != nil {
		writeError(w, "diff", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListBranches handles GET /api/vcs/branches.
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.svc.Branches(r.Context())
	if err != nil {
		writeError(w, "list branches", err)
		return
	}
	writeJSON(w, http.StatusOK, BranchListResponse{Branches: branches})
}

// CreateBranch handles POST /api/vcs/branches.
//
//	@Summary		Create a branch
//	@Tags			vcs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BranchRequest	true	"Branch to create"
//	@Success		201		{object}	models.Branch
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vcs/branches [post]
func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	b, err := h.svc.CreateBranch(r.Context(), req.Name, req.Start)
	if err != nil {
		writeError(w, "create branch", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// DeleteBranch handles DELETE /api/vcs/branches/{name}.
func (h *Handler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBranch(r.Context(), urlParam(r, "name")); err != nil {
		writeError(w, "delete branch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stage handles POST /api/vcs/stage.
func (h *Handler) Stage(w http.ResponseWriter, r *http.Request) {
	var req StageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.svc.Stage(r.Context(), req.SessionIDs, req.All)
	if err != nil {
		writeError(w, "stage", err)
		return
	}
	writeJSON(w, http.StatusOK, StageResponse{Staged: n})
}

// Commit handles POST /api/vcs/commit.
//
//	@Summary		Record a commit
//	@Tags			vcs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CommitRequest	true	"Commit options"
//	@Success		201		{object}	models.Commit
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vcs/commit [post]
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.svc.Commit(r.Context(), vcs.CommitOptions{
		Message:    req.Message,
		SessionIDs: req.SessionIDs,
		All:        req.All,
	})
	if err != nil {
		writeError(w, "commit", err)
		return
	}
	h.announce(r, "commit")
	writeJSON(w, http.StatusCreated, c)
}

// Checkout handles POST /api/vcs/checkout.
//
//	@Summary		Move HEAD and rewrite category files to match a ref
//	@Tags			vcs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CheckoutRequest	true	"Checkout options"
//	@Success		200		{object}	vcs.CheckoutResult
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vcs/checkout [post]
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.Checkout(r.Context(), req.Target, vcs.CheckoutOptions{
		DryRun: req.DryRun,
		Force:  req.Force,
	})
	if err != nil {
		writeError(w, "checkout", err)
		return
	}
	if !res.DryRun {
		h.announce(r, "checkout")
	}
	writeJSON(w, http.StatusOK, res)
}
