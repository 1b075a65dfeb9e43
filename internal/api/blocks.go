package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/starford/engram/internal/knowledgeservice"
)

// ListBlocks handles GET /api/blocks.
//
//	@Summary		List indexed working-tree blocks
//	@Tags			blocks
//	@Produce		json
//	@Param			category	query		string	false	"Restrict to one category"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	BlockListResponse
//	@Security		BearerAuth
//	@Router			/blocks [get]
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	blocks, total, err := h.svc.ListBlocks(r.Context(), q.Get("category"), limit, offset)
	if err != nil {
		writeError(w, "list blocks", err)
		return
	}
	writeJSON(w, http.StatusOK, BlockListResponse{Blocks: blocks, Total: total})
}

// GetBlock handles GET /api/blocks/{category}/{sessionID}.
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Block(r.Context(), urlParam(r, "category"), urlParam(r, "sessionID"))
	if err != nil {
		writeError(w, "get block", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// AppendBlock handles POST /api/blocks.
//
//	@Summary		Append a session block to a category file
//	@Tags			blocks
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header		string				false	"Category file checksum for optimistic concurrency"
//	@Param			body		body		AppendBlockRequest	true	"Block to append"
//	@Success		201			{object}	BlockDetail
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks [post]
func (h *Handler) AppendBlock(w http.ResponseWriter, r *http.Request) {
	var req AppendBlockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	b, err := h.svc.AppendBlock(r.Context(), knowledgeservice.AppendRequest{
		Category:  req.Category,
		SessionID: req.SessionID,
		Content:   req.Content,
		TTL:       req.TTL,
		// Strip surrounding quotes if present (standard ETag format).
		IfMatch: strings.Trim(r.Header.Get("If-Match"), `"`),
	})
	if err != nil {
		writeError(w, "append block", err)
		return
	}
	if cs, err := h.svc.FileChecksum(req.Category); err == nil && cs != "" {
		w.Header().Set("ETag", `"`+cs+`"`)
	}
	writeJSON(w, http.StatusCreated, b)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across working-tree blocks
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
