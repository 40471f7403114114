package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkmend/internal/linkservice"
	"github.com/starford/linkmend/internal/repair"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *linkservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *linkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// documentPath extracts the document path from the URL (everything after
// the route prefix). Encoded slashes (guide%2Fsetup.md) are accepted.
func documentPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List indexed documents
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Documents(r.Context())
	if err != nil {
		writeServiceError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// GetDocumentLinks handles GET /api/links/*.
//
//	@Summary		Get the links and backlinks of a document
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	DocumentLinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/{path} [get]
func (h *Handler) GetDocumentLinks(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	links, err := h.svc.Links(r.Context(), path)
	if err != nil {
		writeServiceError(w, "get links", err, slog.String("path", path))
		return
	}
	backlinks, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		writeServiceError(w, "get backlinks", err, slog.String("path", path))
		return
	}
	abs, _ := h.svc.AbsPath(path)
	writeJSON(w, http.StatusOK, DocumentLinksResponse{Path: abs, Links: links, Backlinks: backlinks})
}

// ReindexDocument handles POST /api/documents/*.
//
//	@Summary		Re-extract the links of one document
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	DocumentLinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [post]
func (h *Handler) ReindexDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	links, err := h.svc.IndexDocument(r.Context(), path)
	if err != nil {
		writeServiceError(w, "reindex document", err, slog.String("path", path))
		return
	}
	backlinks, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		writeServiceError(w, "get backlinks", err, slog.String("path", path))
		return
	}
	abs, _ := h.svc.AbsPath(path)
	writeJSON(w, http.StatusOK, DocumentLinksResponse{Path: abs, Links: links, Backlinks: backlinks})
}

// Scan handles POST /api/scan.
//
//	@Summary		Sync the index with the workspace and probe all links
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	ScanReport
//	@Security		BearerAuth
//	@Router			/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Scan(r.Context())
	if err != nil {
		writeServiceError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Broken handles GET /api/broken.
//
//	@Summary		List broken file links
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	BrokenResponse
//	@Security		BearerAuth
//	@Router			/broken [get]
func (h *Handler) Broken(w http.ResponseWriter, r *http.Request) {
	broken, err := h.svc.Broken(r.Context())
	if err != nil {
		writeServiceError(w, "find broken links", err)
		return
	}
	writeJSON(w, http.StatusOK, BrokenResponse{Broken: broken, Total: len(broken)})
}

// Candidates handles GET /api/candidates.
//
//	@Summary		Search replacement candidates for a broken path
//	@Tags			repair
//	@Produce		json
//	@Param			path	query		string	true	"Broken target path"
//	@Success		200		{object}	CandidatesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/candidates [get]
func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	set, err := h.svc.Candidates(r.Context(), path)
	if err != nil {
		writeServiceError(w, "find candidates", err, slog.String("path", path))
		return
	}
	resp := CandidatesResponse{CandidateSet: set}
	if selected, ok := repair.Select(set); ok {
		resp.Selected = selected
	}
	writeJSON(w, http.StatusOK, resp)
}

// Repair handles POST /api/repair.
//
//	@Summary		Repair one broken link in one document
//	@Tags			repair
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RepairRequest	true	"Link to repair"
//	@Success		200		{object}	RepairOutcome
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repair [post]
func (h *Handler) Repair(w http.ResponseWriter, r *http.Request) {
	var req RepairRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	out, err := h.svc.Repair(r.Context(), linkservice.RepairRequest{
		Document:    req.Document,
		Target:      req.Target,
		Replacement: req.Replacement,
	})
	if err != nil {
		writeServiceError(w, "repair", err,
			slog.String("document", req.Document), slog.String("target", req.Target))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// AutoRepair handles POST /api/repair/auto.
//
//	@Summary		Repair every broken link that has a single best candidate
//	@Tags			repair
//	@Accept			json
//	@Produce		json
//	@Param			dry_run	query		bool				false	"Report without writing"
//	@Param			body	body		AutoRepairRequest	false	"Options"
//	@Success		200		{object}	AutoRepairReport
//	@Security		BearerAuth
//	@Router			/repair/auto [post]
func (h *Handler) AutoRepair(w http.ResponseWriter, r *http.Request) {
	var req AutoRepairRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	if v := r.URL.Query().Get("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid dry_run value"))
			return
		}
		req.DryRun = dry
	}
	report, err := h.svc.AutoRepair(r.Context(), req.DryRun)
	if err != nil {
		writeServiceError(w, "auto repair", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Move handles POST /api/move.
//
//	@Summary		Move a document and update links on both sides
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveRequest	true	"Source and destination"
//	@Success		200		{object}	MoveReport
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/move [post]
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	report, err := h.svc.Move(r.Context(), req.From, req.To)
	if err != nil {
		writeServiceError(w, "move", err, slog.String("from", req.From), slog.String("to", req.To))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
