// handlers.go - HTTP handlers over a router.Session
//
// Errors are returned as JSON with an HTTP status:
//
//	400  invalid input
//	404  unknown history entry, no dataset yet (GET)
//	409  question asked before a dataset was loaded
//	422  upload without usable sheets, or a question that failed
//	     (rule error, malformed or rejected plan, no rule and no fallback)
//	502  model unreachable after retry
//
// A failed question still returns its QueryResolution so the caller can
// show the error and any raw model output.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/spektr-org/storequery/helpers"
	"github.com/spektr-org/storequery/router"
	"github.com/spektr-org/storequery/schema"
	"github.com/spektr-org/storequery/translator"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	Session   *router.Session
	MaxUpload int64 // bytes
}

// NewHandler creates a handler over a session.
func NewHandler(s *router.Session, maxUploadMB int) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	return &Handler{Session: s, MaxUpload: int64(maxUploadMB) << 20}
}

// =============================================================================
// DATASET ENDPOINTS
// =============================================================================

// UploadDataset handles POST /api/dataset. The body is either multipart
// with a "file" part or the raw file, named by ?name=.
func (h *Handler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)

	name := r.URL.Query().Get("name")
	var body io.Reader = r.Body

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file part", err)
			return
		}
		defer file.Close()
		body = file
		if name == "" {
			name = header.Filename
		}
	}
	if name == "" {
		name = "upload.csv"
	}

	info, err := h.Session.Load(filepath.Base(name), body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNoUsableSheets) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, "could not load dataset", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// GetDataset handles GET /api/dataset.
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	info, ok := h.Session.Dataset()
	if !ok {
		writeError(w, http.StatusNotFound, "no dataset loaded", nil)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// =============================================================================
// QUESTION ENDPOINTS
// =============================================================================

// Ask handles POST /api/ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required", nil)
		return
	}

	res, err := h.Session.Ask(r.Context(), req.Question)
	if errors.Is(err, router.ErrNoDataset) {
		writeError(w, http.StatusConflict, "upload a dataset first", err)
		return
	}
	writeJSON(w, askStatus(err), res)
}

func askStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ext *translator.ExternalError
	if errors.As(err, &ext) {
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

// Export handles GET /api/ask/export?id=&format=csv|xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	res, ok := h.Session.History().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such history entry", nil)
		return
	}
	if res.Result == nil || res.Result.Table == nil {
		writeError(w, http.StatusNotFound, "entry has no result table", nil)
		return
	}

	label := res.Label
	if label == "" {
		label = res.Question
	}
	stem := helpers.FileStem(label)

	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem+".csv"))
		if err := helpers.WriteResultCSV(w, res.Result.Table); err != nil {
			writeError(w, http.StatusInternalServerError, "export failed", err)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem+".xlsx"))
		if err := helpers.WriteResultXLSX(w, res.Result.Table, "Result"); err != nil {
			writeError(w, http.StatusInternalServerError, "export failed", err)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown format "+format, nil)
	}
}

// ListHistory handles GET /api/history.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	hist := h.Session.History()
	writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID: h.Session.ID(),
		Capacity:  hist.Cap(),
		Entries:   hist.Entries(),
	})
}

// ListRules handles GET /api/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Session.Rules()
	if err != nil {
		writeError(w, http.StatusNotFound, "no dataset loaded", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTOs(rules))
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	_, loaded := h.Session.Dataset()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"session":  h.Session.ID(),
		"dataset":  loaded,
		"fallback": h.Session.HasFallback(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
