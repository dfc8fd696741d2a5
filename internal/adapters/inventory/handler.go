// Package inventory provides HTTP access to the chemical inventory: record
// CRUD and search, PubChem lookup prefills, spreadsheet uploads, CSV export,
// and backup operations.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"labstock/internal/backup"
	"labstock/internal/core"
	"labstock/internal/importer"
	"labstock/internal/pubchem"
	"labstock/pkg/domain"
)

// maxUploadBytes bounds a multipart upload request.
const maxUploadBytes = 32 << 20

// Lookuper resolves a chemical name or CAS number to metadata.
type Lookuper interface {
	Lookup(ctx context.Context, query string) (pubchem.Details, error)
}

// Handler routes the inventory API. Lookup and Backups are optional; their
// endpoints return 404 when unconfigured.
type Handler struct {
	Service *core.Service
	Lookup  Lookuper
	Backups *backup.Service
}

// NewHandler constructs an inventory HTTP handler.
func NewHandler(svc *core.Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "inventory service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/records":
		h.handleRecords(w, r)
	case strings.HasPrefix(path, "/api/v1/records/"):
		h.handleRecord(w, r, strings.TrimPrefix(path, "/api/v1/records/"))
	case path == "/api/v1/locations":
		h.handleLocations(w, r)
	case path == "/api/v1/lookup":
		h.handleLookup(w, r)
	case path == "/api/v1/uploads":
		h.handleUpload(w, r)
	case path == "/api/v1/template.csv":
		h.handleTemplate(w, r)
	case path == "/api/v1/export.csv":
		h.handleExport(w, r)
	case strings.HasPrefix(path, "/api/v1/backups"):
		h.handleBackups(w, r, path)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var records []domain.Record
		if loc := r.URL.Query().Get("location"); loc != "" {
			records = h.Service.FilterByLocation(loc)
		} else {
			records = h.Service.ListRecords()
		}
		if q := r.URL.Query().Get("q"); q != "" {
			records = searchIn(records, q)
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})

	case http.MethodPost:
		var rec domain.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeError(w, http.StatusBadRequest, "invalid record payload")
			return
		}
		rec.ID = ""
		created, err := h.Service.CreateRecord(r.Context(), rec)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"record": created})

	case http.MethodDelete:
		loc := r.URL.Query().Get("location")
		if loc == "" {
			if err := h.Service.Clear(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
			return
		}
		removed, err := h.Service.DeleteByLocation(r.Context(), loc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// searchIn narrows an already-filtered record list the way Service.Search
// narrows the whole table.
func searchIn(records []domain.Record, query string) []domain.Record {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}
	out := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		for _, f := range []string{"name", "cas", "hazards", "location", "distributor"} {
			if strings.Contains(strings.ToLower(rec.Field(f)), q) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, ok := h.Service.GetRecord(id)
		if !ok {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"record": rec})

	case http.MethodPut:
		var in domain.Record
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid record payload")
			return
		}
		updated, err := h.Service.UpdateRecord(r.Context(), id, func(rec *domain.Record) error {
			in.ID = rec.ID
			in.CreatedAt = rec.CreatedAt
			*rec = in
			return nil
		})
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"record": updated})

	case http.MethodDelete:
		if err := h.Service.DeleteRecord(r.Context(), id); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleLocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": h.Service.Locations()})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	if h.Lookup == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter required")
		return
	}
	details, err := h.Lookup.Lookup(r.Context(), query)
	if err != nil {
		// The entry form still needs a prefill; fall back to the stub and
		// tell the client the lookup came up empty.
		writeJSON(w, http.StatusOK, map[string]any{
			"details": pubchem.Fallback(query),
			"warning": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"details": details})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart payload")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	mode, err := core.ParseMergeMode(r.FormValue("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	policy, err := core.ParseConflictPolicy(r.FormValue("prefer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var keys []string
	if raw := strings.TrimSpace(r.FormValue("keys")); raw != "" {
		keys = strings.Split(raw, ",")
	}

	uploads := make([]importer.Upload, 0, len(files))
	var closers []func() error
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("open %s: %v", fh.Filename, err))
			return
		}
		closers = append(closers, f.Close)
		uploads = append(uploads, importer.Upload{Name: fh.Filename, Reader: f})
	}

	decoded, err := importer.Decode(uploads...)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.Service.MergeUpload(r.Context(), decoded.Records, core.MergeOptions{
		Keys:     keys,
		Mode:     mode,
		Conflict: policy,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report": report,
		"issues": decoded.Issues,
	})
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="inventory_template.csv"`)
	_, _ = w.Write(domain.TemplateCSV())
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="chemicals_master.csv"`)
	if err := h.Service.ExportCSV(w); err != nil {
		// Headers are gone; nothing more useful to do than abort the stream.
		return
	}
}

func (h *Handler) handleBackups(w http.ResponseWriter, r *http.Request, path string) {
	if h.Backups == nil {
		http.NotFound(w, r)
		return
	}
	if path == "/api/v1/backups" {
		switch r.Method {
		case http.MethodGet:
			infos, err := h.Backups.List(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"snapshots": infos})
		case http.MethodPost:
			info, err := h.Backups.Snapshot(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"snapshot": info})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	remainder := strings.TrimPrefix(path, "/api/v1/backups/")
	key, ok := strings.CutSuffix(remainder, "/restore")
	if !ok || key == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	count, err := h.Backups.Restore(r.Context(), key)
	if err != nil {
		if errors.Is(err, backup.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": key, "records": count})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
