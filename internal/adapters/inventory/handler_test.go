package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"labstock/internal/backup"
	"labstock/internal/core"
	"labstock/internal/infra/persistence/memory"
	"labstock/internal/pubchem"
	"labstock/pkg/domain"
)

func newTestHandler(t *testing.T) (*Handler, *core.Service) {
	t.Helper()
	svc := core.NewService(memory.NewStore())
	return NewHandler(svc), svc
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestCreateAndGetRecord(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/records", map[string]any{
		"name": "  Acetone ", "cas": "67-64-1", "state": "liquid", "bottles": 0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Record domain.Record `json:"record"`
	}
	decodeBody(t, rec, &created)
	if created.Record.ID == "" {
		t.Fatal("no id assigned")
	}
	if created.Record.Name != "Acetone" || created.Record.State != domain.StateLiquid || created.Record.Bottles != 1 {
		t.Fatalf("record not normalized: %+v", created.Record)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/records/"+created.Record.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/records/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing record status = %d", rec.Code)
	}
}

func TestListFilterAndSearch(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()
	for _, r := range []domain.Record{
		{Name: "Acetone", Location: "Cabinet 1", Hazards: "Flammable"},
		{Name: "Sodium chloride", Location: "Shelf 3"},
		{Name: "Ethanol", Location: "Cabinet 1"},
	} {
		if _, err := svc.CreateRecord(ctx, r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	var listing struct {
		Records []domain.Record `json:"records"`
		Count   int             `json:"count"`
	}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/records", nil)
	decodeBody(t, rec, &listing)
	if listing.Count != 3 {
		t.Fatalf("count = %d, want 3", listing.Count)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/records?location=Cabinet+1", nil)
	decodeBody(t, rec, &listing)
	if listing.Count != 2 {
		t.Fatalf("location filter count = %d, want 2", listing.Count)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/records?location=Cabinet+1&q=flammable", nil)
	decodeBody(t, rec, &listing)
	if listing.Count != 1 || listing.Records[0].Name != "Acetone" {
		t.Fatalf("combined filter = %+v", listing)
	}
}

func TestUpdatePreservesIdentity(t *testing.T) {
	h, svc := newTestHandler(t)
	created, err := svc.CreateRecord(context.Background(), domain.Record{Name: "Benzene", Location: "Shelf 1"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(t, h, http.MethodPut, "/api/v1/records/"+created.ID, map[string]any{
		"id": "spoofed", "name": "Benzene", "location": "Flammables cabinet",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		Record domain.Record `json:"record"`
	}
	decodeBody(t, rec, &updated)
	if updated.Record.ID != created.ID {
		t.Fatalf("id changed: %q", updated.Record.ID)
	}
	if !updated.Record.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("created_at changed")
	}
	if updated.Record.Location != "Flammables cabinet" {
		t.Fatalf("location = %q", updated.Record.Location)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/v1/records/missing", map[string]any{"name": "x"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing update status = %d", rec.Code)
	}
}

func TestDeleteRecordAndByLocation(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()
	created, err := svc.CreateRecord(ctx, domain.Record{Name: "Acetone", Location: "Cabinet 1"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.CreateRecord(ctx, domain.Record{Name: "Ethanol", Location: "Cabinet 1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.CreateRecord(ctx, domain.Record{Name: "Salt", Location: "Shelf 3"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/records/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/records?location=Cabinet+1", nil)
	var removed struct {
		Removed int `json:"removed"`
	}
	decodeBody(t, rec, &removed)
	if removed.Removed != 1 {
		t.Fatalf("removed = %d, want 1", removed.Removed)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/records", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if got := len(svc.ListRecords()); got != 0 {
		t.Fatalf("%d records left after clear", got)
	}
}

func TestLocationsEndpoint(t *testing.T) {
	h, svc := newTestHandler(t)
	for _, loc := range []string{"Shelf 2", "Cabinet 1", "Shelf 2"} {
		if _, err := svc.CreateRecord(context.Background(), domain.Record{Name: "x", Location: loc}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/locations", nil)
	var got struct {
		Locations []string `json:"locations"`
	}
	decodeBody(t, rec, &got)
	if len(got.Locations) != 2 || got.Locations[0] != "Cabinet 1" {
		t.Fatalf("locations = %v", got.Locations)
	}
}

type stubLookup struct {
	details pubchem.Details
	err     error
}

func (s stubLookup) Lookup(context.Context, string) (pubchem.Details, error) {
	return s.details, s.err
}

func TestLookupEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	// Unconfigured lookup is a 404.
	rec := doJSON(t, h, http.MethodGet, "/api/v1/lookup?query=acetone", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unconfigured status = %d", rec.Code)
	}

	h.Lookup = stubLookup{details: pubchem.Details{Name: "Acetone", CAS: "67-64-1"}}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/lookup?query=acetone", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ok struct {
		Details pubchem.Details `json:"details"`
		Warning string          `json:"warning"`
	}
	decodeBody(t, rec, &ok)
	if ok.Details.CAS != "67-64-1" || ok.Warning != "" {
		t.Fatalf("response = %+v", ok)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/lookup", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank query status = %d", rec.Code)
	}
}

func TestLookupEndpointFallsBack(t *testing.T) {
	h, _ := newTestHandler(t)
	h.Lookup = stubLookup{err: fmt.Errorf("pubchem unreachable")}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/lookup?query=mystery+solvent", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want fallback 200", rec.Code)
	}
	var got struct {
		Details pubchem.Details `json:"details"`
		Warning string          `json:"warning"`
	}
	decodeBody(t, rec, &got)
	if got.Warning == "" {
		t.Fatal("expected warning on fallback")
	}
	if got.Details.Name != "mystery solvent" || !strings.Contains(got.Details.SDSLink, "SDS") {
		t.Fatalf("fallback details = %+v", got.Details)
	}
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	h, svc := newTestHandler(t)
	if _, err := svc.CreateRecord(context.Background(), domain.Record{Name: "Acetone", CAS: "67-64-1", Bottles: 2}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	body, contentType := multipartUpload(t,
		map[string]string{"mode": "upsert", "prefer": "uploaded"},
		map[string]string{"upload.csv": "name,cas,bottles\nAcetone,67-64-1,5\nToluene,108-88-3,1\n"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got struct {
		Report core.MergeReport `json:"report"`
	}
	decodeBody(t, rec, &got)
	if got.Report.Updated != 1 || got.Report.Inserted != 1 {
		t.Fatalf("report = %+v", got.Report)
	}
	records := svc.ListRecords()
	if len(records) != 2 || records[0].Bottles != 5 {
		t.Fatalf("records = %+v", records)
	}
}

func TestUploadEndpointValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	body, contentType := multipartUpload(t, map[string]string{"mode": "sideways"},
		map[string]string{"upload.csv": "name\nAcetone\n"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d", rec.Code)
	}

	body, contentType = multipartUpload(t, nil, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no files status = %d", rec.Code)
	}
}

func TestTemplateAndExport(t *testing.T) {
	h, svc := newTestHandler(t)
	if _, err := svc.CreateRecord(context.Background(), domain.Record{Name: "Acetone"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/template.csv", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("template status = %d type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if got := strings.TrimSpace(rec.Body.String()); got != strings.Join(domain.Columns, ",") {
		t.Fatalf("template body = %q", got)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/export.csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Acetone") {
		t.Fatalf("export body = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "chemicals_master.csv") {
		t.Fatalf("content-disposition = %q", cd)
	}
}

func TestBackupEndpoints(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()
	if _, err := svc.CreateRecord(ctx, domain.Record{Name: "Acetone"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Unconfigured backups are a 404.
	rec := doJSON(t, h, http.MethodGet, "/api/v1/backups", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unconfigured status = %d", rec.Code)
	}

	h.Backups = backup.NewService(svc.Store(), backup.NewMemory())

	rec = doJSON(t, h, http.MethodPost, "/api/v1/backups", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("snapshot status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Snapshot backup.SnapshotInfo `json:"snapshot"`
	}
	decodeBody(t, rec, &created)
	if created.Snapshot.Key == "" {
		t.Fatal("no snapshot key")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/backups", nil)
	var listed struct {
		Snapshots []backup.SnapshotInfo `json:"snapshots"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Snapshots) != 1 {
		t.Fatalf("snapshots = %v", listed.Snapshots)
	}

	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/backups/"+created.Snapshot.Key+"/restore", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := len(svc.ListRecords()); got != 1 {
		t.Fatalf("%d records after restore, want 1", got)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/backups/nope.csv/restore", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing snapshot status = %d", rec.Code)
	}
}

func TestMuxHealthAndMetrics(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := NewMux(h, zerolog.Nop(), nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/locations", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("api via mux status = %d", rec.Code)
	}
}
