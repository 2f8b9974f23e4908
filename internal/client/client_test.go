package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/internal/catalog"
	mapsvc "github.com/joseph-ayodele/control-mapper/internal/services/mapping"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", ts.Client(), quiet())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListProviders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /providers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": []catalog.Provider{
			{Name: "aws", DisplayName: "AWS", CheckCount: 3},
		}})
	})
	c := newTestClient(t, mux)

	ps, err := c.ListProviders(context.Background())
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	if len(ps) != 1 || ps[0].Name != "aws" || ps[0].CheckCount != 3 {
		t.Fatalf("providers = %+v", ps)
	}
}

func TestSearchChecksQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /checks/{provider}", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.PathValue("provider") != "gcp" || q.Get("search") != "bucket" || q.Get("limit") != "5" || q.Has("offset") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "unexpected query " + r.URL.RawQuery})
			return
		}
		writeJSON(w, http.StatusOK, CheckPage{Provider: "gcp", Total: 1, Checks: []catalog.Check{{CheckID: "gcs_public"}}})
	})
	c := newTestClient(t, mux)

	page, err := c.SearchChecks(context.Background(), "gcp", catalog.Filter{Search: "bucket", Limit: 5})
	if err != nil {
		t.Fatalf("SearchChecks: %v", err)
	}
	if page.Total != 1 || page.Checks[0].CheckID != "gcs_public" {
		t.Fatalf("page = %+v", page)
	}
}

func TestErrorDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Job not found"})
	})
	c := newTestClient(t, mux)

	_, err := c.JobStatus(context.Background(), uuid.NewString())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Detail != "Job not found" {
		t.Fatalf("api error = %+v", apiErr)
	}
}

func TestUploadMultipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.txt")
	if err := os.WriteFile(path, []byte("AC-1 Access control"), 0o644); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		writeJSON(w, http.StatusOK, map[string]any{
			"upload_id":  uuid.New(),
			"filename":   hdr.Filename,
			"file_type":  "txt",
			"size_bytes": len(body),
			"preview":    string(body),
		})
	})
	c := newTestClient(t, mux)

	res, err := c.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Filename != "controls.txt" || res.SizeBytes != 19 || res.Preview != "AC-1 Access control" {
		t.Fatalf("upload result = %+v", res)
	}
}

func TestStartMappingAndDownload(t *testing.T) {
	uploadID, configID, batchID := uuid.New(), uuid.New(), uuid.New()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /map", func(w http.ResponseWriter, r *http.Request) {
		var req mapsvc.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UploadID != uploadID.String() ||
			req.ConfigurationID != configID.String() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad body"})
			return
		}
		writeJSON(w, http.StatusAccepted, mapsvc.StartResult{BatchID: batchID})
	})
	mux.HandleFunc("GET /download/batch/{id}/zip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte("PK-archive"))
	})
	c := newTestClient(t, mux)

	res, err := c.StartMapping(context.Background(), uploadID, configID)
	if err != nil {
		t.Fatalf("StartMapping: %v", err)
	}
	if res.BatchID != batchID {
		t.Fatalf("batch id = %s, want %s", res.BatchID, batchID)
	}

	var buf bytes.Buffer
	n, err := c.DownloadBatch(context.Background(), batchID.String(), &buf)
	if err != nil {
		t.Fatalf("DownloadBatch: %v", err)
	}
	if n != int64(len("PK-archive")) || buf.String() != "PK-archive" {
		t.Fatalf("downloaded %d bytes %q", n, buf.String())
	}
}
