package main

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trustgate/pkg/config"
	"trustgate/pkg/db"
	"trustgate/pkg/digest"
	"trustgate/pkg/domain"
	"trustgate/pkg/httpx"
	"trustgate/services/locker/internal/locker"
	"trustgate/services/locker/internal/memstore"
	"trustgate/services/locker/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	var repo locker.Repo
	var blobs locker.BlobStore
	if cfg.DatabaseURL != "" {
		pool := db.MustConnect()
		repo = store.New(pool)
		blobs = store.NewBlobs(pool)
	} else {
		repo = memstore.New()
		blobs = memstore.NewBlobs()
	}
	svc := locker.New(repo, blobs, digest.SHA256(), cfg, policy)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/locker", func(api chi.Router) {

		api.Post("/artifacts", func(w http.ResponseWriter, r *http.Request) {
			var req locker.StoreRequest
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			a, err := svc.Store(r.Context(), req)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "artifact": a})
		})

		api.Get("/artifacts/{artifact_id}", func(w http.ResponseWriter, r *http.Request) {
			a, err := svc.Get(r.Context(), chi.URLParam(r, "artifact_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "artifact": a})
		})

		api.Post("/artifacts/{artifact_id}/verify", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ExpectedHash string `json:"expected_hash"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			res, err := svc.Verify(r.Context(), chi.URLParam(r, "artifact_id"), req.ExpectedHash)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(),
				"valid": res.Valid, "hash_match": res.HashMatch, "artifact": res.Artifact})
		})

		api.Get("/artifacts", func(w http.ResponseWriter, r *http.Request) {
			q, err := queryFromURL(r)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			res, err := svc.Query(r.Context(), q)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(),
				"artifacts": res.Artifacts, "total_count": res.TotalCount, "next_cursor": res.NextCursor})
		})

		api.Post("/artifacts/{artifact_id}/custody", func(w http.ResponseWriter, r *http.Request) {
			var req locker.CustodyRequest
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			a, err := svc.AddCustodyEntry(r.Context(), chi.URLParam(r, "artifact_id"), req)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "artifact": a})
		})

		api.Post("/artifacts/{artifact_id}/redact", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Reason string `json:"reason"`
				Actor  string `json:"actor"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			a, err := svc.Redact(r.Context(), chi.URLParam(r, "artifact_id"), req.Reason, req.Actor)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "artifact": a})
		})

		api.Post("/artifacts/{artifact_id}/supersede", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ReplacementID string `json:"replacement_id"`
				Actor         string `json:"actor"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			a, err := svc.Supersede(r.Context(), chi.URLParam(r, "artifact_id"), req.ReplacementID, req.Actor)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "artifact": a})
		})

		api.Post("/exports", func(w http.ResponseWriter, r *http.Request) {
			var req locker.ExportRequest
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			res, err := svc.Export(r.Context(), req)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "export": res})
		})

		api.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.Stats(r.Context())
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "stats": st})
		})
	})

	log.Printf("locker listening on %s", cfg.LockerAddr)
	log.Fatal(http.ListenAndServe(cfg.LockerAddr, r))
}

func queryFromURL(r *http.Request) (locker.Query, error) {
	q := locker.Query{
		TenantID:    r.URL.Query().Get("tenant_id"),
		WorkspaceID: r.URL.Query().Get("workspace_id"),
		ProjectID:   r.URL.Query().Get("project_id"),
		Cursor:      r.URL.Query().Get("cursor"),
	}
	for _, t := range splitCSV(r.URL.Query().Get("types")) {
		q.Types = append(q.Types, domain.ArtifactType(t))
	}
	for _, st := range splitCSV(r.URL.Query().Get("status")) {
		q.Statuses = append(q.Statuses, domain.ArtifactStatus(st))
	}
	if v := r.URL.Query().Get("created_after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return locker.Query{}, domain.Validation("BAD_TIME", "created_after must be RFC3339")
		}
		q.CreatedAfter = &ts
	}
	if v := r.URL.Query().Get("created_before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return locker.Query{}, domain.Validation("BAD_TIME", "created_before must be RFC3339")
		}
		q.CreatedBefore = &ts
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return locker.Query{}, domain.Validation("BAD_LIMIT", "limit must be a non-negative integer")
		}
		q.Limit = n
	}
	return q, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
