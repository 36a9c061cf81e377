package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trustgate/pkg/config"
	"trustgate/pkg/db"
	"trustgate/pkg/httpx"
	"trustgate/services/tokens/internal/memstore"
	"trustgate/services/tokens/internal/store"
	"trustgate/services/tokens/internal/tokens"
	"trustgate/services/tokens/internal/webhookpush"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var repo tokens.TokenRepo
	var accessLog tokens.AccessLog
	if cfg.DatabaseURL != "" {
		pool := db.MustConnect()
		repo = store.New(pool)
		accessLog = store.NewAccessLogs(pool)
	} else {
		repo = memstore.New()
		accessLog = memstore.NewAccessLogs()
	}

	var pusher tokens.Pusher
	if cfg.WebhookSigningKey != "" {
		pusher = webhookpush.New(cfg.WebhookSigningKey, cfg.MaxWebhookPayloadBytes)
	}
	svc := tokens.New(repo, accessLog, pusher, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/tokens", func(api chi.Router) {

		api.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				tokens.IssueRequest
				IssuedBy string `json:"issued_by"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			t, err := svc.Issue(r.Context(), req.IssueRequest, req.IssuedBy)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "token": t})
		})

		api.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.Stats(r.Context())
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id": httpx.NewRequestID(),
				"total":      st.Total, "by_status": st.ByStatus,
			})
		})

		api.Get("/{token_id}", func(w http.ResponseWriter, r *http.Request) {
			t, err := svc.GetToken(r.Context(), chi.URLParam(r, "token_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "token": t})
		})

		api.Post("/{token_id}/validate", func(w http.ResponseWriter, r *http.Request) {
			res, err := svc.Validate(r.Context(), chi.URLParam(r, "token_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, res)
		})

		api.Post("/{token_id}/access", func(w http.ResponseWriter, r *http.Request) {
			var req tokens.AccessRequest
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			res, err := svc.Access(r.Context(), chi.URLParam(r, "token_id"), req)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, res)
		})

		api.Post("/{token_id}/revoke", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Reason string `json:"reason"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := svc.Revoke(r.Context(), chi.URLParam(r, "token_id"), req.Reason); err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "revoked": true})
		})

		api.Post("/{token_id}/rotate", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				IssuedBy string `json:"issued_by"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			t, err := svc.Rotate(r.Context(), chi.URLParam(r, "token_id"), req.IssuedBy)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "token": t})
		})

		api.Get("/{token_id}/access-log", func(w http.ResponseWriter, r *http.Request) {
			entries, err := svc.GetAccessLog(r.Context(), chi.URLParam(r, "token_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "entries": entries})
		})
	})

	log.Printf("tokens listening on %s", cfg.TokensAddr)
	log.Fatal(http.ListenAndServe(cfg.TokensAddr, r))
}
