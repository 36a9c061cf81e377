package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trustgate/pkg/config"
	"trustgate/pkg/db"
	"trustgate/pkg/domain"
	"trustgate/pkg/httpx"
	"trustgate/services/certgate/internal/certgate"
	"trustgate/services/certgate/internal/lockerclient"
	"trustgate/services/certgate/internal/memstore"
	"trustgate/services/certgate/internal/store"
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
	if err := policy.ValidateChecks(domain.CheckNames()); err != nil {
		log.Fatalf("policy: %v", err)
	}

	var plugs certgate.PlugRepo
	var installs certgate.InstallLog
	if cfg.DatabaseURL != "" {
		pool := db.MustConnect()
		plugs = store.New(pool)
		installs = store.NewInstalls(pool)
	} else {
		plugs = memstore.New()
		installs = memstore.NewInstalls()
	}
	svc := certgate.New(plugs, installs, lockerclient.New(cfg.LockerURL), cfg, policy)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/certgate", func(api chi.Router) {

		api.Post("/plugs", func(w http.ResponseWriter, r *http.Request) {
			var req certgate.RegisterRequest
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			p, err := svc.RegisterPlug(r.Context(), req)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "plug": p})
		})

		api.Get("/plugs", func(w http.ResponseWriter, r *http.Request) {
			f := certgate.ListFilter{
				CertifiedOnly: r.URL.Query().Get("certified_only") == "true",
				Badge:         domain.Badge(r.URL.Query().Get("badge")),
				Category:      r.URL.Query().Get("category"),
			}
			plugs, err := svc.ListPlugs(r.Context(), f)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "plugs": plugs, "total": len(plugs)})
		})

		api.Get("/plugs/{plug_id}", func(w http.ResponseWriter, r *http.Request) {
			p, err := svc.GetPlug(r.Context(), chi.URLParam(r, "plug_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, p)
		})

		api.Post("/plugs/{plug_id}/submit", func(w http.ResponseWriter, r *http.Request) {
			rec, err := svc.SubmitForReview(r.Context(), chi.URLParam(r, "plug_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "certification": rec})
		})

		api.Post("/plugs/{plug_id}/checks", func(w http.ResponseWriter, r *http.Request) {
			var req map[string]certgate.CheckResult
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			ev, err := svc.RunChecks(r.Context(), chi.URLParam(r, "plug_id"), req)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "evidence": ev})
		})

		api.Post("/plugs/{plug_id}/certify", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Certifier string `json:"certifier"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			rec, err := svc.Certify(r.Context(), chi.URLParam(r, "plug_id"), req.Certifier)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "certification": rec})
		})

		api.Post("/plugs/{plug_id}/reject", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Reason string `json:"reason"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			rec, err := svc.Reject(r.Context(), chi.URLParam(r, "plug_id"), req.Reason)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "certification": rec})
		})

		api.Post("/plugs/{plug_id}/revoke", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Reason string `json:"reason"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			rec, err := svc.Revoke(r.Context(), chi.URLParam(r, "plug_id"), req.Reason)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "certification": rec})
		})

		api.Post("/plugs/{plug_id}/exception", func(w http.ResponseWriter, r *http.Request) {
			var req certgate.ExceptionRequest
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			rec, err := svc.ApproveException(r.Context(), chi.URLParam(r, "plug_id"), req)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "certification": rec})
		})

		api.Post("/installs/validate", func(w http.ResponseWriter, r *http.Request) {
			var req domain.InstallRequest
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			res, err := svc.ValidateInstall(r.Context(), req)
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, res)
		})

		api.Get("/installs", func(w http.ResponseWriter, r *http.Request) {
			attempts, err := svc.InstallAttempts(r.Context(), r.URL.Query().Get("plug_id"))
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "attempts": attempts})
		})

		api.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.Stats(r.Context())
			if err != nil {
				httpx.WriteDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id": httpx.NewRequestID(),
				"by_status":  st.ByStatus, "total_plugs": st.TotalPlugs, "total_installs": st.TotalInstalls,
			})
		})
	})

	log.Printf("certgate listening on %s", cfg.CertgateAddr)
	log.Fatal(http.ListenAndServe(cfg.CertgateAddr, r))
}
