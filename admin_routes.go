package main

import (
	"encoding/json"
	"net/http"

	"github.com/shannon-labs/resilientd/internal/fallback"
	"github.com/shannon-labs/resilientd/internal/llmrouter"
	"github.com/shannon-labs/resilientd/internal/models"
	"github.com/shannon-labs/resilientd/internal/ratecontrol"
)

// generateRequest is the wire shape of a bearer-authenticated generate call;
// Tenant is never read from here — the handler uses the tenant RequireTenant
// verified from the bearer token instead.
type generateRequest struct {
	Tenant      string  `json:"tenant"`
	Agent       string  `json:"agent"`
	Primary     string  `json:"primary"`
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Tier        string  `json:"tier"`
}

// registerResilienceRoutes exposes the coordinator's and router's outward
// interfaces (spec §6) as plain JSON endpoints on the admin mux, for
// operational inspection and the force_fallback/force_recovery overrides.
func registerResilienceRoutes(mux *http.ServeMux, coordinator *fallback.Coordinator, router *llmrouter.Router, tenantVerifier *llmrouter.TenantVerifier) {
	mux.HandleFunc("/resilience/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, coordinator.Status())
	})

	mux.HandleFunc("/resilience/history", func(w http.ResponseWriter, r *http.Request) {
		service := r.URL.Query().Get("service")
		limit := 100
		writeJSON(w, http.StatusOK, coordinator.History(service, limit))
	})

	mux.HandleFunc("/resilience/force_fallback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		service := r.URL.Query().Get("service")
		reason := r.URL.Query().Get("reason")
		ok := coordinator.ForceFallback(r.Context(), service, reason)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
	})

	mux.HandleFunc("/resilience/force_recovery", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		service := r.URL.Query().Get("service")
		ok := coordinator.ForceRecovery(r.Context(), service)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
	})

	mux.HandleFunc("/resilience/llm/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, router.Health())
	})

	mux.HandleFunc("/resilience/llm/generate", llmrouter.RequireTenant(tenantVerifier, func(w http.ResponseWriter, r *http.Request, tenant string) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		// Callers that already know which provider they want set Primary
		// explicitly; everyone else just names a model and gets the provider
		// models.DetectProvider finds for it (the pricing table's provider
		// listing, then naming convention), which also keys the rate limit.
		primary := body.Primary
		if primary == "" {
			primary = models.DetectProvider(body.Model)
		}
		if err := ratecontrol.Wait(r.Context(), tenant, body.Tier, primary); err != nil {
			http.Error(w, "rate limited: "+err.Error(), http.StatusTooManyRequests)
			return
		}
		result, err := router.Generate(r.Context(), llmrouter.Request{
			Tenant:      tenant,
			Agent:       body.Agent,
			Primary:     llmrouter.Provider(primary),
			Model:       body.Model,
			Prompt:      body.Prompt,
			Temperature: body.Temperature,
			MaxTokens:   body.MaxTokens,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
