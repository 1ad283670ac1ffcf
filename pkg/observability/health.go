package observability

import (
	"encoding/json"
	"net/http"
)

// HealthPath is where [HealthHandler] is mounted next to the metrics endpoint.
const HealthPath = "/healthz"

type healthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
}

// HealthHandler returns a liveness handler. It always answers HTTP 200 with
// {"status":"ok"} and the service identity from cfg.
func HealthHandler(cfg Config) http.Handler {
	body := healthStatus{Status: "ok", Service: cfg.ServiceName, Version: cfg.ServiceVersion}

	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)

		_ = json.NewEncoder(rw).Encode(body)
	})
}
