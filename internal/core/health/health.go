// Package health serves the liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"
)

type status struct {
	Status      string   `json:"status"`
	Unavailable []string `json:"unavailable,omitempty"`
}

func write(w http.ResponseWriter, code int, s status) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(s)
}

// Liveness answers 200 while the process can serve HTTP at all.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		write(w, http.StatusOK, status{Status: "ok"})
	}
}

// ReadinessReporter reports whether the star indices can serve loads.
type ReadinessReporter interface {
	Readiness() (ready bool, unavailable []string)
}

// Readiness answers 503 until at least one index is usable. Indices that
// failed to open are listed either way.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ready, missing := rr.Readiness()
		if !ready {
			write(w, http.StatusServiceUnavailable, status{Status: "not_ready", Unavailable: missing})
			return
		}
		write(w, http.StatusOK, status{Status: "ready", Unavailable: missing})
	}
}
