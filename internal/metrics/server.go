package metrics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Handler returns the HTTP surface of the exposition endpoint: Prometheus
// text format on /metrics, liveness on /healthz, a JSON digest on /statusz
func Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", handleHealthz).Methods("GET")
	r.HandleFunc("/statusz", handleStatusz).Methods("GET")
	return r
}

// StartMetricsServer starts the exposition HTTP server. The caller owns the
// returned server and is responsible for shutting it down.
func StartMetricsServer(addr string) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Default().With("component", "metrics").Error("metrics server error", "addr", addr, "error", err)
		}
	}()

	return server
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleStatusz(w http.ResponseWriter, r *http.Request) {
	families, err := Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := struct {
		GeneratedAt time.Time     `json:"generated_at"`
		Metrics     []statusEntry `json:"metrics"`
	}{
		GeneratedAt: time.Now().UTC(),
		Metrics:     flatten(families),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// statusEntry is one flattened sample in the /statusz digest
type statusEntry struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// flatten converts gathered metric families into digest entries. Histograms
// contribute their sample count and sum; bucket detail stays on /metrics.
func flatten(families []*dto.MetricFamily) []statusEntry {
	var entries []statusEntry
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels map[string]string
			if len(m.GetLabel()) > 0 {
				labels = make(map[string]string, len(m.GetLabel()))
				for _, lp := range m.GetLabel() {
					labels[lp.GetName()] = lp.GetValue()
				}
			}

			switch {
			case m.GetCounter() != nil:
				entries = append(entries, statusEntry{Name: mf.GetName(), Labels: labels, Value: m.GetCounter().GetValue()})
			case m.GetGauge() != nil:
				entries = append(entries, statusEntry{Name: mf.GetName(), Labels: labels, Value: m.GetGauge().GetValue()})
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				entries = append(entries, statusEntry{Name: mf.GetName() + "_count", Labels: labels, Value: float64(h.GetSampleCount())})
				entries = append(entries, statusEntry{Name: mf.GetName() + "_sum", Labels: labels, Value: h.GetSampleSum()})
			}
		}
	}
	return entries
}
