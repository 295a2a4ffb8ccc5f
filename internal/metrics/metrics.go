// Package metrics owns the Prometheus registry served at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/h3-refcat/internal/core/observability"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Build BuildInfo
}

type Provider struct {
	reg *prometheus.Registry
}

func buildInfoGauge(b BuildInfo) prometheus.Gauge {
	if b.Version == "" {
		b.Version = "dev"
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "refcat_build_info",
		Help: "Build of the running binary; always 1.",
		ConstLabels: prometheus.Labels{
			"version":    b.Version,
			"revision":   b.Revision,
			"branch":     b.Branch,
			"build_date": b.BuildDate,
		},
	})
	g.Set(1)
	return g
}

// Init returns a provider over a private registry holding the Go and
// process collectors, the build info gauge and the refcat collectors.
func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfoGauge(cfg.Build),
	)
	observability.Init(reg)
	return &Provider{reg: reg}
}

// Handler serves the registry, reporting collection errors in the payload
// rather than failing the scrape.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}
