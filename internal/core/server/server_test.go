package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/h3-refcat/internal/core/config"
	"github.com/mohammed-shakir/h3-refcat/internal/core/geom"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/loader"
	"github.com/mohammed-shakir/h3-refcat/internal/metrics"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
	"github.com/mohammed-shakir/h3-refcat/internal/wcs"
)

type unavailableLoader struct{}

func (unavailableLoader) LoadPixelBox(context.Context, geom.Box, wcs.WCS, string) (loader.Result, error) {
	return loader.Result{}, starindex.ErrUnavailable
}

func (unavailableLoader) LoadSkyCircle(context.Context, sky.Coord, sky.Angle, string, ...loader.LoadOption) (loader.Result, error) {
	return loader.Result{}, starindex.ErrUnavailable
}

type notReady struct{}

func (notReady) Readiness() (bool, []string) { return false, []string{"west"} }

func TestNewRouter_Routes(t *testing.T) {
	p := metrics.Init(metrics.Config{})
	h := NewRouter(config.Config{}, slog.New(slog.DiscardHandler), Deps{
		Loader:  unavailableLoader{},
		Ready:   notReady{},
		Metrics: p.Handler(),
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	cases := []struct {
		path string
		code int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/v1/refcat/circle?ra=1&dec=2&radius=0.1", http.StatusServiceUnavailable},
		{"/v1/refcat/box?x0=0", http.StatusBadRequest},
		{"/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != tc.code {
			t.Fatalf("GET %s: status=%d want %d", tc.path, resp.StatusCode, tc.code)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatalf("GET %s: no X-Request-ID", tc.path)
		}
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), `http_requests_total{method="GET",route="/v1/refcat/circle",status="503"}`) {
		t.Fatalf("metrics missing the circle request")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, config.Config{Addr: "127.0.0.1:0"}, slog.New(slog.DiscardHandler), Deps{Loader: unavailableLoader{}})
	}()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestServe_ReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	err = Serve(context.Background(), New(ln.Addr().String(), http.NotFoundHandler()), slog.New(slog.DiscardHandler))
	if err == nil || !strings.Contains(err.Error(), ln.Addr().String()) {
		t.Fatalf("err=%v want a listen error naming the address", err)
	}
}
