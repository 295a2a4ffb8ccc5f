package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/h3-refcat/internal/colmap"
	"github.com/mohammed-shakir/h3-refcat/internal/core/geom"
	"github.com/mohammed-shakir/h3-refcat/internal/core/observability"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/loader"
	"github.com/mohammed-shakir/h3-refcat/internal/region"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
	"github.com/mohammed-shakir/h3-refcat/internal/wcs"
)

const (
	RouteCircle = "/v1/refcat/circle"
	RouteBox    = "/v1/refcat/box"
)

// Loader serves reference catalog loads.
type Loader interface {
	LoadPixelBox(ctx context.Context, bbox geom.Box, w wcs.WCS, filterName string) (loader.Result, error)
	LoadSkyCircle(ctx context.Context, center sky.Coord, radius sky.Angle, filterName string, opts ...loader.LoadOption) (loader.Result, error)
}

var errBadRequest = errors.New("bad request")

type CircleRequest struct {
	Center sky.Coord
	Radius sky.Angle
	Filter string
	// WCS is optional; when set, records carry centroids.
	WCS wcs.WCS
}

type BoxRequest struct {
	BBox   geom.Box
	WCS    wcs.WCS
	Filter string
}

func HandleCircle(logger *slog.Logger, l Loader) http.HandlerFunc {
	return handle(logger, RouteCircle, func(r *http.Request) (loader.Result, error) {
		q, err := ParseCircleRequest(r)
		if err != nil {
			return loader.Result{}, err
		}
		var opts []loader.LoadOption
		if q.WCS != nil {
			opts = append(opts, loader.WithWCS(q.WCS))
		}
		return l.LoadSkyCircle(r.Context(), q.Center, q.Radius, q.Filter, opts...)
	})
}

func HandleBox(logger *slog.Logger, l Loader) http.HandlerFunc {
	return handle(logger, RouteBox, func(r *http.Request) (loader.Result, error) {
		q, err := ParseBoxRequest(r)
		if err != nil {
			return loader.Result{}, err
		}
		return l.LoadPixelBox(r.Context(), q.BBox, q.WCS, q.Filter)
	})
}

func handle(logger *slog.Logger, route string, load func(*http.Request) (loader.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
		}()

		res, err := load(r)
		if err != nil {
			code := statusFor(err)
			if code >= http.StatusInternalServerError {
				logger.ErrorContext(r.Context(), "refcat load failed", "route", route, "status", code, "err", err)
			}
			http.Error(sw, err.Error(), code)
			return
		}
		writeResult(sw, res)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, region.ErrInvalidRegion),
		errors.Is(err, colmap.ErrUnknownFilter):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, starindex.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func ParseCircleRequest(r *http.Request) (CircleRequest, error) {
	q := r.URL.Query()
	ra, err := requiredFloat(q, "ra")
	if err != nil {
		return CircleRequest{}, err
	}
	dec, err := requiredFloat(q, "dec")
	if err != nil {
		return CircleRequest{}, err
	}
	radius, err := requiredFloat(q, "radius")
	if err != nil {
		return CircleRequest{}, err
	}
	if dec < -90 || dec > 90 {
		return CircleRequest{}, fmt.Errorf("%w: dec must be in [-90,90]", errBadRequest)
	}

	out := CircleRequest{
		Center: sky.NewCoord(ra, dec),
		Radius: sky.Degrees(radius),
		Filter: strings.TrimSpace(q.Get("filter")),
	}
	if q.Has("crval1") {
		w, err := parseTAN(q)
		if err != nil {
			return CircleRequest{}, err
		}
		out.WCS = w
	}
	return out, nil
}

func ParseBoxRequest(r *http.Request) (BoxRequest, error) {
	q := r.URL.Query()
	var px [4]int
	for i, k := range []string{"x0", "y0", "width", "height"} {
		v, err := strconv.Atoi(strings.TrimSpace(q.Get(k)))
		if err != nil {
			return BoxRequest{}, fmt.Errorf("%w: %s must be an integer", errBadRequest, k)
		}
		px[i] = v
	}
	if px[2] <= 0 || px[3] <= 0 {
		return BoxRequest{}, fmt.Errorf("%w: width and height must be positive", errBadRequest)
	}
	w, err := parseTAN(q)
	if err != nil {
		return BoxRequest{}, err
	}
	return BoxRequest{
		BBox:   geom.BoxFromPixels(px[0], px[1], px[2], px[3]),
		WCS:    w,
		Filter: strings.TrimSpace(q.Get("filter")),
	}, nil
}

// parseTAN reads FITS-convention TAN parameters; crpix is 1-based and the
// CD off-diagonals default to zero.
func parseTAN(q url.Values) (*wcs.TAN, error) {
	md := map[string]any{"CTYPE1": "RA---TAN", "CTYPE2": "DEC--TAN"}
	cards := []struct {
		param, card string
		required    bool
	}{
		{"crval1", "CRVAL1", true},
		{"crval2", "CRVAL2", true},
		{"crpix1", "CRPIX1", true},
		{"crpix2", "CRPIX2", true},
		{"cd11", "CD1_1", true},
		{"cd12", "CD1_2", false},
		{"cd21", "CD2_1", false},
		{"cd22", "CD2_2", true},
	}
	for _, c := range cards {
		if !c.required && !q.Has(c.param) {
			continue
		}
		v, err := requiredFloat(q, c.param)
		if err != nil {
			return nil, err
		}
		md[c.card] = v
	}
	w, err := wcs.FromMetadata(md)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return w, nil
}

func requiredFloat(q url.Values, k string) (float64, error) {
	raw := strings.TrimSpace(q.Get(k))
	if raw == "" {
		return 0, fmt.Errorf("%w: missing required parameter: %s", errBadRequest, k)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: parse float: %w", errBadRequest, k, err)
	}
	return f, nil
}
