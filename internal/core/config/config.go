// Package config reads the process environment and the release manifest.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	MetricsAddr string
	LogLevel    string
	LogConsole  bool
	LogSampleN  int

	ReleaseManifest string
	PixelMargin     float64
	DefaultFilter   string
	FilterMap       map[string]string

	BlockCacheSize int
	RedisAddr      string
	CacheOpTimeout time.Duration
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	// CORSOrigins empty allows any origin.
	CORSOrigins []string
}

// FromEnv reads the process configuration. Unset or malformed values fall
// back to their defaults.
func FromEnv() Config {
	margin := getfloat("PIXEL_MARGIN", 50)
	if margin < 0 {
		margin = 0
	}
	size := getint("BLOCK_CACHE_SIZE", 1024)
	if size < 0 {
		size = 0
	}

	return Config{
		Addr:        getenv("ADDR", ":8090"),
		MetricsAddr: getenv("METRICS_ADDR", ""),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogConsole:  getbool("LOG_CONSOLE", false),
		LogSampleN:  getint("LOG_SAMPLE_N", 0),

		ReleaseManifest: getenv("RELEASE_MANIFEST", "release.toml"),
		PixelMargin:     margin,
		DefaultFilter:   strings.TrimSpace(os.Getenv("DEFAULT_FILTER")),
		FilterMap:       parseStringMap(getenv("FILTER_MAP", "")),

		BlockCacheSize: size,
		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTL:       getduration("CACHE_TTL", 10*time.Minute),
		RequestTimeout: getduration("REQUEST_TIMEOUT", 30*time.Second),
		CORSOrigins:    getlist("CORS_ORIGINS"),
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// lookup parses env var k, falling back to def when it is unset or malformed.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getduration(k string, def time.Duration) time.Duration {
	return lookup(k, def, time.ParseDuration)
}

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func getbool(k string, def bool) bool {
	return lookup(k, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "y", "yes", "on":
			return true, nil
		case "n", "no", "off":
			return false, nil
		}
		return strconv.ParseBool(s)
	})
}

// getlist splits a comma separated value, dropping empty items.
func getlist(k string) []string {
	var out []string
	for p := range strings.SplitSeq(os.Getenv(k), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseStringMap reads "my_r=r,my_g=g". Malformed pairs are skipped.
func parseStringMap(s string) map[string]string {
	out := map[string]string{}
	for p := range strings.SplitSeq(s, ",") {
		k, v, ok := strings.Cut(p, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
