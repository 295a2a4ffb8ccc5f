// Package logger builds the process zerolog logger and carries per-request
// fields (request id, release, region) through context.Context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	// SampleN keeps one line in N when > 1.
	SampleN   int
	Release   string
	Component string
}

type ctxKey string

const (
	ctxReqIDKey  ctxKey = "request_id"
	ctxComponent ctxKey = "component"
	ctxRelease   ctxKey = "release"
	ctxRegion    ctxKey = "region"
)

// contextFields is the order in which context values are written to a line.
var contextFields = [...]ctxKey{ctxReqIDKey, ctxRelease, ctxComponent, ctxRegion}

func with(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// WithRequestID stores reqID in ctx, generating one when it is empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return with(ctx, ctxReqIDKey, reqID)
}

// RequestID returns the request id carried by ctx, or "".
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxReqIDKey).(string)
	return s
}

func WithRelease(ctx context.Context, release string) context.Context {
	return with(ctx, ctxRelease, release)
}

// WithRegion tags log lines with the sky region being loaded.
func WithRegion(ctx context.Context, region string) context.Context {
	return with(ctx, ctxRegion, region)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return with(ctx, ctxComponent, component)
}

// NewID returns 16 random hex characters.
func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// Build returns the root logger. Level is applied globally, so the last
// Build wins.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out)
	if cfg.SampleN > 1 {
		zl = zl.Sample(&zerolog.BasicSampler{N: uint32(min(int64(cfg.SampleN), math.MaxUint32))})
	}

	c := zl.With().Timestamp()
	if cfg.Release != "" {
		c = c.Str(string(ctxRelease), cfg.Release)
	}
	if cfg.Component != "" {
		c = c.Str(string(ctxComponent), cfg.Component)
	}
	return c.Logger()
}

// FromContext returns a child of parent with the context fields of ctx
// applied. A nil parent discards.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.New(io.Discard)
	if parent != nil {
		base = *parent
	}
	c := base.With()
	for _, k := range contextFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			c = c.Str(string(k), s)
		}
	}
	l := c.Logger()
	return &l
}
