package app

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/h3-refcat/internal/cache/keys"
	"github.com/mohammed-shakir/h3-refcat/internal/core/config"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex/starindextest"
)

var (
	fieldCap = sky.Cap{Center: sky.NewCoord(120, -30), Radius: sky.Degrees(0.2)}
	westCap  = sky.Cap{Center: starindextest.Offset(fieldCap.Center, sky.Degrees(0.08).Radians(), 1.5*math.Pi), Radius: sky.Degrees(0.14)}
	eastCap  = sky.Cap{Center: starindextest.Offset(fieldCap.Center, sky.Degrees(0.08).Radians(), 0.5*math.Pi), Radius: sky.Degrees(0.14)}
)

const manifestTmpl = `
release = "synthetic"
columns = ["u", "g", "r", "i", "z", "r_err"]
default_filter = "r"

[mag_column_map]
u = "u"
g = "g"
r = "r"
i = "i"
z = "z"

[mag_error_column_map]
r = "r_err"

[filter_map]
cam_r = "r"

[[index]]
id = "west"
path = "west.h3sx"

[[index]]
id = "east"
path = "east.h3sx"
`

func writeRelease(t *testing.T) (string, int) {
	t.Helper()
	dir := t.TempDir()
	rows := starindextest.Field(42, 1, 2000, fieldCap)
	starindextest.Write(t, dir, "west", starindextest.Within(rows, westCap), starindextest.Options{})
	starindextest.Write(t, dir, "east", starindextest.Within(rows, eastCap), starindextest.Options{Compress: true})
	path := filepath.Join(dir, "release.toml")
	if err := os.WriteFile(path, []byte(manifestTmpl), 0o600); err != nil {
		t.Fatal(err)
	}

	q := sky.Cap{Center: fieldCap.Center, Radius: sky.Degrees(0.1)}
	n := 0
	for _, r := range starindextest.Within(rows, q) {
		if westCap.Contains(r.Coord) || eastCap.Contains(r.Coord) {
			n++
		}
	}
	return path, n
}

func TestNew_LoadsFromManifest(t *testing.T) {
	path, want := writeRelease(t)
	a, err := New(context.Background(), config.Config{ReleaseManifest: path, PixelMargin: 50}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Close() }()

	res, err := a.Loader.LoadSkyCircle(context.Background(), fieldCap.Center, sky.Degrees(0.1), "")
	if err != nil {
		t.Fatalf("LoadSkyCircle: %v", err)
	}
	if res.RefCat.Len() != want {
		t.Fatalf("records=%d want %d", res.RefCat.Len(), want)
	}
	if res.FluxField != "r_flux" {
		t.Fatalf("default filter gave fluxField=%q want r_flux", res.FluxField)
	}
	if res.Stats.Duplicates == 0 {
		t.Fatalf("overlapping indices should produce duplicates, stats=%+v", res.Stats)
	}
	if a.Cache.Len() == 0 {
		t.Fatalf("block cache stayed empty")
	}

	res, err = a.Loader.LoadSkyCircle(context.Background(), fieldCap.Center, sky.Degrees(0.1), "cam_r")
	if err != nil {
		t.Fatalf("LoadSkyCircle cam_r: %v", err)
	}
	if res.FluxField != "cam_r_camFlux" {
		t.Fatalf("fluxField=%q want cam_r_camFlux", res.FluxField)
	}
}

func TestFromRelease_EnvOverridesAndRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	path, _ := writeRelease(t)
	rel, err := config.LoadRelease(path)
	if err != nil {
		t.Fatalf("LoadRelease: %v", err)
	}
	cfg := config.Config{
		RedisAddr:     mr.Addr(),
		DefaultFilter: "g",
		FilterMap:     map[string]string{"cam_r": "i"},
	}
	a, err := FromRelease(context.Background(), cfg, rel, nil)
	if err != nil {
		t.Fatalf("FromRelease: %v", err)
	}
	defer func() { _ = a.Close() }()

	res, err := a.Loader.LoadSkyCircle(context.Background(), fieldCap.Center, sky.Degrees(0.05), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.FluxField != "g_flux" {
		t.Fatalf("fluxField=%q want g_flux", res.FluxField)
	}
	if _, err := res.RefCat.Schema().Find("cam_r_camFlux"); err != nil {
		t.Fatalf("cam_r alias missing: %v", err)
	}
	if f, _ := res.RefCat.Schema().Find("cam_r_camFlux"); f.Name != "i_flux" {
		t.Fatalf("cam_r aliases %q, want i_flux", f.Name)
	}

	var remote int
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, keys.Prefix("west")) || strings.HasPrefix(k, keys.Prefix("east")) {
			remote++
		}
	}
	if remote == 0 {
		t.Fatalf("no blocks written through to redis")
	}
}

func TestFromRelease_UnreachableRedisDegrades(t *testing.T) {
	path, _ := writeRelease(t)
	rel, err := config.LoadRelease(path)
	if err != nil {
		t.Fatalf("LoadRelease: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	a, err := FromRelease(ctx, config.Config{RedisAddr: "127.0.0.1:1"}, rel, nil)
	if err != nil {
		t.Fatalf("FromRelease: %v", err)
	}
	defer func() { _ = a.Close() }()
	if _, err := a.Loader.LoadSkyCircle(ctx, fieldCap.Center, sky.Degrees(0.05), "r"); err != nil {
		t.Fatalf("load without redis: %v", err)
	}
}

func TestFromRelease_BadMapping(t *testing.T) {
	path, _ := writeRelease(t)
	rel, err := config.LoadRelease(path)
	if err != nil {
		t.Fatalf("LoadRelease: %v", err)
	}
	rel.MagErrorColumnMap = map[string]string{"y": "y_err"}
	_, err = FromRelease(context.Background(), config.Config{}, rel, nil)
	if err == nil {
		t.Fatalf("expected an error for an error column of an unknown filter")
	}

	if _, err := New(context.Background(), config.Config{ReleaseManifest: filepath.Join(t.TempDir(), "none.toml")}, nil); err == nil {
		t.Fatalf("expected an error for a missing manifest")
	}
}
