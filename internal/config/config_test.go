package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.URL != "http://localhost:5000" || cfg.API.Username != "collector1" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Sim.Speed != 0.4 || cfg.Sim.PauseSeconds != 5 || cfg.Sim.Spacing != 0.0002 || cfg.Sim.Tolerance != 0.0005 {
		t.Errorf("sim = %+v", cfg.Sim)
	}
	if cfg.Route.Source != SourceBuiltin {
		t.Errorf("route source = %q", cfg.Route.Source)
	}
	w := cfg.Sim.Walker()
	if w.Dwell != 5*time.Second || w.Interval() != 2500*time.Millisecond {
		t.Errorf("walker config = %+v (interval %s)", w, w.Interval())
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("SIMULATOR_SIM_SPEED", "2")
	t.Setenv("SIMULATOR_API_TOKEN", "from-env")
	t.Setenv("SIMULATOR_API_TIMEOUT", "3s")

	cfg, err := Load([]string{"--speed", "4", "--skip-reset", "--pause", "1.5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sim.Speed != 4 {
		t.Errorf("speed = %v, want flag value 4", cfg.Sim.Speed)
	}
	if cfg.API.Token != "from-env" {
		t.Errorf("token = %q, want env value", cfg.API.Token)
	}
	if cfg.API.Timeout != 3*time.Second {
		t.Errorf("timeout = %s", cfg.API.Timeout)
	}
	if !cfg.Bins.SkipReset {
		t.Error("expected skip reset")
	}
	if cfg.Sim.Walker().Dwell != 1500*time.Millisecond {
		t.Errorf("dwell = %s", cfg.Sim.Walker().Dwell)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	body := `
route:
  source: geojson
  file: routes/ues.geojson
nats:
  url: nats://127.0.0.1:4222
  stream: COLLECTOR
log:
  format: json
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Route.Source != SourceGeoJSON || cfg.Route.File != "routes/ues.geojson" {
		t.Errorf("route = %+v", cfg.Route)
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" || cfg.NATS.Stream != "COLLECTOR" || cfg.NATS.SubjectPrefix != "collector" {
		t.Errorf("nats = %+v", cfg.NATS)
	}
}

func TestLoad_Help(t *testing.T) {
	_, err := Load([]string{"--help"})
	if !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("expected pflag.ErrHelp, got %v", err)
	}
}

func TestLoad_ValidationCollectsAllErrors(t *testing.T) {
	_, err := Load([]string{"--speed", "0", "--spacing", "-1", "--route-source", "postgres"})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"speed multiplier", "spacing factor", "database.url", "route.id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidate_PauseOutOfRange(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []float64{1e10, 1e300} {
		cfg.Sim.PauseSeconds = p
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "sim.pause") {
			t.Errorf("pause %g: expected sim.pause error, got %v", p, err)
		}
	}
	cfg.Sim.PauseSeconds = 3600
	if err := cfg.Validate(); err != nil {
		t.Errorf("pause 3600: %v", err)
	}
}

func TestValidate_GeoJSONNeedsFile(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Route.Source = SourceGeoJSON
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "route.file") {
		t.Fatalf("expected route.file error, got %v", err)
	}
	cfg.Route.Source = "osm"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "route.source") {
		t.Fatalf("expected route.source error, got %v", err)
	}
}

func TestParseBinResets(t *testing.T) {
	got, err := ParseBinResets(" a:75, b:95 ,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got["a"] != 75 || got["b"] != 95 {
		t.Errorf("got %v", got)
	}
	if FormatBinResets(got) != "a:75,b:95" {
		t.Errorf("format = %q", FormatBinResets(got))
	}

	for _, bad := range []string{"a", ":5", "a:x", "a:101", "a:-1"} {
		if _, err := ParseBinResets(bad); err == nil {
			t.Errorf("ParseBinResets(%q) expected error", bad)
		}
	}
	if m, err := ParseBinResets(""); err != nil || len(m) != 0 {
		t.Errorf("empty input = (%v, %v)", m, err)
	}
}
