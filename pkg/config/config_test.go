package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalYAML = `
environment: test
runtime:
  base_url: http://localhost:8500
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Dataset.WindowLength != 100 {
		t.Fatalf("window length default: got %d", c.Dataset.WindowLength)
	}
	if c.Dataset.Horizon != 50 {
		t.Fatalf("horizon default: got %d", c.Dataset.Horizon)
	}
	if c.Dataset.NumFeatures != 40 {
		t.Fatalf("features default: got %d", c.Dataset.NumFeatures)
	}
	if c.Training.BatchSize != 64 || c.Training.Epochs != 200 {
		t.Fatalf("training defaults: batch %d epochs %d", c.Training.BatchSize, c.Training.Epochs)
	}
	if c.Training.RecurrentUnits != 64 {
		t.Fatalf("recurrent units default: got %d", c.Training.RecurrentUnits)
	}
}

func TestLoadMissingRuntimeURL(t *testing.T) {
	_, err := Load(writeConfig(t, "environment: test\n"))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadBadHorizon(t *testing.T) {
	body := minimalYAML + "dataset:\n  horizon: 42\n"
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected validation error for horizon 42")
	}
}

func TestLoadFeedRequiresURL(t *testing.T) {
	body := minimalYAML + "feed:\n  enabled: true\n"
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected validation error for enabled feed without url")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("RUNTIME_URL", "http://runtime:9000")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("SHUFFLE_SEED", "1234")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Runtime.BaseURL != "http://runtime:9000" {
		t.Fatalf("runtime url override: got %q", c.Runtime.BaseURL)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("broker override: got %v", c.Kafka.Brokers)
	}
	if c.Training.ShuffleSeed != 1234 {
		t.Fatalf("seed override: got %d", c.Training.ShuffleSeed)
	}
}
