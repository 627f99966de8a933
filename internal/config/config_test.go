package config

import "testing"

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{Port: 0},
		Storage: StorageConfig{Driver: "memory"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{Port: 8080},
		Storage: StorageConfig{Driver: "sqlite"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown storage driver")
	}

	expected := `storage.driver must be "memory", "file" or "redis", got "sqlite"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{Port: 8080},
		Storage: StorageConfig{Driver: "redis", Addrs: []string{}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_ValidDrivers(t *testing.T) {
	for _, driver := range []string{"memory", "file"} {
		t.Run("driver="+driver, func(t *testing.T) {
			cfg := Config{
				HTTP:    HTTPConfig{Port: 8080},
				Storage: StorageConfig{Driver: driver},
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for driver %q: %v", driver, err)
			}
		})
	}
}

func TestValidate_QualityOutOfRange(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 8080},
		Storage:   StorageConfig{Driver: "memory"},
		Optimizer: OptimizerConfig{Quality: 101},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for quality > 100")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("expected Driver='memory', got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.PollIntervalMS != 500 {
		t.Errorf("expected PollIntervalMS=500, got %d", cfg.Storage.PollIntervalMS)
	}
	if cfg.Workspace.DebounceMS != 200 {
		t.Errorf("expected DebounceMS=200, got %d", cfg.Workspace.DebounceMS)
	}
	if cfg.Outbox.QueueSize != 256 {
		t.Errorf("expected QueueSize=256, got %d", cfg.Outbox.QueueSize)
	}
	if cfg.Outbox.MaxAttempts != 5 {
		t.Errorf("expected MaxAttempts=5, got %d", cfg.Outbox.MaxAttempts)
	}
	if cfg.Optimizer.MaxDimension != 2048 {
		t.Errorf("expected MaxDimension=2048, got %d", cfg.Optimizer.MaxDimension)
	}
	if cfg.Optimizer.Quality != 82 {
		t.Errorf("expected Quality=82, got %v", cfg.Optimizer.Quality)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Storage:   StorageConfig{Driver: "file", Dir: "/var/lib/uxsync", PollIntervalMS: 250},
		Workspace: WorkspaceConfig{DebounceMS: 50},
		Optimizer: OptimizerConfig{MaxDimension: 1024, Quality: 60},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("expected Driver='file', got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Dir != "/var/lib/uxsync" {
		t.Errorf("expected Dir='/var/lib/uxsync', got %q", cfg.Storage.Dir)
	}
	if cfg.Storage.PollIntervalMS != 250 {
		t.Errorf("expected PollIntervalMS=250, got %d", cfg.Storage.PollIntervalMS)
	}
	if cfg.Workspace.DebounceMS != 50 {
		t.Errorf("expected DebounceMS=50, got %d", cfg.Workspace.DebounceMS)
	}
	if cfg.Optimizer.MaxDimension != 1024 {
		t.Errorf("expected MaxDimension=1024, got %d", cfg.Optimizer.MaxDimension)
	}
}
