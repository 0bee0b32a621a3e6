package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wyfcoding/optionpricer/xerrors"
)

const sample = `
version = "1.2.0"

[log]
level = "debug"
service = "pricer-test"

[engine]
default_risk_free_rate = 0.04

[engine.monte_carlo]
simulations = 20000
seed = 7

[cache]
life_window = "1m"

[server]
addr = ":9000"
shutdown_timeout = "2s"

[idgen]
type = "sonyflake"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadOverlaysDefaults(t *testing.T) {
	cfg := Default()
	if err := Read(writeConfig(t, sample), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Version != "1.2.0" || cfg.Log.Level != "debug" || cfg.Log.Service != "pricer-test" {
		t.Errorf("top level not loaded: %+v", cfg)
	}
	if cfg.Engine.MonteCarlo.Simulations != 20000 || cfg.Engine.MonteCarlo.Seed != 7 {
		t.Errorf("monte carlo = %+v", cfg.Engine.MonteCarlo)
	}
	// 文件未出现的键保留默认值
	if cfg.Engine.MonteCarlo.Steps != 252 || cfg.Engine.Compare.Seed != 42 || cfg.Engine.Greeks.DeltaBump != 0.01 {
		t.Errorf("defaults lost: %+v", cfg.Engine)
	}
	if cfg.Engine.DefaultRiskFreeRate != 0.04 {
		t.Errorf("rate = %v", cfg.Engine.DefaultRiskFreeRate)
	}
	if cfg.Cache.LifeWindow != time.Minute {
		t.Errorf("life window = %v", cfg.Cache.LifeWindow)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.ShutdownTimeout != 2*time.Second || cfg.Server.MaxBodyBytes != 1<<20 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.IDGen.Type != "sonyflake" || cfg.IDGen.MachineID != 1 {
		t.Errorf("idgen = %+v", cfg.IDGen)
	}
}

func TestReadEnvOverride(t *testing.T) {
	t.Setenv("APP_ENGINE_MONTE_CARLO_SIMULATIONS", "123")
	cfg := Default()
	if err := Read(writeConfig(t, sample), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.MonteCarlo.Simulations != 123 {
		t.Errorf("simulations = %d, want env override 123", cfg.Engine.MonteCarlo.Simulations)
	}
}

func TestReadValidation(t *testing.T) {
	cfg := Default()
	err := Read(writeConfig(t, "[engine.monte_carlo]\nsimulations = -5\n"), cfg)
	if !errors.Is(err, xerrors.ErrInvalidConfig) || !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want validation error", err)
	}

	if err := Read(filepath.Join(t.TempDir(), "missing.toml"), Default()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyReload(t *testing.T) {
	cur := Default()
	var seen *Config
	RegisterReloadHook(func(c *Config) { seen = c })

	bad := *cur
	bad.Pool.Size = 0
	if err := applyReload(cur, &bad); err == nil {
		t.Fatal("invalid config accepted")
	}
	if cur.Pool.Size != 8 || seen != nil {
		t.Fatal("invalid reload applied")
	}

	over := *cur
	over.Engine.MonteCarlo.Simulations = over.Engine.MonteCarlo.MaxSimulations + 1
	if err := applyReload(cur, &over); err == nil {
		t.Fatal("default simulations above max_simulations accepted")
	}

	next := *cur
	next.Engine.MonteCarlo.Simulations = 777
	if err := applyReload(cur, &next); err != nil {
		t.Fatal(err)
	}
	if cur.Engine.MonteCarlo.Simulations != 777 || seen != cur {
		t.Errorf("reload not applied: %+v", cur.Engine.MonteCarlo)
	}
}
