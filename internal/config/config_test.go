package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func TestDefaultsValidateForMonitor(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate in monitor mode: %v", err)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Trading.TriggerPrice = 0.97
	cfg.Trading.MaxBuyPrice = 0.95
	cfg.Markets.Period = "5m"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"private_key", "trigger_price must not exceed", "markets: period"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error missing %q:\n%v", want, err)
		}
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "monitor"

[markets]
period = "1h"
enable_solana = true

[trading]
trigger_price = 0.6
min_elapsed = "1m"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POLYBOT_TRADING_MAX_BUY_PRICE", "0.93")
	t.Setenv("POLYBOT_MARKETS_ENABLE_XRP", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trading.TriggerPrice != 0.6 || cfg.Trading.MinElapsed.Duration != time.Minute {
		t.Fatalf("file values not applied: %+v", cfg.Trading)
	}
	if cfg.Trading.MaxBuyPrice != 0.93 {
		t.Fatalf("env override got=%v want=0.93", cfg.Trading.MaxBuyPrice)
	}
	if cfg.Trading.SellPrice != 0.99 {
		t.Fatalf("default lost got=%v want=0.99", cfg.Trading.SellPrice)
	}
	p, err := cfg.PeriodLength()
	if err != nil || p != domain.Period1h {
		t.Fatalf("period got=%v err=%v", p, err)
	}
	assets := cfg.EnabledAssets()
	want := []domain.Asset{domain.AssetBTC, domain.AssetETH, domain.AssetSOL, domain.AssetXRP}
	if len(assets) != len(want) {
		t.Fatalf("assets got=%v want=%v", assets, want)
	}
	for i := range want {
		if assets[i] != want[i] {
			t.Fatalf("assets got=%v want=%v", assets, want)
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trading.FixedTradeAmount != 1.0 {
		t.Fatalf("got=%v want=1.0", cfg.Trading.FixedTradeAmount)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Builder.ApiSecret = "secret"
	out := RedactedConfig(&cfg)
	if out.Wallet.PrivateKey != redacted || out.Builder.ApiSecret != redacted {
		t.Fatalf("secrets not redacted: %+v", out.Wallet)
	}
	if cfg.Wallet.PrivateKey != "0xdeadbeef" {
		t.Fatal("original config mutated")
	}
	if out.Builder.ApiKey != "" {
		t.Fatal("empty field should stay empty")
	}
}
