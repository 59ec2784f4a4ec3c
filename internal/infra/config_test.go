package infra

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"nft_market/internal/domain"
)

const validYAML = `
app:
  name: nft-market-test
market:
  address: "0x1000000000000000000000000000000000000001"
  admin: "0xad00000000000000000000000000000000000000"
  fee_percent: "5"
  accepted_tokens:
    - address: "0x2000000000000000000000000000000000000001"
      mode: fee_applies
chain:
  tokens:
    - address: "0x2000000000000000000000000000000000000001"
      symbol: EGO
  collections:
    - address: "0x3000000000000000000000000000000000000001"
      name: ERC721ReqCreator
      royalty_receiver: "0xcc00000000000000000000000000000000000000"
      royalty_bps: 750
  faucet:
    - token: "0x2000000000000000000000000000000000000001"
      account: "0x00000000000000000000000000000000000000a0"
      amount: "1000.5"
storage:
  path: data/test.db
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(validYAML))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	bps, err := cfg.FeeBps()
	if err != nil || bps != 500 {
		t.Errorf("FeeBps = %d, %v; want 500", bps, err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("default server addr not applied: %q", cfg.Server.Addr)
	}
	if !cfg.Storage.Replay {
		t.Error("replay should default to true")
	}
	if cfg.Chain.Collections[0].RoyaltyBps != 750 {
		t.Errorf("royalty bps = %d", cfg.Chain.Collections[0].RoyaltyBps)
	}
	amt, err := cfg.Chain.Faucet[0].ParsedAmount()
	if err != nil || amt.Dec() != "1000500000000000000000" {
		t.Errorf("faucet amount = %v, %v", amt, err)
	}
}

func TestParseConfig_EnvOverride(t *testing.T) {
	t.Setenv("MARKET_API_KEY", "secret")
	t.Setenv("MARKET_FEE_PERCENT", "2.5")
	t.Setenv("MARKET_REPLAY", "false")

	cfg, err := ParseConfig([]byte(validYAML))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Server.APIKey != "secret" {
		t.Errorf("api key = %q", cfg.Server.APIKey)
	}
	if bps, _ := cfg.FeeBps(); bps != 250 {
		t.Errorf("FeeBps = %d, want 250", bps)
	}
	if cfg.Storage.Replay {
		t.Error("replay should be disabled by env")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		field   string
	}{
		{"bad market address", [2]string{`address: "0x1000000000000000000000000000000000000001"`, `address: "market"`}, "market.address"},
		{"zero admin", [2]string{`admin: "0xad00000000000000000000000000000000000000"`, `admin: "0x0000000000000000000000000000000000000000"`}, "market.admin"},
		{"fee above 100", [2]string{`fee_percent: "5"`, `fee_percent: "100.01"`}, "market.fee_percent"},
		{"fee fraction of bps", [2]string{`fee_percent: "5"`, `fee_percent: "5.001"`}, "market.fee_percent"},
		{"unknown token mode", [2]string{`mode: fee_applies`, `mode: sometimes`}, "market.accepted_tokens[0].mode"},
		{"royalty too high", [2]string{`royalty_bps: 750`, `royalty_bps: 10001`}, "chain.collections[0].royalty_bps"},
		{"bad faucet amount", [2]string{`amount: "1000.5"`, `amount: "-1"`}, "chain.faucet[0].amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(validYAML, tt.replace[0], tt.replace[1], 1)
			_, err := ParseConfig([]byte(data))
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug").String() != "DEBUG" || ParseLevel("nope").String() != "INFO" {
		t.Error("unexpected level mapping")
	}
}
