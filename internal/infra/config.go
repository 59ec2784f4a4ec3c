package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"nft_market/internal/domain"
	"nft_market/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// maxFeePercent is 100% expressed in percent.
var maxFeePercent = decimal.NewFromInt(100)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Market struct {
		Address        string          `yaml:"address"`
		Admin          string          `yaml:"admin"`
		FeePercent     decimal.Decimal `yaml:"fee_percent"`
		AcceptedTokens []TokenListing  `yaml:"accepted_tokens"`
	} `yaml:"market"`

	Chain struct {
		Tokens      []TokenDeployment      `yaml:"tokens"`
		Collections []CollectionDeployment `yaml:"collections"`
		Faucet      []FaucetGrant          `yaml:"faucet"`
	} `yaml:"chain"`

	Storage struct {
		Path   string `yaml:"path"`
		Replay bool   `yaml:"replay"`
	} `yaml:"storage"`

	Server struct {
		Addr   string `yaml:"addr"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`

	Logging struct {
		Level     string `yaml:"level"`
		Dir       string `yaml:"dir"`
		MaxSizeMB int    `yaml:"max_size_mb"`
	} `yaml:"logging"`
}

// TokenListing is an accepted-token registry entry applied at genesis.
type TokenListing struct {
	Address string `yaml:"address"`
	Mode    string `yaml:"mode"` // not_accepted, fee_applies, no_fee
}

// TokenDeployment is a paper ERC-20 deployed at genesis.
type TokenDeployment struct {
	Address string `yaml:"address"`
	Symbol  string `yaml:"symbol"`
}

// CollectionDeployment is a paper ERC-721 deployed at genesis.
type CollectionDeployment struct {
	Address         string `yaml:"address"`
	Name            string `yaml:"name"`
	RoyaltyReceiver string `yaml:"royalty_receiver"`
	RoyaltyBps      uint64 `yaml:"royalty_bps"`
}

// FaucetGrant mints Amount (in whole tokens, decimals allowed) at genesis.
type FaucetGrant struct {
	Token   string `yaml:"token"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies the environment and validates.
func ParseConfig(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Defaults returns the configuration used for keys the file leaves out.
func Defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "nft-market"
	cfg.Market.FeePercent = decimal.NewFromInt(5)
	cfg.Storage.Path = "data/market.db"
	cfg.Storage.Replay = true
	cfg.Server.Addr = ":8080"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Logging.MaxSizeMB = 10
	return cfg
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Market
	if err := checkAddress("market.address", c.Market.Address); err != nil {
		return err
	}
	if err := checkAddress("market.admin", c.Market.Admin); err != nil {
		return err
	}
	if _, err := c.FeeBps(); err != nil {
		return err
	}
	for i, t := range c.Market.AcceptedTokens {
		if err := checkAddress(fmt.Sprintf("market.accepted_tokens[%d].address", i), t.Address); err != nil {
			return err
		}
		if _, err := domain.ParseTokenMode(t.Mode); err != nil {
			return &domain.ConfigError{Field: fmt.Sprintf("market.accepted_tokens[%d].mode", i), Err: err}
		}
	}

	// Chain
	for i, t := range c.Chain.Tokens {
		if err := checkAddress(fmt.Sprintf("chain.tokens[%d].address", i), t.Address); err != nil {
			return err
		}
	}
	for i, col := range c.Chain.Collections {
		field := fmt.Sprintf("chain.collections[%d]", i)
		if err := checkAddress(field+".address", col.Address); err != nil {
			return err
		}
		if col.RoyaltyReceiver != "" && !common.IsHexAddress(col.RoyaltyReceiver) {
			return &domain.ConfigError{Field: field + ".royalty_receiver", Err: errors.New("invalid address")}
		}
		if col.RoyaltyBps > 10000 {
			return &domain.ConfigError{Field: field + ".royalty_bps", Err: errors.New("must not exceed 10000")}
		}
	}
	for i, g := range c.Chain.Faucet {
		field := fmt.Sprintf("chain.faucet[%d]", i)
		if err := checkAddress(field+".token", g.Token); err != nil {
			return err
		}
		if err := checkAddress(field+".account", g.Account); err != nil {
			return err
		}
		if _, err := units.ParseUnits(g.Amount, units.EtherDecimals); err != nil {
			return &domain.ConfigError{Field: field + ".amount", Err: err}
		}
	}

	// Storage / Server
	if c.Storage.Path == "" {
		return &domain.ConfigError{Field: "storage.path", Err: errors.New("required")}
	}
	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("required")}
	}

	return nil
}

// FeeBps converts fee_percent to basis points. Fractions of a basis point
// are rejected.
func (c *Config) FeeBps() (uint64, error) {
	p := c.Market.FeePercent
	if p.IsNegative() || p.GreaterThan(maxFeePercent) {
		return 0, &domain.ConfigError{Field: "market.fee_percent", Err: errors.New("must be between 0 and 100")}
	}
	bps := p.Shift(2)
	if !bps.Equal(bps.Truncate(0)) {
		return 0, &domain.ConfigError{Field: "market.fee_percent", Err: errors.New("must be a whole number of basis points")}
	}
	return uint64(bps.IntPart()), nil
}

// MarketAddress returns market.address.
func (c *Config) MarketAddress() common.Address { return common.HexToAddress(c.Market.Address) }

// AdminAddress returns market.admin.
func (c *Config) AdminAddress() common.Address { return common.HexToAddress(c.Market.Admin) }

// ParsedAmount parses the faucet amount with 18 decimals.
func (g FaucetGrant) ParsedAmount() (*uint256.Int, error) {
	return units.ParseUnits(g.Amount, units.EtherDecimals)
}

func checkAddress(field, s string) error {
	if !common.IsHexAddress(s) {
		return &domain.ConfigError{Field: field, Err: fmt.Errorf("invalid address %q", s)}
	}
	if common.HexToAddress(s) == domain.ZeroAddress {
		return &domain.ConfigError{Field: field, Err: errors.New("zero address")}
	}
	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	setStr(&cfg.Market.Admin, "MARKET_ADMIN")
	setStr(&cfg.Storage.Path, "MARKET_DB_PATH")
	setStr(&cfg.Server.Addr, "MARKET_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "MARKET_API_KEY")
	setStr(&cfg.Logging.Level, "MARKET_LOG_LEVEL")
	setStr(&cfg.Logging.Dir, "MARKET_LOG_DIR")
	if v := os.Getenv("MARKET_FEE_PERCENT"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Market.FeePercent = d
		}
	}
	if v := os.Getenv("MARKET_REPLAY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Storage.Replay = b
		}
	}
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
