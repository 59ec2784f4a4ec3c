package app

import (
	"context"
	"fmt"
	"log/slog"

	"nft_market/internal/domain"
	"nft_market/internal/engine"
	"nft_market/internal/infra"
	"nft_market/internal/infra/feed"
	"nft_market/internal/infra/storage"
	"nft_market/internal/server"

	"github.com/ethereum/go-ethereum/common"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	Sequencer *engine.Sequencer
	Feed      *feed.Hub
	Server    *server.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the configuration, rebuilds market state and wires the
// sequencer, the feed and the API together.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	slog.Info("🚀 Bootstrapping NFT Market...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	// 4. Genesis state
	genesis, err := GenesisFromConfig(cfg)
	if err != nil {
		return err
	}
	env, err := engine.NewEnv(genesis, logger)
	if err != nil {
		return err
	}
	slog.Info("✅ Genesis applied",
		slog.String("market", genesis.Market.Hex()),
		slog.Int("tokens", len(genesis.Tokens)),
		slog.Int("collections", len(genesis.Collections)))

	// 5. Feed & Sequencer
	b.Feed = feed.NewHub(infra.GlobalMetrics, logger)
	b.Sequencer = engine.NewSequencer(env, engine.Options{
		Store:     store,
		Metrics:   infra.GlobalMetrics,
		Logger:    logger,
		OnReceipt: b.Feed.Publish,
	})

	// 6. Replay the write-ahead log
	if cfg.Storage.Replay {
		recs, err := store.LoadTxs(ctx)
		if err != nil {
			return fmt.Errorf("load wal: %w", err)
		}
		b.Sequencer.Replay(recs)
		slog.Info("✅ WAL replayed", slog.Int("txs", len(recs)), slog.Uint64("next_seq", b.Sequencer.NextSeq()))
	}

	// 7. API
	b.Server = server.NewServer(server.Config{
		Addr:   cfg.Server.Addr,
		APIKey: cfg.Server.APIKey,
	}, b.Sequencer, store, b.Feed.HandleWS, infra.GlobalMetrics, logger)

	return nil
}

// Close releases the resources opened by Initialize.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Error("Failed to close storage", slog.Any("error", err))
		}
	}
}

// GenesisFromConfig translates the chain and market sections of cfg.
func GenesisFromConfig(cfg *infra.Config) (engine.Genesis, error) {
	feeBps, err := cfg.FeeBps()
	if err != nil {
		return engine.Genesis{}, err
	}
	g := engine.Genesis{
		Market: cfg.MarketAddress(),
		Admin:  cfg.AdminAddress(),
		FeeBps: feeBps,
	}

	for _, t := range cfg.Chain.Tokens {
		g.Tokens = append(g.Tokens, engine.GenesisToken{
			Address: common.HexToAddress(t.Address),
			Symbol:  t.Symbol,
		})
	}
	for _, c := range cfg.Chain.Collections {
		gc := engine.GenesisCollection{
			Address:    common.HexToAddress(c.Address),
			Name:       c.Name,
			RoyaltyBps: c.RoyaltyBps,
		}
		if c.RoyaltyReceiver != "" {
			gc.RoyaltyReceiver = common.HexToAddress(c.RoyaltyReceiver)
		}
		g.Collections = append(g.Collections, gc)
	}
	for _, l := range cfg.Market.AcceptedTokens {
		mode, err := domain.ParseTokenMode(l.Mode)
		if err != nil {
			return engine.Genesis{}, &domain.ConfigError{Field: "market.accepted_tokens", Err: err}
		}
		g.AcceptedTokens = append(g.AcceptedTokens, engine.GenesisListing{
			Token: common.HexToAddress(l.Address),
			Mode:  mode,
		})
	}
	for _, f := range cfg.Chain.Faucet {
		amount, err := f.ParsedAmount()
		if err != nil {
			return engine.Genesis{}, &domain.ConfigError{Field: "chain.faucet", Err: err}
		}
		g.Balances = append(g.Balances, engine.GenesisBalance{
			Token:   common.HexToAddress(f.Token),
			Account: common.HexToAddress(f.Account),
			Amount:  amount,
		})
	}
	return g, nil
}
