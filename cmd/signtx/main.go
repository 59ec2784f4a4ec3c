// Command signtx signs a marketplace transaction and prints the JSON body
// for POST /api/tx.
//
//	MARKET_PRIVATE_KEY=0x... signtx -method market.bid -nonce 3 -params '{"amount":"1"}'
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"nft_market/internal/engine"
	"nft_market/internal/infra"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config providing the market address")
	market := flag.String("market", "", "market address (overrides -config)")
	keyHex := flag.String("key", "", "hex private key (default $MARKET_PRIVATE_KEY)")
	method := flag.String("method", "", "transaction method, e.g. market.bid")
	params := flag.String("params", "{}", "JSON params")
	nonce := flag.Uint64("nonce", 0, "sender nonce, see GET /api/nonces/{account}")
	flag.Parse()

	if err := run(*configPath, *market, *keyHex, *method, *params, *nonce); err != nil {
		fmt.Fprintln(os.Stderr, "signtx:", err)
		os.Exit(1)
	}
}

func run(configPath, marketHex, keyHex, method, params string, nonce uint64) error {
	_ = godotenv.Load()
	if keyHex == "" {
		keyHex = os.Getenv("MARKET_PRIVATE_KEY")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return fmt.Errorf("private key: %w", err)
	}

	if marketHex == "" {
		cfg, err := infra.LoadConfig(configPath)
		if err != nil {
			return err
		}
		marketHex = cfg.Market.Address
	}
	if !common.IsHexAddress(marketHex) {
		return fmt.Errorf("invalid market address %q", marketHex)
	}

	if _, err := engine.Decode(method, json.RawMessage(params)); err != nil {
		return err
	}
	tx, err := engine.SignTx(engine.Tx{Nonce: nonce, Method: method, Params: json.RawMessage(params)}, common.HexToAddress(marketHex), key)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tx)
}
