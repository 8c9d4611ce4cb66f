package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"dantemarket/crypto"

	"github.com/BurntSushi/toml"
)

const maxFeeBps = 10_000

type Config struct {
	RPCAddress      string   `toml:"RPCAddress"`
	RPCAuthToken    string   `toml:"RPCAuthToken"`
	DataDir         string   `toml:"DataDir"`
	NetworkName     string   `toml:"NetworkName"`
	TreasuryAddress string   `toml:"TreasuryAddress"`
	AdminAddresses  []string `toml:"AdminAddresses"`
	MinterAddresses []string `toml:"MinterAddresses"`
	BuyerFeeBps     uint32   `toml:"BuyerFeeBps"`
	SellerFeeBps    uint32   `toml:"SellerFeeBps"`
	// TokenSupplyCap is a decimal string. Empty means uncapped.
	TokenSupplyCap string `toml:"TokenSupplyCap"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields an operator can get wrong. Addresses must be
// bech32 and the fee rates stay inside the basis-point scale.
func (c *Config) Validate() error {
	if c.BuyerFeeBps > maxFeeBps {
		return fmt.Errorf("BuyerFeeBps %d exceeds %d", c.BuyerFeeBps, maxFeeBps)
	}
	if c.SellerFeeBps > maxFeeBps {
		return fmt.Errorf("SellerFeeBps %d exceeds %d", c.SellerFeeBps, maxFeeBps)
	}
	if strings.TrimSpace(c.TreasuryAddress) == "" {
		return fmt.Errorf("TreasuryAddress is required")
	}
	if _, err := crypto.DecodeAddress(c.TreasuryAddress); err != nil {
		return fmt.Errorf("TreasuryAddress: %w", err)
	}
	for _, addr := range c.AdminAddresses {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("AdminAddresses entry %q: %w", addr, err)
		}
	}
	for _, addr := range c.MinterAddresses {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("MinterAddresses entry %q: %w", addr, err)
		}
	}
	if _, err := c.SupplyCap(); err != nil {
		return err
	}
	return nil
}

// SupplyCap parses TokenSupplyCap, returning nil for an uncapped supply.
func (c *Config) SupplyCap() (*big.Int, error) {
	raw := strings.TrimSpace(c.TokenSupplyCap)
	if raw == "" {
		return nil, nil
	}
	cap, ok := new(big.Int).SetString(raw, 10)
	if !ok || cap.Sign() < 0 {
		return nil, fmt.Errorf("TokenSupplyCap %q is not a non-negative decimal", c.TokenSupplyCap)
	}
	return cap, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./market-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "market-local"
	}
	if cfg.AdminAddresses == nil {
		cfg.AdminAddresses = []string{}
	}
	if cfg.MinterAddresses == nil {
		cfg.MinterAddresses = []string{}
	}
}

// createDefault creates and saves a default configuration file. A fresh
// operator key provides the treasury and admin identity so the node can start
// without hand-edited config.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	operator := key.PubKey().Address().String()

	cfg := &Config{
		RPCAddress:      ":8080",
		DataDir:         "./market-data",
		NetworkName:     "market-local",
		TreasuryAddress: operator,
		AdminAddresses:  []string{operator},
		MinterAddresses: []string{operator},
		BuyerFeeBps:     200,
		SellerFeeBps:    200,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
