package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"burnledger/crypto"
)

const (
	defaultDataDir     = "./burn-data"
	defaultChainID     = "burnledger-local"
	defaultServiceName = "burnctl"
)

// Config is the on-disk configuration of a local ledger.
type Config struct {
	DataDir string `toml:"DataDir"`
	ChainID string `toml:"ChainID"`
	// LedgerAddress is the ledger's own bech32 identity. Query permits must
	// list it.
	LedgerAddress        string    `toml:"LedgerAddress"`
	OperatorKeystorePath string    `toml:"OperatorKeystorePath"`
	ItemRegistryFile     string    `toml:"ItemRegistryFile"`
	ExportDir            string    `toml:"ExportDir"`
	Logging              Logging   `toml:"logging"`
	Telemetry            Telemetry `toml:"telemetry"`
}

// Logging configures the slog JSON handler.
type Logging struct {
	Level string `toml:"Level"`
	Env   string `toml:"Env"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	ServiceName string `toml:"ServiceName"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
	Traces      bool   `toml:"Traces"`
	Metrics     bool   `toml:"Metrics"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	cfg.applyDefaults(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults(path string) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.ChainID) == "" {
		cfg.ChainID = defaultChainID
	}
	if strings.TrimSpace(cfg.OperatorKeystorePath) == "" {
		cfg.OperatorKeystorePath = defaultKeystorePath(path)
	}
	if strings.TrimSpace(cfg.ExportDir) == "" {
		cfg.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = defaultServiceName
	}
}

// Validate reports the first invalid setting.
func (cfg *Config) Validate() error {
	if _, err := cfg.Ledger(); err != nil {
		return fmt.Errorf("LedgerAddress: %w", err)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.Level: unknown level %q", cfg.Logging.Level)
	}
	if (cfg.Telemetry.Traces || cfg.Telemetry.Metrics) && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry.Endpoint required when exporters are enabled")
	}
	return nil
}

// Ledger decodes LedgerAddress.
func (cfg *Config) Ledger() ([20]byte, error) {
	return crypto.ParseAddress(crypto.BurnPrefix, cfg.LedgerAddress)
}

// StorePath is the LevelDB directory holding ledger state.
func (cfg *Config) StorePath() string {
	return filepath.Join(cfg.DataDir, "state")
}

// createDefault creates and saves a default configuration file. Each new
// ledger gets a fresh random identity.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		DataDir:       defaultDataDir,
		ChainID:       defaultChainID,
		LedgerAddress: key.PubKey().Address().String(),
	}
	cfg.applyDefaults(path)
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

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "operator.keystore")
}
