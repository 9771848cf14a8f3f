package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"burnledger/cmd/internal/passphrase"
	"burnledger/config"
	"burnledger/core"
	"burnledger/crypto"
	"burnledger/native/permit"
	"burnledger/observability/logging"
	telemetry "burnledger/observability/otel"
	"burnledger/storage"
)

// env holds everything a subcommand needs: the loaded config, the open
// store and the ledger host on top of it.
type env struct {
	cfg      *config.Config
	db       *storage.LevelDB
	ledger   *core.Ledger
	logger   *slog.Logger
	shutdown telemetry.ShutdownFunc

	keystorePass *passphrase.Source
	viewingKey   *passphrase.Source
	operator     *crypto.PrivateKey
}

func openEnv(ctx context.Context, configPath string, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Logging.Env,
		logging.WithWriter(stderr),
		logging.WithLevel(cfg.Logging.Level))

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Logging.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	ledgerAddr, err := cfg.Ledger()
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	registry, err := core.LoadStaticRegistry(cfg.ItemRegistryFile)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	db, err := storage.NewLevelDB(cfg.StorePath())
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("open store %s: %w", cfg.StorePath(), err)
	}
	ledger := core.NewLedger(db, ledgerAddr, registry, permit.NewVerifier(cfg.ChainID), core.WithLogger(logger))

	return &env{
		cfg:          cfg,
		db:           db,
		ledger:       ledger,
		logger:       logger,
		shutdown:     shutdown,
		keystorePass: passphrase.NewSource(passphrase.DefaultEnvVar),
		viewingKey:   passphrase.NewSource(viewingKeyEnv).Named("viewing key"),
	}, nil
}

func (e *env) Close(ctx context.Context) error {
	return errors.Join(e.db.Close(), e.shutdown(ctx))
}

// operatorKey decrypts the operator keystore once per invocation.
func (e *env) operatorKey() (*crypto.PrivateKey, error) {
	if e.operator != nil {
		return e.operator, nil
	}
	pass, err := e.keystorePass.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(e.cfg.OperatorKeystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("load operator key: %w", err)
	}
	e.operator = key
	return key, nil
}

func (e *env) operatorAddress() ([20]byte, error) {
	key, err := e.operatorKey()
	if err != nil {
		return [20]byte{}, err
	}
	return key.PubKey().Address().Array(), nil
}

// addressOrOperator parses raw, falling back to the operator when empty.
func (e *env) addressOrOperator(flagName, raw string) ([20]byte, error) {
	if raw == "" {
		return e.operatorAddress()
	}
	addr, err := crypto.ParseAddress(crypto.BurnPrefix, raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return addr, nil
}
