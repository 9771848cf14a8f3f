package main

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"burnledger/config"
	"burnledger/core"
	"burnledger/core/audit"
	"burnledger/crypto"
	"burnledger/native/burn"
	"burnledger/native/permit"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func noArgs(fs *flag.FlagSet) error {
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected positional arguments", errUsage)
	}
	return nil
}

func printReceipt(w io.Writer, receipt *core.Receipt) error {
	return printJSON(w, newReceiptView(receipt))
}

func runKeysNew(_ context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("keys new")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	pass, err := e.keystorePass.Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(e.cfg.OperatorKeystorePath, key, pass, *force); err != nil {
		return err
	}
	return printJSON(stdout, map[string]string{
		"address":  key.PubKey().Address().String(),
		"keystore": e.cfg.OperatorKeystorePath,
	})
}

func runInit(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("init")
	registry := fs.String("registry", "", "item registry bech32 address")
	registryName := fs.String("registry-name", "", "item registry label")
	registryHash := fs.String("registry-code-hash", "", "item registry code hash")
	poolsFile := fs.String("pools", "", "YAML reward pool definitions")
	ranksFile := fs.String("ranks", "", "optional YAML rank table")
	trait := fs.String("trait", "", "only accept items carrying this trait type")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	if *registry == "" {
		return fmt.Errorf("%w: --registry is required", errUsage)
	}
	registryAddr, err := crypto.ParseAddress(crypto.BurnPrefix, *registry)
	if err != nil {
		return fmt.Errorf("--registry: %w", err)
	}
	var pools []*burn.RewardPool
	if *poolsFile != "" {
		if pools, err = config.LoadPools(*poolsFile); err != nil {
			return err
		}
	}
	var ranks []*burn.RankEntry
	if *ranksFile != "" {
		if ranks, err = config.LoadRanks(*ranksFile); err != nil {
			return err
		}
	}
	owner, err := e.operatorAddress()
	if err != nil {
		return err
	}
	entropy := make([]byte, 32)
	if _, err := crand.Read(entropy); err != nil {
		return fmt.Errorf("entropy: %w", err)
	}
	receipt, err := e.ledger.Instantiate(ctx, owner, burn.InstantiateParams{
		Entropy:          entropy,
		ItemRegistry:     burn.ContractRef{Address: registryAddr, Name: *registryName, CodeHash: *registryHash},
		Pools:            pools,
		TraitRestriction: *trait,
		Ranks:            ranks,
	})
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runInfo(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: unexpected positional arguments", errUsage)
	}
	info, err := e.ledger.Info(ctx)
	if err != nil {
		return err
	}
	return printJSON(stdout, newInfoView(info))
}

func runEstimate(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: at least one item id is required", errUsage)
	}
	rewards, err := e.ledger.ExpectedRewards(ctx, args)
	if err != nil {
		return err
	}
	return printJSON(stdout, rewards)
}

func runRank(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: exactly one item id is required", errUsage)
	}
	entry, ok, err := e.ledger.Rank(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return printJSON(stdout, map[string]interface{}{"itemId": args[0], "found": false})
	}
	return printJSON(stdout, entry)
}

// expectations collects repeated --expect POOL=BASE[+BONUS] flags.
type expectations []burn.Expectation

func (x *expectations) String() string {
	parts := make([]string, 0, len(*x))
	for _, exp := range *x {
		parts = append(parts, fmt.Sprintf("%s=%s+%s", exp.Pool, formatAmount(exp.Base), formatAmount(exp.Bonus)))
	}
	return strings.Join(parts, ",")
}

func (x *expectations) Set(raw string) error {
	pool, amounts, ok := strings.Cut(raw, "=")
	pool = strings.TrimSpace(pool)
	if !ok || pool == "" {
		return fmt.Errorf("expectation %q: want POOL=BASE[+BONUS]", raw)
	}
	baseRaw, bonusRaw, _ := strings.Cut(amounts, "+")
	base, err := parseNonNegative(baseRaw)
	if err != nil {
		return fmt.Errorf("expectation %q base: %w", raw, err)
	}
	bonus, err := parseNonNegative(bonusRaw)
	if err != nil {
		return fmt.Errorf("expectation %q bonus: %w", raw, err)
	}
	*x = append(*x, burn.Expectation{Pool: pool, Base: base, Bonus: bonus})
	return nil
}

func parseNonNegative(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func runSubmit(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("submit")
	submitter := fs.String("submitter", "", "address receiving the rewards (default: operator)")
	memo := fs.String("memo", "", "memo stored with the history entries")
	payloadFile := fs.String("payload", "", "raw JSON claim payload; overrides --memo and --expect")
	var expect expectations
	fs.Var(&expect, "expect", "reward floor as POOL=BASE[+BONUS]; repeatable")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	items := fs.Args()
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item id is required", errUsage)
	}
	to, err := e.addressOrOperator("submitter", *submitter)
	if err != nil {
		return err
	}

	var payload []byte
	if *payloadFile != "" {
		if payload, err = os.ReadFile(*payloadFile); err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
	} else {
		payload, err = json.Marshal(burn.ClaimRequest{Expectations: expect, Memo: *memo})
		if err != nil {
			return err
		}
	}

	// The batch notification arrives from the registered item registry.
	info, err := e.ledger.Info(ctx)
	if err != nil {
		return err
	}
	receipt, err := e.ledger.SubmitBatch(ctx, info.ItemRegistry.Address, to, items, payload)
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runDeposit(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("deposit")
	poolName := fs.String("pool", "", "pool receiving the deposit")
	amountRaw := fs.String("amount", "", "amount in token base units")
	from := fs.String("from", "", "depositor address (default: operator)")
	memo := fs.String("memo", "", "deposit memo")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	if *poolName == "" || *amountRaw == "" {
		return fmt.Errorf("%w: --pool and --amount are required", errUsage)
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(*amountRaw), 10)
	if !ok {
		return fmt.Errorf("--amount: invalid integer %q", *amountRaw)
	}
	depositor, err := e.addressOrOperator("from", *from)
	if err != nil {
		return err
	}
	info, err := e.ledger.Info(ctx)
	if err != nil {
		return err
	}
	var token [20]byte
	for _, pool := range info.Pools {
		if pool.Name == strings.TrimSpace(*poolName) {
			token = pool.Token.Address
		}
	}
	if token == ([20]byte{}) {
		return fmt.Errorf("unknown pool %q", *poolName)
	}
	payload, err := json.Marshal(burn.DepositRequest{Memo: *memo})
	if err != nil {
		return err
	}
	receipt, err := e.ledger.Deposit(ctx, token, depositor, amount, payload)
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runReplacePools(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("replace-pools")
	poolsFile := fs.String("pools", "", "YAML reward pool definitions")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	if *poolsFile == "" {
		return fmt.Errorf("%w: --pools is required", errUsage)
	}
	pools, err := config.LoadPools(*poolsFile)
	if err != nil {
		return err
	}
	owner, err := e.operatorAddress()
	if err != nil {
		return err
	}
	receipt, err := e.ledger.ReplacePools(ctx, owner, pools)
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runUpsertRanks(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("upsert-ranks")
	ranksFile := fs.String("ranks", "", "YAML rank table")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	if *ranksFile == "" {
		return fmt.Errorf("%w: --ranks is required", errUsage)
	}
	ranks, err := config.LoadRanks(*ranksFile)
	if err != nil {
		return err
	}
	owner, err := e.operatorAddress()
	if err != nil {
		return err
	}
	receipt, err := e.ledger.UpsertRanks(ctx, owner, ranks)
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runWithdraw(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("withdraw")
	to := fs.String("to", "", "recipient address (default: operator)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	owner, err := e.operatorAddress()
	if err != nil {
		return err
	}
	recipient, err := e.addressOrOperator("to", *to)
	if err != nil {
		return err
	}
	receipt, err := e.ledger.WithdrawAll(ctx, owner, recipient)
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runSetActive(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("set-active")
	active := fs.Bool("active", true, "accept settlements")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	owner, err := e.operatorAddress()
	if err != nil {
		return err
	}
	receipt, err := e.ledger.SetActive(ctx, owner, *active)
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runResetClock(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: unexpected positional arguments", errUsage)
	}
	owner, err := e.operatorAddress()
	if err != nil {
		return err
	}
	receipt, err := e.ledger.ResetBonusClock(ctx, owner)
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runSetViewingKey(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("set-viewing-key")
	key := fs.String("key", "", "viewing key (default: "+viewingKeyEnv+" or prompt)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	secret := *key
	if secret == "" {
		var err error
		if secret, err = e.viewingKey.Get(); err != nil {
			return err
		}
	}
	owner, err := e.operatorAddress()
	if err != nil {
		return err
	}
	receipt, err := e.ledger.SetViewingKey(ctx, owner, secret)
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runBalances(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: unexpected positional arguments", errUsage)
	}
	secret, err := e.viewingKey.Get()
	if err != nil {
		return err
	}
	viewer, err := e.operatorAddress()
	if err != nil {
		return err
	}
	balances, err := e.ledger.PoolBalances(ctx, burn.ViewerCredential{Address: viewer, Key: secret})
	if err != nil {
		return err
	}
	out := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceView{Pool: b.Pool, Token: formatAddress(b.Token), Balance: formatAmount(b.Balance)})
	}
	return printJSON(stdout, out)
}

func pageFlags(fs *flag.FlagSet) (*uint, *uint) {
	page := fs.Uint("page", 0, "zero-based page index")
	size := fs.Uint("size", 10, "entries per page")
	return page, size
}

func runHistory(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("history")
	page, size := pageFlags(fs)
	name := fs.String("permit-name", "burnctl", "name of the locally signed query permit")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	key, err := e.operatorKey()
	if err != nil {
		return err
	}
	p, err := permit.Sign(permit.Params{
		Name:             *name,
		AllowedAddresses: []string{e.cfg.LedgerAddress},
		ChainID:          e.cfg.ChainID,
		Permissions:      []permit.Permission{permit.PermissionOwner},
	}, key)
	if err != nil {
		return err
	}
	total, err := e.ledger.ClaimHistoryCount(ctx, p)
	if err != nil {
		return err
	}
	entries, err := e.ledger.ClaimHistory(ctx, p, uint32(*page), uint32(*size))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []*burn.HistoryEntry{}
	}
	return printJSON(stdout, map[string]interface{}{"total": total, "entries": entries})
}

func runBurnHistory(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("burn-history")
	page, size := pageFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	total, err := e.ledger.BurnHistoryCount(ctx)
	if err != nil {
		return err
	}
	records, err := e.ledger.BurnHistory(ctx, uint32(*page), uint32(*size))
	if err != nil {
		return err
	}
	out := make([]burnRecordView, 0, len(records))
	for _, r := range records {
		out = append(out, burnRecordView{
			ItemID:    r.ItemID,
			Date:      r.Date,
			Submitter: formatAddress(r.Submitter),
			Memo:      r.Memo,
			Metadata:  r.Metadata,
		})
	}
	return printJSON(stdout, map[string]interface{}{"total": total, "records": out})
}

func runRevokePermit(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("revoke-permit")
	name := fs.String("name", "", "permit name to revoke")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		return fmt.Errorf("%w: --name is required", errUsage)
	}
	holder, err := e.operatorAddress()
	if err != nil {
		return err
	}
	receipt, err := e.ledger.RevokePermit(ctx, holder, *name)
	if err != nil {
		return err
	}
	return printReceipt(stdout, receipt)
}

func runExport(ctx context.Context, e *env, args []string, stdout io.Writer) error {
	fs := newFlagSet("export")
	out := fs.String("out", "", "output parquet file (default: ExportDir/burn-history-<unix>.parquet)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = filepath.Join(e.cfg.ExportDir, "burn-history-"+strconv.FormatInt(time.Now().Unix(), 10)+".parquet")
	}
	rows, err := audit.ExportBurnHistory(ctx, e.ledger, path)
	if err != nil {
		return err
	}
	e.logger.Info("burn history exported", "path", path, "rows", rows)
	return printJSON(stdout, map[string]interface{}{"path": path, "rows": rows})
}
