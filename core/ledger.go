package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"burnledger/core/events"
	"burnledger/core/state"
	"burnledger/core/types"
	"burnledger/crypto"
	"burnledger/native/burn"
	"burnledger/native/permit"
	"burnledger/observability"
	"burnledger/observability/logging"
	telemetry "burnledger/observability/otel"
	"burnledger/storage"
)

var rejectionReasons = []observability.Reason{
	{Label: "unauthorized", Err: burn.ErrUnauthorized},
	{Label: "inactive", Err: burn.ErrInactive},
	{Label: "untrusted_caller", Err: burn.ErrUntrustedCaller},
	{Label: "ineligible_item", Err: burn.ErrIneligibleItem},
	{Label: "expectation_not_met", Err: burn.ErrExpectationNotMet},
	{Label: "pool_exhausted", Err: burn.ErrPoolExhausted},
	{Label: "pool_busy", Err: burn.ErrPoolBusy},
	{Label: "malformed_request", Err: burn.ErrMalformedRequest},
	{Label: "not_initialized", Err: burn.ErrNotInitialized},
	{Label: "already_initialized", Err: burn.ErrAlreadyInitialized},
	{Label: "invalid_pool", Err: burn.ErrInvalidPool},
	{Label: "unknown_token", Err: burn.ErrUnknownToken},
	{Label: "invalid_rank", Err: burn.ErrInvalidRank},
	{Label: "unknown_item", Err: ErrUnknownItem},
	{Label: "canceled", Err: context.Canceled},
	{Label: "deadline", Err: context.DeadlineExceeded},
}

// Receipt describes a committed command.
type Receipt struct {
	ID           string             `json:"id"`
	Command      string             `json:"command"`
	Instructions []burn.Instruction `json:"instructions,omitempty"`
	Settlement   *burn.Settlement   `json:"settlement,omitempty"`
	Events       []*types.Event     `json:"events,omitempty"`
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithEmitter forwards committed events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(l *Ledger) { l.emitter = emitter }
}

// WithMetrics overrides the metrics sink. Passing nil disables metrics.
func WithMetrics(metrics *observability.BurnLedgerMetrics) Option {
	return func(l *Ledger) { l.metrics = metrics }
}

// WithNowFunc overrides the engine clock.
func WithNowFunc(now func() int64) Option {
	return func(l *Ledger) { l.engine.SetNowFunc(now) }
}

// Ledger hosts the burn engine over persistent state. Commands are serialised
// and each runs in its own state transaction; events are released only after
// the transaction committed.
type Ledger struct {
	mu       sync.RWMutex
	state    *state.Manager
	engine   *burn.Engine
	recorder *events.Recorder
	emitter  events.Emitter
	metrics  *observability.BurnLedgerMetrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewLedger wires a ledger at address over db.
func NewLedger(db storage.Database, address [20]byte, registry burn.ItemRegistry, verifier burn.CredentialVerifier, opts ...Option) *Ledger {
	l := &Ledger{
		state:    state.NewManager(db),
		engine:   burn.NewEngine(),
		recorder: &events.Recorder{},
		emitter:  events.NoopEmitter{},
		metrics:  observability.BurnLedger(),
		logger:   slog.Default(),
		tracer:   telemetry.Tracer(),
	}
	l.engine.SetAddress(address)
	l.engine.SetRegistry(registry)
	l.engine.SetVerifier(verifier)
	l.engine.SetEmitter(l.recorder)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Address returns the ledger's own identity.
func (l *Ledger) Address() [20]byte { return l.engine.Address() }

func (l *Ledger) command(ctx context.Context, name string, attrs []attribute.KeyValue, fn func(tx *state.Tx) (*Receipt, error)) (*Receipt, error) {
	return l.commandWithSecrets(ctx, name, attrs, nil, fn)
}

// commandWithSecrets runs a command whose log lines carry secret fields.
// Secrets never reach spans and are masked in logs.
func (l *Ledger) commandWithSecrets(ctx context.Context, name string, attrs []attribute.KeyValue, secrets map[string]string, fn func(tx *state.Tx) (*Receipt, error)) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_, span := l.tracer.Start(ctx, "burn."+name, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	l.recorder.Reset()
	var receipt *Receipt
	err := l.state.Update(func(tx *state.Tx) error {
		var err error
		receipt, err = fn(tx)
		return err
	})
	duration := time.Since(start)
	if err != nil {
		l.recorder.Reset()
		reason := observability.Classify(err, rejectionReasons)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		l.metrics.ObserveCommand(name, duration, err, reason)
		logAttrs := append([]any{
			slog.String("command", name),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		}, maskedAttrs(secrets)...)
		l.logger.Warn("ledger command rejected", logAttrs...)
		return nil, err
	}

	if receipt == nil {
		receipt = &Receipt{}
	}
	receipt.ID = uuid.NewString()
	receipt.Command = name
	for _, evt := range l.recorder.Events() {
		receipt.Events = append(receipt.Events, evt.Event())
		observability.Events().Record(evt.EventType())
	}
	l.recorder.Flush(l.emitter)
	l.metrics.ObserveCommand(name, duration, nil, "")
	if settlement := receipt.Settlement; settlement != nil {
		payouts := make(map[string]*big.Int, len(settlement.Payouts))
		for _, payout := range settlement.Payouts {
			payouts[payout.Pool] = payout.Amount
		}
		l.metrics.RecordSettlement(len(settlement.Items), payouts)
	}
	l.publishGauges()

	span.SetAttributes(attribute.String("burn.receipt", receipt.ID))
	logAttrs := append([]any{
		slog.String("command", name),
		slog.String("receipt", receipt.ID),
		slog.Int("events", len(receipt.Events)),
		slog.Int("instructions", len(receipt.Instructions)),
		slog.Duration("duration", duration),
	}, maskedAttrs(secrets)...)
	l.logger.Info("ledger command committed", logAttrs...)
	return receipt, nil
}

func maskedAttrs(secrets map[string]string) []any {
	if len(secrets) == 0 {
		return nil
	}
	keys := make([]string, 0, len(secrets))
	for key := range secrets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, key := range keys {
		out = append(out, logging.MaskField(key, secrets[key]))
	}
	return out
}

func (l *Ledger) publishGauges() {
	if l.metrics == nil {
		return
	}
	_ = l.state.View(func(tx *state.Tx) error {
		ledger, ok, err := tx.BurnLedger()
		if err != nil || !ok {
			return err
		}
		l.metrics.ResetPools()
		for _, pool := range ledger.Pools {
			l.metrics.SetPoolBalance(pool.Name, pool.Balance)
		}
		l.metrics.SetBonusClock(ledger.BonusClock)
		return nil
	})
}

func (l *Ledger) query(ctx context.Context, fn func(tx *state.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.View(fn)
}

func addrAttr(key string, addr [20]byte) attribute.KeyValue {
	return attribute.String(key, crypto.FormatAddress(addr))
}

// Instantiate creates the ledger.
func (l *Ledger) Instantiate(ctx context.Context, owner [20]byte, params burn.InstantiateParams) (*Receipt, error) {
	secrets := map[string]string{"entropy": hex.EncodeToString(params.Entropy)}
	return l.commandWithSecrets(ctx, "instantiate", []attribute.KeyValue{addrAttr("burn.owner", owner)}, secrets, func(tx *state.Tx) (*Receipt, error) {
		instructions, err := l.engine.Instantiate(tx, owner, params)
		if err != nil {
			return nil, err
		}
		return &Receipt{Instructions: instructions}, nil
	})
}

// SubmitBatch relays a batch notification from the item registry. payload
// is the JSON encoded claim request attached by the submitter; an empty
// payload is rejected as malformed.
func (l *Ledger) SubmitBatch(ctx context.Context, caller, submitter [20]byte, itemIDs []string, payload []byte) (*Receipt, error) {
	attrs := []attribute.KeyValue{
		addrAttr("burn.submitter", submitter),
		attribute.Int("burn.items", len(itemIDs)),
	}
	return l.command(ctx, "settle", attrs, func(tx *state.Tx) (*Receipt, error) {
		req, err := decodeClaimRequest(payload)
		if err != nil {
			return nil, err
		}
		settlement, err := l.engine.Settle(tx, caller, submitter, itemIDs, req)
		if err != nil {
			return nil, err
		}
		return &Receipt{Instructions: settlement.Instructions, Settlement: settlement}, nil
	})
}

// Deposit relays a token transfer notification. caller is the token contract.
func (l *Ledger) Deposit(ctx context.Context, caller, from [20]byte, amount *big.Int, payload []byte) (*Receipt, error) {
	return l.command(ctx, "deposit", []attribute.KeyValue{addrAttr("burn.token", caller)}, func(tx *state.Tx) (*Receipt, error) {
		req, err := decodeDepositRequest(payload)
		if err != nil {
			return nil, err
		}
		return &Receipt{}, l.engine.ReceiveDeposit(tx, caller, from, amount, req)
	})
}

// ReplacePools installs a new pool set.
func (l *Ledger) ReplacePools(ctx context.Context, caller [20]byte, pools []*burn.RewardPool) (*Receipt, error) {
	return l.command(ctx, "replace_pools", nil, func(tx *state.Tx) (*Receipt, error) {
		instructions, err := l.engine.ReplacePools(tx, caller, pools)
		if err != nil {
			return nil, err
		}
		return &Receipt{Instructions: instructions}, nil
	})
}

// WithdrawAll sweeps every pool to to.
func (l *Ledger) WithdrawAll(ctx context.Context, caller, to [20]byte) (*Receipt, error) {
	return l.command(ctx, "withdraw_all", []attribute.KeyValue{addrAttr("burn.recipient", to)}, func(tx *state.Tx) (*Receipt, error) {
		instructions, err := l.engine.WithdrawAll(tx, caller, to)
		if err != nil {
			return nil, err
		}
		return &Receipt{Instructions: instructions}, nil
	})
}

// UpsertRanks replaces the rank entries of the listed items.
func (l *Ledger) UpsertRanks(ctx context.Context, caller [20]byte, entries []*burn.RankEntry) (*Receipt, error) {
	return l.command(ctx, "upsert_ranks", []attribute.KeyValue{attribute.Int("burn.ranks", len(entries))}, func(tx *state.Tx) (*Receipt, error) {
		return &Receipt{}, l.engine.UpsertRanks(tx, caller, entries)
	})
}

// SetActive enables or disables settlement.
func (l *Ledger) SetActive(ctx context.Context, caller [20]byte, active bool) (*Receipt, error) {
	return l.command(ctx, "set_active", []attribute.KeyValue{attribute.Bool("burn.active", active)}, func(tx *state.Tx) (*Receipt, error) {
		return &Receipt{}, l.engine.SetActive(tx, caller, active)
	})
}

// ResetBonusClock restarts the hourly bonus from now.
func (l *Ledger) ResetBonusClock(ctx context.Context, caller [20]byte) (*Receipt, error) {
	return l.command(ctx, "reset_bonus_clock", nil, func(tx *state.Tx) (*Receipt, error) {
		return &Receipt{}, l.engine.ResetBonusClock(tx, caller)
	})
}

// SetViewingKey rotates the admin viewing key. The key is masked in logs and
// never reaches spans.
func (l *Ledger) SetViewingKey(ctx context.Context, caller [20]byte, key string) (*Receipt, error) {
	secrets := map[string]string{"viewing_key": key}
	return l.commandWithSecrets(ctx, "set_viewing_key", nil, secrets, func(tx *state.Tx) (*Receipt, error) {
		return &Receipt{}, l.engine.SetViewingKey(tx, caller, key)
	})
}

// RevokePermit revokes the caller's permit with the given name.
func (l *Ledger) RevokePermit(ctx context.Context, caller [20]byte, name string) (*Receipt, error) {
	return l.command(ctx, "revoke_permit", []attribute.KeyValue{attribute.String("burn.permit", name)}, func(tx *state.Tx) (*Receipt, error) {
		return &Receipt{}, l.engine.RevokePermit(tx, caller, name)
	})
}

// Info returns the public ledger view.
func (l *Ledger) Info(ctx context.Context) (*burn.Info, error) {
	var info *burn.Info
	err := l.query(ctx, func(tx *state.Tx) error {
		var err error
		info, err = l.engine.Info(tx)
		return err
	})
	return info, err
}

// ExpectedRewards estimates the per-item rewards of a batch at the current time.
func (l *Ledger) ExpectedRewards(ctx context.Context, itemIDs []string) ([][]burn.Reward, error) {
	var rewards [][]burn.Reward
	err := l.query(ctx, func(tx *state.Tx) error {
		var err error
		rewards, err = l.engine.ExpectedRewards(tx, itemIDs)
		return err
	})
	return rewards, err
}

// Rank returns the rank entry of an item, if one was upserted.
func (l *Ledger) Rank(ctx context.Context, itemID string) (*burn.RankEntry, bool, error) {
	var (
		entry *burn.RankEntry
		ok    bool
	)
	err := l.query(ctx, func(tx *state.Tx) error {
		var err error
		entry, ok, err = l.engine.Rank(tx, itemID)
		return err
	})
	return entry, ok, err
}

// ClaimHistoryCount returns the number of history entries of the permit holder.
func (l *Ledger) ClaimHistoryCount(ctx context.Context, p *permit.Permit) (uint32, error) {
	var n uint32
	err := l.query(ctx, func(tx *state.Tx) error {
		var err error
		n, err = l.engine.ClaimHistoryCount(tx, p)
		return err
	})
	return n, err
}

// ClaimHistory returns a page of the permit holder's claim history.
func (l *Ledger) ClaimHistory(ctx context.Context, p *permit.Permit, page, size uint32) ([]*burn.HistoryEntry, error) {
	var entries []*burn.HistoryEntry
	err := l.query(ctx, func(tx *state.Tx) error {
		var err error
		entries, err = l.engine.ClaimHistory(tx, p, page, size)
		return err
	})
	return entries, err
}

// BurnHistoryCount returns the number of items burned through the ledger.
func (l *Ledger) BurnHistoryCount(ctx context.Context) (uint32, error) {
	var n uint32
	err := l.query(ctx, func(tx *state.Tx) error {
		var err error
		n, err = l.engine.BurnHistoryCount(tx)
		return err
	})
	return n, err
}

// BurnHistory returns a page of the global burn history.
func (l *Ledger) BurnHistory(ctx context.Context, page, size uint32) ([]*burn.BurnRecord, error) {
	var records []*burn.BurnRecord
	err := l.query(ctx, func(tx *state.Tx) error {
		var err error
		records, err = l.engine.BurnHistory(tx, page, size)
		return err
	})
	return records, err
}

// PoolBalances returns the pool balances to a holder of the viewing key.
func (l *Ledger) PoolBalances(ctx context.Context, viewer burn.ViewerCredential) ([]burn.PoolBalance, error) {
	var balances []burn.PoolBalance
	err := l.query(ctx, func(tx *state.Tx) error {
		var err error
		balances, err = l.engine.PoolBalances(tx, viewer)
		return err
	})
	return balances, err
}

func decodeClaimRequest(payload []byte) (*burn.ClaimRequest, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, nil
	}
	var req burn.ClaimRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: claim payload: %v", burn.ErrMalformedRequest, err)
	}
	return &req, nil
}

func decodeDepositRequest(payload []byte) (*burn.DepositRequest, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, nil
	}
	var req burn.DepositRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: deposit payload: %v", burn.ErrMalformedRequest, err)
	}
	return &req, nil
}
