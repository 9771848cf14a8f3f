package burn

import (
	"time"

	"burnledger/core/events"
)

// Engine implements the burn ledger's commands and queries over an explicitly
// supplied State. It holds no ledger data itself.
type Engine struct {
	address  [20]byte
	registry ItemRegistry
	verifier CredentialVerifier
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine creates a burn engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetAddress configures the ledger's own address. Query permits must list it.
func (e *Engine) SetAddress(addr [20]byte) { e.address = addr }

// Address returns the ledger's own address.
func (e *Engine) Address() [20]byte { return e.address }

// SetRegistry configures the item registry used for metadata lookups.
func (e *Engine) SetRegistry(registry ItemRegistry) { e.registry = registry }

// SetVerifier configures the query permit verifier.
func (e *Engine) SetVerifier(verifier CredentialVerifier) { e.verifier = verifier }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() uint64 {
	var ts int64
	if e == nil || e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func loadLedger(st State) (*Ledger, error) {
	if st == nil {
		return nil, errNilState
	}
	ledger, ok, err := st.BurnLedger()
	if err != nil {
		return nil, err
	}
	if !ok || ledger == nil {
		return nil, ErrNotInitialized
	}
	return ledger, nil
}
