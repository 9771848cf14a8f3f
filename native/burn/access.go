package burn

import (
	"crypto/subtle"
	"fmt"

	"lukechampine.com/blake3"

	"burnledger/native/permit"
)

func requireOwner(ledger *Ledger, caller [20]byte) error {
	if ledger == nil || caller != ledger.Owner {
		return ErrUnauthorized
	}
	return nil
}

// viewingKeyDigest hashes a viewing key so the raw secret is never stored.
func viewingKeyDigest(key string) [32]byte {
	return blake3.Sum256([]byte(key))
}

func checkViewer(st State, cred ViewerCredential) error {
	stored, ok, err := st.BurnViewer()
	if err != nil {
		return err
	}
	if !ok || stored == nil {
		return fmt.Errorf("%w: viewing key not set", ErrUnauthorized)
	}
	digest := viewingKeyDigest(cred.Key)
	keyMatch := subtle.ConstantTimeCompare(digest[:], stored.KeyDigest[:]) == 1
	if !keyMatch || cred.Address != stored.Address {
		return fmt.Errorf("%w: wrong viewing key for this address", ErrUnauthorized)
	}
	return nil
}

// resolveHolder verifies p and returns the address whose claim history it
// unlocks.
func (e *Engine) resolveHolder(st State, p *permit.Permit) ([20]byte, error) {
	var holder [20]byte
	if e.verifier == nil {
		return holder, errNilVerifier
	}
	grant, err := e.verifier.Verify(st, p, e.address)
	if err != nil {
		return holder, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if err := grant.Require(permit.PermissionOwner); err != nil {
		return holder, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return grant.Holder, nil
}
