package permit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"burnledger/crypto"
)

// DomainV1 separates permit digests from every other signed payload.
const DomainV1 = "BURNLEDGER_QUERY_PERMIT_V1"

var (
	ErrInvalidPermit     = errors.New("permit: invalid permit")
	ErrInvalidSignature  = errors.New("permit: invalid signature")
	ErrChainMismatch     = errors.New("permit: chain id mismatch")
	ErrAddressNotAllowed = errors.New("permit: ledger address not allowed")
	ErrPermitRevoked     = errors.New("permit: permit revoked")
	ErrMissingPermission = errors.New("permit: missing permission")
)

// Permission is a scope granted by a permit.
type Permission string

const (
	// PermissionOwner allows reading data owned by the signer.
	PermissionOwner Permission = "owner"
)

// Params is the signed part of a permit.
type Params struct {
	Name             string       `json:"permit_name"`
	AllowedAddresses []string     `json:"allowed_addresses"`
	ChainID          string       `json:"chain_id"`
	Permissions      []Permission `json:"permissions"`
}

// Signature binds the params to the signer's public key.
type Signature struct {
	PubKey    []byte `json:"pub_key"`
	Signature []byte `json:"signature"`
}

// Permit is an off-ledger signed statement authorising queries against one
// or more ledgers on behalf of the signer.
type Permit struct {
	Params    Params    `json:"params"`
	Signature Signature `json:"signature"`
}

// Grant is the result of a successful verification.
type Grant struct {
	Holder      [20]byte
	Name        string
	Permissions []Permission
}

// Require returns ErrMissingPermission unless the grant includes p.
func (g *Grant) Require(p Permission) error {
	if !g.Has(p) {
		return fmt.Errorf("%w: %s", ErrMissingPermission, p)
	}
	return nil
}

// Has reports whether the grant includes the permission.
func (g *Grant) Has(p Permission) bool {
	if g == nil {
		return false
	}
	for _, granted := range g.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// RevocationState is the state access the verifier needs.
type RevocationState interface {
	PermitRevoked(holder [20]byte, name string) (bool, error)
}

func (p Params) normalized() Params {
	out := Params{
		Name:    strings.TrimSpace(p.Name),
		ChainID: strings.TrimSpace(p.ChainID),
	}
	out.AllowedAddresses = make([]string, 0, len(p.AllowedAddresses))
	for _, addr := range p.AllowedAddresses {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			out.AllowedAddresses = append(out.AllowedAddresses, trimmed)
		}
	}
	sort.Strings(out.AllowedAddresses)
	out.Permissions = make([]Permission, 0, len(p.Permissions))
	for _, perm := range p.Permissions {
		if trimmed := Permission(strings.ToLower(strings.TrimSpace(string(perm)))); trimmed != "" {
			out.Permissions = append(out.Permissions, trimmed)
		}
	}
	sort.Slice(out.Permissions, func(i, j int) bool { return out.Permissions[i] < out.Permissions[j] })
	return out
}

// Digest returns the keccak256 hash signed by the permit holder.
func (p Params) Digest() ([]byte, error) {
	encoded, err := json.Marshal(p.normalized())
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(DomainV1)+1+len(encoded))
	buf = append(buf, DomainV1...)
	buf = append(buf, '|')
	buf = append(buf, encoded...)
	return ethcrypto.Keccak256(buf), nil
}

// Sign produces a permit for params signed with key.
func Sign(params Params, key *crypto.PrivateKey) (*Permit, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil key", ErrInvalidPermit)
	}
	digest, err := params.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("sign permit: %w", err)
	}
	return &Permit{
		Params: params,
		Signature: Signature{
			PubKey:    key.PubKey().Bytes(),
			Signature: sig,
		},
	}, nil
}

// Verifier checks query permits for a single chain.
type Verifier struct {
	chainID string
}

// NewVerifier constructs a verifier accepting permits for chainID.
func NewVerifier(chainID string) *Verifier {
	return &Verifier{chainID: strings.TrimSpace(chainID)}
}

// Verify validates p for the ledger at address ledger and returns the
// resolved holder together with the granted permissions.
func (v *Verifier) Verify(st RevocationState, p *Permit, ledger [20]byte) (*Grant, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil permit", ErrInvalidPermit)
	}
	params := p.Params.normalized()
	if params.Name == "" {
		return nil, fmt.Errorf("%w: permit name required", ErrInvalidPermit)
	}
	if v != nil && v.chainID != "" && params.ChainID != v.chainID {
		return nil, fmt.Errorf("%w: got %q", ErrChainMismatch, params.ChainID)
	}
	if !allows(params.AllowedAddresses, ledger) {
		return nil, ErrAddressNotAllowed
	}

	holder, err := recoverHolder(p)
	if err != nil {
		return nil, err
	}
	if st != nil {
		revoked, err := st.PermitRevoked(holder, params.Name)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrPermitRevoked
		}
	}
	return &Grant{Holder: holder, Name: params.Name, Permissions: params.Permissions}, nil
}

func allows(allowed []string, ledger [20]byte) bool {
	for _, candidate := range allowed {
		parsed, err := crypto.ParseAddress(crypto.BurnPrefix, candidate)
		if err != nil {
			continue
		}
		if parsed == ledger {
			return true
		}
	}
	return false
}

func recoverHolder(p *Permit) ([20]byte, error) {
	var holder [20]byte
	digest, err := p.Params.Digest()
	if err != nil {
		return holder, err
	}
	if len(p.Signature.Signature) != 65 {
		return holder, fmt.Errorf("%w: signature must be 65 bytes", ErrInvalidSignature)
	}
	recovered, err := ethcrypto.SigToPub(digest, p.Signature.Signature)
	if err != nil {
		return holder, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	claimed, err := ethcrypto.DecompressPubkey(p.Signature.PubKey)
	if err != nil {
		return holder, fmt.Errorf("%w: pub key: %v", ErrInvalidSignature, err)
	}
	if !bytes.Equal(ethcrypto.FromECDSAPub(claimed), ethcrypto.FromECDSAPub(recovered)) {
		return holder, fmt.Errorf("%w: signer does not match pub key", ErrInvalidSignature)
	}
	holder = ethcrypto.PubkeyToAddress(*recovered)
	return holder, nil
}
