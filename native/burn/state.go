package burn

import "burnledger/native/permit"

// State is the persistence the engine needs. Implementations must make every
// write of a single engine call visible atomically or not at all.
type State interface {
	permit.RevocationState

	BurnLedger() (*Ledger, bool, error)
	PutBurnLedger(*Ledger) error

	BurnRank(itemID string) (*RankEntry, bool, error)
	PutBurnRank(*RankEntry) error

	AppendClaimHistory(holder [20]byte, entry *HistoryEntry) error
	ClaimHistoryLen(holder [20]byte) (uint32, error)
	ClaimHistoryPage(holder [20]byte, page, size uint32) ([]*HistoryEntry, error)

	AppendBurnRecord(record *BurnRecord) error
	BurnRecordLen() (uint32, error)
	BurnRecordPage(page, size uint32) ([]*BurnRecord, error)

	BurnViewer() (*Viewer, bool, error)
	PutBurnViewer(*Viewer) error

	RevokePermit(holder [20]byte, name string) error
}

// ItemRegistry answers metadata queries for items submitted for burning.
type ItemRegistry interface {
	ItemMetadata(itemID string) (*Metadata, error)
}

// CredentialVerifier validates query permits against the ledger address.
type CredentialVerifier interface {
	Verify(st permit.RevocationState, p *permit.Permit, ledger [20]byte) (*permit.Grant, error)
}
