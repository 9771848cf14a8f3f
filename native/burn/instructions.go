package burn

import "math/big"

// InstructionKind names an outbound message for an external collaborator.
type InstructionKind string

const (
	// InstructionTransfer asks a pool token to pay Amount to Recipient.
	InstructionTransfer InstructionKind = "transfer"
	// InstructionDestroy asks the item registry to burn ItemIDs.
	InstructionDestroy InstructionKind = "destroy"
	// InstructionSetViewingKey registers Key with Contract.
	InstructionSetViewingKey InstructionKind = "set_viewing_key"
	// InstructionRegisterReceiver subscribes the ledger to batch notifications.
	InstructionRegisterReceiver InstructionKind = "register_receiver"
)

// Instruction is an outbound message the host executes after the
// transaction that produced it has committed.
type Instruction struct {
	Kind      InstructionKind `json:"kind"`
	Contract  ContractRef     `json:"contract"`
	Recipient [20]byte        `json:"recipient,omitempty"`
	Amount    *big.Int        `json:"amount,omitempty"`
	ItemIDs   []string        `json:"itemIds,omitempty"`
	Key       string          `json:"-"`
}

func transferInstruction(pool *RewardPool, to [20]byte, amount *big.Int) Instruction {
	return Instruction{
		Kind:      InstructionTransfer,
		Contract:  pool.Token,
		Recipient: to,
		Amount:    new(big.Int).Set(amount),
	}
}

func destroyInstruction(registry ContractRef, itemIDs []string) Instruction {
	return Instruction{
		Kind:     InstructionDestroy,
		Contract: registry,
		ItemIDs:  append([]string(nil), itemIDs...),
	}
}

func viewingKeyInstruction(contract ContractRef, key string) Instruction {
	return Instruction{
		Kind:     InstructionSetViewingKey,
		Contract: contract,
		Key:      key,
	}
}

func registerReceiverInstruction(registry ContractRef) Instruction {
	return Instruction{
		Kind:     InstructionRegisterReceiver,
		Contract: registry,
	}
}
