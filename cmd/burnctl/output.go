package main

import (
	"encoding/json"
	"io"
	"math/big"

	"burnledger/core"
	"burnledger/core/types"
	"burnledger/crypto"
	"burnledger/native/burn"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.FormatAddress(addr)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type contractView struct {
	Name     string `json:"name,omitempty"`
	Address  string `json:"address"`
	CodeHash string `json:"codeHash,omitempty"`
}

func newContractView(ref burn.ContractRef) contractView {
	return contractView{Name: ref.Name, Address: formatAddress(ref.Address), CodeHash: ref.CodeHash}
}

type instructionView struct {
	Kind      burn.InstructionKind `json:"kind"`
	Contract  contractView         `json:"contract"`
	Recipient string               `json:"recipient,omitempty"`
	Amount    string               `json:"amount,omitempty"`
	ItemIDs   []string             `json:"itemIds,omitempty"`
}

type payoutView struct {
	Pool   string `json:"pool"`
	Base   string `json:"base"`
	Bonus  string `json:"bonus"`
	Amount string `json:"amount"`
}

type settlementView struct {
	Submitter       string       `json:"submitter"`
	Items           []string     `json:"items"`
	Payouts         []payoutView `json:"payouts"`
	BonusClockReset bool         `json:"bonusClockReset"`
	TotalBurned     uint64       `json:"totalBurned"`
}

type receiptView struct {
	ID           string            `json:"id"`
	Command      string            `json:"command"`
	Instructions []instructionView `json:"instructions,omitempty"`
	Settlement   *settlementView   `json:"settlement,omitempty"`
	Events       []*types.Event    `json:"events,omitempty"`
}

func newReceiptView(r *core.Receipt) receiptView {
	view := receiptView{ID: r.ID, Command: r.Command, Events: r.Events}
	for _, inst := range r.Instructions {
		iv := instructionView{
			Kind:      inst.Kind,
			Contract:  newContractView(inst.Contract),
			Recipient: formatAddress(inst.Recipient),
			ItemIDs:   inst.ItemIDs,
		}
		if inst.Amount != nil {
			iv.Amount = inst.Amount.String()
		}
		view.Instructions = append(view.Instructions, iv)
	}
	if s := r.Settlement; s != nil {
		sv := &settlementView{
			Submitter:       formatAddress(s.Submitter),
			Items:           s.Items,
			Payouts:         make([]payoutView, 0, len(s.Payouts)),
			BonusClockReset: s.BonusClockReset,
			TotalBurned:     s.TotalBurned,
		}
		for _, p := range s.Payouts {
			sv.Payouts = append(sv.Payouts, payoutView{
				Pool:   p.Pool,
				Base:   formatAmount(p.Base),
				Bonus:  formatAmount(p.Bonus),
				Amount: formatAmount(p.Amount),
			})
		}
		view.Settlement = sv
	}
	return view
}

type poolView struct {
	Name           string       `json:"name"`
	Token          contractView `json:"token"`
	BaseReward     string       `json:"baseReward"`
	BonusHourly    string       `json:"bonusHourly"`
	BurnType       string       `json:"burnType"`
	RankScheme     string       `json:"rankScheme,omitempty"`
	RankBonusStart string       `json:"rankBonusStart,omitempty"`
}

type infoView struct {
	Owner            string       `json:"owner"`
	Active           bool         `json:"active"`
	ItemRegistry     contractView `json:"itemRegistry"`
	Pools            []poolView   `json:"pools"`
	TraitRestriction string       `json:"traitRestriction,omitempty"`
	BonusClock       uint64       `json:"bonusClock"`
	TotalBurned      uint64       `json:"totalBurned"`
}

func newInfoView(info *burn.Info) infoView {
	view := infoView{
		Owner:            formatAddress(info.Owner),
		Active:           info.Active,
		ItemRegistry:     newContractView(info.ItemRegistry),
		Pools:            make([]poolView, 0, len(info.Pools)),
		TraitRestriction: info.TraitRestriction,
		BonusClock:       info.BonusClock,
		TotalBurned:      info.TotalBurned,
	}
	for _, pool := range info.Pools {
		pv := poolView{
			Name:        pool.Name,
			Token:       newContractView(pool.Token),
			BaseReward:  formatAmount(pool.BaseReward),
			BonusHourly: formatAmount(pool.BonusHourly),
			BurnType:    pool.BurnType.String(),
		}
		if pool.BurnType == burn.BurnTypeRank {
			pv.RankScheme = pool.RankScheme.String()
			pv.RankBonusStart = formatAmount(pool.RankBonusStart)
		}
		view.Pools = append(view.Pools, pv)
	}
	return view
}

type balanceView struct {
	Pool    string `json:"pool"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type burnRecordView struct {
	ItemID    string        `json:"itemId"`
	Date      uint64        `json:"date"`
	Submitter string        `json:"submitter"`
	Memo      string        `json:"memo,omitempty"`
	Metadata  burn.Metadata `json:"metadata"`
}
