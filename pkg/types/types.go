package types

import (
	"fmt"
	"math/big"
	"strconv"
)

// Transaction is a ledger-submitted record, either top-level or unpacked from
// a bundle. Field encoding follows the wire format: Owner, Data, Signature and
// tag names/values are base64url, Quantity and Reward are decimal strings so
// amounts never lose precision at scale.
type Transaction struct {
	ID        string `json:"id"`
	LastTx    string `json:"last_tx"`
	Owner     string `json:"owner"`
	Tags      []Tag  `json:"tags"`
	Target    string `json:"target"`
	Quantity  string `json:"quantity"`
	Data      string `json:"data"`
	DataSize  string `json:"data_size"`
	DataRoot  string `json:"data_root"`
	Reward    string `json:"reward"`
	Signature string `json:"signature"`
	Height    uint64 `json:"height"`
}

// Tag is a name/value annotation. On the wire both fields are transport
// encoded (base64url); the tag store persists them decoded.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Wallet is an address with a non-negative balance. The balance is kept as a
// decimal string; use BalanceAmount/SetBalance for arithmetic.
type Wallet struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	LastTx  string `json:"last_tx,omitempty"`
}

// Chunk is a fragment of a record payload, addressed by content root and
// offset. Data holds the decoded fragment bytes.
type Chunk struct {
	DataRoot string `json:"data_root"`
	DataSize int64  `json:"data_size"`
	Offset   int64  `json:"offset"`
	Data     []byte `json:"data"`
}

// Block is a local ledger height entry. Its ID doubles as the tx anchor.
type Block struct {
	ID        string `json:"indep_hash"`
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
	Previous  string `json:"previous_block,omitempty"`
}

// ParseAmount parses a decimal amount string. An empty string is zero.
// Negative or non-numeric amounts are rejected.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

// QuantityAmount returns the transfer quantity as a big integer.
func (t *Transaction) QuantityAmount() (*big.Int, error) {
	return ParseAmount(t.Quantity)
}

// RewardAmount returns the fee amount as a big integer.
func (t *Transaction) RewardAmount() (*big.Int, error) {
	return ParseAmount(t.Reward)
}

// DataSizeBytes returns the declared payload length in bytes.
func (t *Transaction) DataSizeBytes() (int64, error) {
	if t.DataSize == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(t.DataSize, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid data_size %q", t.DataSize)
	}
	return n, nil
}

// BalanceAmount returns the wallet balance as a big integer. A corrupt or
// empty balance reads as zero.
func (w *Wallet) BalanceAmount() *big.Int {
	v, ok := new(big.Int).SetString(w.Balance, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// SetBalance stores the given amount as the wallet balance.
func (w *Wallet) SetBalance(v *big.Int) {
	w.Balance = v.String()
}
