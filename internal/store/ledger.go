package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/dgraph-io/badger/v4"
	"github.com/permabox/permabox/internal/keyValStore"
	"github.com/permabox/permabox/pkg/types"
)

const walletPrefix = "wallet:"

// WalletStore holds per-address balances. Every mutation runs as a single
// serializable transaction that re-validates existence and sufficiency right
// before writing, so a balance read at an earlier suspension point is never
// trusted across concurrent submissions.
type WalletStore struct {
	kv *keyValStore.KeyValStore
}

func NewWalletStore(kv *keyValStore.KeyValStore) *WalletStore {
	return &WalletStore{kv: kv}
}

func walletKey(address string) []byte {
	return []byte(walletPrefix + address)
}

func readWallet(txn *badger.Txn, address string) (*types.Wallet, error) {
	item, err := txn.Get(walletKey(address))
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var w types.Wallet
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode wallet %s: %w", address, err)
	}
	return &w, nil
}

func writeWallet(txn *badger.Txn, w *types.Wallet) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode wallet %s: %w", w.Address, err)
	}
	return txn.Set(walletKey(w.Address), raw)
}

func (s *WalletStore) GetWallet(address string) (*types.Wallet, error) {
	var wallet *types.Wallet
	err := s.kv.View(func(txn *badger.Txn) error {
		w, err := readWallet(txn, address)
		if err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// Create makes a wallet with the given starting balance. Wallet creation is
// deliberately outside the ingestion pipeline; the pipeline only mutates
// existing wallets.
func (s *WalletStore) Create(address string, balance *big.Int) (*types.Wallet, error) {
	w := &types.Wallet{Address: address}
	w.SetBalance(balance)
	err := s.kv.Update(func(txn *badger.Txn) error {
		return writeWallet(txn, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Transfer moves quantity from one wallet to another and burns reward from
// the sender, all in one atomic conditional update. Both wallets must exist
// (ErrWalletNotFound) and the sender must hold quantity+reward against the
// same pre-transaction balance (ErrInsufficientFunds); on failure nothing is
// applied.
func (s *WalletStore) Transfer(from, to string, quantity, reward *big.Int) error {
	need := new(big.Int).Add(quantity, reward)

	return s.kv.Update(func(txn *badger.Txn) error {
		sender, err := readWallet(txn, from)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("sender %s: %w", from, ErrWalletNotFound)
		}
		if err != nil {
			return err
		}

		balance := sender.BalanceAmount()
		if balance.Cmp(need) < 0 {
			return fmt.Errorf("balance %s below %s: %w", balance, need, ErrInsufficientFunds)
		}

		if to == from {
			// Self-transfer nets out to the reward burn.
			sender.SetBalance(new(big.Int).Sub(balance, reward))
			return writeWallet(txn, sender)
		}

		receiver, err := readWallet(txn, to)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("target %s: %w", to, ErrWalletNotFound)
		}
		if err != nil {
			return err
		}

		sender.SetBalance(new(big.Int).Sub(balance, need))
		receiver.SetBalance(new(big.Int).Add(receiver.BalanceAmount(), quantity))

		if err := writeWallet(txn, sender); err != nil {
			return err
		}
		return writeWallet(txn, receiver)
	})
}

// Debit burns amount from a wallet. The fee applies whether or not a value
// transfer occurred, so Debit never fails the submission: a missing wallet is
// a no-op and the balance never drops below zero.
func (s *WalletStore) Debit(address string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}

	return s.kv.Update(func(txn *badger.Txn) error {
		w, err := readWallet(txn, address)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		balance := new(big.Int).Sub(w.BalanceAmount(), amount)
		if balance.Sign() < 0 {
			balance.SetInt64(0)
		}
		w.SetBalance(balance)
		return writeWallet(txn, w)
	})
}
