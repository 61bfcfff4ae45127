// Package store holds the durable domain stores of the gateway, all backed by
// one key/value store with per-store key prefixes:
//
//	tx:<id>                  record metadata (JSON)
//	tag:<txid>:<index>       decoded tag pairs, zero-padded index keeps order
//	wallet:<address>         wallet balances
//	chunk:<root>:<offset>    payload fragments, zero-padded offset keeps order
//	block:<height>           local blocks; block!latest points at the tip
//	blob:<id> / bchunk:<h>   cached payload manifests and their sub-chunks
package store

import "errors"

// ErrNotFound reports an absent record, wallet, chunk root or cached blob.
var ErrNotFound = errors.New("store: not found")

// ErrWalletNotFound reports a missing sender or target account on a transfer.
var ErrWalletNotFound = errors.New("store: wallet not found")

// ErrInsufficientFunds reports a balance below the required transfer total.
var ErrInsufficientFunds = errors.New("store: insufficient funds")
