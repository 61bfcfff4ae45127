package types_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permabox/permabox/pkg/types"
)

func TestParseAmount(t *testing.T) {
	v, err := types.ParseAmount("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Int64())

	v, err = types.ParseAmount("12345678901234567890123456789")
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567890123456789", v.String())

	_, err = types.ParseAmount("-5")
	assert.Error(t, err)

	_, err = types.ParseAmount("abc")
	assert.Error(t, err)
}

func TestTransactionAmounts(t *testing.T) {
	tx := &types.Transaction{Quantity: "65", Reward: "15"}

	q, err := tx.QuantityAmount()
	require.NoError(t, err)
	assert.Equal(t, int64(65), q.Int64())

	r, err := tx.RewardAmount()
	require.NoError(t, err)
	assert.Equal(t, int64(15), r.Int64())
}

func TestDataSizeBytes(t *testing.T) {
	tx := &types.Transaction{DataSize: "1024"}
	n, err := tx.DataSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1024), n)

	tx.DataSize = ""
	n, err = tx.DataSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	tx.DataSize = "-1"
	_, err = tx.DataSizeBytes()
	assert.Error(t, err)
}

func TestWalletBalance(t *testing.T) {
	w := &types.Wallet{Address: "a"}
	assert.Equal(t, int64(0), w.BalanceAmount().Int64())

	w.SetBalance(big.NewInt(42))
	assert.Equal(t, "42", w.Balance)
	assert.Equal(t, int64(42), w.BalanceAmount().Int64())

	w.Balance = "garbage"
	assert.Equal(t, int64(0), w.BalanceAmount().Int64())
}
