package ingest_test

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permabox/permabox/internal/ingest"
	"github.com/permabox/permabox/internal/keyValStore"
	"github.com/permabox/permabox/internal/store"
	"github.com/permabox/permabox/pkg/bundle"
	"github.com/permabox/permabox/pkg/encoding"
	"github.com/permabox/permabox/pkg/types"
)

type testEnv struct {
	metadata *store.MetadataStore
	tags     *store.TagStore
	wallets  *store.WalletStore
	blocks   *store.BlockStore
	blobs    *store.DataBlobCache
	engine   *ingest.Engine
}

func newTestEnv(t *testing.T, opts ...ingest.Option) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:  []string{t.TempDir()},
		Logger: log,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, kv.Close())
	})

	env := &testEnv{
		metadata: store.NewMetadataStore(kv),
		tags:     store.NewTagStore(kv),
		wallets:  store.NewWalletStore(kv),
		blocks:   store.NewBlockStore(kv),
		blobs:    store.NewDataBlobCache(kv),
	}
	env.engine = ingest.NewEngine(env.metadata, env.tags, env.wallets, env.blocks, env.blobs, opts...)
	return env
}

const testOwner = "some public key material"

func ownerAddress(t *testing.T) string {
	t.Helper()
	address, err := encoding.OwnerToAddress(encoding.ToB64URL([]byte(testOwner)))
	require.NoError(t, err)
	return address
}

func testTx(id string) *types.Transaction {
	return &types.Transaction{
		ID:    id,
		Owner: encoding.ToB64URL([]byte(testOwner)),
	}
}

func bundleItem(seed byte, data string, tags []types.Tag) bundle.Item {
	return bundle.Item{
		ID:            encoding.ToB64URL(bytes.Repeat([]byte{seed}, 32)),
		SignatureType: 2,
		Signature:     bytes.Repeat([]byte{seed}, 64),
		Owner:         bytes.Repeat([]byte{seed + 1}, 32),
		Tags:          tags,
		Data:          []byte(data),
	}
}

func bundleSentinelTags() []types.Tag {
	return []types.Tag{
		encoding.EncodeTag(bundle.FormatTagName, bundle.Format),
		encoding.EncodeTag(bundle.VersionTagName, bundle.Version),
	}
}

func TestSubmitTx_PersistsMetadataTagsAndPayload(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.blocks.Mint()
	require.NoError(t, err)

	tx := testTx("tx-payload")
	tx.Data = encoding.ToB64URL([]byte("hello world"))
	tx.DataSize = "999" // deliberately wrong; ingestion fixes it
	tx.Tags = []types.Tag{
		encoding.EncodeTag("Content-Type", "text/html"),
		encoding.EncodeTag("App-Name", "test"),
	}

	require.NoError(t, env.engine.SubmitTx(context.Background(), tx))

	got, err := env.metadata.GetByID("tx-payload")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Height)
	assert.Equal(t, "11", got.DataSize)

	tags, err := env.tags.GetByTx("tx-payload")
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "Content-Type", tags[0].Name)
	assert.Equal(t, "text/html", tags[0].Value)
	assert.Equal(t, "App-Name", tags[1].Name)

	data, err := env.blobs.Get("tx-payload")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)
}

func TestSubmitTx_AppliesTransfer(t *testing.T) {
	env := newTestEnv(t)

	sender := ownerAddress(t)
	_, err := env.wallets.Create(sender, big.NewInt(100))
	require.NoError(t, err)
	_, err = env.wallets.Create("target-wallet", big.NewInt(20))
	require.NoError(t, err)

	tx := testTx("tx-transfer")
	tx.Target = "target-wallet"
	tx.Quantity = "65"
	tx.Reward = "15"

	require.NoError(t, env.engine.SubmitTx(context.Background(), tx))

	senderWallet, err := env.wallets.GetWallet(sender)
	require.NoError(t, err)
	assert.Equal(t, "20", senderWallet.Balance)

	targetWallet, err := env.wallets.GetWallet("target-wallet")
	require.NoError(t, err)
	assert.Equal(t, "85", targetWallet.Balance)
}

func TestSubmitTx_InsufficientFundsRejectsWholeRecord(t *testing.T) {
	env := newTestEnv(t)

	sender := ownerAddress(t)
	_, err := env.wallets.Create(sender, big.NewInt(50))
	require.NoError(t, err)
	_, err = env.wallets.Create("target-wallet", big.NewInt(0))
	require.NoError(t, err)

	tx := testTx("tx-poor")
	tx.Target = "target-wallet"
	tx.Quantity = "45"
	tx.Reward = "10"

	err = env.engine.SubmitTx(context.Background(), tx)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)

	// Nothing was persisted and no balance moved.
	_, err = env.metadata.GetByID("tx-poor")
	assert.ErrorIs(t, err, store.ErrNotFound)

	senderWallet, err := env.wallets.GetWallet(sender)
	require.NoError(t, err)
	assert.Equal(t, "50", senderWallet.Balance)
}

func TestSubmitTx_MissingTargetWallet(t *testing.T) {
	env := newTestEnv(t)

	sender := ownerAddress(t)
	_, err := env.wallets.Create(sender, big.NewInt(100))
	require.NoError(t, err)

	tx := testTx("tx-ghost-target")
	tx.Target = "nonexistent-target"
	tx.Quantity = "5"

	err = env.engine.SubmitTx(context.Background(), tx)
	assert.ErrorIs(t, err, store.ErrWalletNotFound)

	_, err = env.metadata.GetByID("tx-ghost-target")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubmitTx_RewardBurnsWithoutTransfer(t *testing.T) {
	env := newTestEnv(t)

	sender := ownerAddress(t)
	_, err := env.wallets.Create(sender, big.NewInt(30))
	require.NoError(t, err)

	tx := testTx("tx-burn")
	tx.Reward = "12"

	require.NoError(t, env.engine.SubmitTx(context.Background(), tx))

	senderWallet, err := env.wallets.GetWallet(sender)
	require.NoError(t, err)
	assert.Equal(t, "18", senderWallet.Balance)
}

func TestSubmitTx_UnknownSenderStillPersists(t *testing.T) {
	env := newTestEnv(t)

	tx := testTx("tx-no-wallet")
	tx.Reward = "12"

	require.NoError(t, env.engine.SubmitTx(context.Background(), tx))

	_, err := env.metadata.GetByID("tx-no-wallet")
	assert.NoError(t, err)
}

func TestSubmitTx_ExpandsBundleItems(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.blocks.Mint()
	require.NoError(t, err)

	items := []bundle.Item{
		bundleItem(1, "first nested", []types.Tag{{Name: "Content-Type", Value: "text/html"}}),
		bundleItem(9, "second nested", nil),
	}
	payload, err := bundle.Encode(items)
	require.NoError(t, err)

	tx := testTx("tx-container")
	tx.Tags = bundleSentinelTags()
	tx.Data = encoding.ToB64URL(payload)

	require.NoError(t, env.engine.SubmitTx(context.Background(), tx))

	// Parent and both nested items are stored, all at the same height.
	parent, err := env.metadata.GetByID("tx-container")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), parent.Height)

	for _, item := range items {
		nested, err := env.metadata.GetByID(item.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), nested.Height)
	}

	first, err := env.blobs.Get(items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("first nested"), first)

	tags, err := env.tags.GetByTx(items[0].ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "Content-Type", tags[0].Name)
	assert.Equal(t, "text/html", tags[0].Value)
}

func TestSubmitTx_MalformedBundleKeepsParent(t *testing.T) {
	env := newTestEnv(t)

	tx := testTx("tx-bad-container")
	tx.Tags = bundleSentinelTags()
	tx.Data = encoding.ToB64URL([]byte("this is not a container"))

	require.NoError(t, env.engine.SubmitTx(context.Background(), tx))

	_, err := env.metadata.GetByID("tx-bad-container")
	assert.NoError(t, err)
}

func TestSubmitTx_DepthBoundSkipsExpansionNotPersistence(t *testing.T) {
	env := newTestEnv(t, ingest.WithMaxBundleDepth(1))

	leaf := bundleItem(1, "deep leaf", nil)
	innerPayload, err := bundle.Encode([]bundle.Item{leaf})
	require.NoError(t, err)

	inner := bundleItem(5, string(innerPayload), []types.Tag{
		{Name: bundle.FormatTagName, Value: bundle.Format},
		{Name: bundle.VersionTagName, Value: bundle.Version},
	})
	outerPayload, err := bundle.Encode([]bundle.Item{inner})
	require.NoError(t, err)

	tx := testTx("tx-nested-container")
	tx.Tags = bundleSentinelTags()
	tx.Data = encoding.ToB64URL(outerPayload)

	require.NoError(t, env.engine.SubmitTx(context.Background(), tx))

	// The inner container itself is stored but its leaf never gets expanded.
	_, err = env.metadata.GetByID(inner.ID)
	assert.NoError(t, err)

	_, err = env.metadata.GetByID(leaf.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubmitTx_CanceledContext(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.engine.SubmitTx(ctx, testTx("tx-canceled"))
	assert.ErrorIs(t, err, context.Canceled)
}
