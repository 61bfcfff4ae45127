// Package permabox is a self-contained ledger and content-store gateway. It
// accepts signed records over HTTP, expands nested containers, applies balance
// transfers, and serves reconstructed payloads back by id.
package permabox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/permabox/permabox/internal/ingest"
	"github.com/permabox/permabox/internal/keyValStore"
	"github.com/permabox/permabox/internal/resolve"
	"github.com/permabox/permabox/internal/server"
	"github.com/permabox/permabox/internal/store"
)

var (
	ErrNotStarted = errors.New("permabox: gateway not started")
	ErrClosed     = errors.New("permabox: gateway closed")
)

// Gateway is the main handle. It owns the KV store, the domain stores built on
// top of it, and the lifecycle of the HTTP surface.
type Gateway struct {
	log    *slog.Logger
	config Config

	kvMu sync.RWMutex
	kv   *keyValStore.KeyValStore

	metadata *store.MetadataStore
	tags     *store.TagStore
	wallets  *store.WalletStore
	chunks   *store.ChunkStore
	blocks   *store.BlockStore
	blobs    *store.DataBlobCache

	engine   *ingest.Engine
	resolver *resolve.Resolver
	server   *server.Server

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs a gateway handle. New does not perform heavy I/O or start
// background goroutines. Call Start to initialize subsystems.
func New(conf Config) (*Gateway, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	conf.applyDefaults()
	return &Gateway{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start opens the KV store and wires the stores, the ingestion engine, the
// resolver and the HTTP server. Start is safe to call multiple times; only the
// first call has effect.
func (g *Gateway) Start(ctx context.Context) error {
	var startErr error
	g.startOnce.Do(func() {
		dataRoot := g.config.Paths[0]
		if err := os.MkdirAll(dataRoot, 0o700); err != nil {
			startErr = fmt.Errorf("mkdir %s: %w", dataRoot, err)
			return
		}

		kvLog := logrus.New()
		kvLog.SetOutput(os.Stderr)
		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:         []string{filepath.Join(dataRoot, "kv")},
			MinimumFreeGB: g.config.MinimumFreeGB,
			Logger:        kvLog,
		})
		if err != nil {
			startErr = fmt.Errorf("init kv: %w", err)
			return
		}

		g.kvMu.Lock()
		g.kv = kv
		g.kvMu.Unlock()

		g.metadata = store.NewMetadataStore(kv)
		g.tags = store.NewTagStore(kv)
		g.wallets = store.NewWalletStore(kv)
		g.chunks = store.NewChunkStore(kv)
		g.blocks = store.NewBlockStore(kv)
		g.blobs = store.NewDataBlobCache(kv)

		g.engine = ingest.NewEngine(g.metadata, g.tags, g.wallets, g.blocks, g.blobs,
			ingest.WithLogger(g.log),
			ingest.WithMaxBundleDepth(g.config.MaxBundleDepth))
		g.resolver = resolve.NewResolver(g.metadata, g.chunks, g.blobs, g.log)
		g.server = server.New(server.Deps{
			Metadata: g.metadata,
			Tags:     g.tags,
			Wallets:  g.wallets,
			Chunks:   g.chunks,
			Blocks:   g.blocks,
			Engine:   g.engine,
			Resolver: g.resolver,
		}, server.WithLogger(g.log))

		g.started.Store(true)
		g.log.Info("permabox gateway started", "path", dataRoot)
	})
	return startErr
}

// Handler returns the HTTP surface of the gateway, or nil before Start.
func (g *Gateway) Handler() http.Handler {
	if g.server == nil {
		return nil
	}
	return g.server
}

// Run starts the gateway, serves HTTP until ctx is canceled, and finally
// performs a bounded graceful shutdown. It is a convenience for services.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Start(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              g.config.ListenAddr,
		Handler:           g.server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.log.Info("listening", "addr", g.config.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("http shutdown: %w", err)
		}
		cancel()
		<-errCh
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(serveErr, g.Close(closeCtx))
}

// Close terminates the KV store and releases resources. Close is idempotent
// and safe to call multiple times.
func (g *Gateway) Close(ctx context.Context) error {
	var closeErr error
	g.closeOnce.Do(func() {
		g.kvMu.Lock()
		kv := g.kv
		g.kv = nil
		g.kvMu.Unlock()
		if kv != nil {
			if err := kv.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close kv: %w", err))
			}
		}
		g.log.Info("permabox gateway closed")
	})
	return closeErr
}

// CloseWithoutContext closes the gateway using a background context. Prefer
// Close(ctx) to enforce an application-specific shutdown deadline.
func (g *Gateway) CloseWithoutContext() error {
	return g.Close(context.Background())
}
