// Package server exposes the gateway HTTP surface. Routing and response
// shapes live here; all domain logic sits behind the ingestion engine and the
// resolver.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/permabox/permabox/internal/ingest"
	"github.com/permabox/permabox/internal/resolve"
	"github.com/permabox/permabox/internal/store"
)

// idPattern matches the 43-character base64url record and wallet ids.
const idPattern = "[a-zA-Z0-9_-]{43}"

// Deps is the dependency container handed to the server. It is constructed
// once at process start; handlers never (re)initialize stores.
type Deps struct {
	Metadata *store.MetadataStore
	Tags     *store.TagStore
	Wallets  *store.WalletStore
	Chunks   *store.ChunkStore
	Blocks   *store.BlockStore
	Engine   *ingest.Engine
	Resolver *resolve.Resolver
}

type Server struct {
	router *mux.Router
	deps   Deps
	log    *slog.Logger
}

type Option func(*Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

func New(deps Deps, opts ...Option) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/mine", s.handleMine).Methods(http.MethodGet)
	r.HandleFunc("/tx_anchor", s.handleTxAnchor).Methods(http.MethodGet)
	r.HandleFunc("/tx", s.handleSubmitTx).Methods(http.MethodPost)
	r.HandleFunc("/chunk", s.handleSubmitChunk).Methods(http.MethodPost)
	r.HandleFunc("/wallet", s.handleCreateWallet).Methods(http.MethodPost)
	r.HandleFunc("/wallet/{address:"+idPattern+"}/balance", s.handleBalance).Methods(http.MethodGet)
	r.HandleFunc("/tx/{id:"+idPattern+"}/offset", s.handleTxOffset).Methods(http.MethodGet)
	r.HandleFunc("/tx/{id:"+idPattern+"}/status", s.handleTxStatus).Methods(http.MethodGet)
	r.HandleFunc("/tx/{id:"+idPattern+"}", s.handleGetTx).Methods(http.MethodGet)
	r.HandleFunc("/{id:"+idPattern+"}", s.handleData).Methods(http.MethodGet, http.MethodHead)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
