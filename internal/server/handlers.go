package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/permabox/permabox/internal/resolve"
	"github.com/permabox/permabox/internal/store"
	"github.com/permabox/permabox/pkg/encoding"
	"github.com/permabox/permabox/pkg/types"
)

// maxSubmissionBytes bounds submitted record and chunk bodies.
const maxSubmissionBytes = 64 << 20

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var tx types.Transaction
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSubmissionBytes))
	if err := dec.Decode(&tx); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid transaction body")
		return
	}

	if err := s.deps.Engine.SubmitTx(r.Context(), &tx); err != nil {
		switch {
		case errors.Is(err, store.ErrWalletNotFound):
			errorJSON(w, http.StatusNotFound, "Wallet not found")
		case errors.Is(err, store.ErrInsufficientFunds):
			errorJSON(w, http.StatusForbidden,
				fmt.Sprintf("you don't have enough funds to send %s", tx.Quantity))
		default:
			s.log.Error("transaction submission failed", "tx", tx.ID, "error", err)
			errorJSON(w, http.StatusInternalServerError, "submission failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, &tx)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx, err := s.deps.Metadata.GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		s.log.Error("metadata lookup failed", "tx", id, "error", err)
		errorJSON(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", tx.DataSize)
		w.WriteHeader(http.StatusOK)
		return
	}

	data, tx, err := s.deps.Resolver.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, resolve.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "Not Found")
			return
		}
		s.log.Error("payload resolution failed", "tx", id, "error", err)
		errorJSON(w, http.StatusInternalServerError, "payload not available")
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", resolve.ContentTypeFor(tx))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log.Error("failed to write payload body", "tx", id, "error", err)
	}
}

func (s *Server) handleGetTx(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx, err := s.deps.Metadata.GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		s.log.Error("metadata lookup failed", "tx", id, "error", err)
		errorJSON(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleTxOffset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx, err := s.deps.Metadata.GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		s.log.Error("metadata lookup failed", "tx", id, "error", err)
		errorJSON(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	size, err := tx.DataSizeBytes()
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "invalid data_size")
		return
	}

	info, err := s.deps.Chunks.GetOffsetInfo(tx.DataRoot, size)
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		s.log.Error("offset lookup failed", "tx", id, "error", err)
		errorJSON(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTxStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx, err := s.deps.Metadata.GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		s.log.Error("metadata lookup failed", "tx", id, "error", err)
		errorJSON(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	status := txStatusResponse{BlockHeight: tx.Height}
	if latest, err := s.deps.Blocks.Latest(); err == nil {
		status.BlockIndepHash = latest.ID
		if latest.Height >= tx.Height {
			status.NumberOfConfirmations = latest.Height - tx.Height + 1
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// handleTxAnchor returns the latest block id, or a fresh random identifier
// when no block exists yet.
func (s *Server) handleTxAnchor(w http.ResponseWriter, r *http.Request) {
	anchor := ""
	latest, err := s.deps.Blocks.Latest()
	switch {
	case err == nil:
		anchor = latest.ID
	case errors.Is(err, store.ErrNotFound):
		anchor = encoding.RandomID()
	default:
		s.log.Error("anchor lookup failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "anchor not available")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, anchor)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	height, err := s.deps.Blocks.Height()
	if err != nil {
		s.log.Error("height lookup failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "info not available")
		return
	}

	info := infoResponse{
		Network: "permabox",
		Version: 1,
		Height:  height,
		Blocks:  height,
	}
	if latest, err := s.deps.Blocks.Latest(); err == nil {
		info.Current = latest.ID
	}

	writeJSON(w, http.StatusOK, info)
}

// handleMine advances the local ledger height by one block. This is harness
// behavior: no proof of work, no consensus.
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	block, err := s.deps.Blocks.Mint()
	if err != nil {
		s.log.Error("block mint failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "mint failed")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (s *Server) handleSubmitChunk(w http.ResponseWriter, r *http.Request) {
	var req chunkRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSubmissionBytes))
	if err := dec.Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid chunk body")
		return
	}

	data, err := encoding.FromB64URL(req.Chunk)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid chunk encoding")
		return
	}
	offset, err := strconv.ParseInt(req.Offset, 10, 64)
	if err != nil || offset < 0 {
		errorJSON(w, http.StatusBadRequest, "invalid chunk offset")
		return
	}
	size, err := strconv.ParseInt(req.DataSize, 10, 64)
	if err != nil || size < 0 {
		errorJSON(w, http.StatusBadRequest, "invalid chunk data_size")
		return
	}

	chunk := &types.Chunk{
		DataRoot: req.DataRoot,
		DataSize: size,
		Offset:   offset,
		Data:     data,
	}
	if err := s.deps.Chunks.Insert(chunk); err != nil {
		s.log.Error("chunk insert failed", "root", req.DataRoot, "error", err)
		errorJSON(w, http.StatusInternalServerError, "chunk not stored")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid wallet body")
		return
	}

	address := req.Address
	if address == "" {
		address = encoding.RandomID()
	}
	balance, err := types.ParseAmount(req.Balance)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid wallet balance")
		return
	}

	wallet, err := s.deps.Wallets.Create(address, balance)
	if err != nil {
		s.log.Error("wallet create failed", "address", address, "error", err)
		errorJSON(w, http.StatusInternalServerError, "wallet not created")
		return
	}

	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	balance := "0"
	wallet, err := s.deps.Wallets.GetWallet(address)
	switch {
	case err == nil:
		balance = wallet.Balance
	case errors.Is(err, store.ErrNotFound):
		// unknown wallets read as zero
	default:
		s.log.Error("balance lookup failed", "address", address, "error", err)
		errorJSON(w, http.StatusInternalServerError, "balance not available")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, balance)
}
