package server

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

type infoResponse struct {
	Network     string `json:"network"`
	Version     int    `json:"version"`
	Height      uint64 `json:"height"`
	Blocks      uint64 `json:"blocks"`
	Current     string `json:"current,omitempty"`
	QueueLength int    `json:"queue_length"`
	Peers       int    `json:"peers"`
}

type txStatusResponse struct {
	BlockHeight           uint64 `json:"block_height"`
	BlockIndepHash        string `json:"block_indep_hash,omitempty"`
	NumberOfConfirmations uint64 `json:"number_of_confirmations"`
}

type chunkRequest struct {
	DataRoot string `json:"data_root"`
	DataSize string `json:"data_size"`
	Offset   string `json:"offset"`
	Chunk    string `json:"chunk"`
}

type walletRequest struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: status, Error: msg})
}
