// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// jsonrpcRequest/jsonrpcResponse mirror the wire envelope
// go-ethereum's rpc.Client speaks, the same shape
// internal/chainclient.RPCClient dials against in production.
type jsonrpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sentTransaction is one decoded eth_sendTransaction call, captured for
// assertions against S2/S6 fixtures.
type sentTransaction struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
	Data     string `json:"data"`
}

// fakeServer is a minimal single authority's JSON-RPC endpoint: a
// queue of eth_blockNumber answers (one per poll, repeating the last
// once exhausted), a fixed table of eth_getLogs responses keyed by
// exact [from,to] range, and a running log of every
// eth_sendTransaction it received.
type fakeServer struct {
	mu sync.Mutex

	blockNumbers []string
	logsByRange  map[[2]string]json.RawMessage

	sent []sentTransaction

	srv *httptest.Server
}

func newFakeServer() *fakeServer {
	f := &fakeServer{logsByRange: make(map[[2]string]json.RawMessage)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeServer) url() string { return f.srv.URL }

func (f *fakeServer) close() { f.srv.Close() }

func (f *fakeServer) setBlockNumbers(hexValues ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockNumbers = hexValues
}

func (f *fakeServer) setLogs(from, to string, logs json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logsByRange[[2]string{from, to}] = logs
}

func (f *fakeServer) sentTransactions() []sentTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentTransaction, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	var req jsonrpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := jsonrpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "eth_blockNumber":
		resp.Result = f.nextBlockNumber()
	case "eth_getLogs":
		resp.Result = f.logsFor(req.Params)
	case "eth_call":
		resp.Result = "0x"
	case "eth_sendTransaction":
		resp.Result = f.recordSend(req.Params)
	default:
		resp.Error = &jsonrpcError{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeServer) nextBlockNumber() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.blockNumbers) == 0 {
		return "0x0"
	}
	v := f.blockNumbers[0]
	if len(f.blockNumbers) > 1 {
		f.blockNumbers = f.blockNumbers[1:]
	}
	return v
}

type getLogsParams struct {
	FromBlock string `json:"fromBlock"`
	ToBlock   string `json:"toBlock"`
}

func (f *fakeServer) logsFor(params []json.RawMessage) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(params) == 0 {
		return json.RawMessage(`[]`)
	}
	var p getLogsParams
	if err := json.Unmarshal(params[0], &p); err != nil {
		return json.RawMessage(`[]`)
	}
	if logs, ok := f.logsByRange[[2]string{p.FromBlock, p.ToBlock}]; ok {
		return logs
	}
	return json.RawMessage(`[]`)
}

func (f *fakeServer) recordSend(params []json.RawMessage) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(params) > 0 {
		var tx sentTransaction
		if err := json.Unmarshal(params[0], &tx); err == nil {
			f.sent = append(f.sent, tx)
		}
	}
	return "0x0000000000000000000000000000000000000000000000000000000000000001"
}
