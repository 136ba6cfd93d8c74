package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// errorData is the relay's structured error payload.
type errorData struct {
	Code        string `json:"code"`
	ProgramCode uint32 `json:"program_code"`
}

// rpcNotification is a server push on the subscription socket.
type rpcNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func (e *rpcError) toLedger() *ledger.Error {
	var data errorData
	if len(e.Data) > 0 {
		_ = json.Unmarshal(e.Data, &data)
	}
	switch {
	case data.Code != "" && ledger.IsKnownCode(data.Code):
		return &ledger.Error{Code: data.Code, Message: e.Message, RPCCode: e.Code, ProgramCode: data.ProgramCode}
	case data.ProgramCode != 0:
		le := ledger.ProgramCodeError(data.ProgramCode, e.Message)
		le.RPCCode = e.Code
		return le
	case e.Code == 429 || e.Code == -32429:
		return &ledger.Error{Code: ledger.ErrRateLimit, Message: e.Message, RPCCode: e.Code}
	}
	return &ledger.Error{Code: ledger.ErrInternal, Message: fmt.Sprintf("rpc %d: %s", e.Code, e.Message), RPCCode: e.Code}
}
