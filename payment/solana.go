package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RPCClient 是Solana JSON-RPC节点的轻量客户端，只封装本服务需要的调用
type RPCClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewRPCClient 创建新的RPC客户端
func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ParsedTransaction is the jsonParsed form of a confirmed transaction,
// reduced to the fields verification needs.
type ParsedTransaction struct {
	Meta *struct {
		// Err is non-null when the transaction failed on-chain.
		Err interface{} `json:"err"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			Instructions []ParsedInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// ParsedInstruction is one instruction of the transaction message. Parsed is
// kept raw: the node only emits a structured object for programs it knows
// how to decode, and emits plain strings or nothing for the rest.
type ParsedInstruction struct {
	Program string          `json:"program"`
	Parsed  json.RawMessage `json:"parsed"`
}

// TokenTransfer is a decoded SPL token transfer instruction.
type TokenTransfer struct {
	Type string `json:"type"`
	Info struct {
		Amount      string `json:"amount"`
		Destination string `json:"destination"`
		TokenAmount *struct {
			Amount string `json:"amount"`
		} `json:"tokenAmount"`
	} `json:"info"`
}

// AsTokenTransfer decodes the instruction as an SPL token transfer, returning
// nil when it is anything else.
func (ix *ParsedInstruction) AsTokenTransfer() *TokenTransfer {
	if len(ix.Parsed) == 0 || ix.Parsed[0] != '{' {
		return nil
	}
	var t TokenTransfer
	if err := json.Unmarshal(ix.Parsed, &t); err != nil {
		return nil
	}
	if t.Type != "transfer" && t.Type != "transferChecked" {
		return nil
	}
	return &t
}

// GetTransaction fetches the parsed transaction for a signature. A nil
// result with nil error means the node does not know the transaction yet.
func (c *RPCClient) GetTransaction(ctx context.Context, signature string) (*ParsedTransaction, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []interface{}{
			signature,
			map[string]interface{}{
				"encoding":                       "jsonParsed",
				"maxSupportedTransactionVersion": 0,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build RPC request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RPC endpoint returned status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if len(rpcResp.Result) == 0 || bytes.Equal(rpcResp.Result, []byte("null")) {
		return nil, nil
	}

	tx := &ParsedTransaction{}
	if err := json.Unmarshal(rpcResp.Result, tx); err != nil {
		return nil, fmt.Errorf("failed to decode parsed transaction: %w", err)
	}
	return tx, nil
}
