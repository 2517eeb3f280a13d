package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// WalletBridge is a Requester speaking JSON-RPC 2.0 over a websocket. It is
// how a headless node consumes an injected-wallet style provider: the wallet
// side holds the keys and answers requests on the other end of the socket.
type WalletBridge struct {
	conn *websocket.Conn

	mu     sync.Mutex
	nextID uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewWalletBridge connects to the wallet endpoint.
func NewWalletBridge(ctx context.Context, endpoint string) (*WalletBridge, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial wallet endpoint %s: %w", endpoint, err)
	}
	return &WalletBridge{conn: conn}, nil
}

// Request sends one JSON-RPC call and waits for its matching response.
// Requests are serialized; the wallet side answers in order but responses
// are still matched by id in case it does not.
func (b *WalletBridge) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      b.nextID,
		Method:  method,
		Params:  params,
	}
	if req.Params == nil {
		req.Params = []any{}
	}

	// A zero deadline clears any deadline left behind by an earlier call.
	deadline, _ := ctx.Deadline()
	_ = b.conn.SetReadDeadline(deadline)
	_ = b.conn.SetWriteDeadline(deadline)

	if err := b.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	for {
		var resp rpcResponse
		if err := b.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("read %s response: %w", method, err)
		}
		if resp.ID != req.ID {
			// Stale response from an abandoned call; skip it.
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Close releases the websocket connection.
func (b *WalletBridge) Close() error {
	return b.conn.Close()
}
