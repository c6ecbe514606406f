package node

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"ledgerdev/internal/logging"
)

// HealthProbe answers whether endpoint is a live daemon with the expected identity.
type HealthProbe interface {
	Check(ctx context.Context, endpoint string) bool
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

// RPCProbe calls eth_chainId and compares it with ChainID.
type RPCProbe struct {
	ChainID uint64
	client  *resty.Client
}

// NewRPCProbe creates a probe with a per-request timeout.
func NewRPCProbe(chainID uint64, timeout time.Duration) *RPCProbe {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &RPCProbe{ChainID: chainID, client: client}
}

// Check reports a matching chain ID. Any transport or protocol error is unhealthy.
func (p *RPCProbe) Check(ctx context.Context, endpoint string) bool {
	id, err := p.QueryChainID(ctx, endpoint)
	if err != nil {
		logging.NodeDebug("health probe %s failed: %v", endpoint, err)
		return false
	}
	if id != p.ChainID {
		logging.NodeWarn("endpoint %s reports chain id %d, expected %d", endpoint, id, p.ChainID)
		return false
	}
	return true
}

// QueryChainID performs one eth_chainId round trip.
func (p *RPCProbe) QueryChainID(ctx context.Context, endpoint string) (uint64, error) {
	var out rpcResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_chainId", Params: []interface{}{}}).
		SetResult(&out).
		Post(endpoint)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("http status %d", resp.StatusCode())
	}
	if out.Error != nil {
		return 0, fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	return parseHexQuantity(out.Result)
}

func parseHexQuantity(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("malformed quantity %q", s)
	}
	return strconv.ParseUint(s[2:], 16, 64)
}
