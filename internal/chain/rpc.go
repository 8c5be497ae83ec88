package chain

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"whale-watch/internal/core"
	"whale-watch/internal/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

//go:embed abi/erc20.json
var erc20ABIJSON string

// RPCClient reads the chain directly over JSON-RPC. Used as a liveness probe
// and to resolve ERC-20 metadata for tokens the registry has not seen.
type RPCClient struct {
	chainID string
	rpcURL  string
	client  *ethclient.Client
	abi     abi.ABI
}

// NewRPCClient dials an RPC endpoint for the given chain. The endpoint comes
// from the chain's RPC env var (comma-separated URLs are load balanced) with a
// public fallback.
func NewRPCClient(chainID string) (*RPCClient, error) {
	rpcURL := utils.GetRPCURLForChain(chainID)
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured for chain %s", chainID)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %s RPC: %w", chainID, err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}

	return &RPCClient{
		chainID: chainID,
		rpcURL:  rpcURL,
		client:  client,
		abi:     parsedABI,
	}, nil
}

// ChainID returns the chain this client is connected to.
func (c *RPCClient) ChainID() string {
	return c.chainID
}

// LatestBlock returns the current chain head number.
func (c *RPCClient) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest block: %w", err)
	}
	return n, nil
}

// TokenMetadata reads symbol() and decimals() from an ERC-20 contract. The
// returned entry carries no USD rate; pricing stays with the caller.
func (c *RPCClient) TokenMetadata(ctx context.Context, token common.Address) (core.TokenInfo, error) {
	symOut, err := c.callMethod(ctx, token, "symbol")
	if err != nil {
		return core.TokenInfo{}, err
	}
	symbol, ok := symOut[0].(string)
	if !ok {
		return core.TokenInfo{}, fmt.Errorf("token %s returned non-string symbol", token.Hex())
	}

	decOut, err := c.callMethod(ctx, token, "decimals")
	if err != nil {
		return core.TokenInfo{}, err
	}
	decimals, ok := decOut[0].(uint8)
	if !ok {
		return core.TokenInfo{}, fmt.Errorf("token %s returned non-uint8 decimals", token.Hex())
	}

	return core.TokenInfo{
		Address:  strings.ToLower(token.Hex()),
		Symbol:   symbol,
		Decimals: int(decimals),
	}, nil
}

// callMethod executes a zero-argument view function on a contract.
func (c *RPCClient) callMethod(ctx context.Context, to common.Address, name string) ([]interface{}, error) {
	method, exists := c.abi.Methods[name]
	if !exists {
		return nil, fmt.Errorf("%s method not found in ABI", name)
	}

	msg := ethereum.CallMsg{
		To:   &to,
		Data: method.ID,
	}
	result, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", name, to.Hex(), err)
	}

	unpacked, err := method.Outputs.UnpackValues(result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s output: %w", name, err)
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("%s returned no values", name)
	}
	return unpacked, nil
}

// Close closes the RPC connection
func (c *RPCClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
