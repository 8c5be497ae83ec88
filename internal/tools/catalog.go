package tools

import "encoding/json"

// Tool describes one callable tool: the name the router and the bus dispatch
// on, plus a JSON schema for its arguments.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Local tool names. Everything else in the catalog is passed through to the
// Blockscout MCP server.
const (
	ToolWhaleReport  = "whale_report"
	ToolWalletReport = "wallet_report"
)

// Catalog returns every tool the agent can run.
func Catalog() []Tool {
	return []Tool{
		{
			Name:        ToolWhaleReport,
			Description: "Scan the monitored bridge contract for recent whale deposits above the USD threshold",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"lookback_minutes": {
						"type": "integer",
						"description": "How far back to scan (defaults to the configured window)"
					},
					"threshold_usd": {
						"type": "number",
						"description": "Minimum USD value to count as a whale deposit (defaults to the configured threshold)"
					}
				}
			}`),
		},
		{
			Name:        ToolWalletReport,
			Description: "Look up a wallet: Blockscout address info plus Hyperliquid positions and recent fills",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"address": {
						"type": "string",
						"description": "Wallet address to inspect (0x...)"
					}
				},
				"required": ["address"]
			}`),
		},
		{
			Name:        "get_chains_list",
			Description: "List the chains the Blockscout MCP server knows about",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {}
			}`),
		},
		{
			Name:        "get_latest_block",
			Description: "Get the latest block number and timestamp for a chain",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain_id": {
						"type": "string",
						"description": "Numeric chain ID (e.g. 42161 for Arbitrum One)"
					}
				},
				"required": ["chain_id"]
			}`),
		},
		{
			Name:        "get_block_info",
			Description: "Get block details by number or hash",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain_id": {
						"type": "string",
						"description": "Numeric chain ID"
					},
					"number_or_hash": {
						"type": "string",
						"description": "Block number or block hash"
					}
				},
				"required": ["chain_id", "number_or_hash"]
			}`),
		},
		{
			Name:        "get_address_info",
			Description: "Get address details: contract flag, native balance, USD exchange rate",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain_id": {
						"type": "string",
						"description": "Numeric chain ID"
					},
					"address": {
						"type": "string",
						"description": "Address to inspect (0x...)"
					}
				},
				"required": ["chain_id", "address"]
			}`),
		},
		{
			Name:        "get_transactions_by_address",
			Description: "List recent native transactions involving an address",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain_id": {
						"type": "string",
						"description": "Numeric chain ID"
					},
					"address": {
						"type": "string",
						"description": "Address to inspect (0x...)"
					},
					"age_from": {
						"type": "string",
						"description": "Only transactions newer than this ISO 8601 timestamp"
					},
					"age_to": {
						"type": "string",
						"description": "Only transactions older than this ISO 8601 timestamp"
					}
				},
				"required": ["chain_id", "address"]
			}`),
		},
		{
			Name:        "get_token_transfers_by_address",
			Description: "List recent ERC-20 transfers involving an address",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain_id": {
						"type": "string",
						"description": "Numeric chain ID"
					},
					"address": {
						"type": "string",
						"description": "Address to inspect (0x...)"
					}
				},
				"required": ["chain_id", "address"]
			}`),
		},
		{
			Name:        "get_transaction_info",
			Description: "Get full details of one transaction",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain_id": {
						"type": "string",
						"description": "Numeric chain ID"
					},
					"transaction_hash": {
						"type": "string",
						"description": "Transaction hash (0x...)"
					}
				},
				"required": ["chain_id", "transaction_hash"]
			}`),
		},
		{
			Name:        "transaction_summary",
			Description: "Get a human-readable interpretation of one transaction",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain_id": {
						"type": "string",
						"description": "Numeric chain ID"
					},
					"transaction_hash": {
						"type": "string",
						"description": "Transaction hash (0x...)"
					}
				},
				"required": ["chain_id", "transaction_hash"]
			}`),
		},
		{
			Name:        "lookup_token_by_symbol",
			Description: "Find token contract addresses matching a ticker symbol",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain_id": {
						"type": "string",
						"description": "Numeric chain ID"
					},
					"symbol": {
						"type": "string",
						"description": "Token symbol to search for (e.g. USDC)"
					}
				},
				"required": ["chain_id", "symbol"]
			}`),
		},
		{
			Name:        "get_address_by_ens_name",
			Description: "Resolve an ENS name to an address",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {
						"type": "string",
						"description": "ENS name (e.g. vitalik.eth)"
					}
				},
				"required": ["name"]
			}`),
		},
		{
			Name:        "direct_api_call",
			Description: "Call an arbitrary Blockscout REST endpoint through the MCP server",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"chain_id": {
						"type": "string",
						"description": "Numeric chain ID"
					},
					"endpoint_path": {
						"type": "string",
						"description": "REST path to call (e.g. /api/v2/stats)"
					},
					"query_params": {
						"type": "object",
						"description": "Optional query parameters"
					}
				},
				"required": ["chain_id", "endpoint_path"]
			}`),
		},
	}
}

// Lookup finds a catalog entry by name.
func Lookup(name string) (Tool, bool) {
	for _, t := range Catalog() {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}
