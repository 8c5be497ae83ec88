package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"whale-watch/internal/core"
)

// RESTClient queries the Blockscout REST v2 API directly. It backs up the MCP
// path: same explorer data, no tool-call indirection.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a client for one Blockscout instance, e.g.
// https://arbitrum.blockscout.com
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// AddressInfo is the explorer's summary of one address
type AddressInfo struct {
	Hash         string `json:"hash"`
	IsContract   bool   `json:"is_contract"`
	CoinBalance  string `json:"coin_balance"`
	ExchangeRate string `json:"exchange_rate"`
}

type restParty struct {
	Hash string `json:"hash"`
}

type restTransaction struct {
	Hash        string     `json:"hash"`
	From        restParty  `json:"from"`
	To          *restParty `json:"to"`
	Value       string     `json:"value"`
	Timestamp   string     `json:"timestamp"`
	Block       uint64     `json:"block"`
	BlockNumber uint64     `json:"block_number"`
}

// Older explorer deployments emit tx_hash where current ones emit
// transaction_hash, so both are accepted.
type restTokenTransfer struct {
	TransactionHash string    `json:"transaction_hash"`
	TxHash          string    `json:"tx_hash"`
	From            restParty `json:"from"`
	To              restParty `json:"to"`
	Total           struct {
		Value string `json:"value"`
	} `json:"total"`
	Token struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"token"`
	Timestamp   string `json:"timestamp"`
	BlockNumber uint64 `json:"block_number"`
}

func (c *RESTClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "whale-watch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from Blockscout API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Blockscout API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return io.ReadAll(resp.Body)
}

// ParseTransactionItems decodes an items page of native transactions into the
// detector's transfer model. The REST v2 API and the MCP server tools emit the
// same shape, so both paths decode here.
func ParseTransactionItems(body []byte) ([]core.Transfer, error) {
	var parsed struct {
		Items []restTransaction `json:"items"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse transactions response: %w", err)
	}

	transfers := make([]core.Transfer, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.To == nil {
			continue // contract creation
		}
		block := item.BlockNumber
		if block == 0 {
			block = item.Block
		}
		transfers = append(transfers, core.Transfer{
			Hash:      item.Hash,
			From:      item.From.Hash,
			To:        item.To.Hash,
			Value:     item.Value,
			Block:     block,
			Timestamp: item.Timestamp,
		})
	}
	return transfers, nil
}

// ParseTokenTransferItems decodes an items page of ERC-20 transfers.
func ParseTokenTransferItems(body []byte) ([]core.Transfer, error) {
	var parsed struct {
		Items []restTokenTransfer `json:"items"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse token transfers response: %w", err)
	}

	transfers := make([]core.Transfer, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		hash := item.TransactionHash
		if hash == "" {
			hash = item.TxHash
		}
		transfers = append(transfers, core.Transfer{
			Hash:      hash,
			From:      item.From.Hash,
			To:        item.To.Hash,
			Value:     item.Total.Value,
			Token:     item.Token.Address,
			Block:     item.BlockNumber,
			Timestamp: item.Timestamp,
		})
	}
	return transfers, nil
}

// AddressTransactions fetches recent native-value transactions touching an
// address, mapped into the detector's transfer model.
func (c *RESTClient) AddressTransactions(ctx context.Context, address string) ([]core.Transfer, error) {
	body, err := c.get(ctx, fmt.Sprintf("/api/v2/addresses/%s/transactions", url.PathEscape(address)))
	if err != nil {
		return nil, err
	}
	return ParseTransactionItems(body)
}

// AddressTokenTransfers fetches recent ERC-20 transfers touching an address.
func (c *RESTClient) AddressTokenTransfers(ctx context.Context, address string) ([]core.Transfer, error) {
	body, err := c.get(ctx, fmt.Sprintf("/api/v2/addresses/%s/token-transfers", url.PathEscape(address)))
	if err != nil {
		return nil, err
	}
	return ParseTokenTransferItems(body)
}

// AddressInfo fetches the explorer summary for an address.
func (c *RESTClient) AddressInfo(ctx context.Context, address string) (*AddressInfo, error) {
	body, err := c.get(ctx, fmt.Sprintf("/api/v2/addresses/%s", url.PathEscape(address)))
	if err != nil {
		return nil, err
	}

	var info AddressInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse address response: %w", err)
	}
	return &info, nil
}
