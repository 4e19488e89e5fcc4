// Package chain provides Algorand access for the loyalty service: a REST
// client over the indexer API for reads and an algod-backed writer for
// minting assets and submitting XP transactions.
package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// IndexerConfig holds indexer client configuration.
type IndexerConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Indexer is a read-only client for the Algorand indexer REST API.
type Indexer struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewIndexer creates an indexer client.
func NewIndexer(cfg IndexerConfig) (*Indexer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("indexer URL required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Indexer{
		baseURL: cfg.URL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (ix *Indexer) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := ix.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if ix.token != "" {
		req.Header.Set("X-Indexer-API-Token", ix.token)
	}

	resp, err := ix.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// TxnQuery narrows a transaction search.
type TxnQuery struct {
	Address    string
	NotePrefix []byte
	MinRound   uint64
	TxType     string
	Limit      int
	NextToken  string
}

// SearchTransactions returns a single page of matching transactions.
func (ix *Indexer) SearchTransactions(ctx context.Context, q TxnQuery) (TransactionsResponse, error) {
	params := url.Values{}
	if q.Address != "" {
		params.Set("address", q.Address)
	}
	if len(q.NotePrefix) > 0 {
		params.Set("note-prefix", base64.StdEncoding.EncodeToString(q.NotePrefix))
	}
	if q.MinRound > 0 {
		params.Set("min-round", strconv.FormatUint(q.MinRound, 10))
	}
	if q.TxType != "" {
		params.Set("tx-type", q.TxType)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.NextToken != "" {
		params.Set("next", q.NextToken)
	}

	var resp TransactionsResponse
	if err := ix.get(ctx, "/v2/transactions", params, &resp); err != nil {
		return TransactionsResponse{}, err
	}
	return resp, nil
}

// XPTransactions returns every XP-note transaction touching the address from
// minRound onward, following pagination until the indexer is exhausted.
func (ix *Indexer) XPTransactions(ctx context.Context, address string, minRound uint64) ([]Transaction, error) {
	q := TxnQuery{
		Address:    address,
		NotePrefix: []byte(NotePrefix),
		MinRound:   minRound,
		TxType:     "pay",
		Limit:      1000,
	}

	var all []Transaction
	for {
		page, err := ix.SearchTransactions(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Transactions...)
		if page.NextToken == "" || len(page.Transactions) == 0 {
			return all, nil
		}
		q.NextToken = page.NextToken
	}
}

// LookupAsset fetches asset parameters by id.
func (ix *Indexer) LookupAsset(ctx context.Context, assetID uint64) (Asset, error) {
	var resp AssetResponse
	if err := ix.get(ctx, fmt.Sprintf("/v2/assets/%d", assetID), nil, &resp); err != nil {
		return Asset{}, err
	}
	return resp.Asset, nil
}

// AccountHolding reports whether the account holds (has opted in to) the
// asset, and the held amount.
func (ix *Indexer) AccountHolding(ctx context.Context, address string, assetID uint64) (bool, uint64, error) {
	params := url.Values{}
	params.Set("asset-id", strconv.FormatUint(assetID, 10))

	var resp AccountAssetsResponse
	err := ix.get(ctx, fmt.Sprintf("/v2/accounts/%s/assets", address), params, &resp)
	if err != nil {
		if IsNotFound(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	for _, holding := range resp.Assets {
		if holding.AssetID == assetID && !holding.Deleted {
			return true, holding.Amount, nil
		}
	}
	return false, 0, nil
}
