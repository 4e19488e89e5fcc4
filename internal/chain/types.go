package chain

import "fmt"

// Indexer REST types. Field names follow the Algorand indexer v2 JSON
// encoding (kebab-case).

// TransactionsResponse is the envelope for /v2/transactions.
type TransactionsResponse struct {
	CurrentRound uint64        `json:"current-round"`
	NextToken    string        `json:"next-token"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction is the subset of the indexer transaction model the service
// reads: payments carrying XP notes and asset-config results.
type Transaction struct {
	ID                string              `json:"id"`
	Type              string              `json:"tx-type"`
	Sender            string              `json:"sender"`
	ConfirmedRound    uint64              `json:"confirmed-round"`
	RoundTime         int64               `json:"round-time"`
	Note              []byte              `json:"note"`
	Payment           *PaymentFields      `json:"payment-transaction,omitempty"`
	AssetConfig       *AssetConfigFields  `json:"asset-config-transaction,omitempty"`
	AssetTransfer     *AssetTransferField `json:"asset-transfer-transaction,omitempty"`
	CreatedAssetIndex uint64              `json:"created-asset-index,omitempty"`
}

// PaymentFields holds the payment-specific transaction fields.
type PaymentFields struct {
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"`
}

// AssetConfigFields holds asset-config transaction fields.
type AssetConfigFields struct {
	AssetID uint64       `json:"asset-id"`
	Params  *AssetParams `json:"params,omitempty"`
}

// AssetTransferField holds asset-transfer transaction fields.
type AssetTransferField struct {
	AssetID  uint64 `json:"asset-id"`
	Amount   uint64 `json:"amount"`
	Receiver string `json:"receiver"`
}

// AssetResponse is the envelope for /v2/assets/{id}.
type AssetResponse struct {
	Asset        Asset  `json:"asset"`
	CurrentRound uint64 `json:"current-round"`
}

// Asset is an Algorand Standard Asset as reported by the indexer.
type Asset struct {
	Index   uint64      `json:"index"`
	Deleted bool        `json:"deleted,omitempty"`
	Params  AssetParams `json:"params"`
}

// AssetParams mirrors the on-chain asset parameters.
type AssetParams struct {
	Creator       string `json:"creator"`
	Name          string `json:"name,omitempty"`
	UnitName      string `json:"unit-name,omitempty"`
	Total         uint64 `json:"total"`
	Decimals      uint32 `json:"decimals"`
	URL           string `json:"url,omitempty"`
	MetadataHash  []byte `json:"metadata-hash,omitempty"`
	Manager       string `json:"manager,omitempty"`
	Reserve       string `json:"reserve,omitempty"`
	Freeze        string `json:"freeze,omitempty"`
	Clawback      string `json:"clawback,omitempty"`
	DefaultFrozen bool   `json:"default-frozen,omitempty"`
}

// AccountAssetsResponse is the envelope for /v2/accounts/{addr}/assets.
type AccountAssetsResponse struct {
	Assets    []AssetHolding `json:"assets"`
	NextToken string         `json:"next-token"`
}

// AssetHolding is a single asset balance held by an account.
type AssetHolding struct {
	AssetID  uint64 `json:"asset-id"`
	Amount   uint64 `json:"amount"`
	IsFrozen bool   `json:"is-frozen"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// APIError is a non-2xx response from the indexer.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("indexer: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("indexer: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an indexer 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == 404
}
