package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

// WriterConfig holds algod client and operator configuration.
type WriterConfig struct {
	AlgodURL         string
	AlgodToken       string
	OperatorMnemonic string
	WaitRounds       uint64
}

// Writer submits transactions on behalf of the operator account: program and
// pass asset creation, pass transfers, and XP award payments. Programs and
// passes are always total=1/decimals=0 assets.
type Writer struct {
	client     *algod.Client
	operator   crypto.Account
	waitRounds uint64
	log        *logger.Logger
}

// NewWriter builds a Writer from config. The operator mnemonic must resolve
// to a funded account holding manager/clawback authority for minted assets.
func NewWriter(cfg WriterConfig, log *logger.Logger) (*Writer, error) {
	if log == nil {
		log = logger.NewDefault("chain-writer")
	}
	if cfg.OperatorMnemonic == "" {
		return nil, fmt.Errorf("operator mnemonic required")
	}

	sk, err := mnemonic.ToPrivateKey(cfg.OperatorMnemonic)
	if err != nil {
		return nil, fmt.Errorf("decode operator mnemonic: %w", err)
	}
	operator, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("derive operator account: %w", err)
	}

	client, err := algod.MakeClient(cfg.AlgodURL, cfg.AlgodToken)
	if err != nil {
		return nil, fmt.Errorf("algod client: %w", err)
	}

	waitRounds := cfg.WaitRounds
	if waitRounds == 0 {
		waitRounds = 4
	}

	return &Writer{
		client:     client,
		operator:   operator,
		waitRounds: waitRounds,
		log:        log,
	}, nil
}

// OperatorAddress returns the operator account address.
func (w *Writer) OperatorAddress() string {
	return w.operator.Address.String()
}

// AccountHolding reports whether the address has opted in to the asset and
// the amount held, answered by algod. Unlike the indexer, algod sees an
// opt-in as soon as it confirms, so a member who just opted in is not
// rejected while the indexer catches up.
func (w *Writer) AccountHolding(ctx context.Context, address string, assetID uint64) (bool, uint64, error) {
	if _, err := types.DecodeAddress(address); err != nil {
		return false, 0, fmt.Errorf("invalid address: %w", err)
	}

	info, err := w.client.AccountAssetInformation(address, assetID).Do(ctx)
	if err != nil {
		// algod answers 404 when the account never opted in.
		if strings.Contains(err.Error(), "404") || strings.Contains(strings.ToLower(err.Error()), "not found") {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("account asset lookup: %w", err)
	}
	return true, info.AssetHolding.Amount, nil
}

// MintResult describes a confirmed asset creation.
type MintResult struct {
	AssetID uint64
	TxID    string
	Round   uint64
}

// MintAsset creates a supply-1/decimals-0 asset with the operator as
// manager, reserve, and clawback. Used for both programs and passes.
func (w *Writer) MintAsset(ctx context.Context, assetName, unitName, assetURL string, metadataHash string) (MintResult, error) {
	sp, err := w.client.SuggestedParams().Do(ctx)
	if err != nil {
		return MintResult{}, fmt.Errorf("suggested params: %w", err)
	}

	operator := w.operator.Address.String()
	txn, err := transaction.MakeAssetCreateTxn(
		operator, nil, sp,
		1, 0, false,
		operator, operator, "", operator,
		unitName, assetName, assetURL, metadataHash,
	)
	if err != nil {
		return MintResult{}, fmt.Errorf("build asset create: %w", err)
	}

	info, txid, err := w.send(ctx, txn)
	if err != nil {
		return MintResult{}, err
	}
	if info.AssetIndex == 0 {
		return MintResult{}, fmt.Errorf("asset create %s confirmed without asset index", txid)
	}

	w.log.WithField("asset_id", info.AssetIndex).
		WithField("txid", txid).
		Info("asset minted")
	return MintResult{AssetID: info.AssetIndex, TxID: txid, Round: info.ConfirmedRound}, nil
}

// TransferAsset sends one unit of the asset from the operator to the
// recipient. The recipient must already hold (have opted in to) the asset.
func (w *Writer) TransferAsset(ctx context.Context, assetID uint64, recipient string) (string, uint64, error) {
	if _, err := types.DecodeAddress(recipient); err != nil {
		return "", 0, fmt.Errorf("invalid recipient address: %w", err)
	}

	sp, err := w.client.SuggestedParams().Do(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("suggested params: %w", err)
	}

	txn, err := transaction.MakeAssetTransferTxn(w.operator.Address.String(), recipient, 1, nil, sp, "", assetID)
	if err != nil {
		return "", 0, fmt.Errorf("build asset transfer: %w", err)
	}

	info, txid, err := w.send(ctx, txn)
	if err != nil {
		return "", 0, err
	}
	return txid, info.ConfirmedRound, nil
}

// ClawbackAsset pulls one unit of the asset back from the holder to the
// operator using the clawback authority.
func (w *Writer) ClawbackAsset(ctx context.Context, assetID uint64, holder string) (string, uint64, error) {
	if _, err := types.DecodeAddress(holder); err != nil {
		return "", 0, fmt.Errorf("invalid holder address: %w", err)
	}

	sp, err := w.client.SuggestedParams().Do(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("suggested params: %w", err)
	}

	operator := w.operator.Address.String()
	txn, err := transaction.MakeAssetRevocationTxn(operator, holder, 1, operator, nil, sp, assetID)
	if err != nil {
		return "", 0, fmt.Errorf("build asset revocation: %w", err)
	}

	info, txid, err := w.send(ctx, txn)
	if err != nil {
		return "", 0, err
	}
	return txid, info.ConfirmedRound, nil
}

// SubmitXPAward sends a zero-amount payment to the member carrying the XP
// note payload.
func (w *Writer) SubmitXPAward(ctx context.Context, member string, note []byte) (string, uint64, error) {
	if _, err := types.DecodeAddress(member); err != nil {
		return "", 0, fmt.Errorf("invalid member address: %w", err)
	}

	sp, err := w.client.SuggestedParams().Do(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("suggested params: %w", err)
	}

	txn, err := transaction.MakePaymentTxn(w.operator.Address.String(), member, 0, note, "", sp)
	if err != nil {
		return "", 0, fmt.Errorf("build payment: %w", err)
	}

	info, txid, err := w.send(ctx, txn)
	if err != nil {
		return "", 0, err
	}
	return txid, info.ConfirmedRound, nil
}

func (w *Writer) send(ctx context.Context, txn types.Transaction) (PendingInfo, string, error) {
	txid, stx, err := crypto.SignTransaction(w.operator.PrivateKey, txn)
	if err != nil {
		return PendingInfo{}, "", fmt.Errorf("sign transaction: %w", err)
	}

	if _, err := w.client.SendRawTransaction(stx).Do(ctx); err != nil {
		return PendingInfo{}, "", fmt.Errorf("submit transaction: %w", err)
	}

	info, err := transaction.WaitForConfirmation(w.client, txid, w.waitRounds, ctx)
	if err != nil {
		return PendingInfo{}, "", fmt.Errorf("confirm %s: %w", txid, err)
	}
	return PendingInfo{AssetIndex: info.AssetIndex, ConfirmedRound: info.ConfirmedRound}, txid, nil
}

// PendingInfo is the confirmation detail the service layer cares about.
type PendingInfo struct {
	AssetIndex     uint64
	ConfirmedRound uint64
}

// ValidAddress reports whether s parses as an Algorand address.
func ValidAddress(s string) bool {
	_, err := types.DecodeAddress(s)
	return err == nil
}
