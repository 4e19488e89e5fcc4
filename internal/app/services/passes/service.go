// Package passes manages per-member loyalty pass assets: issuance by the
// operator, claims after member opt-in, and clawback revocation.
package passes

import (
	"context"
	"fmt"
	"time"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/pass"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/metrics"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage"
	"github.com/Emrys-Org/gaius-loyalty/internal/chain"
	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

// ChainWriter covers the on-chain operations pass management needs.
type ChainWriter interface {
	MintAsset(ctx context.Context, assetName, unitName, assetURL, metadataHash string) (chain.MintResult, error)
	TransferAsset(ctx context.Context, assetID uint64, recipient string) (string, uint64, error)
	ClawbackAsset(ctx context.Context, assetID uint64, holder string) (string, uint64, error)
}

// HoldingChecker reports whether an account has opted in to an asset.
type HoldingChecker interface {
	AccountHolding(ctx context.Context, address string, assetID uint64) (bool, uint64, error)
}

// Service manages loyalty passes.
type Service struct {
	programs storage.ProgramStore
	members  storage.MemberStore
	passes   storage.PassStore
	writer   ChainWriter
	holdings HoldingChecker
	log      *logger.Logger
}

// New constructs a pass service.
func New(programs storage.ProgramStore, members storage.MemberStore, passes storage.PassStore,
	writer ChainWriter, holdings HoldingChecker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("passes")
	}
	return &Service{
		programs: programs,
		members:  members,
		passes:   passes,
		writer:   writer,
		holdings: holdings,
		log:      log,
	}
}

// Issue mints a pass asset for an enrolled member. The asset stays with the
// operator until the member claims it.
func (s *Service) Issue(ctx context.Context, programID, memberAddress string) (pass.Pass, error) {
	p, err := s.programs.GetProgram(ctx, programID)
	if err != nil {
		return pass.Pass{}, fmt.Errorf("program validation failed: %w", err)
	}
	if p.Status != program.StatusActive {
		return pass.Pass{}, fmt.Errorf("program %s is not active", programID)
	}
	if _, err := s.members.GetMemberByAddress(ctx, programID, memberAddress); err != nil {
		return pass.Pass{}, fmt.Errorf("member validation failed: %w", err)
	}

	existing, err := s.passes.ListPassesByMember(ctx, memberAddress)
	if err != nil {
		return pass.Pass{}, err
	}
	for _, pp := range existing {
		if pp.ProgramID == programID && pp.Status != pass.StatusRevoked {
			return pass.Pass{}, fmt.Errorf("member already holds a pass for program %s", programID)
		}
	}

	if s.writer == nil {
		return pass.Pass{}, fmt.Errorf("chain access not configured")
	}

	minted, err := s.writer.MintAsset(ctx, p.Name+" Pass", p.UnitName, p.MetadataURL, "")
	if err != nil {
		return pass.Pass{}, fmt.Errorf("mint pass asset: %w", err)
	}

	record := pass.Pass{
		ProgramID:     programID,
		AssetID:       minted.AssetID,
		MemberAddress: memberAddress,
		Status:        pass.StatusIssued,
		MintTxID:      minted.TxID,
	}
	record, err = s.passes.CreatePass(ctx, record)
	if err != nil {
		return pass.Pass{}, err
	}
	metrics.CountPassOp("issued")

	s.log.WithField("pass_id", record.ID).
		WithField("asset_id", record.AssetID).
		WithField("member", memberAddress).
		Info("pass issued")
	return record, nil
}

// Claim transfers an issued pass to its member. The member must have opted
// in to the pass asset first; without the holding the transfer would be
// rejected by the network.
func (s *Service) Claim(ctx context.Context, passID string) (pass.Pass, error) {
	record, err := s.passes.GetPass(ctx, passID)
	if err != nil {
		return pass.Pass{}, err
	}
	if record.Status != pass.StatusIssued {
		return pass.Pass{}, fmt.Errorf("pass %s is %s, not claimable", passID, record.Status)
	}
	if s.writer == nil || s.holdings == nil {
		return pass.Pass{}, fmt.Errorf("chain access not configured")
	}

	optedIn, _, err := s.holdings.AccountHolding(ctx, record.MemberAddress, record.AssetID)
	if err != nil {
		return pass.Pass{}, fmt.Errorf("opt-in check: %w", err)
	}
	if !optedIn {
		return pass.Pass{}, fmt.Errorf("member %s has not opted in to asset %d", record.MemberAddress, record.AssetID)
	}

	txid, _, err := s.writer.TransferAsset(ctx, record.AssetID, record.MemberAddress)
	if err != nil {
		return pass.Pass{}, fmt.Errorf("transfer pass: %w", err)
	}

	record.Status = pass.StatusClaimed
	record.ClaimTxID = txid
	record.ClaimedAt = time.Now().UTC()
	record, err = s.passes.UpdatePass(ctx, record)
	if err != nil {
		return pass.Pass{}, err
	}
	metrics.CountPassOp("claimed")

	s.log.WithField("pass_id", record.ID).
		WithField("txid", txid).
		Info("pass claimed")
	return record, nil
}

// Revoke pulls a claimed pass back via the clawback authority. Issued but
// unclaimed passes are simply marked revoked; the asset never left the
// operator.
func (s *Service) Revoke(ctx context.Context, passID string) (pass.Pass, error) {
	record, err := s.passes.GetPass(ctx, passID)
	if err != nil {
		return pass.Pass{}, err
	}
	if record.Status == pass.StatusRevoked {
		return record, nil
	}

	if record.Status == pass.StatusClaimed {
		if s.writer == nil {
			return pass.Pass{}, fmt.Errorf("chain access not configured")
		}
		txid, _, err := s.writer.ClawbackAsset(ctx, record.AssetID, record.MemberAddress)
		if err != nil {
			return pass.Pass{}, fmt.Errorf("clawback pass: %w", err)
		}
		record.RevokeTxID = txid
	}

	record.Status = pass.StatusRevoked
	record.RevokedAt = time.Now().UTC()
	record, err = s.passes.UpdatePass(ctx, record)
	if err != nil {
		return pass.Pass{}, err
	}
	metrics.CountPassOp("revoked")

	s.log.WithField("pass_id", record.ID).Info("pass revoked")
	return record, nil
}

// Get fetches a pass by id.
func (s *Service) Get(ctx context.Context, id string) (pass.Pass, error) {
	return s.passes.GetPass(ctx, id)
}

// ListByProgram returns a program's passes.
func (s *Service) ListByProgram(ctx context.Context, programID string) ([]pass.Pass, error) {
	return s.passes.ListPassesByProgram(ctx, programID)
}

// ListByMember returns a member's passes across programs.
func (s *Service) ListByMember(ctx context.Context, address string) ([]pass.Pass, error) {
	return s.passes.ListPassesByMember(ctx, address)
}
