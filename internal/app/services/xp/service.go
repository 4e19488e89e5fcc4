// Package xp awards experience points on chain and reconstructs member
// ledgers by replaying XP transactions from the indexer.
package xp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	xpdomain "github.com/Emrys-Org/gaius-loyalty/internal/app/domain/xp"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/metrics"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage"
	"github.com/Emrys-Org/gaius-loyalty/internal/chain"
	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

// Awarder submits XP payment transactions.
type Awarder interface {
	SubmitXPAward(ctx context.Context, member string, note []byte) (string, uint64, error)
}

// LedgerSource reads XP transactions for an address from the chain.
type LedgerSource interface {
	XPTransactions(ctx context.Context, address string, minRound uint64) ([]chain.Transaction, error)
}

// Cache holds reconstructed ledgers between syncs. Cache failures must be
// swallowed by implementations; a cache miss is always an acceptable answer.
type Cache interface {
	GetLedger(ctx context.Context, programID, address string) (xpdomain.Ledger, bool)
	SetLedger(ctx context.Context, l xpdomain.Ledger)
	Invalidate(ctx context.Context, programID, address string)
}

// Service awards XP and maintains derived ledgers.
type Service struct {
	programs      storage.ProgramStore
	members       storage.MemberStore
	ledgers       storage.LedgerStore
	awarder       Awarder
	source        LedgerSource
	cache         Cache
	trustedSender string
	log           *logger.Logger
}

// New constructs an XP service. A nil awarder disables awards; a nil source
// disables syncing; a nil cache disables caching.
func New(programs storage.ProgramStore, members storage.MemberStore, ledgers storage.LedgerStore,
	awarder Awarder, source LedgerSource, cache Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("xp")
	}
	return &Service{
		programs: programs,
		members:  members,
		ledgers:  ledgers,
		awarder:  awarder,
		source:   source,
		cache:    cache,
		log:      log,
	}
}

// TrustSender restricts ledger replay to XP transactions sent by the given
// address, normally the operator account. Anyone can send a payment with a
// well-formed note to a member; without the restriction those notes count.
func (s *Service) TrustSender(address string) {
	s.trustedSender = strings.TrimSpace(address)
}

// AwardParams are the inputs for an XP award.
type AwardParams struct {
	ProgramID string
	Address   string
	Points    int64
	Reason    string
}

// AwardResult reports the confirmed award transaction and, when the award
// crossed a tier boundary, the projected upgrade embedded in the note.
type AwardResult struct {
	TxID     string
	Round    uint64
	Points   int64
	NewTier  string
	Upgraded bool
}

// Award submits a zero-amount payment to the member carrying the XP note.
// The projected tier after the award is computed against the stored ledger
// and recorded in the note when it rises; replay does not trust it.
func (s *Service) Award(ctx context.Context, params AwardParams) (AwardResult, error) {
	if params.Points == 0 {
		return AwardResult{}, fmt.Errorf("points must be non-zero")
	}
	params.Reason = strings.TrimSpace(params.Reason)

	p, err := s.programs.GetProgram(ctx, params.ProgramID)
	if err != nil {
		return AwardResult{}, fmt.Errorf("program validation failed: %w", err)
	}
	if p.Status != program.StatusActive {
		return AwardResult{}, fmt.Errorf("program %s is not active", params.ProgramID)
	}
	if p.AssetID == 0 {
		return AwardResult{}, fmt.Errorf("program %s has no on-chain asset", params.ProgramID)
	}
	if _, err := s.members.GetMemberByAddress(ctx, params.ProgramID, params.Address); err != nil {
		return AwardResult{}, fmt.Errorf("member validation failed: %w", err)
	}
	if s.awarder == nil {
		return AwardResult{}, fmt.Errorf("chain access not configured")
	}

	tierHint, upgraded := s.projectTier(ctx, p, params.Address, params.Points)

	note, err := chain.EncodeXPNote(chain.XPNote{
		Program: p.AssetID,
		Points:  params.Points,
		Reason:  params.Reason,
		Tier:    tierHint,
	})
	if err != nil {
		return AwardResult{}, err
	}

	txid, round, err := s.awarder.SubmitXPAward(ctx, params.Address, note)
	if err != nil {
		return AwardResult{}, fmt.Errorf("submit xp award: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, params.ProgramID, params.Address)
	}
	metrics.CountXPAward(params.Points)

	s.log.WithField("program_id", params.ProgramID).
		WithField("address", params.Address).
		WithField("points", params.Points).
		WithField("txid", txid).
		Info("xp awarded")
	return AwardResult{
		TxID:     txid,
		Round:    round,
		Points:   params.Points,
		NewTier:  tierHint,
		Upgraded: upgraded,
	}, nil
}

// projectTier returns the tier the member would hold after the delta, and
// whether that is an upgrade over the stored ledger. Only upgrades produce a
// hint; steady or falling tiers leave the note's tier field empty.
func (s *Service) projectTier(ctx context.Context, p program.Program, address string, points int64) (string, bool) {
	var current uint64
	currentTier := xpdomain.DetermineTier(p.Tiers, 0)
	if ledger, err := s.ledgers.GetLedger(ctx, p.ID, address); err == nil {
		current = ledger.Total
		currentTier = ledger.Tier
	}

	next := current
	if points >= 0 {
		next += uint64(points)
	} else if loss := uint64(-points); loss >= next {
		next = 0
	} else {
		next -= loss
	}

	projected := xpdomain.DetermineTier(p.Tiers, next)
	if projected != currentTier && tierRank(p.Tiers, projected) > tierRank(p.Tiers, currentTier) {
		return projected, true
	}
	return "", false
}

func tierRank(tiers []program.Tier, name string) int {
	for i, tier := range tiers {
		if tier.Name == name {
			return i
		}
	}
	return -1
}

// Ledger returns the member's XP ledger. With refresh false it serves the
// cached or stored ledger, falling back to a full sync when none exists yet;
// with refresh true it always replays from the chain.
func (s *Service) Ledger(ctx context.Context, programID, address string, refresh bool) (xpdomain.Ledger, error) {
	if !refresh {
		if s.cache != nil {
			if ledger, ok := s.cache.GetLedger(ctx, programID, address); ok {
				return ledger, nil
			}
		}
		ledger, err := s.ledgers.GetLedger(ctx, programID, address)
		if err == nil {
			if s.cache != nil {
				s.cache.SetLedger(ctx, ledger)
			}
			return ledger, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return xpdomain.Ledger{}, err
		}
	}
	return s.SyncMember(ctx, programID, address)
}

// SyncMember replays the member's XP transactions from the indexer into a
// fresh ledger and persists it. Malformed and foreign notes are skipped.
func (s *Service) SyncMember(ctx context.Context, programID, address string) (xpdomain.Ledger, error) {
	if s.source == nil {
		return xpdomain.Ledger{}, fmt.Errorf("indexer access not configured")
	}

	p, err := s.programs.GetProgram(ctx, programID)
	if err != nil {
		return xpdomain.Ledger{}, fmt.Errorf("program validation failed: %w", err)
	}
	if _, err := s.members.GetMemberByAddress(ctx, programID, address); err != nil {
		return xpdomain.Ledger{}, fmt.Errorf("member validation failed: %w", err)
	}

	txns, err := s.source.XPTransactions(ctx, address, 0)
	if err != nil {
		metrics.CountSyncRun(false)
		return xpdomain.Ledger{}, fmt.Errorf("fetch xp transactions: %w", err)
	}

	deltas := make([]xpdomain.Delta, 0, len(txns))
	for _, txn := range txns {
		if s.trustedSender != "" && !strings.EqualFold(txn.Sender, s.trustedSender) {
			continue
		}
		note, ok := chain.DecodeXPNote(txn.Note)
		if !ok || note.Program != p.AssetID {
			continue
		}
		deltas = append(deltas, xpdomain.Delta{
			TxID:   txn.ID,
			Round:  txn.ConfirmedRound,
			Time:   time.Unix(txn.RoundTime, 0).UTC(),
			Points: note.Points,
			Reason: note.Reason,
		})
	}

	ledger := xpdomain.Replay(programID, address, p.Tiers, deltas)
	ledger.SyncedAt = time.Now().UTC()

	if err := s.ledgers.UpsertLedger(ctx, ledger); err != nil {
		metrics.CountSyncRun(false)
		return xpdomain.Ledger{}, err
	}
	if s.cache != nil {
		s.cache.SetLedger(ctx, ledger)
	}
	metrics.CountSyncRun(true)

	s.log.WithField("program_id", programID).
		WithField("address", address).
		WithField("total", ledger.Total).
		WithField("tier", ledger.Tier).
		Debug("ledger synced")
	return ledger, nil
}

// SyncProgram replays every enrolled member of a program. Errors are logged
// and counted, not fatal; the first error is returned after the pass.
func (s *Service) SyncProgram(ctx context.Context, programID string) error {
	members, err := s.members.ListMembers(ctx, programID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, m := range members {
		if _, err := s.SyncMember(ctx, programID, m.Address); err != nil {
			s.log.WithError(err).
				WithField("program_id", programID).
				WithField("address", m.Address).
				Warn("member sync failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Leaderboard lists every synced ledger for a program.
func (s *Service) Leaderboard(ctx context.Context, programID string) ([]xpdomain.Ledger, error) {
	if _, err := s.programs.GetProgram(ctx, programID); err != nil {
		return nil, fmt.Errorf("program validation failed: %w", err)
	}
	return s.ledgers.ListLedgers(ctx, programID)
}

// Programs lists all programs; used by the background syncer.
func (s *Service) Programs(ctx context.Context) ([]program.Program, error) {
	return s.programs.ListPrograms(ctx, "")
}
