// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/member"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/pass"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/xp"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ProgramStore = (*Store)(nil)
var _ storage.PassStore = (*Store)(nil)
var _ storage.MemberStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return err
}

// --- ProgramStore -----------------------------------------------------------

func (s *Store) CreateProgram(ctx context.Context, p program.Program) (program.Program, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	tiersJSON, err := json.Marshal(p.Tiers)
	if err != nil {
		return program.Program{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO loyalty_programs
			(id, owner_id, name, unit_name, description, asset_id, mint_txid, metadata_url, image_cid, tiers, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.OwnerID, p.Name, p.UnitName, p.Description, p.AssetID, p.MintTxID, p.MetadataURL, p.ImageCID, tiersJSON, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return program.Program{}, err
	}
	return p, nil
}

func (s *Store) UpdateProgram(ctx context.Context, p program.Program) (program.Program, error) {
	existing, err := s.GetProgram(ctx, p.ID)
	if err != nil {
		return program.Program{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	tiersJSON, err := json.Marshal(p.Tiers)
	if err != nil {
		return program.Program{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE loyalty_programs
		SET owner_id = $2, name = $3, unit_name = $4, description = $5, asset_id = $6,
			mint_txid = $7, metadata_url = $8, image_cid = $9, tiers = $10, status = $11, updated_at = $12
		WHERE id = $1
	`, p.ID, p.OwnerID, p.Name, p.UnitName, p.Description, p.AssetID, p.MintTxID, p.MetadataURL, p.ImageCID, tiersJSON, p.Status, p.UpdatedAt)
	if err != nil {
		return program.Program{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return program.Program{}, fmt.Errorf("program %s: %w", p.ID, storage.ErrNotFound)
	}
	return p, nil
}

const programColumns = `id, owner_id, name, unit_name, description, asset_id, mint_txid, metadata_url, image_cid, tiers, status, created_at, updated_at`

func scanProgram(row interface{ Scan(...interface{}) error }) (program.Program, error) {
	var (
		p         program.Program
		tiersRaw  []byte
		statusRaw string
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.UnitName, &p.Description, &p.AssetID,
		&p.MintTxID, &p.MetadataURL, &p.ImageCID, &tiersRaw, &statusRaw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return program.Program{}, err
	}
	if len(tiersRaw) > 0 {
		if err := json.Unmarshal(tiersRaw, &p.Tiers); err != nil {
			return program.Program{}, fmt.Errorf("decode tiers for %s: %w", p.ID, err)
		}
	}
	p.Status = program.Status(statusRaw)
	return p, nil
}

func (s *Store) GetProgram(ctx context.Context, id string) (program.Program, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+programColumns+` FROM loyalty_programs WHERE id = $1
	`, id)
	p, err := scanProgram(row)
	if err != nil {
		return program.Program{}, notFound(err, "program "+id)
	}
	return p, nil
}

func (s *Store) GetProgramByAsset(ctx context.Context, assetID uint64) (program.Program, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+programColumns+` FROM loyalty_programs WHERE asset_id = $1
	`, assetID)
	p, err := scanProgram(row)
	if err != nil {
		return program.Program{}, notFound(err, fmt.Sprintf("program asset %d", assetID))
	}
	return p, nil
}

func (s *Store) ListPrograms(ctx context.Context, ownerID string) ([]program.Program, error) {
	query := `SELECT ` + programColumns + ` FROM loyalty_programs`
	args := []interface{}{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []program.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- PassStore --------------------------------------------------------------

func (s *Store) CreatePass(ctx context.Context, p pass.Pass) (pass.Pass, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.IssuedAt.IsZero() {
		p.IssuedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loyalty_passes
			(id, program_id, asset_id, member_address, status, mint_txid, claim_txid, revoke_txid, issued_at, claimed_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.ProgramID, p.AssetID, p.MemberAddress, p.Status, p.MintTxID, p.ClaimTxID, p.RevokeTxID,
		p.IssuedAt, nullTime(p.ClaimedAt), nullTime(p.RevokedAt))
	if err != nil {
		return pass.Pass{}, err
	}
	return p, nil
}

func (s *Store) UpdatePass(ctx context.Context, p pass.Pass) (pass.Pass, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE loyalty_passes
		SET status = $2, mint_txid = $3, claim_txid = $4, revoke_txid = $5, claimed_at = $6, revoked_at = $7
		WHERE id = $1
	`, p.ID, p.Status, p.MintTxID, p.ClaimTxID, p.RevokeTxID, nullTime(p.ClaimedAt), nullTime(p.RevokedAt))
	if err != nil {
		return pass.Pass{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return pass.Pass{}, fmt.Errorf("pass %s: %w", p.ID, storage.ErrNotFound)
	}
	return p, nil
}

const passColumns = `id, program_id, asset_id, member_address, status, mint_txid, claim_txid, revoke_txid, issued_at, claimed_at, revoked_at`

func scanPass(row interface{ Scan(...interface{}) error }) (pass.Pass, error) {
	var (
		p         pass.Pass
		statusRaw string
		claimed   sql.NullTime
		revoked   sql.NullTime
	)
	err := row.Scan(&p.ID, &p.ProgramID, &p.AssetID, &p.MemberAddress, &statusRaw,
		&p.MintTxID, &p.ClaimTxID, &p.RevokeTxID, &p.IssuedAt, &claimed, &revoked)
	if err != nil {
		return pass.Pass{}, err
	}
	p.Status = pass.Status(statusRaw)
	if claimed.Valid {
		p.ClaimedAt = claimed.Time
	}
	if revoked.Valid {
		p.RevokedAt = revoked.Time
	}
	return p, nil
}

func (s *Store) GetPass(ctx context.Context, id string) (pass.Pass, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+passColumns+` FROM loyalty_passes WHERE id = $1
	`, id)
	p, err := scanPass(row)
	if err != nil {
		return pass.Pass{}, notFound(err, "pass "+id)
	}
	return p, nil
}

func (s *Store) ListPassesByProgram(ctx context.Context, programID string) ([]pass.Pass, error) {
	return s.listPasses(ctx, `SELECT `+passColumns+` FROM loyalty_passes WHERE program_id = $1 ORDER BY issued_at`, programID)
}

func (s *Store) ListPassesByMember(ctx context.Context, address string) ([]pass.Pass, error) {
	return s.listPasses(ctx, `SELECT `+passColumns+` FROM loyalty_passes WHERE lower(member_address) = lower($1) ORDER BY issued_at`, address)
}

func (s *Store) listPasses(ctx context.Context, query string, arg interface{}) ([]pass.Pass, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pass.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- MemberStore ------------------------------------------------------------

func (s *Store) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.EnrolledAt = now
	m.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loyalty_members (id, program_id, address, display_name, profile_id, enrolled_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.ProgramID, m.Address, m.DisplayName, m.ProfileID, m.EnrolledAt, m.UpdatedAt)
	if err != nil {
		return member.Member{}, err
	}
	return m, nil
}

func (s *Store) UpdateMember(ctx context.Context, m member.Member) (member.Member, error) {
	m.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE loyalty_members
		SET display_name = $2, profile_id = $3, updated_at = $4
		WHERE id = $1
	`, m.ID, m.DisplayName, m.ProfileID, m.UpdatedAt)
	if err != nil {
		return member.Member{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return member.Member{}, fmt.Errorf("member %s: %w", m.ID, storage.ErrNotFound)
	}
	return m, nil
}

const memberColumns = `id, program_id, address, display_name, profile_id, enrolled_at, updated_at`

func scanMember(row interface{ Scan(...interface{}) error }) (member.Member, error) {
	var m member.Member
	err := row.Scan(&m.ID, &m.ProgramID, &m.Address, &m.DisplayName, &m.ProfileID, &m.EnrolledAt, &m.UpdatedAt)
	if err != nil {
		return member.Member{}, err
	}
	return m, nil
}

func (s *Store) GetMember(ctx context.Context, id string) (member.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM loyalty_members WHERE id = $1
	`, id)
	m, err := scanMember(row)
	if err != nil {
		return member.Member{}, notFound(err, "member "+id)
	}
	return m, nil
}

func (s *Store) GetMemberByAddress(ctx context.Context, programID, address string) (member.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM loyalty_members
		WHERE program_id = $1 AND lower(address) = lower($2)
	`, programID, address)
	m, err := scanMember(row)
	if err != nil {
		return member.Member{}, notFound(err, fmt.Sprintf("member %s in program %s", address, programID))
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, programID string) ([]member.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+` FROM loyalty_members WHERE program_id = $1 ORDER BY enrolled_at
	`, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) UpsertLedger(ctx context.Context, l xp.Ledger) error {
	if l.ProgramID == "" || l.Address == "" {
		return fmt.Errorf("ledger requires program id and address")
	}
	if l.SyncedAt.IsZero() {
		l.SyncedAt = time.Now().UTC()
	}

	eventsJSON, err := json.Marshal(l.Events)
	if err != nil {
		return err
	}
	changesJSON, err := json.Marshal(l.TierChanges)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO xp_ledgers (program_id, address, total, tier, last_round, events, tier_changes, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (program_id, address) DO UPDATE
		SET total = EXCLUDED.total, tier = EXCLUDED.tier, last_round = EXCLUDED.last_round,
			events = EXCLUDED.events, tier_changes = EXCLUDED.tier_changes, synced_at = EXCLUDED.synced_at
	`, l.ProgramID, l.Address, l.Total, l.Tier, l.LastRound, eventsJSON, changesJSON, l.SyncedAt)
	return err
}

const ledgerColumns = `program_id, address, total, tier, last_round, events, tier_changes, synced_at`

func scanLedger(row interface{ Scan(...interface{}) error }) (xp.Ledger, error) {
	var (
		l          xp.Ledger
		eventsRaw  []byte
		changesRaw []byte
	)
	err := row.Scan(&l.ProgramID, &l.Address, &l.Total, &l.Tier, &l.LastRound, &eventsRaw, &changesRaw, &l.SyncedAt)
	if err != nil {
		return xp.Ledger{}, err
	}
	if len(eventsRaw) > 0 {
		if err := json.Unmarshal(eventsRaw, &l.Events); err != nil {
			return xp.Ledger{}, fmt.Errorf("decode events: %w", err)
		}
	}
	if len(changesRaw) > 0 {
		if err := json.Unmarshal(changesRaw, &l.TierChanges); err != nil {
			return xp.Ledger{}, fmt.Errorf("decode tier changes: %w", err)
		}
	}
	return l, nil
}

func (s *Store) GetLedger(ctx context.Context, programID, address string) (xp.Ledger, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+` FROM xp_ledgers
		WHERE program_id = $1 AND lower(address) = lower($2)
	`, programID, address)
	l, err := scanLedger(row)
	if err != nil {
		return xp.Ledger{}, notFound(err, fmt.Sprintf("ledger %s/%s", programID, address))
	}
	return l, nil
}

func (s *Store) ListLedgers(ctx context.Context, programID string) ([]xp.Ledger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM xp_ledgers WHERE program_id = $1 ORDER BY address
	`, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []xp.Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
