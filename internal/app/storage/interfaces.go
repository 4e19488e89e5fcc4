package storage

import (
	"context"
	"errors"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/member"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/pass"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/xp"
)

// ErrNotFound is returned when a record does not exist. Implementations wrap
// it so callers can test with errors.Is.
var ErrNotFound = errors.New("record not found")

// ProgramStore persists loyalty programs.
type ProgramStore interface {
	CreateProgram(ctx context.Context, p program.Program) (program.Program, error)
	UpdateProgram(ctx context.Context, p program.Program) (program.Program, error)
	GetProgram(ctx context.Context, id string) (program.Program, error)
	GetProgramByAsset(ctx context.Context, assetID uint64) (program.Program, error)
	ListPrograms(ctx context.Context, ownerID string) ([]program.Program, error)
}

// PassStore persists loyalty passes.
type PassStore interface {
	CreatePass(ctx context.Context, p pass.Pass) (pass.Pass, error)
	UpdatePass(ctx context.Context, p pass.Pass) (pass.Pass, error)
	GetPass(ctx context.Context, id string) (pass.Pass, error)
	ListPassesByProgram(ctx context.Context, programID string) ([]pass.Pass, error)
	ListPassesByMember(ctx context.Context, address string) ([]pass.Pass, error)
}

// MemberStore persists program enrollments.
type MemberStore interface {
	CreateMember(ctx context.Context, m member.Member) (member.Member, error)
	UpdateMember(ctx context.Context, m member.Member) (member.Member, error)
	GetMember(ctx context.Context, id string) (member.Member, error)
	GetMemberByAddress(ctx context.Context, programID, address string) (member.Member, error)
	ListMembers(ctx context.Context, programID string) ([]member.Member, error)
}

// LedgerStore persists reconstructed XP ledgers. Ledgers are derived state;
// the chain remains the source of truth and any ledger may be rebuilt from a
// full replay.
type LedgerStore interface {
	UpsertLedger(ctx context.Context, l xp.Ledger) error
	GetLedger(ctx context.Context, programID, address string) (xp.Ledger, error)
	ListLedgers(ctx context.Context, programID string) ([]xp.Ledger, error)
}
