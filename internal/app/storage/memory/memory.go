// Package memory implements the storage interfaces in process memory. It is
// safe for concurrent use and is primarily intended for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/member"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/pass"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/xp"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces.
type Store struct {
	mu              sync.RWMutex
	nextID          int64
	programs        map[string]program.Program
	programsByAsset map[uint64]string
	passes          map[string]pass.Pass
	members         map[string]member.Member
	ledgers         map[string]xp.Ledger
}

var _ storage.ProgramStore = (*Store)(nil)
var _ storage.PassStore = (*Store)(nil)
var _ storage.MemberStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:          1,
		programs:        make(map[string]program.Program),
		programsByAsset: make(map[uint64]string),
		passes:          make(map[string]pass.Pass),
		members:         make(map[string]member.Member),
		ledgers:         make(map[string]xp.Ledger),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return strconv.FormatInt(id, 10)
}

// idLess orders generated ids numerically so listings keep insertion order
// past nine records; caller-supplied ids fall back to lexicographic order.
func idLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

func ledgerKey(programID, address string) string {
	return programID + "/" + address
}

// ProgramStore implementation -------------------------------------------------

func (s *Store) CreateProgram(_ context.Context, p program.Program) (program.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.programs[p.ID]; exists {
		return program.Program{}, fmt.Errorf("program %s already exists", p.ID)
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.programs[p.ID] = p
	if p.AssetID != 0 {
		s.programsByAsset[p.AssetID] = p.ID
	}
	return p, nil
}

func (s *Store) UpdateProgram(_ context.Context, p program.Program) (program.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.programs[p.ID]
	if !ok {
		return program.Program{}, fmt.Errorf("program %s: %w", p.ID, storage.ErrNotFound)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.programs[p.ID] = p
	if p.AssetID != 0 {
		s.programsByAsset[p.AssetID] = p.ID
	}
	return p, nil
}

func (s *Store) GetProgram(_ context.Context, id string) (program.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programs[id]
	if !ok {
		return program.Program{}, fmt.Errorf("program %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetProgramByAsset(_ context.Context, assetID uint64) (program.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.programsByAsset[assetID]
	if !ok {
		return program.Program{}, fmt.Errorf("program asset %d: %w", assetID, storage.ErrNotFound)
	}
	return s.programs[id], nil
}

func (s *Store) ListPrograms(_ context.Context, ownerID string) ([]program.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]program.Program, 0, len(s.programs))
	for _, p := range s.programs {
		if ownerID != "" && p.OwnerID != ownerID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out, nil
}

// PassStore implementation ----------------------------------------------------

func (s *Store) CreatePass(_ context.Context, p pass.Pass) (pass.Pass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.passes[p.ID]; exists {
		return pass.Pass{}, fmt.Errorf("pass %s already exists", p.ID)
	}
	if p.IssuedAt.IsZero() {
		p.IssuedAt = time.Now().UTC()
	}
	s.passes[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePass(_ context.Context, p pass.Pass) (pass.Pass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.passes[p.ID]; !ok {
		return pass.Pass{}, fmt.Errorf("pass %s: %w", p.ID, storage.ErrNotFound)
	}
	s.passes[p.ID] = p
	return p, nil
}

func (s *Store) GetPass(_ context.Context, id string) (pass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.passes[id]
	if !ok {
		return pass.Pass{}, fmt.Errorf("pass %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListPassesByProgram(_ context.Context, programID string) ([]pass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []pass.Pass
	for _, p := range s.passes {
		if p.ProgramID == programID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out, nil
}

func (s *Store) ListPassesByMember(_ context.Context, address string) ([]pass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []pass.Pass
	for _, p := range s.passes {
		if strings.EqualFold(p.MemberAddress, address) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out, nil
}

// MemberStore implementation --------------------------------------------------

func (s *Store) CreateMember(_ context.Context, m member.Member) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.members {
		if existing.ProgramID == m.ProgramID && strings.EqualFold(existing.Address, m.Address) {
			return member.Member{}, fmt.Errorf("member %s already enrolled in program %s", m.Address, m.ProgramID)
		}
	}
	if m.ID == "" {
		m.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	m.EnrolledAt = now
	m.UpdatedAt = now
	s.members[m.ID] = m
	return m, nil
}

func (s *Store) UpdateMember(_ context.Context, m member.Member) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.members[m.ID]
	if !ok {
		return member.Member{}, fmt.Errorf("member %s: %w", m.ID, storage.ErrNotFound)
	}
	m.EnrolledAt = existing.EnrolledAt
	m.UpdatedAt = time.Now().UTC()
	s.members[m.ID] = m
	return m, nil
}

func (s *Store) GetMember(_ context.Context, id string) (member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return member.Member{}, fmt.Errorf("member %s: %w", id, storage.ErrNotFound)
	}
	return m, nil
}

func (s *Store) GetMemberByAddress(_ context.Context, programID, address string) (member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members {
		if m.ProgramID == programID && strings.EqualFold(m.Address, address) {
			return m, nil
		}
	}
	return member.Member{}, fmt.Errorf("member %s in program %s: %w", address, programID, storage.ErrNotFound)
}

func (s *Store) ListMembers(_ context.Context, programID string) ([]member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []member.Member
	for _, m := range s.members {
		if m.ProgramID == programID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out, nil
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) UpsertLedger(_ context.Context, l xp.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ProgramID == "" || l.Address == "" {
		return fmt.Errorf("ledger requires program id and address")
	}
	if l.SyncedAt.IsZero() {
		l.SyncedAt = time.Now().UTC()
	}
	s.ledgers[ledgerKey(l.ProgramID, l.Address)] = l
	return nil
}

func (s *Store) GetLedger(_ context.Context, programID, address string) (xp.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.ledgers[ledgerKey(programID, address)]
	if !ok {
		return xp.Ledger{}, fmt.Errorf("ledger %s/%s: %w", programID, address, storage.ErrNotFound)
	}
	return l, nil
}

func (s *Store) ListLedgers(_ context.Context, programID string) ([]xp.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []xp.Ledger
	for _, l := range s.ledgers {
		if l.ProgramID == programID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
