// Package members manages program enrollments.
package members

import (
	"context"
	"fmt"
	"strings"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/member"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage"
	"github.com/Emrys-Org/gaius-loyalty/internal/chain"
	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

// Profile is the auth-backend projection of a member's account.
type Profile struct {
	ID          string
	DisplayName string
	Wallet      string
	AvatarURL   string
}

// ProfileDirectory resolves auth user ids to their stored profiles.
type ProfileDirectory interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
}

// Service manages member enrollments.
type Service struct {
	programs storage.ProgramStore
	members  storage.MemberStore
	profiles ProfileDirectory
	log      *logger.Logger
}

// New constructs a member service. A nil profile directory disables profile
// enrichment; enrollments then keep whatever display name the caller sent.
func New(programs storage.ProgramStore, members storage.MemberStore, profiles ProfileDirectory, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("members")
	}
	return &Service{
		programs: programs,
		members:  members,
		profiles: profiles,
		log:      log,
	}
}

// Enroll registers a wallet address in a program.
func (s *Service) Enroll(ctx context.Context, programID, address, displayName, profileID string) (member.Member, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return member.Member{}, fmt.Errorf("address is required")
	}
	if !chain.ValidAddress(address) {
		return member.Member{}, fmt.Errorf("invalid Algorand address %q", address)
	}

	p, err := s.programs.GetProgram(ctx, programID)
	if err != nil {
		return member.Member{}, fmt.Errorf("program validation failed: %w", err)
	}
	if p.Status != program.StatusActive {
		return member.Member{}, fmt.Errorf("program %s is not active", programID)
	}

	m := member.Member{
		ProgramID:   programID,
		Address:     address,
		DisplayName: strings.TrimSpace(displayName),
		ProfileID:   strings.TrimSpace(profileID),
	}
	s.enrichFromProfile(ctx, &m)
	m, err = s.members.CreateMember(ctx, m)
	if err != nil {
		return member.Member{}, err
	}

	s.log.WithField("program_id", programID).
		WithField("address", address).
		Info("member enrolled")
	return m, nil
}

// enrichFromProfile fills missing member fields from the linked auth profile.
// Lookups are best effort; a profile backend outage must not block
// enrollment.
func (s *Service) enrichFromProfile(ctx context.Context, m *member.Member) {
	if s.profiles == nil || m.ProfileID == "" {
		return
	}
	profile, err := s.profiles.GetProfile(ctx, m.ProfileID)
	if err != nil {
		s.log.WithError(err).
			WithField("profile_id", m.ProfileID).
			Warn("profile lookup failed; enrolling without profile data")
		return
	}
	if m.DisplayName == "" {
		m.DisplayName = strings.TrimSpace(profile.DisplayName)
	}
	if profile.Wallet != "" && !strings.EqualFold(profile.Wallet, m.Address) {
		s.log.WithField("profile_id", m.ProfileID).
			WithField("address", m.Address).
			Warn("enrollment address differs from profile wallet")
	}
}

// Get fetches a member by id.
func (s *Service) Get(ctx context.Context, id string) (member.Member, error) {
	return s.members.GetMember(ctx, id)
}

// GetByAddress fetches a member by program and wallet address.
func (s *Service) GetByAddress(ctx context.Context, programID, address string) (member.Member, error) {
	return s.members.GetMemberByAddress(ctx, programID, address)
}

// List returns the members of a program.
func (s *Service) List(ctx context.Context, programID string) ([]member.Member, error) {
	return s.members.ListMembers(ctx, programID)
}

// UpdateProfile updates the mutable member fields.
func (s *Service) UpdateProfile(ctx context.Context, id, displayName, profileID string) (member.Member, error) {
	m, err := s.members.GetMember(ctx, id)
	if err != nil {
		return member.Member{}, err
	}
	if displayName != "" {
		m.DisplayName = strings.TrimSpace(displayName)
	}
	if profileID != "" {
		m.ProfileID = strings.TrimSpace(profileID)
	}
	return s.members.UpdateMember(ctx, m)
}
