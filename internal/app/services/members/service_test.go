package members

import (
	"context"
	"errors"
	"testing"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage/memory"
)

// The Algorand zero address; valid encoding, never funded.
const testAddr = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAY5HFKQ"

func seedProgram(t *testing.T, store *memory.Store, status program.Status) program.Program {
	t.Helper()
	p, err := store.CreateProgram(context.Background(), program.Program{
		OwnerID: "owner",
		Name:    "Club",
		Tiers:   program.DefaultTiers(),
		Status:  status,
	})
	if err != nil {
		t.Fatalf("seed program: %v", err)
	}
	return p
}

func TestEnroll(t *testing.T) {
	store := memory.New()
	p := seedProgram(t, store, program.StatusActive)
	svc := New(store, store, nil, nil)

	m, err := svc.Enroll(context.Background(), p.ID, testAddr, "Ada", "profile-1")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if m.Address != testAddr || m.DisplayName != "Ada" {
		t.Fatalf("unexpected member: %#v", m)
	}

	if _, err := svc.Enroll(context.Background(), p.ID, testAddr, "", ""); err == nil {
		t.Fatal("expected duplicate enrollment error")
	}

	got, err := svc.GetByAddress(context.Background(), p.ID, testAddr)
	if err != nil || got.ID != m.ID {
		t.Fatalf("get by address: %v %#v", err, got)
	}
}

func TestEnroll_InvalidAddress(t *testing.T) {
	store := memory.New()
	p := seedProgram(t, store, program.StatusActive)
	svc := New(store, store, nil, nil)

	for _, addr := range []string{"", "not-an-address", "SHORT"} {
		if _, err := svc.Enroll(context.Background(), p.ID, addr, "", ""); err == nil {
			t.Errorf("address %q: expected error", addr)
		}
	}
}

func TestEnroll_ArchivedProgram(t *testing.T) {
	store := memory.New()
	p := seedProgram(t, store, program.StatusArchived)
	svc := New(store, store, nil, nil)

	if _, err := svc.Enroll(context.Background(), p.ID, testAddr, "", ""); err == nil {
		t.Fatal("expected archived program rejection")
	}
}

type fakeDirectory struct {
	profiles map[string]Profile
	err      error
}

func (f *fakeDirectory) GetProfile(_ context.Context, userID string) (Profile, error) {
	if f.err != nil {
		return Profile{}, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return Profile{}, errors.New("profile not found")
	}
	return p, nil
}

func TestEnroll_ResolvesProfile(t *testing.T) {
	store := memory.New()
	p := seedProgram(t, store, program.StatusActive)
	dir := &fakeDirectory{profiles: map[string]Profile{
		"profile-7": {ID: "profile-7", DisplayName: "Grace Hopper", Wallet: testAddr},
	}}
	svc := New(store, store, dir, nil)

	m, err := svc.Enroll(context.Background(), p.ID, testAddr, "", "profile-7")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if m.DisplayName != "Grace Hopper" {
		t.Fatalf("expected display name from profile, got %q", m.DisplayName)
	}
	if m.ProfileID != "profile-7" {
		t.Fatalf("profile id not kept: %#v", m)
	}
}

func TestEnroll_CallerNameWinsOverProfile(t *testing.T) {
	store := memory.New()
	p := seedProgram(t, store, program.StatusActive)
	dir := &fakeDirectory{profiles: map[string]Profile{
		"profile-7": {ID: "profile-7", DisplayName: "Grace Hopper"},
	}}
	svc := New(store, store, dir, nil)

	m, err := svc.Enroll(context.Background(), p.ID, testAddr, "Ada", "profile-7")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if m.DisplayName != "Ada" {
		t.Fatalf("caller display name overwritten: %q", m.DisplayName)
	}
}

func TestEnroll_ProfileBackendDownStillEnrolls(t *testing.T) {
	store := memory.New()
	p := seedProgram(t, store, program.StatusActive)
	svc := New(store, store, &fakeDirectory{err: errors.New("backend down")}, nil)

	m, err := svc.Enroll(context.Background(), p.ID, testAddr, "", "profile-7")
	if err != nil {
		t.Fatalf("enroll should survive profile outage: %v", err)
	}
	if m.ProfileID != "profile-7" || m.DisplayName != "" {
		t.Fatalf("unexpected member: %#v", m)
	}
}

func TestUpdateProfile(t *testing.T) {
	store := memory.New()
	p := seedProgram(t, store, program.StatusActive)
	svc := New(store, store, nil, nil)

	m, err := svc.Enroll(context.Background(), p.ID, testAddr, "Ada", "")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	updated, err := svc.UpdateProfile(context.Background(), m.ID, "Grace", "profile-9")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DisplayName != "Grace" || updated.ProfileID != "profile-9" {
		t.Fatalf("update not applied: %#v", updated)
	}
}
