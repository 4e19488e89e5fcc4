package xp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/member"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	xpdomain "github.com/Emrys-Org/gaius-loyalty/internal/app/domain/xp"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage/memory"
	"github.com/Emrys-Org/gaius-loyalty/internal/chain"
)

const testAddress = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAY5HFKQ"

type fakeAwarder struct {
	notes [][]byte
	txid  string
	round uint64
	err   error
}

func (f *fakeAwarder) SubmitXPAward(_ context.Context, _ string, note []byte) (string, uint64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	f.notes = append(f.notes, note)
	return f.txid, f.round, nil
}

type fakeSource struct {
	txns []chain.Transaction
	err  error
}

func (f *fakeSource) XPTransactions(context.Context, string, uint64) ([]chain.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.txns, nil
}

type fakeCache struct {
	ledgers     map[string]xpdomain.Ledger
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{ledgers: make(map[string]xpdomain.Ledger)}
}

func (f *fakeCache) GetLedger(_ context.Context, programID, address string) (xpdomain.Ledger, bool) {
	l, ok := f.ledgers[programID+"/"+address]
	return l, ok
}

func (f *fakeCache) SetLedger(_ context.Context, l xpdomain.Ledger) {
	f.ledgers[l.ProgramID+"/"+l.Address] = l
}

func (f *fakeCache) Invalidate(_ context.Context, programID, address string) {
	delete(f.ledgers, programID+"/"+address)
	f.invalidated = append(f.invalidated, programID+"/"+address)
}

func setupProgram(t *testing.T, store *memory.Store) program.Program {
	t.Helper()
	p, err := store.CreateProgram(context.Background(), program.Program{
		OwnerID: "owner-1",
		Name:    "Corner Cafe Rewards",
		AssetID: 777,
		Tiers:   program.DefaultTiers(),
		Status:  program.StatusActive,
	})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	if _, err := store.CreateMember(context.Background(), member.Member{
		ProgramID: p.ID,
		Address:   testAddress,
	}); err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	return p
}

func xpTxn(id string, round uint64, assetID uint64, points int64) chain.Transaction {
	note, err := chain.EncodeXPNote(chain.XPNote{Program: assetID, Points: points})
	if err != nil {
		panic(err)
	}
	return chain.Transaction{
		ID:             id,
		Type:           "pay",
		ConfirmedRound: round,
		RoundTime:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Note:           note,
	}
}

func TestAward(t *testing.T) {
	store := memory.New()
	p := setupProgram(t, store)
	awarder := &fakeAwarder{txid: "TX1", round: 42}
	cache := newFakeCache()
	svc := New(store, store, store, awarder, nil, cache, nil)

	res, err := svc.Award(context.Background(), AwardParams{
		ProgramID: p.ID,
		Address:   testAddress,
		Points:    250,
		Reason:    "first purchase",
	})
	if err != nil {
		t.Fatalf("Award: %v", err)
	}
	if res.TxID != "TX1" || res.Round != 42 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(awarder.notes) != 1 {
		t.Fatalf("expected 1 submitted note, got %d", len(awarder.notes))
	}
	note, ok := chain.DecodeXPNote(awarder.notes[0])
	if !ok {
		t.Fatal("submitted note does not decode")
	}
	if note.Program != p.AssetID || note.Points != 250 || note.Reason != "first purchase" {
		t.Fatalf("unexpected note %+v", note)
	}
	if len(cache.invalidated) != 1 {
		t.Fatalf("expected cache invalidation, got %v", cache.invalidated)
	}
}

func TestAwardValidation(t *testing.T) {
	store := memory.New()
	p := setupProgram(t, store)
	svc := New(store, store, store, &fakeAwarder{txid: "TX"}, nil, nil, nil)

	if _, err := svc.Award(context.Background(), AwardParams{ProgramID: p.ID, Address: testAddress}); err == nil {
		t.Fatal("expected error for zero points")
	}
	if _, err := svc.Award(context.Background(), AwardParams{ProgramID: "missing", Address: testAddress, Points: 10}); err == nil {
		t.Fatal("expected error for unknown program")
	}
	if _, err := svc.Award(context.Background(), AwardParams{ProgramID: p.ID, Address: "STRANGER", Points: 10}); err == nil {
		t.Fatal("expected error for unenrolled member")
	}

	p.Status = program.StatusArchived
	if _, err := store.UpdateProgram(context.Background(), p); err != nil {
		t.Fatalf("UpdateProgram: %v", err)
	}
	if _, err := svc.Award(context.Background(), AwardParams{ProgramID: p.ID, Address: testAddress, Points: 10}); err == nil {
		t.Fatal("expected error for archived program")
	}
}

func TestAwardTierHint(t *testing.T) {
	store := memory.New()
	p := setupProgram(t, store)
	if err := store.UpsertLedger(context.Background(), xpdomain.Ledger{
		ProgramID: p.ID,
		Address:   testAddress,
		Total:     400,
		Tier:      "Bronze",
	}); err != nil {
		t.Fatalf("UpsertLedger: %v", err)
	}
	awarder := &fakeAwarder{txid: "TX2", round: 50}
	svc := New(store, store, store, awarder, nil, nil, nil)

	res, err := svc.Award(context.Background(), AwardParams{ProgramID: p.ID, Address: testAddress, Points: 200})
	if err != nil {
		t.Fatalf("Award: %v", err)
	}
	if !res.Upgraded || res.NewTier != "Silver" {
		t.Fatalf("expected Silver upgrade hint, got %+v", res)
	}
	note, _ := chain.DecodeXPNote(awarder.notes[0])
	if note.Tier != "Silver" {
		t.Fatalf("expected tier hint in note, got %q", note.Tier)
	}

	// Within the same tier the hint stays empty.
	res, err = svc.Award(context.Background(), AwardParams{ProgramID: p.ID, Address: testAddress, Points: 10})
	if err != nil {
		t.Fatalf("Award: %v", err)
	}
	if res.Upgraded || res.NewTier != "" {
		t.Fatalf("expected no upgrade hint, got %+v", res)
	}
}

func TestSyncMemberReplaysLedger(t *testing.T) {
	store := memory.New()
	p := setupProgram(t, store)
	source := &fakeSource{txns: []chain.Transaction{
		xpTxn("A", 10, p.AssetID, 300),
		xpTxn("B", 20, p.AssetID, 300),
		xpTxn("C", 30, 999, 5000),                        // different program's note
		{ID: "D", ConfirmedRound: 40, Note: []byte("x")}, // malformed note
		xpTxn("E", 50, p.AssetID, -100),
	}}
	cache := newFakeCache()
	svc := New(store, store, store, nil, source, cache, nil)

	ledger, err := svc.SyncMember(context.Background(), p.ID, testAddress)
	if err != nil {
		t.Fatalf("SyncMember: %v", err)
	}
	if ledger.Total != 500 {
		t.Fatalf("Total = %d, want 500", ledger.Total)
	}
	if ledger.Tier != "Silver" {
		t.Fatalf("Tier = %q, want Silver", ledger.Tier)
	}
	if len(ledger.Events) != 3 {
		t.Fatalf("Events = %d, want 3", len(ledger.Events))
	}
	if ledger.LastRound != 50 {
		t.Fatalf("LastRound = %d, want 50", ledger.LastRound)
	}

	stored, err := store.GetLedger(context.Background(), p.ID, testAddress)
	if err != nil {
		t.Fatalf("GetLedger: %v", err)
	}
	if stored.Total != 500 {
		t.Fatalf("stored Total = %d, want 500", stored.Total)
	}
	if _, ok := cache.GetLedger(context.Background(), p.ID, testAddress); !ok {
		t.Fatal("expected ledger in cache after sync")
	}
}

func TestSyncMemberSkipsUntrustedSenders(t *testing.T) {
	store := memory.New()
	p := setupProgram(t, store)

	const operator = "7777777777777777777777777777777777777777777777777774MSJUVU"
	awarded := xpTxn("A", 10, p.AssetID, 300)
	awarded.Sender = operator
	selfMinted := xpTxn("B", 20, p.AssetID, 9000)
	selfMinted.Sender = testAddress

	source := &fakeSource{txns: []chain.Transaction{awarded, selfMinted}}
	svc := New(store, store, store, nil, source, nil, nil)
	svc.TrustSender(operator)

	ledger, err := svc.SyncMember(context.Background(), p.ID, testAddress)
	if err != nil {
		t.Fatalf("SyncMember: %v", err)
	}
	if ledger.Total != 300 {
		t.Fatalf("Total = %d, want 300; self-sent note must not count", ledger.Total)
	}
	if len(ledger.Events) != 1 || ledger.Events[0].TxID != "A" {
		t.Fatalf("unexpected events: %#v", ledger.Events)
	}

	// Without a trusted sender every well-formed note still counts.
	open := New(store, store, store, nil, source, nil, nil)
	ledger, err = open.SyncMember(context.Background(), p.ID, testAddress)
	if err != nil {
		t.Fatalf("SyncMember: %v", err)
	}
	if ledger.Total != 9300 {
		t.Fatalf("Total = %d, want 9300 without sender restriction", ledger.Total)
	}
}

func TestLedgerServesStoredWithoutRefresh(t *testing.T) {
	store := memory.New()
	p := setupProgram(t, store)
	if err := store.UpsertLedger(context.Background(), xpdomain.Ledger{
		ProgramID: p.ID,
		Address:   testAddress,
		Total:     123,
		Tier:      "Bronze",
	}); err != nil {
		t.Fatalf("UpsertLedger: %v", err)
	}
	source := &fakeSource{err: errors.New("indexer down")}
	svc := New(store, store, store, nil, source, nil, nil)

	ledger, err := svc.Ledger(context.Background(), p.ID, testAddress, false)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if ledger.Total != 123 {
		t.Fatalf("Total = %d, want 123", ledger.Total)
	}

	// refresh forces a replay, which hits the broken source.
	if _, err := svc.Ledger(context.Background(), p.ID, testAddress, true); err == nil {
		t.Fatal("expected error from forced refresh")
	}
}

func TestLedgerFallsBackToSync(t *testing.T) {
	store := memory.New()
	p := setupProgram(t, store)
	source := &fakeSource{txns: []chain.Transaction{xpTxn("A", 5, p.AssetID, 100)}}
	svc := New(store, store, store, nil, source, nil, nil)

	ledger, err := svc.Ledger(context.Background(), p.ID, testAddress, false)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if ledger.Total != 100 {
		t.Fatalf("Total = %d, want 100", ledger.Total)
	}
}

func TestSyncProgram(t *testing.T) {
	store := memory.New()
	p := setupProgram(t, store)
	second := "7777777777777777777777777777777777777777777777777774MSJUVU"
	if _, err := store.CreateMember(context.Background(), member.Member{
		ProgramID: p.ID,
		Address:   second,
	}); err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	source := &fakeSource{txns: []chain.Transaction{xpTxn("A", 5, p.AssetID, 100)}}
	svc := New(store, store, store, nil, source, nil, nil)

	if err := svc.SyncProgram(context.Background(), p.ID); err != nil {
		t.Fatalf("SyncProgram: %v", err)
	}
	ledgers, err := store.ListLedgers(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ListLedgers: %v", err)
	}
	if len(ledgers) != 2 {
		t.Fatalf("expected 2 ledgers, got %d", len(ledgers))
	}
}
