package passes

import (
	"context"
	"fmt"
	"testing"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/member"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/pass"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage/memory"
	"github.com/Emrys-Org/gaius-loyalty/internal/chain"
)

const testAddr = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAY5HFKQ"

type fakeChain struct {
	nextAsset uint64
	optedIn   map[uint64]bool
	transfers int
	clawbacks int
	failMint  bool
}

func (f *fakeChain) MintAsset(context.Context, string, string, string, string) (chain.MintResult, error) {
	if f.failMint {
		return chain.MintResult{}, fmt.Errorf("mint refused")
	}
	f.nextAsset++
	return chain.MintResult{AssetID: f.nextAsset, TxID: fmt.Sprintf("MINT%d", f.nextAsset)}, nil
}

func (f *fakeChain) TransferAsset(_ context.Context, assetID uint64, _ string) (string, uint64, error) {
	f.transfers++
	return fmt.Sprintf("XFER%d", assetID), 10, nil
}

func (f *fakeChain) ClawbackAsset(_ context.Context, assetID uint64, _ string) (string, uint64, error) {
	f.clawbacks++
	return fmt.Sprintf("CLAW%d", assetID), 11, nil
}

func (f *fakeChain) AccountHolding(_ context.Context, _ string, assetID uint64) (bool, uint64, error) {
	return f.optedIn[assetID], 0, nil
}

func setup(t *testing.T) (*memory.Store, *fakeChain, *Service, program.Program) {
	t.Helper()
	store := memory.New()
	fc := &fakeChain{optedIn: make(map[uint64]bool)}
	svc := New(store, store, store, fc, fc, nil)

	p, err := store.CreateProgram(context.Background(), program.Program{
		Name: "Club", UnitName: "CLUB", Status: program.StatusActive, Tiers: program.DefaultTiers(),
	})
	if err != nil {
		t.Fatalf("seed program: %v", err)
	}
	if _, err := store.CreateMember(context.Background(), member.Member{ProgramID: p.ID, Address: testAddr}); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return store, fc, svc, p
}

func TestIssueAndClaim(t *testing.T) {
	_, fc, svc, p := setup(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, p.ID, testAddr)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Status != pass.StatusIssued || issued.AssetID == 0 {
		t.Fatalf("unexpected pass: %#v", issued)
	}

	// Claim before opt-in must be refused.
	if _, err := svc.Claim(ctx, issued.ID); err == nil {
		t.Fatal("expected opt-in rejection")
	}

	fc.optedIn[issued.AssetID] = true
	claimed, err := svc.Claim(ctx, issued.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != pass.StatusClaimed || claimed.ClaimTxID == "" || claimed.ClaimedAt.IsZero() {
		t.Fatalf("claim state: %#v", claimed)
	}
	if fc.transfers != 1 {
		t.Fatalf("transfers = %d, want 1", fc.transfers)
	}

	// Claiming twice must fail.
	if _, err := svc.Claim(ctx, issued.ID); err == nil {
		t.Fatal("expected double-claim rejection")
	}
}

func TestIssue_OnePassPerProgram(t *testing.T) {
	_, _, svc, p := setup(t)
	ctx := context.Background()

	if _, err := svc.Issue(ctx, p.ID, testAddr); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Issue(ctx, p.ID, testAddr); err == nil {
		t.Fatal("expected duplicate pass rejection")
	}
}

func TestIssue_RequiresEnrollment(t *testing.T) {
	store, fc, _, p := setup(t)
	svc := New(store, store, store, fc, fc, nil)

	other := "SOMEOTHERADDRESS"
	if _, err := svc.Issue(context.Background(), p.ID, other); err == nil {
		t.Fatal("expected enrollment rejection")
	}
}

func TestRevoke(t *testing.T) {
	_, fc, svc, p := setup(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, p.ID, testAddr)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Unclaimed pass: no clawback transaction needed.
	revoked, err := svc.Revoke(ctx, issued.ID)
	if err != nil || revoked.Status != pass.StatusRevoked {
		t.Fatalf("revoke unclaimed: %v %#v", err, revoked)
	}
	if fc.clawbacks != 0 {
		t.Fatalf("unexpected clawback for unclaimed pass")
	}

	// Revoked passes free the member to receive a new one.
	second, err := svc.Issue(ctx, p.ID, testAddr)
	if err != nil {
		t.Fatalf("reissue after revoke: %v", err)
	}
	fc.optedIn[second.AssetID] = true
	if _, err := svc.Claim(ctx, second.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	revoked, err = svc.Revoke(ctx, second.ID)
	if err != nil || revoked.Status != pass.StatusRevoked {
		t.Fatalf("revoke claimed: %v %#v", err, revoked)
	}
	if fc.clawbacks != 1 {
		t.Fatalf("clawbacks = %d, want 1", fc.clawbacks)
	}
	if revoked.RevokeTxID == "" {
		t.Fatal("revoke txid not recorded")
	}
}
