package app

import (
	"context"
	"fmt"
	"time"

	memberssvc "github.com/Emrys-Org/gaius-loyalty/internal/app/services/members"
	passessvc "github.com/Emrys-Org/gaius-loyalty/internal/app/services/passes"
	programssvc "github.com/Emrys-Org/gaius-loyalty/internal/app/services/programs"
	xpsvc "github.com/Emrys-Org/gaius-loyalty/internal/app/services/xp"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage/memory"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/system"
	"github.com/Emrys-Org/gaius-loyalty/internal/chain"
	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Programs storage.ProgramStore
	Members  storage.MemberStore
	Passes   storage.PassStore
	Ledgers  storage.LedgerStore
}

// ChainWriter is the on-chain write surface, satisfied by *chain.Writer. It
// also answers account holdings through algod so opt-in checks see freshly
// confirmed state.
type ChainWriter interface {
	MintAsset(ctx context.Context, assetName, unitName, assetURL, metadataHash string) (chain.MintResult, error)
	TransferAsset(ctx context.Context, assetID uint64, recipient string) (string, uint64, error)
	ClawbackAsset(ctx context.Context, assetID uint64, holder string) (string, uint64, error)
	SubmitXPAward(ctx context.Context, member string, note []byte) (string, uint64, error)
	AccountHolding(ctx context.Context, address string, assetID uint64) (bool, uint64, error)
}

// ChainReader is the on-chain read surface, satisfied by *chain.Indexer.
type ChainReader interface {
	AccountHolding(ctx context.Context, address string, assetID uint64) (bool, uint64, error)
	XPTransactions(ctx context.Context, address string, minRound uint64) ([]chain.Transaction, error)
}

// Options carries the optional chain, cache, and backend dependencies. A nil
// Writer disables write operations (minting, transfers, awards); a nil
// Indexer disables ledger syncing; a nil Cache disables caching. AwardSender
// restricts ledger replay to XP notes sent by that address.
type Options struct {
	Writer        ChainWriter
	Indexer       ChainReader
	Cache         xpsvc.Cache
	Profiles      memberssvc.ProfileDirectory
	Artwork       programssvc.ArtworkStore
	AwardSender   string
	SyncInterval  time.Duration
	ReconcileSpec string
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Programs *programssvc.Service
	Members  *memberssvc.Service
	Passes   *passessvc.Service
	XP       *xpsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Programs == nil {
		stores.Programs = mem
	}
	if stores.Members == nil {
		stores.Members = mem
	}
	if stores.Passes == nil {
		stores.Passes = mem
	}
	if stores.Ledgers == nil {
		stores.Ledgers = mem
	}

	var minter programssvc.Minter
	var passWriter passessvc.ChainWriter
	var awarder xpsvc.Awarder
	if opts.Writer != nil {
		minter = opts.Writer
		passWriter = opts.Writer
		awarder = opts.Writer
	}
	var holdings passessvc.HoldingChecker
	var source xpsvc.LedgerSource
	if opts.Indexer != nil {
		holdings = opts.Indexer
		source = opts.Indexer
	}
	if opts.Writer != nil {
		// algod confirms opt-ins rounds before the indexer indexes them;
		// prefer it for claim checks whenever a writer is configured.
		holdings = opts.Writer
	}

	manager := system.NewManager()

	programService := programssvc.New(stores.Programs, minter, opts.Artwork, log)
	memberService := memberssvc.New(stores.Programs, stores.Members, opts.Profiles, log)
	passService := passessvc.New(stores.Programs, stores.Members, stores.Passes, passWriter, holdings, log)
	xpService := xpsvc.New(stores.Programs, stores.Members, stores.Ledgers, awarder, source, opts.Cache, log)
	if opts.AwardSender != "" {
		xpService.TrustSender(opts.AwardSender)
	}

	for _, name := range []string{"programs", "members", "passes"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	if source != nil {
		syncer := xpsvc.NewSyncer(xpService, opts.SyncInterval, log)
		if err := manager.Register(syncer); err != nil {
			return nil, fmt.Errorf("register %s: %w", syncer.Name(), err)
		}
		reconciler := xpsvc.NewReconciler(xpService, opts.ReconcileSpec, log)
		if err := manager.Register(reconciler); err != nil {
			return nil, fmt.Errorf("register %s: %w", reconciler.Name(), err)
		}
	} else {
		log.Warn("indexer not configured; ledger sync disabled")
	}

	return &Application{
		manager:  manager,
		log:      log,
		Programs: programService,
		Members:  memberService,
		Passes:   passService,
		XP:       xpService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
