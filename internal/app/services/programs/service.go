// Package programs manages loyalty program definitions and their on-chain
// assets.
package programs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/metrics"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage"
	"github.com/Emrys-Org/gaius-loyalty/internal/chain"
	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

// Minter creates supply-1/decimals-0 assets on chain.
type Minter interface {
	MintAsset(ctx context.Context, assetName, unitName, assetURL, metadataHash string) (chain.MintResult, error)
}

// ArtworkStore persists uploaded program artwork and returns its public URL.
type ArtworkStore interface {
	UploadArtwork(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Service manages loyalty programs.
type Service struct {
	store   storage.ProgramStore
	minter  Minter
	artwork ArtworkStore
	log     *logger.Logger
}

// New constructs a program service. A nil minter disables on-chain minting;
// Create then fails until chain access is configured. A nil artwork store
// disables raw artwork uploads; callers must then pass a pinned image CID.
func New(store storage.ProgramStore, minter Minter, artwork ArtworkStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("programs")
	}
	return &Service{
		store:   store,
		minter:  minter,
		artwork: artwork,
		log:     log,
	}
}

// CreateParams are the inputs for creating a program. Either a pinned
// ImageCID or raw Artwork bytes may carry the image; ImageCID wins when both
// are set.
type CreateParams struct {
	OwnerID     string
	Name        string
	UnitName    string
	Description string
	ImageCID    string
	Artwork     []byte
	ArtworkType string
	Tiers       []program.Tier
}

// Create validates the program, mints its ASA, and persists the record.
func (s *Service) Create(ctx context.Context, params CreateParams) (program.Program, error) {
	params.OwnerID = strings.TrimSpace(params.OwnerID)
	params.Name = strings.TrimSpace(params.Name)
	params.UnitName = strings.TrimSpace(params.UnitName)

	if params.OwnerID == "" {
		return program.Program{}, fmt.Errorf("owner_id is required")
	}
	if params.Name == "" {
		return program.Program{}, fmt.Errorf("name is required")
	}
	if params.UnitName == "" {
		params.UnitName = defaultUnitName(params.Name)
	}
	if len(params.UnitName) > 8 {
		return program.Program{}, fmt.Errorf("unit_name must be at most 8 characters")
	}
	if len(params.Tiers) == 0 {
		params.Tiers = program.DefaultTiers()
	}
	if err := program.ValidateTiers(params.Tiers); err != nil {
		return program.Program{}, fmt.Errorf("invalid tiers: %w", err)
	}
	if s.minter == nil {
		return program.Program{}, fmt.Errorf("chain access not configured")
	}

	metadataURL := ""
	switch {
	case params.ImageCID != "":
		metadataURL = "ipfs://" + strings.TrimPrefix(params.ImageCID, "ipfs://")
	case len(params.Artwork) > 0:
		url, err := s.uploadArtwork(ctx, params)
		if err != nil {
			return program.Program{}, err
		}
		metadataURL = url
	}

	return s.mintAndPersist(ctx, params, metadataURL)
}

func (s *Service) uploadArtwork(ctx context.Context, params CreateParams) (string, error) {
	if s.artwork == nil {
		return "", fmt.Errorf("artwork storage not configured")
	}
	name := uuid.NewString() + artworkExtension(params.ArtworkType)
	url, err := s.artwork.UploadArtwork(ctx, name, params.Artwork, params.ArtworkType)
	if err != nil {
		return "", fmt.Errorf("upload artwork: %w", err)
	}
	s.log.WithField("object", name).Debug("program artwork uploaded")
	return url, nil
}

func (s *Service) mintAndPersist(ctx context.Context, params CreateParams, metadataURL string) (program.Program, error) {
	minted, err := s.minter.MintAsset(ctx, params.Name, params.UnitName, metadataURL, "")
	if err != nil {
		return program.Program{}, fmt.Errorf("mint program asset: %w", err)
	}

	p := program.Program{
		OwnerID:     params.OwnerID,
		Name:        params.Name,
		UnitName:    params.UnitName,
		Description: strings.TrimSpace(params.Description),
		AssetID:     minted.AssetID,
		MintTxID:    minted.TxID,
		MetadataURL: metadataURL,
		ImageCID:    strings.TrimPrefix(params.ImageCID, "ipfs://"),
		Tiers:       params.Tiers,
		Status:      program.StatusActive,
	}
	p, err = s.store.CreateProgram(ctx, p)
	if err != nil {
		return program.Program{}, err
	}
	metrics.CountProgramMinted()

	s.log.WithField("program_id", p.ID).
		WithField("asset_id", p.AssetID).
		WithField("owner_id", p.OwnerID).
		Info("loyalty program created")
	return p, nil
}

// Get fetches a program by id.
func (s *Service) Get(ctx context.Context, id string) (program.Program, error) {
	return s.store.GetProgram(ctx, id)
}

// GetByAsset fetches a program by its ASA id.
func (s *Service) GetByAsset(ctx context.Context, assetID uint64) (program.Program, error) {
	return s.store.GetProgramByAsset(ctx, assetID)
}

// List returns programs, optionally filtered by owner.
func (s *Service) List(ctx context.Context, ownerID string) ([]program.Program, error) {
	return s.store.ListPrograms(ctx, ownerID)
}

// Archive marks a program archived. Archived programs accept no new members,
// passes, or XP awards; existing ledgers remain readable.
func (s *Service) Archive(ctx context.Context, id string) (program.Program, error) {
	p, err := s.store.GetProgram(ctx, id)
	if err != nil {
		return program.Program{}, err
	}
	if p.Status == program.StatusArchived {
		return p, nil
	}
	p.Status = program.StatusArchived
	p, err = s.store.UpdateProgram(ctx, p)
	if err != nil {
		return program.Program{}, err
	}
	s.log.WithField("program_id", p.ID).Info("loyalty program archived")
	return p, nil
}

func artworkExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ""
	}
}

func defaultUnitName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, name)
	if cleaned == "" {
		cleaned = "GAIUS"
	}
	if len(cleaned) > 8 {
		cleaned = cleaned[:8]
	}
	return cleaned
}
