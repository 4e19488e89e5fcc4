package xp

import (
	"context"
	"sync"
	"time"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/system"
	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

var _ system.Service = (*Syncer)(nil)

// Syncer periodically replays every enrolled member's ledger so API reads
// stay close to chain state without forcing a refresh.
type Syncer struct {
	service  *Service
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSyncer creates a lifecycle-managed ledger syncer.
func NewSyncer(service *Service, interval time.Duration, log *logger.Logger) *Syncer {
	if log == nil {
		log = logger.NewDefault("xp-syncer")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		service:  service,
		log:      log,
		interval: interval,
	}
}

func (s *Syncer) Name() string { return "xp-syncer" }

func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.Info("xp syncer started")
	return nil
}

func (s *Syncer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("xp syncer stopped")
	return nil
}

func (s *Syncer) tick(ctx context.Context) {
	if s.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	programs, err := s.service.Programs(ctx)
	if err != nil {
		s.log.WithError(err).Warn("xp syncer tick failed")
		return
	}
	for _, p := range programs {
		if err := s.service.SyncProgram(ctx, p.ID); err != nil {
			s.log.WithError(err).
				WithField("program_id", p.ID).
				Warn("program sync incomplete")
		}
	}
}
