package xp

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/system"
	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

var _ system.Service = (*Reconciler)(nil)

// Reconciler runs a scheduled full replay of every program. It backstops the
// interval syncer: a ledger corrupted or missed between ticks is rebuilt on
// the next scheduled pass, since replay always starts from round zero.
type Reconciler struct {
	service *Service
	log     *logger.Logger
	spec    string
	cron    *cron.Cron
}

// NewReconciler creates a cron-scheduled reconciler. The spec uses cron
// syntax, e.g. "@every 1h" or "0 3 * * *".
func NewReconciler(service *Service, spec string, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("xp-reconciler")
	}
	if spec == "" {
		spec = "@every 1h"
	}
	return &Reconciler{
		service: service,
		log:     log,
		spec:    spec,
	}
}

func (r *Reconciler) Name() string { return "xp-reconciler" }

func (r *Reconciler) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(r.spec, func() { r.run(ctx) })
	if err != nil {
		return err
	}
	r.cron = c
	c.Start()
	r.log.WithField("spec", r.spec).Info("xp reconciler scheduled")
	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	r.log.Info("xp reconciler stopped")
	return nil
}

func (r *Reconciler) run(ctx context.Context) {
	programs, err := r.service.Programs(ctx)
	if err != nil {
		r.log.WithError(err).Warn("reconcile pass failed")
		return
	}
	for _, p := range programs {
		if err := r.service.SyncProgram(ctx, p.ID); err != nil {
			r.log.WithError(err).
				WithField("program_id", p.ID).
				Warn("reconcile incomplete")
		}
	}
	r.log.WithField("programs", len(programs)).Info("reconcile pass complete")
}
