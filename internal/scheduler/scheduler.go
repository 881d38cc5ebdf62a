package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tazhate/familycal/config"
	"github.com/tazhate/familycal/internal/domain"
	"github.com/tazhate/familycal/internal/log"
	"github.com/tazhate/familycal/internal/service"
)

type Resolver interface {
	ResolveOccurrences(ctx context.Context, familyID string, from, to time.Time) ([]*domain.Occurrence, error)
}

type Syncer interface {
	IsConfigured() bool
	SyncFamily(ctx context.Context, familyID string) (*service.SyncResult, error)
}

type FamilySource interface {
	ListFamilyIDs(ctx context.Context) ([]string, error)
}

type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	families FamilySource
	resolver Resolver
	syncer   Syncer
	now      func() time.Time
}

func New(cfg *config.Config, families FamilySource, resolver Resolver, syncer Syncer) *Scheduler {
	location := cfg.Timezone

	c := cron.New(cron.WithLocation(location))

	return &Scheduler{
		cron:     c,
		cfg:      cfg,
		families: families,
		resolver: resolver,
		syncer:   syncer,
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Прогрев: материализуем производные события на горизонт и синхронизируем CalDAV
	if _, err := s.cron.AddFunc(s.cfg.WarmupCron, func() { s.Warmup(ctx) }); err != nil {
		return fmt.Errorf("add warmup: %w", err)
	}

	s.cron.Start()
	log.Info("scheduler started", "tz", s.cfg.Timezone.String(), "warmup", s.cfg.WarmupCron)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("scheduler stopped")
}

// Warmup resolves [today, today+horizon] for every family, creating missing
// derived events, then republishes the families' series when CalDAV is
// configured. One failing family does not stop the others.
func (s *Scheduler) Warmup(ctx context.Context) {
	families, err := s.familyIDs(ctx)
	if err != nil {
		log.Error("list families", err)
		return
	}

	from := s.now().In(s.cfg.Timezone)
	to := from.AddDate(0, 0, s.cfg.WarmupHorizonDays)

	for _, fam := range families {
		if ctx.Err() != nil {
			return
		}

		occs, err := s.resolver.ResolveOccurrences(ctx, fam, from, to)
		if err != nil {
			log.Error("warmup resolve", err, "family", fam)
			continue
		}
		log.Info("warmup resolved", "family", fam, "occurrences", len(occs))

		if s.syncer == nil || !s.syncer.IsConfigured() {
			continue
		}
		res, err := s.syncer.SyncFamily(ctx, fam)
		if err != nil {
			log.Error("caldav sync", err, "family", fam)
			continue
		}
		log.Info("caldav synced", "family", fam, "published", res.Published, "errors", len(res.Errors))
	}
}

func (s *Scheduler) familyIDs(ctx context.Context) ([]string, error) {
	if len(s.cfg.FamilyIDs) > 0 {
		return s.cfg.FamilyIDs, nil
	}
	return s.families.ListFamilyIDs(ctx)
}
