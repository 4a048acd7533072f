package loyalty

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// PROGRAM CONFIGURATION
// =============================================================================

// UpsertProgram validates and stores a program. A rejected config leaves the
// stored one untouched. When the tier table changes, every member of the
// program is re-tiered.
func (s *Service) UpsertProgram(ctx context.Context, cfg ProgramConfig) (ProgramConfig, SweepResult, error) {
	if err := cfg.Validate(); err != nil {
		return ProgramConfig{}, SweepResult{}, err
	}

	key := cfg.Key()
	unlock, err := s.locker.Lock(ctx, "program:"+key.String())
	if err != nil {
		return ProgramConfig{}, SweepResult{}, fmt.Errorf("lock program %s: %w", key, err)
	}

	var tiersChanged bool
	for attempt := 1; ; attempt++ {
		existing, err := s.repo.GetProgram(ctx, key)
		switch {
		case errors.Is(err, ErrProgramNotFound):
			cfg.Version = 0
			tiersChanged = true
		case err != nil:
			unlock()
			return ProgramConfig{}, SweepResult{}, err
		default:
			cfg.Version = existing.Version
			tiersChanged = !TiersEqual(existing.Tiers, cfg.Tiers)
		}
		cfg.UpdatedAt = s.now()

		err = s.repo.SaveProgram(ctx, &cfg)
		if errors.Is(err, ErrLedgerConflict) && attempt < s.maxRetries {
			s.metrics.ConflictRetried("program")
			continue
		}
		if err != nil {
			unlock()
			return ProgramConfig{}, SweepResult{}, fmt.Errorf("save program %s: %w", key, err)
		}
		break
	}
	unlock()

	s.logger.Info("loyalty program saved",
		zap.Stringer("program", key),
		zap.Int64("version", cfg.Version),
		zap.Bool("active", cfg.IsActive),
		zap.Bool("tiers_changed", tiersChanged))

	if !tiersChanged {
		return cfg, SweepResult{}, nil
	}
	sweep, err := s.recalculate(ctx, cfg)
	return cfg, sweep, err
}

// ReplaceTiers swaps the tier table of an existing program and re-tiers its members.
func (s *Service) ReplaceTiers(ctx context.Context, key ProgramKey, tiers []Tier) (ProgramConfig, SweepResult, error) {
	if err := ValidateTiers(tiers); err != nil {
		return ProgramConfig{}, SweepResult{}, err
	}
	cfg, err := s.repo.GetProgram(ctx, key)
	if err != nil {
		return ProgramConfig{}, SweepResult{}, err
	}
	cfg.Tiers = tiers
	return s.UpsertProgram(ctx, cfg)
}

// RecalculateTiers re-resolves the tier of every member of a program.
func (s *Service) RecalculateTiers(ctx context.Context, key ProgramKey) (SweepResult, error) {
	cfg, err := s.repo.GetProgram(ctx, key)
	if err != nil {
		return SweepResult{}, err
	}
	return s.recalculate(ctx, cfg)
}

// =============================================================================
// SWEEPS - Bounded parallel work over many members
// =============================================================================

// SweepResult counts the members a sweep visited.
type SweepResult struct {
	Members int
	Changed int // tier changes, or members with points expired
	Failed  int
	Points  int64 // points expired (expiry sweep only)
}

type sweepCounters struct {
	members, changed, failed, points atomic.Int64
}

func (c *sweepCounters) result() SweepResult {
	return SweepResult{
		Members: int(c.members.Load()),
		Changed: int(c.changed.Load()),
		Failed:  int(c.failed.Load()),
		Points:  c.points.Load(),
	}
}

// forEachMember runs fn over keys with at most sweepConcurrency in flight.
// A failing member is logged and counted; only context errors stop the sweep.
func (s *Service) forEachMember(ctx context.Context, sweep string, keys []memberJob, fn func(ctx context.Context, job memberJob) (changed bool, points int64, err error)) (SweepResult, error) {
	start := time.Now()
	defer s.metrics.ObserveSweep(sweep, start)

	var c sweepCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepConcurrency)
	for _, job := range keys {
		job := job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.members.Add(1)
			changed, points, err := fn(gctx, job)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.failed.Add(1)
				s.logger.Error("sweep member failed",
					zap.String("sweep", sweep),
					zap.Stringer("member", job.key),
					zap.Error(err))
				return nil
			}
			if changed {
				c.changed.Add(1)
			}
			c.points.Add(points)
			return nil
		})
	}
	err := g.Wait()

	res := c.result()
	s.logger.Info("sweep finished",
		zap.String("sweep", sweep),
		zap.Int("members", res.Members),
		zap.Int("changed", res.Changed),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", time.Since(start)))
	return res, err
}

type memberJob struct {
	cfg ProgramConfig
	key MemberKey
}

func (s *Service) recalculate(ctx context.Context, cfg ProgramConfig) (SweepResult, error) {
	members, err := s.repo.ListMembers(ctx, cfg.Scope(), cfg.Channel)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list members of %s: %w", cfg.Key(), err)
	}
	jobs := make([]memberJob, len(members))
	for i, m := range members {
		jobs[i] = memberJob{cfg: cfg, key: m.Key}
	}

	return s.forEachMember(ctx, "tier_recalculation", jobs, func(ctx context.Context, job memberJob) (bool, int64, error) {
		var changed bool
		_, err := s.mutate(ctx, job.cfg, job.key, false, func(m *Member, cfg ProgramConfig) ([]Event, bool, error) {
			rec, events := s.retierEvents(m, cfg.Tiers, "tier_table_replaced")
			if rec == nil {
				return nil, true, nil
			}
			changed = true
			return events, false, nil
		})
		return changed, 0, err
	})
}

// ExpireAll runs expiry for every member of every active program.
// Members pooled under one group are visited once.
func (s *Service) ExpireAll(ctx context.Context, asOf time.Time) (SweepResult, error) {
	programs, err := s.repo.ListPrograms(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list programs: %w", err)
	}

	seen := make(map[MemberKey]bool)
	var jobs []memberJob
	for _, cfg := range programs {
		if !cfg.IsActive {
			continue
		}
		members, err := s.repo.ListMembers(ctx, cfg.Scope(), cfg.Channel)
		if err != nil {
			return SweepResult{}, fmt.Errorf("list members of %s: %w", cfg.Key(), err)
		}
		for _, m := range members {
			if seen[m.Key] || !m.IsActive || len(m.Ledger.Due(asOf)) == 0 {
				continue
			}
			seen[m.Key] = true
			jobs = append(jobs, memberJob{cfg: cfg, key: m.Key})
		}
	}

	return s.forEachMember(ctx, "expiration", jobs, func(ctx context.Context, job memberJob) (bool, int64, error) {
		res, err := s.expireMember(ctx, job.cfg, job.key, asOf)
		if err != nil {
			return false, 0, err
		}
		return res.Expired > 0, res.Expired, nil
	})
}
