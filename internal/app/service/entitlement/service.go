package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/internal/store"
	cfgpkg "github.com/astocklabs/memberd/pkg/config"
	"github.com/astocklabs/memberd/pkg/logctx"
	"github.com/astocklabs/memberd/pkg/metrics"
	"github.com/astocklabs/memberd/pkg/types"
)

// system_configs keys for the free tier. The config file values act as
// defaults when no row exists.
const (
	ConfigKeyFreeDailyLimit     = "free_daily_limit"
	ConfigKeyFreeWatchlistLimit = "free_watchlist_limit"
)

// Limits is a user's effective entitlement at one instant: the limits of the
// single best-covering active membership, or the free tier.
type Limits struct {
	Level          types.PlanTier `json:"level"`
	DailyLimit     int            `json:"daily_limit"`
	WatchlistLimit int            `json:"watchlist_limit"`
	ExpireAt       *time.Time     `json:"expire_at"`
	DaysRemaining  int            `json:"days_remaining"`
}

// ConsumeResult reports one successful quota consumption.
type ConsumeResult struct {
	Kind types.UsageKind `json:"kind"`
	// Count is today's post-increment counter; 0 when the consumption was
	// covered by bonus balance instead.
	Count int `json:"count"`
	// UsedBonus is set when the daily limit was exhausted and one unit of
	// referral bonus balance covered the call.
	UsedBonus bool `json:"used_bonus"`
}

type Service struct {
	cfg *cfgpkg.Config
	st  store.Store
	log *zap.SugaredLogger
}

func NewService(cfg *cfgpkg.Config, st store.Store, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, st: st, log: log}
}

// GrantMembershipTx grants a membership window inside the caller's
// transaction. When the user already has an active membership the new window
// starts at its expire time (sequential stacking): paying early extends
// coverage instead of overlapping it.
func (s *Service) GrantMembershipTx(ctx context.Context, tx store.Store, userID string, plan *models.MembershipPlan, orderID *string, now time.Time) (*models.UserMembership, error) {
	if plan == nil || plan.DurationDays <= 0 {
		return nil, fmt.Errorf("invalid plan for grant")
	}

	startAt := now
	existing, err := tx.Memberships().BestActive(ctx, userID, now, true)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing membership: %w", err)
	}
	if existing != nil && existing.ExpireAt.After(startAt) {
		startAt = existing.ExpireAt
	}

	m := &models.UserMembership{
		UserID:             userID,
		PlanID:             plan.ID,
		OrderID:            orderID,
		StartAt:            startAt,
		ExpireAt:           startAt.AddDate(0, 0, plan.DurationDays),
		Status:             types.MembershipStatusActive,
		DailyAnalysisLimit: plan.DailyAnalysisLimit,
		WatchlistLimit:     plan.WatchlistLimit,
	}
	if err := tx.Memberships().Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	// Keep the redundant level fields on users in sync.
	user, err := tx.Users().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user for grant: %w", err)
	}
	user.MembershipLevel = plan.Tier()
	user.MembershipExpire = &m.ExpireAt
	if err := tx.Users().Save(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user level: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("membership granted",
		"user_id", userID, "plan_id", plan.ID, "start_at", m.StartAt, "expire_at", m.ExpireAt)
	return m, nil
}

// EffectiveLimits returns the user's current limits: the active membership
// row with the greatest expire_at, or the free tier defaults.
func (s *Service) EffectiveLimits(ctx context.Context, userID string, now time.Time) (*Limits, error) {
	return s.effectiveLimits(ctx, s.st, userID, now)
}

func (s *Service) effectiveLimits(ctx context.Context, st store.Store, userID string, now time.Time) (*Limits, error) {
	best, err := st.Memberships().BestActive(ctx, userID, now, false)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to query membership: %w", err)
	}
	if best != nil {
		// Fall back to the window length when the plan row is gone.
		level := types.TierForDuration(int(best.ExpireAt.Sub(best.StartAt).Hours() / 24))
		if plan, err := st.Plans().Get(ctx, best.PlanID); err == nil {
			level = plan.Tier()
		}
		expireAt := best.ExpireAt
		return &Limits{
			Level:          level,
			DailyLimit:     best.DailyAnalysisLimit,
			WatchlistLimit: best.WatchlistLimit,
			ExpireAt:       &expireAt,
			DaysRemaining:  best.DaysRemaining(now),
		}, nil
	}

	dailyLimit, err := st.Configs().GetInt(ctx, ConfigKeyFreeDailyLimit, s.cfg.Entitlement.FreeDailyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read free daily limit: %w", err)
	}
	watchlistLimit, err := st.Configs().GetInt(ctx, ConfigKeyFreeWatchlistLimit, s.cfg.Entitlement.FreeWatchlistLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read free watchlist limit: %w", err)
	}
	return &Limits{
		Level:          types.PlanTierFree,
		DailyLimit:     dailyLimit,
		WatchlistLimit: watchlistLimit,
	}, nil
}

// CheckAndConsumeDailyQuota consumes one unit of today's quota for kind.
// A limit of -1 short-circuits every check. When the daily limit is
// exhausted and the bonus-balance policy is on, one unit of the user's
// referral bonus balance covers an analysis call instead of failing.
func (s *Service) CheckAndConsumeDailyQuota(ctx context.Context, userID string, now time.Time, kind types.UsageKind) (*ConsumeResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown usage kind: %s", kind)
	}

	var result *ConsumeResult
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		limits, err := s.effectiveLimits(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		limit := limits.DailyLimit
		if kind == types.UsageKindWatchlist {
			limit = limits.WatchlistLimit
		}

		applied, count, err := tx.Usage().IncrementWithLimit(ctx, userID, now, kind, limit)
		if err != nil {
			return fmt.Errorf("failed to increment usage: %w", err)
		}
		if applied {
			result = &ConsumeResult{Kind: kind, Count: count}
			return s.recordAnalysis(ctx, tx, userID, kind)
		}

		// Bonus balance only covers analysis calls; it is an allowance of
		// extra analyses, not watchlist slots.
		if s.cfg.Entitlement.UseBonusBalance && kind == types.UsageKindAnalysis {
			ok, err := tx.Users().AdjustBonus(ctx, userID, -1)
			if err != nil {
				return fmt.Errorf("failed to consume bonus balance: %w", err)
			}
			if ok {
				result = &ConsumeResult{Kind: kind, UsedBonus: true}
				return s.recordAnalysis(ctx, tx, userID, kind)
			}
		}
		return ErrQuotaExceeded
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			metrics.QuotaRejections.WithLabelValues(string(kind)).Inc()
		}
		return nil, err
	}
	return result, nil
}

// recordAnalysis bumps the user's lifetime analysis counter.
func (s *Service) recordAnalysis(ctx context.Context, tx store.Store, userID string, kind types.UsageKind) error {
	if kind != types.UsageKindAnalysis {
		return nil
	}
	user, err := tx.Users().GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	user.TotalAnalysisCount++
	if err := tx.Users().Save(ctx, user); err != nil {
		return fmt.Errorf("failed to update analysis counter: %w", err)
	}
	return nil
}

// ExpireStaleMemberships moves active rows past their expire_at to expired
// and resets the redundant user level when nothing else covers the user.
// Safe to run concurrently with request traffic; rows only move forward.
func (s *Service) ExpireStaleMemberships(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		stale, err := tx.Memberships().StaleActive(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to list stale memberships: %w", err)
		}

		for _, m := range stale {
			m.Status = types.MembershipStatusExpired
			if err := tx.Memberships().Save(ctx, m); err != nil {
				return fmt.Errorf("failed to expire membership: %w", err)
			}
			count++
		}

		touched := lo.Uniq(lo.Map(stale, func(m *models.UserMembership, _ int) string { return m.UserID }))
		for _, userID := range touched {
			best, err := tx.Memberships().BestActive(ctx, userID, now, false)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to re-check membership: %w", err)
			}
			user, err := tx.Users().GetForUpdate(ctx, userID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to load user: %w", err)
			}
			if best == nil {
				user.MembershipLevel = types.PlanTierFree
				user.MembershipExpire = nil
			} else {
				expireAt := best.ExpireAt
				user.MembershipExpire = &expireAt
			}
			if err := tx.Users().Save(ctx, user); err != nil {
				return fmt.Errorf("failed to update user level: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Infow("expired stale memberships", "count", count)
	}
	return count, nil
}
