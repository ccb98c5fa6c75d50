package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/internal/store"
	cfgpkg "github.com/astocklabs/memberd/pkg/config"
	"github.com/astocklabs/memberd/pkg/logctx"
	"github.com/astocklabs/memberd/pkg/metrics"
	"github.com/astocklabs/memberd/pkg/tool"
	"github.com/astocklabs/memberd/pkg/types"
)

// system_configs keys for runtime overrides of the reward amounts.
const (
	ConfigKeyRegistrationReward = "referral_registration_reward"
	ConfigKeyRewardWeekly       = "referral_reward_weekly"
	ConfigKeyRewardMonthly      = "referral_reward_monthly"
	ConfigKeyRewardQuarterly    = "referral_reward_quarterly"
)

const shareCodeRetries = 10

type Service struct {
	cfg *cfgpkg.Config
	st  store.Store
	log *zap.SugaredLogger
}

func NewService(cfg *cfgpkg.Config, st store.Store, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, st: st, log: log}
}

// GetOrCreateShareCode returns the user's share code, minting one on first
// use. Codes never change once assigned; a generation collision with another
// user's code just retries with a fresh one.
func (s *Service) GetOrCreateShareCode(ctx context.Context, userID string) (string, error) {
	user, err := s.st.Users().Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	if user.ShareCode != nil && *user.ShareCode != "" {
		return *user.ShareCode, nil
	}

	for i := 0; i < shareCodeRetries; i++ {
		code := tool.GenerateShareCode()
		err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
			u, err := tx.Users().GetForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			if u.ShareCode != nil && *u.ShareCode != "" {
				code = *u.ShareCode
				return nil
			}
			u.ShareCode = &code
			return tx.Users().Save(ctx, u)
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to assign share code: %w", err)
		}
		return code, nil
	}
	return "", fmt.Errorf("failed to generate unique share code after %d attempts", shareCodeRetries)
}

// ResolveShareCode maps a share code to its owner. Codes of disabled or
// deleted accounts no longer resolve.
func (s *Service) ResolveShareCode(ctx context.Context, code string) (*models.User, error) {
	user, err := s.st.Users().GetByShareCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownReferrer
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve share code: %w", err)
	}
	if !user.IsActive() {
		return nil, ErrUnknownReferrer
	}
	return user, nil
}

// RecordReferral binds referrer to the referred user and grants the
// registration reward, both exactly once. The bind and the reward commit
// atomically; a duplicate call fails with ErrDuplicateReferral and changes
// nothing.
func (s *Service) RecordReferral(ctx context.Context, referredUserID, shareCode string) (*models.ReferralRecord, error) {
	referrer, err := s.ResolveShareCode(ctx, shareCode)
	if err != nil {
		return nil, err
	}
	if referrer.ID == referredUserID {
		return nil, ErrSelfReferral
	}

	var record *models.ReferralRecord
	err = s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		referred, err := tx.Users().GetForUpdate(ctx, referredUserID)
		if err != nil {
			return fmt.Errorf("failed to load referred user: %w", err)
		}
		if referred.ReferrerID != nil {
			return ErrDuplicateReferral
		}

		record = &models.ReferralRecord{
			ID:             tool.GenerateUUIDV7(),
			ReferrerID:     referrer.ID,
			ReferredUserID: referredUserID,
		}
		if err := tx.Referrals().Create(ctx, record); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateReferral
			}
			return fmt.Errorf("failed to create referral record: %w", err)
		}

		referred.ReferrerID = &referrer.ID
		if err := tx.Users().Save(ctx, referred); err != nil {
			return fmt.Errorf("failed to bind referrer: %w", err)
		}

		_, err = s.grantRegistrationRewardTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("referral recorded",
		"referrer_id", referrer.ID, "referred_user_id", referredUserID)
	return record, nil
}

// GrantRegistrationReward grants the one-time registration reward for an
// existing referral record. Normally RecordReferral already did this; the
// standalone form serves retries and backfills, and is a no-op once the flag
// is set.
func (s *Service) GrantRegistrationReward(ctx context.Context, referrerID, referredUserID string) (int, error) {
	var granted int
	err := s.st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		record, err := tx.Referrals().ByPair(ctx, referrerID, referredUserID, true)
		if err != nil {
			return fmt.Errorf("failed to load referral record: %w", err)
		}
		granted, err = s.grantRegistrationRewardTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return 0, err
	}
	return granted, nil
}

// grantRegistrationRewardTx flips registration_reward_given and credits the
// referrer, exactly once per record. Callers hold the record's row lock.
func (s *Service) grantRegistrationRewardTx(ctx context.Context, tx store.Store, record *models.ReferralRecord) (int, error) {
	if record.RegistrationRewardGiven {
		return 0, nil
	}

	reward, err := tx.Configs().GetInt(ctx, ConfigKeyRegistrationReward, s.cfg.Referral.RegistrationReward)
	if err != nil {
		return 0, fmt.Errorf("failed to read registration reward: %w", err)
	}

	record.RegistrationRewardGiven = true
	if err := tx.Referrals().Save(ctx, record); err != nil {
		return 0, fmt.Errorf("failed to mark registration reward: %w", err)
	}
	if reward > 0 {
		if _, err := tx.Users().AdjustBonus(ctx, record.ReferrerID, reward); err != nil {
			return 0, fmt.Errorf("failed to grant registration reward: %w", err)
		}
	}

	metrics.RewardsGranted.WithLabelValues("registration").Inc()
	return reward, nil
}

// GrantSubscriptionRewardTx grants the one-time first-subscription reward to
// the referred user's referrer, inside the caller's settlement transaction.
// Returns the amount granted, 0 when nothing applied (no referrer, or the
// reward was already given). The subscription_reward_given flag is flipped
// under a row lock, so concurrent settlements grant at most once.
func (s *Service) GrantSubscriptionRewardTx(ctx context.Context, tx store.Store, referredUserID string, tier types.PlanTier, now time.Time) (int, error) {
	record, err := tx.Referrals().ByReferred(ctx, referredUserID, true)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load referral record: %w", err)
	}
	if record.SubscriptionRewardGiven {
		return 0, nil
	}

	reward, err := s.rewardForTier(ctx, tx, tier)
	if err != nil {
		return 0, err
	}

	record.SubscriptionRewardGiven = true
	record.SubscriptionPlanType = &tier
	if err := tx.Referrals().Save(ctx, record); err != nil {
		return 0, fmt.Errorf("failed to mark subscription reward: %w", err)
	}
	if reward > 0 {
		if _, err := tx.Users().AdjustBonus(ctx, record.ReferrerID, reward); err != nil {
			return 0, fmt.Errorf("failed to grant subscription reward: %w", err)
		}
	}

	metrics.RewardsGranted.WithLabelValues("subscription").Inc()
	logctx.FromCtx(ctx, s.log).Infow("subscription reward granted",
		"referrer_id", record.ReferrerID, "referred_user_id", referredUserID,
		"tier", tier, "reward", reward)
	return reward, nil
}

// rewardForTier maps a plan tier to its reward amount. Yearly plans share
// the quarterly bucket: the reward ladder tops out there.
func (s *Service) rewardForTier(ctx context.Context, st store.Store, tier types.PlanTier) (int, error) {
	switch tier {
	case types.PlanTierWeekly:
		return st.Configs().GetInt(ctx, ConfigKeyRewardWeekly, s.cfg.Referral.RewardWeekly)
	case types.PlanTierMonthly:
		return st.Configs().GetInt(ctx, ConfigKeyRewardMonthly, s.cfg.Referral.RewardMonthly)
	case types.PlanTierQuarterly, types.PlanTierYearly:
		return st.Configs().GetInt(ctx, ConfigKeyRewardQuarterly, s.cfg.Referral.RewardQuarterly)
	default:
		return 0, nil
	}
}
