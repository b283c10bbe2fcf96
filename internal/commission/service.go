package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/referralpay/ledger/internal/logger"
	"github.com/referralpay/ledger/internal/monitoring"
	"github.com/referralpay/ledger/internal/policy"
)

var hundred = decimal.NewFromInt(100)

type Service struct {
	members  MemberRepository
	policies PolicyProvider
	creditor Creditor
	levels   LevelRecomputer
}

func NewService(members MemberRepository, policies PolicyProvider, creditor Creditor, levels LevelRecomputer) *Service {
	return &Service{members: members, policies: policies, creditor: creditor, levels: levels}
}

// OnPaymentConfirmed handles the qualifying event "member becomes
// payment-confirmed and approved". Safe to retry: counter bumps happen
// only on the confirming call, and every credit carries an idempotency
// key derived from the event, so a re-delivered event is absorbed.
func (s *Service) OnPaymentConfirmed(ctx context.Context, memberID int64) error {
	m, err := s.members.FindMemberByID(ctx, memberID)
	if err != nil {
		return err
	}

	confirmed, ancestors, err := s.members.ConfirmPayment(ctx, memberID)
	if err != nil {
		return err
	}
	for _, id := range ancestors {
		if _, err := s.levels.Recompute(ctx, id); err != nil {
			logger.Log.Error("level recompute failed", zap.Int64("member_id", id), zap.Error(err))
		}
	}

	if err := s.payNewUserBonus(ctx, memberID); err != nil {
		return err
	}
	if m.ReferredBy == nil {
		return nil
	}
	if err := s.payReferrers(ctx, memberID, *m.ReferredBy); err != nil {
		return err
	}
	return s.payThresholdBonuses(ctx, *m.ReferredBy, confirmed)
}

func (s *Service) payNewUserBonus(ctx context.Context, memberID int64) error {
	settings, err := s.policies.GetSettings(ctx)
	if errors.Is(err, policy.ErrConfigurationMissing) {
		return nil
	}
	if err != nil {
		return err
	}
	bonus := settings.RegistrationFee.Mul(settings.NewUserBonusPercent).Div(hundred)
	if !bonus.IsPositive() {
		return nil
	}
	key := fmt.Sprintf("bonus:new-user:%d", memberID)
	_, err = s.creditor.Credit(ctx, memberID, bonus, key, "new user bonus")
	return err
}

// payReferrers credits the direct referrer and, when one exists, the
// referrer's referrer. The chain is never walked deeper than two levels.
func (s *Service) payReferrers(ctx context.Context, newMemberID, directID int64) error {
	rate, err := s.policies.CommissionRateFor(ctx, directID)
	if errors.Is(err, policy.ErrConfigurationMissing) {
		return nil
	}
	if err != nil {
		return err
	}
	if rate.DirectBonus.IsPositive() {
		key := fmt.Sprintf("commission:direct:%d", newMemberID)
		reason := fmt.Sprintf("direct referral commission for member %d", newMemberID)
		if _, err := s.creditor.Credit(ctx, directID, rate.DirectBonus, key, reason); err != nil {
			return err
		}
		monitoring.CommissionsPaid.WithLabelValues("direct").Inc()
	}

	parent, err := s.members.FindMemberByID(ctx, directID)
	if err != nil {
		return err
	}
	if parent.ReferredBy == nil {
		return nil
	}
	indirectID := *parent.ReferredBy
	rate, err = s.policies.CommissionRateFor(ctx, indirectID)
	if errors.Is(err, policy.ErrConfigurationMissing) {
		return nil
	}
	if err != nil {
		return err
	}
	if rate.IndirectBonus.IsPositive() {
		key := fmt.Sprintf("commission:indirect:%d", newMemberID)
		reason := fmt.Sprintf("indirect referral commission for member %d", newMemberID)
		if _, err := s.creditor.Credit(ctx, indirectID, rate.IndirectBonus, key, reason); err != nil {
			return err
		}
		monitoring.CommissionsPaid.WithLabelValues("indirect").Inc()
	}
	return nil
}

// payThresholdBonuses pays each bonus rule the referrer's direct referral
// count has reached. The key carries the threshold, so a rule pays out
// once ever no matter how many times the count is re-evaluated.
func (s *Service) payThresholdBonuses(ctx context.Context, referrerID int64, confirmed bool) error {
	var count int
	var err error
	if confirmed {
		count, err = s.members.IncrementDirectReferrals(ctx, referrerID)
		if err != nil {
			return err
		}
	} else {
		p, err := s.members.FindMemberByID(ctx, referrerID)
		if err != nil {
			return err
		}
		count = p.DirectReferrals
	}

	rules, err := s.policies.ListBonusRules(ctx)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if count < rule.RequiredReferrers || !rule.Reward.IsPositive() {
			continue
		}
		key := fmt.Sprintf("bonus:referrer-threshold:%d:%d", referrerID, rule.RequiredReferrers)
		reason := fmt.Sprintf("referral count bonus at %d referrals", rule.RequiredReferrers)
		if _, err := s.creditor.Credit(ctx, referrerID, rule.Reward, key, reason); err != nil {
			return err
		}
	}
	return nil
}
