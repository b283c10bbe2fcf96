package level

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/referralpay/ledger/internal/logger"
	"github.com/referralpay/ledger/internal/monitoring"
)

// payout is one salary credit to apply. The idempotency key makes the
// application at-most-once no matter how often the pass re-runs.
type payout struct {
	memberID int64
	amount   decimal.Decimal
	key      string
	reason   string
	period   string
}

func payoutWorker(ctx context.Context, id int, creditor Creditor, jobs <-chan payout, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-jobs:
			if !ok {
				return
			}
			if _, err := creditor.Credit(ctx, p.memberID, p.amount, p.key, p.reason); err != nil {
				logger.Log.Error("salary credit failed",
					zap.Int("worker", id),
					zap.Int64("member_id", p.memberID),
					zap.String("key", p.key),
					zap.Error(err))
				continue
			}
			monitoring.SalaryPayouts.WithLabelValues(p.period).Inc()
		}
	}
}

// payAll fans the payouts out to a small worker pool and waits for all of
// them. Payouts for different members are independent, so ordering does
// not matter.
func (s *Service) payAll(ctx context.Context, payouts []payout) {
	if len(payouts) == 0 {
		return
	}
	workers := s.workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(payouts) {
		workers = len(payouts)
	}

	jobs := make(chan payout, workers*3)
	wg := new(sync.WaitGroup)
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go payoutWorker(ctx, i, s.creditor, jobs, wg)
	}
send:
	for _, p := range payouts {
		select {
		case <-ctx.Done():
			break send
		case jobs <- p:
		}
	}
	close(jobs)
	wg.Wait()
}
