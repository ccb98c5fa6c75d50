package sweeper

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/astocklabs/memberd/internal/app/service/entitlement"
	"github.com/astocklabs/memberd/internal/app/service/order"
	cfgpkg "github.com/astocklabs/memberd/pkg/config"
)

// Sweeper is the periodic housekeeping loop: it closes pending orders past
// their payment window and expires stale membership rows. Both operations
// are idempotent, so overlapping runs across replicas are harmless.
type Sweeper struct {
	cfg         *cfgpkg.Config
	order       *order.Service
	entitlement *entitlement.Service
	log         *zap.SugaredLogger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg *cfgpkg.Config, ord *order.Service, ent *entitlement.Service, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{cfg: cfg, order: ord, entitlement: ent, log: log}
}

func (s *Sweeper) interval() time.Duration {
	minutes := s.cfg.Order.SweepIntervalMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one housekeeping pass. Errors are logged, not returned: the
// next tick retries.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()
	if _, err := s.order.ExpirePendingOrders(ctx, now); err != nil {
		s.log.Errorf("sweep: failed to close expired orders: %v", err)
	}
	if _, err := s.entitlement.ExpireStaleMemberships(ctx, now); err != nil {
		s.log.Errorf("sweep: failed to expire memberships: %v", err)
	}
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, s *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}
