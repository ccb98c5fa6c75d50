package notification_log

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astocklabs/memberd/internal/models"
	"github.com/astocklabs/memberd/pkg/logctx"
	"github.com/astocklabs/memberd/pkg/tool"
)

// Service archives raw payment notifications for dispute and replay
// debugging. It writes straight to the database: the log is append-only
// telemetry and must not join the settlement transaction.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a payment notification log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) {
	go func() {
		if log == nil {
			return
		}
		if log.ID == "" {
			log.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(log).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
		}
	}()
}
