package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/astocklabs/memberd/internal/app/api/server"
	"github.com/astocklabs/memberd/internal/app/service/catalog"
	"github.com/astocklabs/memberd/internal/app/service/entitlement"
	notificationlog "github.com/astocklabs/memberd/internal/app/service/notification_log"
	ordersvc "github.com/astocklabs/memberd/internal/app/service/order"
	"github.com/astocklabs/memberd/internal/app/service/referral"
	"github.com/astocklabs/memberd/internal/app/service/sweeper"
	"github.com/astocklabs/memberd/internal/platform/db"
	"github.com/astocklabs/memberd/internal/platform/payment"
	"github.com/astocklabs/memberd/internal/store"
	"github.com/astocklabs/memberd/pkg/config"
	"github.com/astocklabs/memberd/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	store.Module,
	payment.Module,
	server.Module,
	catalog.Module,
	entitlement.Module,
	referral.Module,
	ordersvc.Module,
	notificationlog.Module,
	sweeper.Module,
)
