package payment

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/astocklabs/memberd/pkg/config"
)

func NewProvider(cfg *cfgpkg.Config, log *zap.SugaredLogger) (Provider, error) {
	if cfg.WechatPay.Enabled {
		return NewWechatProvider(context.Background(), cfg.WechatPay, log)
	}
	log.Infow("wechat pay disabled, using mock payment provider")
	return NewMockProvider(), nil
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
