package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/auth/verifiers"
	"github.com/wechatpay-apiv3/wechatpay-go/core/downloader"
	"github.com/wechatpay-apiv3/wechatpay-go/core/notify"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/native"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"
	"go.uber.org/zap"

	cfgpkg "github.com/astocklabs/memberd/pkg/config"
	"github.com/astocklabs/memberd/pkg/types"
)

// WechatProvider implements Provider on WeChat Pay API v3 Native payment
// (QR code). https://pay.weixin.qq.com/wiki/doc/apiv3/apis/chapter3_4_1.shtml
type WechatProvider struct {
	cfg       cfgpkg.WechatPayConfig
	log       *zap.SugaredLogger
	client    *core.Client
	notifyHdl *notify.Handler
}

func NewWechatProvider(ctx context.Context, cfg cfgpkg.WechatPayConfig, log *zap.SugaredLogger) (*WechatProvider, error) {
	mchPrivateKey, err := utils.LoadPrivateKeyWithPath(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant private key: %w", err)
	}

	client, err := core.NewClient(ctx, option.WithWechatPayAutoAuthCipher(
		cfg.MchID, cfg.CertSerialNo, mchPrivateKey, cfg.APIv3Key))
	if err != nil {
		return nil, fmt.Errorf("failed to create wechatpay client: %w", err)
	}

	// Platform certificates are auto-downloaded by the auth cipher; the
	// notify handler verifies callback signatures against them.
	certVisitor := downloader.MgrInstance().GetCertificateVisitor(cfg.MchID)
	handler, err := notify.NewRSANotifyHandler(cfg.APIv3Key, verifiers.NewSHA256WithRSAVerifier(certVisitor))
	if err != nil {
		return nil, fmt.Errorf("failed to create notify handler: %w", err)
	}

	return &WechatProvider{cfg: cfg, log: log, client: client, notifyHdl: handler}, nil
}

func (p *WechatProvider) Method() types.PaymentMethod { return types.PaymentMethodWechat }

func (p *WechatProvider) CreateNativeOrder(ctx context.Context, orderNo, description string, amountCents int64) (*PrepayResult, error) {
	svc := native.NativeApiService{Client: p.client}
	resp, _, err := svc.Prepay(ctx, native.PrepayRequest{
		Appid:       core.String(p.cfg.AppID),
		Mchid:       core.String(p.cfg.MchID),
		Description: core.String(description),
		OutTradeNo:  core.String(orderNo),
		NotifyUrl:   core.String(p.cfg.NotifyURL),
		Amount: &native.Amount{
			Total:    core.Int64(amountCents),
			Currency: core.String("CNY"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wechatpay prepay failed: %w", err)
	}
	if resp.CodeUrl == nil || *resp.CodeUrl == "" {
		return nil, fmt.Errorf("wechatpay prepay returned no code_url")
	}
	p.log.Infow("wechatpay prepay created", "order_no", orderNo)
	return &PrepayResult{QRCodeURL: *resp.CodeUrl}, nil
}

func (p *WechatProvider) ParseNotification(ctx context.Context, req *http.Request) (*Notification, error) {
	txn := new(payments.Transaction)
	if _, err := p.notifyHdl.ParseNotifyRequest(ctx, req, txn); err != nil {
		return nil, fmt.Errorf("failed to verify wechatpay notification: %w", err)
	}

	n := &Notification{
		Success: txn.TradeState != nil && *txn.TradeState == "SUCCESS",
	}
	if txn.OutTradeNo != nil {
		n.OrderNo = *txn.OutTradeNo
	}
	if txn.TransactionId != nil {
		n.TransactionID = *txn.TransactionId
	}
	if txn.Amount != nil && txn.Amount.Total != nil {
		n.AmountCents = *txn.Amount.Total
	}
	return n, nil
}
