package gateway

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhzhou002/card-shop/internal/domain"
)

// WechatProvider produces JSAPI-style payment params signed with MD5 over the
// sorted parameter string plus the merchant key.
type WechatProvider struct {
	AppID string
	Key   string
}

func NewWechatProvider(appID, key string) *WechatProvider {
	return &WechatProvider{AppID: appID, Key: key}
}

func (p *WechatProvider) Code() string { return "wechat" }

func (p *WechatProvider) CreateIntent(ctx context.Context, payment *domain.Payment, order *domain.Order) (*domain.PaymentIntent, error) {
	params := map[string]string{
		"appId":     p.AppID,
		"timeStamp": strconv.FormatInt(time.Now().Unix(), 10),
		"nonceStr":  strings.ReplaceAll(uuid.NewString(), "-", ""),
		"package":   "prepay_id=" + payment.PaymentNo,
		"signType":  "MD5",
	}
	params["paySign"] = md5Sign(params, p.Key, "paySign")

	url := "/payment/wechat/" + payment.PaymentNo
	return &domain.PaymentIntent{
		PaymentNo:   payment.PaymentNo,
		RedirectURL: url,
		QRContent:   url,
		Params:      params,
		ExpiresAt:   payment.ExpiresAt,
	}, nil
}

func (p *WechatProvider) VerifyNotification(params map[string]string) (*Notification, error) {
	sign, ok := params["sign"]
	if !ok {
		return nil, ErrBadSignature
	}
	expected := md5Sign(params, p.Key, "sign")
	if subtle.ConstantTimeCompare([]byte(sign), []byte(expected)) != 1 {
		return nil, ErrBadSignature
	}

	outcome := domain.OutcomeFailure
	if params["result_code"] == "SUCCESS" {
		outcome = domain.OutcomeSuccess
	}
	return &Notification{
		PaymentNo: params["out_trade_no"],
		Outcome:   outcome,
		TradeNo:   params["transaction_id"],
	}, nil
}

// md5Sign joins the params as key=value pairs in key order, appends the
// merchant key, and returns the uppercase MD5 hex digest. skip names the
// signature field itself so it is excluded from its own input.
func md5Sign(params map[string]string, key, skip string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == skip || params[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('&')
	}
	b.WriteString("key=")
	b.WriteString(key)

	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}
