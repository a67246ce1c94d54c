package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/quancafe/api/internal/enum"
)

// VNPay signs payment URLs per the VNPay 2.1.0 protocol: query parameters
// sorted by key, values URL-encoded, HMAC-SHA512 over the encoded string.
type VNPay struct{}

func (VNPay) Type() string { return enum.GatewayVNPay }

// CreatePayment builds the redirect URL for the VNPay hosted payment page.
// The amount is sent in minor units (VND * 100) per protocol.
func (VNPay) CreatePayment(_ context.Context, cfg Config, req PaymentRequest) (string, error) {
	if cfg.MerchantID == "" || cfg.SecretKey == "" || cfg.APIURL == "" {
		return "", fmt.Errorf("vnpay: %w", ErrMissingField)
	}

	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    cfg.MerchantID,
		"vnp_Amount":     fmt.Sprintf("%d", req.Amount.Shift(2).IntPart()),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     req.OrderRef,
		"vnp_OrderInfo":  req.OrderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  cfg.ReturnURL,
		"vnp_IpAddr":     req.ClientIP,
		"vnp_CreateDate": req.Now.Format("20060102150405"),
	}

	signData := encodeSorted(params)
	mac := hmac.New(sha512.New, []byte(cfg.SecretKey))
	mac.Write([]byte(signData))
	secureHash := hex.EncodeToString(mac.Sum(nil))

	return cfg.APIURL + "?" + signData + "&vnp_SecureHash=" + secureHash, nil
}

// VerifyCallback recomputes the secure hash over every vnp_ parameter except
// the hash fields themselves and compares in constant time.
func (VNPay) VerifyCallback(cfg Config, params url.Values) error {
	if cfg.SecretKey == "" {
		return fmt.Errorf("vnpay: %w", ErrMissingField)
	}

	received := params.Get("vnp_SecureHash")
	if received == "" {
		return fmt.Errorf("vnpay: missing vnp_SecureHash: %w", ErrInvalidSignature)
	}

	signParams := make(map[string]string, len(params))
	for key := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		signParams[key] = params.Get(key)
	}

	mac := hmac.New(sha512.New, []byte(cfg.SecretKey))
	mac.Write([]byte(encodeSorted(signParams)))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(strings.ToLower(received))
	if err != nil || !hmac.Equal(expected, got) {
		return fmt.Errorf("vnpay: %w", ErrInvalidSignature)
	}
	return nil
}

// encodeSorted renders key=value pairs sorted by key with URL-encoded values,
// the exact form VNPay hashes on its side.
func encodeSorted(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
