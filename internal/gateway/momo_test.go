package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func momoConfig(apiURL string) Config {
	return Config{
		MerchantID:  "MOMO01",
		AccessKey:   "access",
		SecretKey:   "wallet-secret",
		APIURL:      apiURL,
		ReturnURL:   "http://localhost:8080/orders/x/payment-callback",
		CallbackURL: "http://localhost:8080/orders/x/payment-webhook",
	}
}

func momoRequest() PaymentRequest {
	return PaymentRequest{
		OrderRef:  "a1b2c3",
		OrderID:   "order-1",
		Amount:    decimal.NewFromInt(85000),
		OrderInfo: "Thanh toan don hang a1b2c3",
		ClientIP:  "203.0.113.7",
		Now:       time.Now(),
	}
}

func TestMoMoCreatePayment(t *testing.T) {
	var got momoCreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(momoCreateResponse{
			ResultCode: 0,
			Message:    "Success",
			PayURL:     "https://test-payment.momo.vn/pay/abc",
		})
	}))
	defer srv.Close()

	payURL, err := MoMo{Client: srv.Client()}.CreatePayment(context.Background(), momoConfig(srv.URL), momoRequest())
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if payURL != "https://test-payment.momo.vn/pay/abc" {
		t.Errorf("payURL = %q", payURL)
	}

	if got.PartnerCode != "MOMO01" || got.Amount != 85000 || got.RequestType != "captureWallet" {
		t.Errorf("request body = %+v", got)
	}

	// The request signature must cover the canonical field string.
	raw := fmt.Sprintf(
		"accessKey=access&amount=85000&extraData=&ipnUrl=%s&orderId=order-1&orderInfo=%s&partnerCode=MOMO01&redirectUrl=%s&requestId=order-1&requestType=captureWallet",
		"http://localhost:8080/orders/x/payment-webhook",
		"Thanh toan don hang a1b2c3",
		"http://localhost:8080/orders/x/payment-callback",
	)
	mac := hmac.New(sha256.New, []byte("wallet-secret"))
	mac.Write([]byte(raw))
	if got.Signature != hex.EncodeToString(mac.Sum(nil)) {
		t.Errorf("request signature mismatch: %s", got.Signature)
	}
}

func TestMoMoCreatePaymentRejectedByGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(momoCreateResponse{ResultCode: 41, Message: "Duplicate orderId"})
	}))
	defer srv.Close()

	_, err := MoMo{Client: srv.Client()}.CreatePayment(context.Background(), momoConfig(srv.URL), momoRequest())
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("err = %v, want ErrGateway", err)
	}
}

func TestMoMoCreatePaymentNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := MoMo{Client: srv.Client()}.CreatePayment(context.Background(), momoConfig(srv.URL), momoRequest())
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("err = %v, want ErrGateway", err)
	}
}

func TestMoMoCreatePaymentFailsClosedOnMissingCredentials(t *testing.T) {
	cfg := momoConfig("https://example.invalid")
	cfg.AccessKey = ""

	_, err := MoMo{}.CreatePayment(context.Background(), cfg, momoRequest())
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err = %v, want ErrMissingField", err)
	}
}

func signedMoMoIPN(accessKey, secret string, params url.Values) url.Values {
	raw := fmt.Sprintf(
		"accessKey=%s&amount=%s&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%s&resultCode=%s&transId=%s",
		accessKey,
		params.Get("amount"), params.Get("extraData"), params.Get("message"),
		params.Get("orderId"), params.Get("orderInfo"), params.Get("orderType"),
		params.Get("partnerCode"), params.Get("payType"), params.Get("requestId"),
		params.Get("responseTime"), params.Get("resultCode"), params.Get("transId"),
	)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(raw))
	out := url.Values{}
	for k, vs := range params {
		out[k] = vs
	}
	out.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return out
}

func momoIPNParams() url.Values {
	return url.Values{
		"partnerCode":  {"MOMO01"},
		"orderId":      {"order-1"},
		"requestId":    {"order-1"},
		"amount":       {"85000"},
		"orderInfo":    {"Thanh toan don hang a1b2c3"},
		"orderType":    {"momo_wallet"},
		"transId":      {"4001234567"},
		"resultCode":   {"0"},
		"message":      {"Successful."},
		"payType":      {"qr"},
		"responseTime": {"1756477800000"},
		"extraData":    {""},
	}
}

func TestMoMoVerifyCallback(t *testing.T) {
	params := signedMoMoIPN("access", "wallet-secret", momoIPNParams())
	if err := (MoMo{}).VerifyCallback(momoConfig("https://x"), params); err != nil {
		t.Fatalf("valid IPN rejected: %v", err)
	}
}

func TestMoMoVerifyCallbackRejectsTampering(t *testing.T) {
	base := momoIPNParams()
	base.Set("resultCode", "1006")
	params := signedMoMoIPN("access", "wallet-secret", base)
	params.Set("resultCode", "0")

	if err := (MoMo{}).VerifyCallback(momoConfig("https://x"), params); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestMoMoVerifyCallbackRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 .:-_/"
	randStr := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(b)
	}

	fields := []string{
		"partnerCode", "orderId", "requestId", "amount", "orderInfo", "orderType",
		"transId", "resultCode", "message", "payType", "responseTime", "extraData",
	}
	for i := 0; i < 50; i++ {
		params := url.Values{}
		for _, f := range fields {
			params.Set(f, randStr(rng.Intn(20)))
		}

		signed := signedMoMoIPN("access", "wallet-secret", params)
		if err := (MoMo{}).VerifyCallback(momoConfig("https://x"), signed); err != nil {
			t.Fatalf("case %d: valid IPN rejected: %v\nparams: %v", i, err, signed)
		}

		tampered := signedMoMoIPN("access", "wallet-secret", params)
		field := fields[rng.Intn(len(fields))]
		tampered.Set(field, tampered.Get(field)+"x")
		if err := (MoMo{}).VerifyCallback(momoConfig("https://x"), tampered); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("case %d: tampered %s accepted: %v", i, field, err)
		}
	}
}

func TestMoMoVerifyCallbackRejectsMissingSignature(t *testing.T) {
	if err := (MoMo{}).VerifyCallback(momoConfig("https://x"), momoIPNParams()); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestMoMoVerifyCallbackFailsClosedOnMissingSecret(t *testing.T) {
	cfg := momoConfig("https://x")
	cfg.SecretKey = ""
	params := signedMoMoIPN("access", "wallet-secret", momoIPNParams())

	if err := (MoMo{}).VerifyCallback(cfg, params); !errors.Is(err, ErrMissingField) {
		t.Fatalf("err = %v, want ErrMissingField", err)
	}
}
