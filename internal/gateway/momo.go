package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/quancafe/api/internal/enum"
)

// MoMo creates captureWallet payments via the MoMo v2 API and verifies its
// IPN signatures. Requests and callbacks are signed with HMAC-SHA256 over a
// raw (unencoded) key=value string in the field order MoMo prescribes.
type MoMo struct {
	Client *http.Client
}

func (MoMo) Type() string { return enum.GatewayMoMo }

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	PartnerName string `json:"partnerName"`
	StoreID     string `json:"storeId"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IpnURL      string `json:"ipnUrl"`
	Lang        string `json:"lang"`
	RequestType string `json:"requestType"`
	AutoCapture bool   `json:"autoCapture"`
	ExtraData   string `json:"extraData"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
}

// CreatePayment posts a captureWallet request and returns the payUrl.
func (m MoMo) CreatePayment(ctx context.Context, cfg Config, req PaymentRequest) (string, error) {
	if cfg.MerchantID == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.APIURL == "" {
		return "", fmt.Errorf("momo: %w", ErrMissingField)
	}

	amount := req.Amount.IntPart()
	requestID := req.OrderID
	requestType := "captureWallet"

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		cfg.AccessKey, amount, "", cfg.CallbackURL, req.OrderID, req.OrderInfo,
		cfg.MerchantID, cfg.ReturnURL, requestID, requestType,
	)
	mac := hmac.New(sha256.New, []byte(cfg.SecretKey))
	mac.Write([]byte(raw))

	body, err := json.Marshal(momoCreateRequest{
		PartnerCode: cfg.MerchantID,
		PartnerName: "QUAN CAFE",
		StoreID:     cfg.MerchantID,
		RequestID:   requestID,
		Amount:      amount,
		OrderID:     req.OrderID,
		OrderInfo:   req.OrderInfo,
		RedirectURL: cfg.ReturnURL,
		IpnURL:      cfg.CallbackURL,
		Lang:        "vi",
		RequestType: requestType,
		AutoCapture: true,
		ExtraData:   "",
		Signature:   hex.EncodeToString(mac.Sum(nil)),
	})
	if err != nil {
		return "", fmt.Errorf("momo: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("momo: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("momo: %w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("momo: %w: status %d", ErrGateway, resp.StatusCode)
	}

	var out momoCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("momo: decode response: %w", err)
	}
	if out.PayURL == "" {
		return "", fmt.Errorf("momo: %w: resultCode=%d message=%q", ErrGateway, out.ResultCode, out.Message)
	}
	return out.PayURL, nil
}

// VerifyCallback checks the IPN signature. MoMo signs a fixed field order,
// not a sorted one.
func (MoMo) VerifyCallback(cfg Config, params url.Values) error {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return fmt.Errorf("momo: %w", ErrMissingField)
	}

	received := params.Get("signature")
	if received == "" {
		return fmt.Errorf("momo: missing signature: %w", ErrInvalidSignature)
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%s&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%s&resultCode=%s&transId=%s",
		cfg.AccessKey,
		params.Get("amount"),
		params.Get("extraData"),
		params.Get("message"),
		params.Get("orderId"),
		params.Get("orderInfo"),
		params.Get("orderType"),
		params.Get("partnerCode"),
		params.Get("payType"),
		params.Get("requestId"),
		params.Get("responseTime"),
		params.Get("resultCode"),
		params.Get("transId"),
	)
	mac := hmac.New(sha256.New, []byte(cfg.SecretKey))
	mac.Write([]byte(raw))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(received)
	if err != nil || !hmac.Equal(expected, got) {
		return fmt.Errorf("momo: %w", ErrInvalidSignature)
	}
	return nil
}
