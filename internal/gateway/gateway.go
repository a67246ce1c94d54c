// Package gateway implements the signing and verification protocols of the
// supported online payment providers. Each provider is a Signer registered by
// gateway type; callers never build provider requests by hand.
package gateway

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingField means the stored config lacks a credential the
	// provider protocol requires. Signers fail closed on it.
	ErrMissingField = errors.New("payment config is missing a required field")

	// ErrInvalidSignature means a callback's signature did not verify.
	ErrInvalidSignature = errors.New("invalid gateway signature")

	// ErrGateway wraps provider-side failures (HTTP errors, refusals).
	ErrGateway = errors.New("payment gateway error")
)

// Config carries the provider credentials loaded from a payment config row.
// SecretKey must never appear in logs or responses.
type Config struct {
	MerchantID  string
	AccessKey   string
	SecretKey   string
	APIURL      string
	ReturnURL   string
	CallbackURL string
}

// PaymentRequest describes one payment to initiate with a provider.
type PaymentRequest struct {
	// OrderRef is the short reference shown to the provider and the payer.
	OrderRef string
	// OrderID is the full order identifier, used in provider request ids.
	OrderID string
	Amount  decimal.Decimal
	// OrderInfo is the human-readable payment description.
	OrderInfo string
	ClientIP  string
	Now       time.Time
}

// Signer builds provider payment URLs and verifies provider callbacks.
type Signer interface {
	// Type returns the gateway type constant this signer handles.
	Type() string
	// CreatePayment returns the URL the payer should be sent to.
	CreatePayment(ctx context.Context, cfg Config, req PaymentRequest) (string, error)
	// VerifyCallback authenticates the return/IPN parameters. A nil error
	// means the parameters were produced by the provider; it says nothing
	// about whether the payment succeeded.
	VerifyCallback(cfg Config, params url.Values) error
}

// Registry resolves signers by gateway type.
type Registry struct {
	signers map[string]Signer
}

// NewRegistry builds a registry from the given signers.
func NewRegistry(signers ...Signer) *Registry {
	r := &Registry{signers: make(map[string]Signer, len(signers))}
	for _, s := range signers {
		r.signers[s.Type()] = s
	}
	return r
}

// Get returns the signer for a gateway type, if one is registered.
func (r *Registry) Get(gatewayType string) (Signer, bool) {
	s, ok := r.signers[gatewayType]
	return s, ok
}
