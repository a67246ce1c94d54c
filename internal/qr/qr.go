// Package qr builds bank-transfer QR payloads for static QR payments.
package qr

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Defaults used when the active payment config leaves bank fields empty.
const (
	DefaultBankCode      = "VCB"
	DefaultAccountNumber = "1234567890"
	DefaultAccountName   = "QUAN CAFE"
	DefaultBankName      = "Vietcombank"
)

// OrderCode derives the short payment reference from an order id: the last
// six hex characters of the UUID. Payers type it into the transfer note, so
// it must stay short and stable.
func OrderCode(orderID uuid.UUID) string {
	s := strings.ReplaceAll(orderID.String(), "-", "")
	return s[len(s)-6:]
}

// Transfer describes the destination account for a static QR payment.
type Transfer struct {
	BankCode      string
	AccountNumber string
	AccountName   string
	BankName      string
}

// BuildEMV renders an EMVCo merchant-presented QR string (VietQR dialect)
// carrying the amount and the order code. The code appears twice: as the
// merchant reference in ID 38 and as transfer content in ID 62.
func BuildEMV(amount decimal.Decimal, code string) string {
	amountStr := amount.String()
	if amount.IsInteger() {
		amountStr = amount.StringFixed(0)
	}

	var b strings.Builder
	b.WriteString("000201") // payload format indicator
	b.WriteString("010212") // dynamic QR
	// Merchant account information (ID 38): VietQR GUID + order reference.
	b.WriteString("38")
	b.WriteString(pad2(50 + len(code)))
	b.WriteString("0010A000000727")
	b.WriteString("01")
	b.WriteString(pad2(len(code)))
	b.WriteString(code)
	b.WriteString("5303704") // currency VND
	b.WriteString("54")
	b.WriteString(pad2(len(amountStr) + 3))
	b.WriteString(amountStr)
	b.WriteString(".00")
	b.WriteString("5802VN")
	// Additional data (ID 62): transfer content = order code.
	b.WriteString("62")
	b.WriteString(pad2(8 + len(code)))
	b.WriteString("08")
	b.WriteString(pad2(len(code)))
	b.WriteString(code)
	b.WriteString("6304") // CRC placeholder, filled by the rendering client
	return b.String()
}

// Payload is the simple JSON fallback for clients that render their own QR.
type Payload struct {
	Bank    string `json:"bank"`
	Account string `json:"account"`
	Name    string `json:"name"`
	Amount  string `json:"amount"`
	Content string `json:"content"`
	OrderID string `json:"orderId"`
}

// BuildPayload assembles the JSON fallback payload.
func BuildPayload(t Transfer, amount decimal.Decimal, code string, orderID uuid.UUID) Payload {
	return Payload{
		Bank:    t.BankCode,
		Account: t.AccountNumber,
		Name:    t.AccountName,
		Amount:  amount.String(),
		Content: fmt.Sprintf("THANHTOAN %s", code),
		OrderID: orderID.String(),
	}
}

// WithDefaults fills empty transfer fields with the house account.
func (t Transfer) WithDefaults() Transfer {
	if t.BankCode == "" {
		t.BankCode = DefaultBankCode
	}
	if t.AccountNumber == "" {
		t.AccountNumber = DefaultAccountNumber
	}
	if t.AccountName == "" {
		t.AccountName = DefaultAccountName
	}
	if t.BankName == "" {
		t.BankName = DefaultBankName
	}
	return t
}

func pad2(n int) string {
	return fmt.Sprintf("%02d", n)
}
