package qr

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestOrderCode(t *testing.T) {
	id := uuid.MustParse("d9428888-122b-11e1-b85c-61cd3cbb3210")
	if got := OrderCode(id); got != "bb3210" {
		t.Errorf("OrderCode = %q, want %q", got, "bb3210")
	}
	if len(OrderCode(uuid.New())) != 6 {
		t.Error("OrderCode length != 6")
	}
}

func TestBuildEMV(t *testing.T) {
	got := BuildEMV(decimal.NewFromInt(85000), "a1b2c3")
	want := "00020101021238560010A0000007270106a1b2c35303704540885000.005802VN62140806a1b2c36304"
	if got != want {
		t.Errorf("BuildEMV =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildEMVLengthFieldsTrackOrderCode(t *testing.T) {
	got := BuildEMV(decimal.NewFromInt(50000), "abc123def")

	// ID 38 length = 50 + len(code) = 59.
	if got[12:18] != "385900" {
		t.Errorf("merchant account field header = %q", got[12:18])
	}
}

func TestBuildPayload(t *testing.T) {
	id := uuid.MustParse("d9428888-122b-11e1-b85c-61cd3cbb3210")
	transfer := Transfer{}.WithDefaults()

	p := BuildPayload(transfer, decimal.NewFromInt(85000), "bb3210", id)
	if p.Bank != DefaultBankCode || p.Account != DefaultAccountNumber {
		t.Errorf("payload account = %+v", p)
	}
	if p.Amount != "85000" {
		t.Errorf("Amount = %q", p.Amount)
	}
	if p.Content != "THANHTOAN bb3210" {
		t.Errorf("Content = %q", p.Content)
	}
	if p.OrderID != id.String() {
		t.Errorf("OrderID = %q", p.OrderID)
	}
}

func TestWithDefaults(t *testing.T) {
	got := Transfer{BankCode: "TCB", BankName: "Techcombank"}.WithDefaults()
	if got.BankCode != "TCB" || got.BankName != "Techcombank" {
		t.Errorf("explicit fields overwritten: %+v", got)
	}
	if got.AccountNumber != DefaultAccountNumber || got.AccountName != DefaultAccountName {
		t.Errorf("defaults not applied: %+v", got)
	}
}
