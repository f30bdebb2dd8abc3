package ap2

import (
	"testing"
	"time"
)

func testMerchantKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair(AlgES256)
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	return kp
}

func TestGenerateAndValidateCartMandate(t *testing.T) {
	merchant := testMerchantKeyPair(t)
	gen := NewMandateGenerator("did:web:merchant.example", merchant.ECDSAKey)

	info := PurchaseInfo{
		OrderID:     "ord_1",
		ConsumerID:  "consumer-1",
		MerchantID:  "did:web:merchant.example",
		Description: "Noise-cancelling headphones",
		Amount:      129.99,
		Currency:    "USD",
	}
	intent := gen.GenerateIntentMandate(info, time.Hour)

	cart, err := gen.GenerateCartMandate(info, intent, "did:web:processor.example", "https://processor.example/v1/process", 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateCartMandate() error = %v", err)
	}
	if cart.MerchantAuthorization == "" {
		t.Fatal("GenerateCartMandate() did not set merchant_authorization")
	}

	if err := ValidateCartMandate(cart, &merchant.ECDSAKey.PublicKey); err != nil {
		t.Fatalf("ValidateCartMandate() error = %v, want nil", err)
	}
}

func TestValidateCartMandate_RejectsWrongKey(t *testing.T) {
	merchant := testMerchantKeyPair(t)
	impostor := testMerchantKeyPair(t)
	gen := NewMandateGenerator("did:web:merchant.example", merchant.ECDSAKey)

	info := PurchaseInfo{OrderID: "ord_2", MerchantID: "did:web:merchant.example", Description: "Mug", Amount: 12, Currency: "USD"}
	intent := gen.GenerateIntentMandate(info, time.Hour)
	cart, err := gen.GenerateCartMandate(info, intent, "did:web:processor.example", "https://processor.example/v1/process", 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateCartMandate() error = %v", err)
	}

	if err := ValidateCartMandate(cart, &impostor.ECDSAKey.PublicKey); err == nil {
		t.Fatal("ValidateCartMandate() succeeded with the wrong public key")
	}
}

func TestValidateCartMandate_RejectsExpired(t *testing.T) {
	merchant := testMerchantKeyPair(t)
	gen := NewMandateGenerator("did:web:merchant.example", merchant.ECDSAKey)

	info := PurchaseInfo{OrderID: "ord_3", MerchantID: "did:web:merchant.example", Description: "Mug", Amount: 12, Currency: "USD"}
	intent := gen.GenerateIntentMandate(info, time.Hour)
	cart, err := gen.GenerateCartMandate(info, intent, "did:web:processor.example", "https://processor.example/v1/process", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateCartMandate() error = %v", err)
	}

	err = ValidateCartMandate(cart, &merchant.ECDSAKey.PublicKey)
	if err == nil {
		t.Fatal("ValidateCartMandate() accepted an expired cart")
	}
	var apErr *Error
	if !asAP2Error(err, &apErr) || apErr.Kind != "cart_expired" {
		t.Fatalf("ValidateCartMandate() error = %v, want cart_expired", err)
	}
}

func TestGenerateCartMandate_RejectsAmountOverIntentCap(t *testing.T) {
	merchant := testMerchantKeyPair(t)
	gen := NewMandateGenerator("did:web:merchant.example", merchant.ECDSAKey)

	info := PurchaseInfo{OrderID: "ord_4", MerchantID: "did:web:merchant.example", Description: "TV", Amount: 999, Currency: "USD"}
	intent := gen.GenerateIntentMandate(info, time.Hour)
	intent.MaxAmount = &PaymentCurrencyAmount{Currency: "USD", Value: 500}

	if _, err := gen.GenerateCartMandate(info, intent, "did:web:processor.example", "https://processor.example/v1/process", 15*time.Minute); err == nil {
		t.Fatal("GenerateCartMandate() allowed a cart over the intent's max_amount")
	}
}

func asAP2Error(err error, out **Error) bool {
	apErr, ok := err.(*Error)
	if ok {
		*out = apErr
	}
	return ok
}
