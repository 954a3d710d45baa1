package gateway

import (
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"type":"order_updated","payload":{"id":"ivy-1","status":"paid"}}`)
	secret := "whsec_test_1234"

	sig := Sign(body, secret)
	if sig == "" {
		t.Fatal("expected non-empty signature")
	}
	if !Verify(body, secret, sig) {
		t.Error("expected signature to verify against the same body and secret")
	}
}

func TestVerifyRejectsMutations(t *testing.T) {
	body := []byte(`{"type":"order_updated","payload":{"id":"ivy-1","status":"paid"}}`)
	secret := "whsec_test_1234"
	sig := Sign(body, secret)

	tests := []struct {
		name      string
		body      []byte
		secret    string
		presented string
	}{
		{"mutated body", []byte(`{"type":"order_updated","payload":{"id":"ivy-1","status":"failed"}}`), secret, sig},
		{"wrong secret", body, "whsec_other", sig},
		{"mutated signature", body, secret, sig[:len(sig)-1] + "0"},
		{"empty signature", body, secret, ""},
		{"empty body", []byte{}, secret, sig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Verify(tt.body, tt.secret, tt.presented) {
				t.Error("expected verification to fail")
			}
		})
	}
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"referenceId":"ref-42"}`)
	if Sign(body, "s") != Sign(body, "s") {
		t.Error("expected identical signatures for identical input")
	}
	if Sign(body, "s") == Sign(body, "t") {
		t.Error("expected different secrets to produce different signatures")
	}
}
