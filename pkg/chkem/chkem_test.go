package chkem

import (
	"bytes"
	"testing"
)

func TestEncapsulateDecapsulateAgree(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	ct, ssKemA, ssDHA, err := Encapsulate(kp.PublicKey())
	if err != nil {
		t.Fatalf("Encapsulate: %v", err)
	}

	ssKemB, ssDHB, err := Decapsulate(ct, kp)
	if err != nil {
		t.Fatalf("Decapsulate: %v", err)
	}

	if !bytes.Equal(ssKemA, ssKemB) {
		t.Fatal("ML-KEM shared secrets do not match between encapsulate and decapsulate")
	}
	if !bytes.Equal(ssDHA, ssDHB) {
		t.Fatal("X25519 shared secrets do not match between encapsulate and decapsulate")
	}
}

func TestDecapsulateWithUnrelatedKeyPairDiffers(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	ct, ssKemA, ssDHA, err := Encapsulate(kp.PublicKey())
	if err != nil {
		t.Fatalf("Encapsulate: %v", err)
	}

	// ML-KEM decapsulation uses implicit rejection, so decapsulating with the
	// wrong private key normally completes without error; when it does, the
	// secrets it returns must not agree with the encapsulator's.
	ssKemB, ssDHB, err := Decapsulate(ct, other)
	if err == nil {
		if bytes.Equal(ssKemA, ssKemB) && bytes.Equal(ssDHA, ssDHB) {
			t.Fatal("decapsulation with unrelated key pair produced matching secrets")
		}
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	encoded := kp.PublicKey().Bytes()
	decoded, err := ParsePublicKey(encoded)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), encoded) {
		t.Fatal("public key did not round-trip through Bytes/ParsePublicKey")
	}
}

func TestCiphertextRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	ct, _, _, err := Encapsulate(kp.PublicKey())
	if err != nil {
		t.Fatalf("Encapsulate: %v", err)
	}

	encoded := ct.Bytes()
	decoded, err := ParseCiphertext(encoded)
	if err != nil {
		t.Fatalf("ParseCiphertext: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), encoded) {
		t.Fatal("ciphertext did not round-trip through Bytes/ParseCiphertext")
	}
}

func TestParsePublicKeyRejectsWrongSize(t *testing.T) {
	if _, err := ParsePublicKey(make([]byte, 10)); err == nil {
		t.Fatal("expected error for undersized public key")
	}
}

func TestParseCiphertextRejectsWrongSize(t *testing.T) {
	if _, err := ParseCiphertext(make([]byte, 10)); err == nil {
		t.Fatal("expected error for undersized ciphertext")
	}
}
