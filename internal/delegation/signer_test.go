package delegation

import (
	"bytes"
	"testing"
)

func TestLoadOrGenerateLocalKeyServiceCreatesThenPersists(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerateLocalKeyService("node-a", dir)
	if err != nil {
		t.Fatalf("first LoadOrGenerateLocalKeyService: %v", err)
	}

	second, err := LoadOrGenerateLocalKeyService("node-a", dir)
	if err != nil {
		t.Fatalf("second LoadOrGenerateLocalKeyService: %v", err)
	}

	if !bytes.Equal(first.PublicKey(), second.PublicKey()) {
		t.Fatalf("expected the same keypair to be reloaded from disk, got different public keys")
	}
}

func TestLoadOrGenerateLocalKeyServiceSignVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keys, err := LoadOrGenerateLocalKeyService("node-a", dir)
	if err != nil {
		t.Fatalf("LoadOrGenerateLocalKeyService: %v", err)
	}

	sig, err := keys.Sign("hello")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !verifySignature(keys.PublicKey(), "hello", sig) {
		t.Fatalf("expected signature to verify against the persisted key's public half")
	}
}
