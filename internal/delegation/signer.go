package delegation

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KeyService abstracts signing and peer key discovery so the delegation
// engine never handles raw key material directly: it asks KeyService to
// sign a canonical string and to sign, and asks it to resolve a peer's
// public key by node id when verifying an inbound message.
type KeyService interface {
	// NodeID returns this node's own identifier, or "" if no identity is
	// initialized yet.
	NodeID() string
	// Sign returns a base64-encoded Ed25519 signature over message, or an
	// error if no local identity is initialized.
	Sign(message string) (string, error)
	// PeerPublicKey resolves a peer's Ed25519 public key by node id. The
	// bool is false if the key could not be resolved.
	PeerPublicKey(nodeID string) (ed25519.PublicKey, bool)
	// SetPeerPublicKey registers or updates a peer's public key, as
	// discovered via GET /community/identity.
	SetPeerPublicKey(nodeID string, key ed25519.PublicKey)
	// PublicKeyBase64 returns this node's own public key, base64-encoded,
	// for advertising via GET /community/identity.
	PublicKeyBase64() string
}

// LocalKeyService is the default KeyService backed by a single Ed25519
// keypair generated or loaded at startup, plus a directory of known peer
// public keys.
type LocalKeyService struct {
	nodeID     string
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	mu       sync.RWMutex
	peerKeys map[string]ed25519.PublicKey
}

// NewLocalKeyService constructs a KeyService from an existing keypair.
func NewLocalKeyService(nodeID string, priv ed25519.PrivateKey, pub ed25519.PublicKey) *LocalKeyService {
	return &LocalKeyService{
		nodeID:     nodeID,
		privateKey: priv,
		publicKey:  pub,
		peerKeys:   make(map[string]ed25519.PublicKey),
	}
}

// GenerateLocalKeyService creates a fresh Ed25519 keypair for nodeID.
func GenerateLocalKeyService(nodeID string) (*LocalKeyService, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate node keypair: %w", err)
	}
	return NewLocalKeyService(nodeID, priv, pub), nil
}

const nodeKeyFile = "node_ed25519.key"

// LoadOrGenerateLocalKeyService loads this node's Ed25519 private key from
// <dataDir>/node_ed25519.key, generating and persisting a fresh one if the
// file doesn't exist yet, so a node's identity (and thus the peer-trust
// relationships built on SetPeerPublicKey) survives a restart. Mirrors
// identity.CAManager's LoadOrCreate pattern.
func LoadOrGenerateLocalKeyService(nodeID, dataDir string) (*LocalKeyService, error) {
	path := filepath.Join(dataDir, nodeKeyFile)
	if raw, err := os.ReadFile(path); err == nil {
		if len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("node key file %q has unexpected size %d", path, len(raw))
		}
		priv := ed25519.PrivateKey(raw)
		pub := priv.Public().(ed25519.PublicKey)
		return NewLocalKeyService(nodeID, priv, pub), nil
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate node keypair: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", dataDir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, priv, 0o600); err != nil {
		return nil, fmt.Errorf("write node key: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("install node key: %w", err)
	}
	return NewLocalKeyService(nodeID, priv, pub), nil
}

func (s *LocalKeyService) NodeID() string {
	return s.nodeID
}

func (s *LocalKeyService) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(s.publicKey)
}

// PublicKey returns this node's own Ed25519 public key, e.g. for handing
// to a peer that wants to register it via SetPeerPublicKey.
func (s *LocalKeyService) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

func (s *LocalKeyService) Sign(message string) (string, error) {
	if s.privateKey == nil {
		return "", ErrNoIdentity
	}
	sig := ed25519.Sign(s.privateKey, []byte(message))
	return base64.StdEncoding.EncodeToString(sig), nil
}

// SetPeerPublicKey registers or updates a known peer's public key, as
// discovered via GET /community/identity.
func (s *LocalKeyService) SetPeerPublicKey(nodeID string, key ed25519.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerKeys[nodeID] = key
}

func (s *LocalKeyService) PeerPublicKey(nodeID string) (ed25519.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.peerKeys[nodeID]
	return key, ok
}

// verifySignature checks a base64-encoded signature over message against
// pub. Decoded-signature and verification failures both return false.
func verifySignature(pub ed25519.PublicKey, message, signatureB64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, []byte(message), sig)
}

func submitCanonicalString(taskID, title, nodeID string) string {
	return taskID + "|" + title + "|" + nodeID
}

func resultCanonicalString(taskID, status, nodeID string) string {
	return taskID + "|" + status + "|" + nodeID
}
