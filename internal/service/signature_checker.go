package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

// Signature schemes.
const (
	SignatureSchemeStored  = "stored"
	SignatureSchemeEd25519 = "ed25519"
)

// SignaturePrimitive verifies a signature over a message for a signer.
type SignaturePrimitive interface {
	Name() string
	Verify(message []byte, signature, signer string) (bool, error)
}

// StoredSignaturePrimitive trusts the signature recorded at finalization once
// the document agrees with it; it performs no cryptography.
type StoredSignaturePrimitive struct{}

func (StoredSignaturePrimitive) Name() string { return SignatureSchemeStored }

func (StoredSignaturePrimitive) Verify(_ []byte, signature, _ string) (bool, error) {
	return strings.TrimSpace(signature) != "", nil
}

// Ed25519SignaturePrimitive checks base64 signatures against hex-encoded
// ed25519 public keys used as signer addresses.
type Ed25519SignaturePrimitive struct{}

func (Ed25519SignaturePrimitive) Name() string { return SignatureSchemeEd25519 }

func (Ed25519SignaturePrimitive) Verify(message []byte, signature, signer string) (bool, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signer), "0x"))
	if err != nil || len(key) != ed25519.PublicKeySize {
		return false, nil
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(key), message, sig), nil
}

// NewSignaturePrimitive resolves a configured scheme name.
func NewSignaturePrimitive(scheme string) (SignaturePrimitive, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", SignatureSchemeStored:
		return StoredSignaturePrimitive{}, nil
	case SignatureSchemeEd25519:
		return Ed25519SignaturePrimitive{}, nil
	default:
		return nil, fmt.Errorf("unknown signature scheme %q", scheme)
	}
}

// SignatureCheck is the outcome of checking one score's signature.
type SignatureCheck struct {
	Valid   bool
	Missing bool
	Reason  string
}

// SignatureChecker decides whether a published document carries the judge's signature.
type SignatureChecker interface {
	Check(ctx context.Context, doc ScoreDocument, score models.Score) (SignatureCheck, error)
}

type signatureChecker struct {
	primitive SignaturePrimitive
}

// NewSignatureChecker constructs a checker around a primitive.
func NewSignatureChecker(primitive SignaturePrimitive) SignatureChecker {
	if primitive == nil {
		primitive = StoredSignaturePrimitive{}
	}
	return &signatureChecker{primitive: primitive}
}

func (c *signatureChecker) Check(_ context.Context, doc ScoreDocument, score models.Score) (SignatureCheck, error) {
	if score.WalletSignature == nil || strings.TrimSpace(*score.WalletSignature) == "" {
		return SignatureCheck{Valid: true, Missing: true}, nil
	}
	stored := strings.TrimSpace(*score.WalletSignature)

	var reasons []string
	if strings.TrimSpace(doc.Signature) != stored {
		reasons = append(reasons, "embedded signature does not match the stored signature")
	}
	wallet := strings.TrimSpace(score.Judge.WalletAddress)
	if wallet == "" || !strings.EqualFold(strings.TrimSpace(doc.SignerAddress), wallet) {
		reasons = append(reasons, "embedded signer address does not match the judge's wallet")
	}
	if len(reasons) > 0 {
		return SignatureCheck{Reason: strings.Join(reasons, "; ")}, nil
	}

	ok, err := c.primitive.Verify(doc.SignedMessage(), stored, wallet)
	if err != nil {
		return SignatureCheck{}, fmt.Errorf("%s signature verification: %w", c.primitive.Name(), err)
	}
	if !ok {
		return SignatureCheck{Reason: "signature does not verify for the signer address"}, nil
	}
	return SignatureCheck{Valid: true}, nil
}
