package service

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/qcom/phoneverify/internal/models"
)

// verifyFunc checks sig over signingString with key using the primitive's
// own verification routine.
type verifyFunc func(signingString string, sig []byte, key crypto.PublicKey) error

// declaredAlgorithms maps HTTP Signature algorithm names to the JWK alg a
// key must carry, if it carries one at all.
var declaredAlgorithms = map[string]string{
	"rsa-sha256":   "RS256",
	"rsa-sha512":   "RS512",
	"ecdsa-sha256": "ES256",
	"ed25519":      "EdDSA",
}

func jwtVerifier(m jwt.SigningMethod) verifyFunc {
	return func(signingString string, sig []byte, key crypto.PublicKey) error {
		return m.Verify(signingString, sig, key)
	}
}

// ecdsaVerifier expects ASN.1 DER signatures, as HTTP Signatures carry
// them, rather than the fixed-width r||s form JWS uses.
func ecdsaVerifier(h crypto.Hash) verifyFunc {
	return func(signingString string, sig []byte, key crypto.PublicKey) error {
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return jwt.ErrInvalidKeyType
		}
		hasher := h.New()
		hasher.Write([]byte(signingString))
		if !ecdsa.VerifyASN1(pub, hasher.Sum(nil), sig) {
			return jwt.ErrECDSAVerification
		}
		return nil
	}
}

// verifierForJWKAlg maps a JWK alg to a verifier. Symmetric algorithms are
// never accepted.
func verifierForJWKAlg(alg string) (verifyFunc, error) {
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "EdDSA":
		return jwtVerifier(jwt.GetSigningMethod(alg)), nil
	case "ES256":
		return ecdsaVerifier(crypto.SHA256), nil
	case "ES384":
		return ecdsaVerifier(crypto.SHA384), nil
	case "ES512":
		return ecdsaVerifier(crypto.SHA512), nil
	}
	return nil, fmt.Errorf("%w: key alg %q", ErrUnsupportedAlgorithm, alg)
}

// verifierForKeyType derives an hs2019 verifier from the key material alone.
func verifierForKeyType(key crypto.PublicKey) (verifyFunc, error) {
	switch key.(type) {
	case *rsa.PublicKey:
		return jwtVerifier(jwt.SigningMethodPS512), nil
	case ed25519.PublicKey:
		return jwtVerifier(jwt.SigningMethodEdDSA), nil
	case *ecdsa.PublicKey:
		return ecdsaVerifier(crypto.SHA512), nil
	}
	return nil, fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, key)
}

// resolveVerifier picks the verification routine for a declared algorithm
// and key. A declared algorithm that disagrees with the key's own alg is
// rejected rather than trusted.
func resolveVerifier(declared string, key *models.SigningKey) (verifyFunc, error) {
	switch declared {
	case "", "hs2019":
		if key.Algorithm != "" {
			return verifierForJWKAlg(key.Algorithm)
		}
		return verifierForKeyType(key.PublicKey)
	}

	want, ok := declaredAlgorithms[declared]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, declared)
	}
	if key.Algorithm != "" && key.Algorithm != want {
		return nil, fmt.Errorf("%w: %q declared for a %s key", ErrUnsupportedAlgorithm, declared, key.Algorithm)
	}
	return verifierForJWKAlg(want)
}
