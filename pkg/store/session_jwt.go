package store

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultJWTIssuer   = "submit-review-portal"
	defaultJWTAudience = "submit-review"
	defaultJWTKeyID    = "jwt-active"
)

var defaultJWTLeeway = 30 * time.Second

var (
	errTokenRevoked = errors.New("token revoked")
	errTokenFormat  = errors.New("invalid token format")
)

// JWTOptions configures JWT claim validation behavior.
type JWTOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
	// VerifyKeys holds previous public keys (kid -> key) still accepted during rotation.
	VerifyKeys map[string]*rsa.PublicKey
}

// JWTSessionStore issues and validates RS256 access tokens. The token only
// carries the user ID; role is looked up on every request.
type JWTSessionStore struct {
	ttl     time.Duration
	revoker TokenRevoker

	signer    *rsa.PrivateKey
	signerKid string
	verifiers map[string]*rsa.PublicKey

	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewJWTRS256SessionStore builds a session store around an in-memory key.
func NewJWTRS256SessionStore(privateKey *rsa.PrivateKey, keyID string, ttl time.Duration, revoker TokenRevoker, opts JWTOptions) (*JWTSessionStore, error) {
	if privateKey == nil {
		return nil, errors.New("jwt private key required")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt session ttl must be positive")
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = defaultJWTKeyID
	}
	verifiers := map[string]*rsa.PublicKey{keyID: &privateKey.PublicKey}
	for kid, pub := range opts.VerifyKeys {
		kid = strings.TrimSpace(kid)
		if kid == "" || pub == nil || kid == keyID {
			continue
		}
		verifiers[kid] = pub
	}
	opts = normalizeJWTOptions(opts)
	return &JWTSessionStore{
		ttl:       ttl,
		revoker:   revoker,
		signer:    privateKey,
		signerKid: keyID,
		verifiers: verifiers,
		issuer:    opts.Issuer,
		audience:  opts.Audience,
		leeway:    opts.Leeway,
		now:       time.Now,
	}, nil
}

// NewJWTRS256SessionStoreFromPEM builds a RS256 JWT session store from PEM files.
// verifyKeyFiles maps kid -> public key path and can include previous keys.
func NewJWTRS256SessionStoreFromPEM(
	privateKeyPath string,
	keyID string,
	verifyKeyFiles map[string]string,
	ttl time.Duration,
	revoker TokenRevoker,
	opts JWTOptions,
) (*JWTSessionStore, error) {
	privateKey, err := loadRSAPrivateKeyFromPEMFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	if len(verifyKeyFiles) > 0 && opts.VerifyKeys == nil {
		opts.VerifyKeys = make(map[string]*rsa.PublicKey, len(verifyKeyFiles))
	}
	for kid, path := range verifyKeyFiles {
		kid = strings.TrimSpace(kid)
		path = strings.TrimSpace(path)
		if kid == "" || path == "" {
			continue
		}
		pub, err := loadRSAPublicKeyFromPEMFile(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		opts.VerifyKeys[kid] = pub
	}
	return NewJWTRS256SessionStore(privateKey, keyID, ttl, revoker, opts)
}

// TTL reports the lifetime of issued tokens.
func (s *JWTSessionStore) TTL() time.Duration {
	return s.ttl
}

// NewSession creates a signed JWT for the user ID.
func (s *JWTSessionStore) NewSession(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        randomHexID(12),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.signerKid
	return token.SignedString(s.signer)
}

// GetUserIDByToken validates a JWT and returns the subject.
func (s *JWTSessionStore) GetUserIDByToken(token string) (string, bool, error) {
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return "", false, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return "", false, err
		}
		if revoked {
			return "", false, errTokenRevoked
		}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", false, errors.New("token subject missing")
	}
	return claims.Subject, true, nil
}

// DeleteSession revokes the token until it expires. Invalid tokens are ignored.
func (s *JWTSessionStore) DeleteSession(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	return s.revoker.Revoke(claims.ID, ttl)
}

func (s *JWTSessionStore) parseAndVerify(token string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, errTokenFormat
	}
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, errors.New("token key id required")
		}
		pub, ok := s.verifiers[kid]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	}, parserOptions...)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return claims, err
	}
	if strings.TrimSpace(claims.ID) == "" {
		return claims, errors.New("token jti missing")
	}
	return claims, nil
}

func loadRSAPrivateKeyFromPEMFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pkcs1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return pkcs1, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return privateKey, nil
}

func loadRSAPublicKeyFromPEMFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pubAny, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := pubAny.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not rsa")
		}
		return pub, nil
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate public key is not rsa")
		}
		return pub, nil
	}
	return nil, errors.New("failed to parse rsa public key")
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}

func normalizeJWTOptions(opts JWTOptions) JWTOptions {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Issuer == "" {
		opts.Issuer = defaultJWTIssuer
	}
	if opts.Audience == "" {
		opts.Audience = defaultJWTAudience
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultJWTLeeway
	}
	return opts
}
