// Package jwt provides JWT-based bearer authentication for bhasha.
//
// Tokens carry the owner id in the sub claim and role names in a
// configurable claim (default "roles").
//
// Usage:
//
//	opts := jwtopts.NewOptions()
//	opts.Key = "your-secret-key-min-64-chars-long..."
//	authn, err := jwt.New(opts)
//
//	token, err := authn.Sign("user-123", "admin")
//	claims, err := authn.Verify(token)
package jwt

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/bhasha/pkg/errors"
	jwtopts "github.com/kart-io/bhasha/pkg/options/jwt"
)

// Claims is the verified identity extracted from a token.
type Claims struct {
	Subject   string
	Roles     []string
	Issuer    string
	ID        string
	ExpiresAt time.Time
}

// JWT signs and verifies bearer tokens.
type JWT struct {
	opts   *jwtopts.Options
	method jwt.SigningMethod
}

// New creates a new JWT authenticator.
func New(opts *jwtopts.Options) (*JWT, error) {
	if opts == nil {
		opts = jwtopts.NewOptions()
	}
	if err := opts.Complete(); err != nil {
		return nil, fmt.Errorf("complete options: %w", err)
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validate options: %w", utilerrors.NewAggregate(errs))
	}

	method := jwt.GetSigningMethod(opts.SigningMethod)
	if method == nil {
		return nil, fmt.Errorf("unsupported signing method: %s", opts.SigningMethod)
	}
	return &JWT{opts: opts, method: method}, nil
}

// IsDisabled returns true if authentication is disabled.
func (j *JWT) IsDisabled() bool {
	return j.opts.DisableAuth
}

// DefaultOwner is the owner id used while authentication is disabled.
func (j *JWT) DefaultOwner() string {
	return j.opts.DefaultOwner
}

// Sign creates a new token for the given subject.
func (j *JWT) Sign(subject string, roles ...string) (string, error) {
	now := time.Now()
	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(j.opts.Expired).Unix(),
		"jti": tokenID,
	}
	if j.opts.Issuer != "" {
		claims["iss"] = j.opts.Issuer
	}
	if len(roles) > 0 {
		claims[j.opts.RolesClaim] = roles
	}

	key, err := j.signingKey()
	if err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(j.method, claims).SignedString(key)
	if err != nil {
		return "", errors.ErrInternal.WithCause(err).WithMessage("failed to sign token")
	}
	return signed, nil
}

// Verify validates the token and returns its claims.
func (j *JWT) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.ErrInvalidToken.WithMessage("token is empty")
	}

	mc := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, mc, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.verifyingKey()
	})
	if err != nil {
		return nil, mapParseError(err)
	}
	if !token.Valid {
		return nil, errors.ErrInvalidToken
	}

	if j.opts.Issuer != "" && !mc.VerifyIssuer(j.opts.Issuer, true) {
		return nil, errors.ErrInvalidToken.WithMessage("unexpected issuer")
	}

	sub, _ := mc["sub"].(string)
	if sub == "" {
		return nil, errors.ErrInvalidToken.WithMessage("missing subject")
	}

	claims := &Claims{
		Subject: sub,
		Roles:   stringSlice(mc[j.opts.RolesClaim]),
	}
	claims.Issuer, _ = mc["iss"].(string)
	claims.ID, _ = mc["jti"].(string)
	if exp, ok := mc["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return claims, nil
}

// stringSlice 兼容 ["a","b"] 与 "a b" 两种 roles 写法。
func stringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		return strings.Fields(t)
	default:
		return nil
	}
}

func (j *JWT) signingKey() (interface{}, error) {
	if j.opts.IsHMAC() {
		return []byte(j.opts.Key), nil
	}

	block, _ := pem.Decode([]byte(j.opts.Key))
	if block == nil {
		return nil, errors.ErrInvalidParam.WithMessage("invalid private key PEM format")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// PKCS8 fallback
		pkcs8Key, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, errors.ErrInvalidParam.WithCause(err).WithMessage("failed to parse RSA private key")
		}
		return pkcs8Key, nil
	}
	return key, nil
}

func (j *JWT) verifyingKey() (interface{}, error) {
	if j.opts.IsHMAC() {
		return []byte(j.opts.Key), nil
	}
	if j.opts.PublicKey == "" {
		return nil, errors.ErrInvalidParam.WithMessage("public key required for RSA verification")
	}

	block, _ := pem.Decode([]byte(j.opts.PublicKey))
	if block == nil {
		return nil, errors.ErrInvalidParam.WithMessage("invalid public key PEM format")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.ErrInvalidParam.WithCause(err).WithMessage("failed to parse public key")
	}
	return key, nil
}

// mapParseError maps jwt parse errors to errnos.
func mapParseError(err error) *errors.Errno {
	var ve *jwt.ValidationError
	if !stderrors.As(err, &ve) {
		return errors.ErrInvalidToken.WithCause(err)
	}
	switch {
	case ve.Errors&jwt.ValidationErrorExpired != 0:
		return errors.ErrTokenExpired
	case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
		return errors.ErrInvalidToken.WithMessage("invalid signature")
	case ve.Errors&jwt.ValidationErrorMalformed != 0:
		return errors.ErrInvalidToken.WithMessage("malformed token")
	case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
		return errors.ErrInvalidToken.WithMessage("token not valid yet")
	default:
		return errors.ErrInvalidToken.WithCause(err)
	}
}

func generateTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.ErrInternal.WithCause(err).WithMessage("failed to generate token ID")
	}
	return hex.EncodeToString(b), nil
}
