// Package jwt provides JWT configuration options for bhasha.
//
// Configuration Example (YAML):
//
//	jwt:
//	  key: "your-secret-key-must-be-at-least-64-chars-long-for-security-purposes!!"
//	  signing-method: "HS256"
//	  expired: "2h"
//	  issuer: "bhasha-rag"
//	  roles-claim: "roles"
//
// Environment Variables:
//
//	BHASHA_RAG_JWT_KEY            - JWT signing key
//	BHASHA_RAG_JWT_DISABLE_AUTH   - disable authentication (local use)
package jwt

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/bhasha/pkg/options"
)

const (
	// DefaultSigningMethod is the default JWT signing algorithm.
	DefaultSigningMethod = "HS256"

	// DefaultExpired is the default token expiration time.
	DefaultExpired = 2 * time.Hour

	// DefaultIssuer is the default token issuer.
	DefaultIssuer = "bhasha-rag"

	// DefaultRolesClaim is the claim carrying role names.
	DefaultRolesClaim = "roles"

	// DefaultOwner acts as the request owner when authentication is disabled.
	DefaultOwner = "local"

	// MinKeyLength is the minimum required key length for HMAC algorithms.
	MinKeyLength = 64

	// MaxKeyLength is the maximum allowed key length.
	MaxKeyLength = 512
)

// SupportedSigningMethods contains all supported JWT signing algorithms.
var SupportedSigningMethods = map[string]bool{
	"HS256": true,
	"HS384": true,
	"HS512": true,
	"RS256": true,
	"RS384": true,
	"RS512": true,
}

var _ options.IOptions = (*Options)(nil)

// Options contains JWT configuration.
type Options struct {
	// DisableAuth disables JWT authentication.
	// Every request then acts as DefaultOwner with the admin role.
	DisableAuth bool `json:"disable-auth" mapstructure:"disable-auth"`

	// Key is the secret key (HMAC) or PEM private key (RSA) used to sign tokens.
	Key string `json:"key" mapstructure:"key"`

	// PublicKey is the PEM public key for RSA algorithms.
	PublicKey string `json:"public-key" mapstructure:"public-key"`

	// SigningMethod is the JWT signing algorithm.
	SigningMethod string `json:"signing-method" mapstructure:"signing-method"`

	// Expired is the lifetime of tokens issued by Sign.
	Expired time.Duration `json:"expired" mapstructure:"expired"`

	// Issuer is the expected iss claim. Empty disables the check.
	Issuer string `json:"issuer" mapstructure:"issuer"`

	// RolesClaim names the claim that holds the subject's roles.
	RolesClaim string `json:"roles-claim" mapstructure:"roles-claim"`

	// DefaultOwner is used when DisableAuth is set.
	DefaultOwner string `json:"default-owner" mapstructure:"default-owner"`
}

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		SigningMethod: DefaultSigningMethod,
		Expired:       DefaultExpired,
		Issuer:        DefaultIssuer,
		RolesClaim:    DefaultRolesClaim,
		DefaultOwner:  DefaultOwner,
	}
}

// Validate validates the JWT options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	// 关闭认证时无需校验密钥
	if o.DisableAuth {
		if o.DefaultOwner == "" {
			return []error{fmt.Errorf("jwt.default-owner is required when auth is disabled")}
		}
		return nil
	}

	var errs []error
	if !SupportedSigningMethods[o.SigningMethod] {
		errs = append(errs, fmt.Errorf("unsupported signing method: %s", o.SigningMethod))
	}
	if err := o.validateKey(); err != nil {
		errs = append(errs, err)
	}
	if o.Expired <= 0 {
		errs = append(errs, fmt.Errorf("jwt.expired must be positive, got: %v", o.Expired))
	}
	return errs
}

func (o *Options) validateKey() error {
	if o.Key == "" && o.PublicKey == "" {
		return fmt.Errorf("jwt key is required")
	}
	if o.IsHMAC() {
		if len(o.Key) < MinKeyLength {
			return fmt.Errorf("jwt key must be at least %d characters for HMAC algorithms, got: %d",
				MinKeyLength, len(o.Key))
		}
		if len(o.Key) > MaxKeyLength {
			return fmt.Errorf("jwt key must be at most %d characters, got: %d",
				MaxKeyLength, len(o.Key))
		}
	}
	return nil
}

// IsHMAC returns true if the signing method is an HMAC algorithm.
func (o *Options) IsHMAC() bool {
	return o.SigningMethod == "HS256" || o.SigningMethod == "HS384" || o.SigningMethod == "HS512"
}

// Complete fills in default values for unset fields.
func (o *Options) Complete() error {
	if o.SigningMethod == "" {
		o.SigningMethod = DefaultSigningMethod
	}
	if o.Expired == 0 {
		o.Expired = DefaultExpired
	}
	if o.RolesClaim == "" {
		o.RolesClaim = DefaultRolesClaim
	}
	if o.DefaultOwner == "" {
		o.DefaultOwner = DefaultOwner
	}
	return nil
}

// AddFlags adds flags for JWT options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "jwt."
	fs.BoolVar(&o.DisableAuth, p+"disable-auth", o.DisableAuth,
		"Disable JWT authentication; requests act as the default owner.")
	fs.StringVar(&o.Key, p+"key", o.Key,
		"JWT signing key (min 64 chars for HMAC algorithms, PEM private key for RSA).")
	fs.StringVar(&o.PublicKey, p+"public-key", o.PublicKey,
		"JWT public key for RSA algorithms.")
	fs.StringVar(&o.SigningMethod, p+"signing-method", o.SigningMethod,
		"JWT signing algorithm (HS256, HS384, HS512, RS256, RS384, RS512).")
	fs.DurationVar(&o.Expired, p+"expired", o.Expired,
		"JWT token expiration duration.")
	fs.StringVar(&o.Issuer, p+"issuer", o.Issuer,
		"Expected JWT issuer (iss claim). Empty disables the check.")
	fs.StringVar(&o.RolesClaim, p+"roles-claim", o.RolesClaim,
		"Claim holding the subject's roles.")
	fs.StringVar(&o.DefaultOwner, p+"default-owner", o.DefaultOwner,
		"Owner id used for every request when authentication is disabled.")
}
