// Package etcd provides etcd options for bhasha.
//
// etcd is optional: when enabled the HTTP server registers itself under
// the traefik KV layout so a Traefik edge router can discover it.
package etcd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/bhasha/pkg/options"
)

const redactedPassword = "[REDACTED]"

// PasswordEnv is read when no password was configured.
const PasswordEnv = "BHASHA_RAG_ETCD_PASSWORD"

var _ options.IOptions = (*Options)(nil)

// Options defines configuration options for etcd.
type Options struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	Endpoints      []string      `json:"endpoints" mapstructure:"endpoints"`
	Username       string        `json:"username" mapstructure:"username"`
	Password       string        `json:"-" mapstructure:"password"`
	DialTimeout    time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`
	LeaseTTL       int64         `json:"lease-ttl" mapstructure:"lease-ttl"`
	// AdvertiseURL is the URL other services use to reach this instance.
	AdvertiseURL string `json:"advertise-url" mapstructure:"advertise-url"`
	// Rule is the Traefik router rule published for the service.
	Rule string `json:"rule" mapstructure:"rule"`
}

// MarshalJSON implements json.Marshaler with password redaction.
func (o *Options) MarshalJSON() ([]byte, error) {
	type plain Options
	out := struct {
		*plain
		Password string `json:"password"`
	}{plain: (*plain)(o)}
	if o.Password != "" {
		out.Password = redactedPassword
	}
	return json.Marshal(out)
}

// String returns a string representation with password redacted.
func (o *Options) String() string {
	password := redactedPassword
	if o.Password == "" {
		password = ""
	}
	return fmt.Sprintf("Etcd{endpoints=%v, user=%s, password=%s}",
		o.Endpoints, o.Username, password)
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Endpoints:      []string{"127.0.0.1:2379"},
		DialTimeout:    5 * time.Second,
		RequestTimeout: 2 * time.Second,
		LeaseTTL:       10,
		Rule:           "PathPrefix(`/v1`)",
	}
}

// Complete reads the password from the environment when it was not configured.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv(PasswordEnv)
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if len(o.Endpoints) == 0 {
		errs = append(errs, fmt.Errorf("etcd.endpoints is required when etcd is enabled"))
	}
	if o.LeaseTTL < 5 {
		errs = append(errs, fmt.Errorf("etcd.lease-ttl must be at least 5 seconds, got %d", o.LeaseTTL))
	}
	if o.AdvertiseURL == "" {
		errs = append(errs, fmt.Errorf("etcd.advertise-url is required when etcd is enabled"))
	}
	return errs
}

// AddFlags adds flags for etcd options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "etcd."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Register the service in etcd for Traefik discovery.")
	fs.StringSliceVar(&o.Endpoints, p+"endpoints", o.Endpoints, "Etcd endpoints")
	fs.StringVar(&o.Username, p+"username", o.Username, "Etcd username")
	fs.StringVar(&o.Password, p+"password", o.Password, "Etcd password (prefer "+PasswordEnv+")")
	fs.DurationVar(&o.DialTimeout, p+"dial-timeout", o.DialTimeout, "Etcd dial timeout")
	fs.DurationVar(&o.RequestTimeout, p+"request-timeout", o.RequestTimeout, "Etcd request timeout")
	fs.Int64Var(&o.LeaseTTL, p+"lease-ttl", o.LeaseTTL, "Registration lease TTL in seconds")
	fs.StringVar(&o.AdvertiseURL, p+"advertise-url", o.AdvertiseURL, "URL published for this instance, e.g. http://10.0.0.5:8000")
	fs.StringVar(&o.Rule, p+"rule", o.Rule, "Traefik router rule for the service")
}
