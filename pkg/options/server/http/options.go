// Package http provides HTTP server configuration options.
package http

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/kart-io/bhasha/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains HTTP server configuration.
type Options struct {
	// Addr is the address to listen on.
	Addr string `json:"addr" mapstructure:"addr"`
	// Mode is the gin mode: debug, release or test.
	Mode string `json:"mode" mapstructure:"mode"`
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	// WriteTimeout must exceed the generation timeout, otherwise slow answers
	// are cut off mid-response.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
	// RequestTimeout is the per-request deadline set by middleware.
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`
	// MaxMultipartMemory is the in-memory budget for multipart uploads.
	MaxMultipartMemory int64 `json:"max-multipart-memory" mapstructure:"max-multipart-memory"`

	// CORS
	CORSAllowOrigins     []string `json:"cors-allow-origins" mapstructure:"cors-allow-origins"`
	CORSAllowCredentials bool     `json:"cors-allow-credentials" mapstructure:"cors-allow-credentials"`

	// HideVersionDetails strips build details from /version.
	HideVersionDetails bool `json:"hide-version-details" mapstructure:"hide-version-details"`
	EnableSwagger      bool `json:"enable-swagger" mapstructure:"enable-swagger"`
}

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		Addr:                 ":8000",
		Mode:                 gin.ReleaseMode,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         90 * time.Second,
		IdleTimeout:          120 * time.Second,
		ShutdownTimeout:      15 * time.Second,
		RequestTimeout:       90 * time.Second,
		MaxMultipartMemory:   32 << 20,
		CORSAllowOrigins:     []string{"http://localhost:3000"},
		CORSAllowCredentials: true,
	}
}

// AddFlags adds flags for HTTP options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "http."
	fs.StringVar(&o.Addr, p+"addr", o.Addr, "Specify the HTTP server bind address and port.")
	fs.StringVar(&o.Mode, p+"mode", o.Mode, "Gin mode: debug, release or test.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Timeout for reading the entire request.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Timeout before timing out writes of the response.")
	fs.DurationVar(&o.IdleTimeout, p+"idle-timeout", o.IdleTimeout, "Maximum amount of time to wait for the next request.")
	fs.DurationVar(&o.ShutdownTimeout, p+"shutdown-timeout", o.ShutdownTimeout, "Maximum time to wait for in-flight requests on shutdown.")
	fs.DurationVar(&o.RequestTimeout, p+"request-timeout", o.RequestTimeout, "Deadline attached to every request context.")
	fs.Int64Var(&o.MaxMultipartMemory, p+"max-multipart-memory", o.MaxMultipartMemory, "Bytes of a multipart form kept in memory.")
	fs.StringSliceVar(&o.CORSAllowOrigins, p+"cors-allow-origins", o.CORSAllowOrigins, "Origins allowed to call the API.")
	fs.BoolVar(&o.CORSAllowCredentials, p+"cors-allow-credentials", o.CORSAllowCredentials, "Allow credentials (cookies) in CORS requests.")
	fs.BoolVar(&o.HideVersionDetails, p+"hide-version-details", o.HideVersionDetails, "Hide build details in /version.")
	fs.BoolVar(&o.EnableSwagger, p+"enable-swagger", o.EnableSwagger, "Serve the OpenAPI document and UI under /swagger.")
}

// Validate validates the HTTP options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error

	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr cannot be empty"))
	}
	switch o.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		errs = append(errs, fmt.Errorf("http.mode must be debug, release or test, got %q", o.Mode))
	}
	if o.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.read-timeout must be positive"))
	}
	if o.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.write-timeout must be positive"))
	}
	if o.RequestTimeout > 0 && o.WriteTimeout > 0 && o.RequestTimeout > o.WriteTimeout {
		errs = append(errs, fmt.Errorf("http.request-timeout (%s) exceeds http.write-timeout (%s)", o.RequestTimeout, o.WriteTimeout))
	}
	if len(o.CORSAllowOrigins) == 0 {
		errs = append(errs, fmt.Errorf("http.cors-allow-origins cannot be empty"))
	}
	for _, origin := range o.CORSAllowOrigins {
		if origin == "*" && o.CORSAllowCredentials {
			errs = append(errs, fmt.Errorf("http.cors-allow-origins \"*\" cannot be combined with credentials"))
			break
		}
	}

	return errs
}

// Complete completes the HTTP options with defaults.
func (o *Options) Complete() error {
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 15 * time.Second
	}
	if o.MaxMultipartMemory <= 0 {
		o.MaxMultipartMemory = 32 << 20
	}
	return nil
}
