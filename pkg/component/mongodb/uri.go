package mongodb

import (
	"net"
	"net/url"
	"strconv"

	options "github.com/kart-io/bhasha/pkg/options/mongodb"
)

// BuildURI 返回连接串。显式配置的 URI（如 mongodb+srv://）原样使用。
func BuildURI(opts *options.Options) string {
	if opts.URI != "" {
		return opts.URI
	}

	u := url.URL{Scheme: "mongodb", Host: opts.Host, Path: "/" + opts.Database}
	if opts.Port != 0 {
		u.Host = net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	}
	switch {
	case opts.Username != "" && opts.Password != "":
		u.User = url.UserPassword(opts.Username, opts.Password)
	case opts.Username != "":
		u.User = url.User(opts.Username)
	}

	q := url.Values{}
	// admin 是驱动默认的认证库
	if opts.AuthSource != "" && opts.AuthSource != "admin" {
		q.Set("authSource", opts.AuthSource)
	}
	if opts.ReplicaSet != "" {
		q.Set("replicaSet", opts.ReplicaSet)
	}
	if opts.Direct {
		q.Set("directConnection", "true")
	}
	u.RawQuery = q.Encode()

	return u.String()
}
