// Package etcd wraps the etcd v3 client as a storage.Client.
package etcd

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/bhasha/pkg/component/storage"
	options "github.com/kart-io/bhasha/pkg/options/etcd"
)

var _ storage.Client = (*Client)(nil)

// Client wraps clientv3.Client.
type Client struct {
	client *clientv3.Client
	opts   *options.Options
}

// New creates a new etcd client.
func New(opts *options.Options) (*Client, error) {
	return NewWithContext(context.Background(), opts)
}

// NewWithContext dials etcd and checks the first endpoint's status.
func NewWithContext(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("etcd options cannot be nil")
	}
	if err := opts.Complete(); err != nil {
		return nil, err
	}
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("invalid etcd options: endpoints are required")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid etcd options: %w", utilerrors.NewAggregate(errs))
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		Username:    opts.Username,
		Password:    opts.Password,
		DialTimeout: opts.DialTimeout,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	c := &Client{client: cli, opts: opts}
	if err := c.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return c, nil
}

// Name returns the storage type identifier.
func (c *Client) Name() string {
	return "etcd"
}

// Ping queries the status of the first endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	if _, err := c.client.Status(ctx, c.opts.Endpoints[0]); err != nil {
		return fmt.Errorf("failed to reach etcd at %s: %w", c.opts.Endpoints[0], err)
	}
	return nil
}

// Close closes the client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Client returns the underlying clientv3.Client.
func (c *Client) Client() *clientv3.Client {
	return c.client
}
