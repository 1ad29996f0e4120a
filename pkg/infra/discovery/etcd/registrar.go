// Package etcd publishes the service under the Traefik etcd KV provider
// layout so an edge router can route /v1 traffic to every running instance.
package etcd

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Registrar keeps the service registered under a lease for its lifetime.
type Registrar struct {
	client      *clientv3.Client
	serviceName string
	url         string
	rule        string
	ttl         int64

	leaseID   clientv3.LeaseID
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewRegistrar creates a new Registrar. url is the instance address published
// to Traefik, rule the router rule, ttl the lease TTL in seconds.
func NewRegistrar(client *clientv3.Client, serviceName, url, rule string, ttl int64) *Registrar {
	return &Registrar{
		client:      client,
		serviceName: serviceName,
		url:         url,
		rule:        rule,
		ttl:         ttl,
		stopCh:      make(chan struct{}),
	}
}

// InstanceID derives a stable id from the advertised URL.
func InstanceID(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:8])
}

// Keys returns the Traefik KV pairs describing one instance:
//
//	traefik/http/routers/<name>/rule -> <rule>
//	traefik/http/routers/<name>/service -> <name>
//	traefik/http/services/<name>/loadbalancer/servers/<id>/url -> <url>
func Keys(serviceName, url, rule string) map[string]string {
	return map[string]string{
		fmt.Sprintf("traefik/http/routers/%s/rule", serviceName):    rule,
		fmt.Sprintf("traefik/http/routers/%s/service", serviceName): serviceName,
		fmt.Sprintf("traefik/http/services/%s/loadbalancer/servers/%s/url", serviceName, InstanceID(url)): url,
	}
}

// Register grants a lease, writes the keys in one transaction and keeps the
// lease alive until Close.
func (r *Registrar) Register(ctx context.Context) error {
	leaseResp, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	r.leaseID = leaseResp.ID

	keepAliveCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(keepAliveCtx, r.leaseID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to keep alive lease: %w", err)
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-r.stopCh:
				return
			case _, ok := <-ch:
				if !ok {
					logger.Warnw("etcd keepalive channel closed", "service", r.serviceName)
					return
				}
			}
		}
	}()

	ops := make([]clientv3.Op, 0, 3)
	for k, v := range Keys(r.serviceName, r.url, r.rule) {
		ops = append(ops, clientv3.OpPut(k, v, clientv3.WithLease(r.leaseID)))
	}
	if _, err := r.client.Txn(ctx).Then(ops...).Commit(); err != nil {
		return fmt.Errorf("failed to register service keys: %w", err)
	}

	logger.Infow("Service registered to etcd for Traefik",
		"service", r.serviceName,
		"url", r.url,
		"rule", r.rule,
	)
	return nil
}

// Close revokes the lease, which removes the keys, and stops the keepalive.
func (r *Registrar) Close() {
	r.closeOnce.Do(func() {
		close(r.stopCh)
		if r.leaseID == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
			logger.Warnw("Failed to revoke etcd lease", "error", err)
			return
		}
		logger.Infow("Service deregistered from etcd", "service", r.serviceName)
	})
}
