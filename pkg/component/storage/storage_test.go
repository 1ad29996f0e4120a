package storage

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/pool"
)

type fakeClient struct {
	name    string
	pingErr error
	closed  bool
}

func (f *fakeClient) Name() string                 { return f.name }
func (f *fakeClient) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeClient) Close() error                 { f.closed = true; return nil }

func TestManagerRegister(t *testing.T) {
	m := NewManager(nil)

	require.NoError(t, m.Register("db", &fakeClient{name: "sqlite"}))
	err := m.Register("db", &fakeClient{name: "sqlite"})
	assert.True(t, errors.IsCode(err, errors.ErrAlreadyExists.Code))
	assert.Error(t, m.Register("", &fakeClient{}))

	_, err = m.Get("redis")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound.Code))

	require.NoError(t, m.Register("redis", &fakeClient{name: "redis"}))
	assert.True(t, m.Has("redis"))
	assert.Equal(t, []string{"db", "redis"}, m.List())
}

func TestManagerHealthCheckAll(t *testing.T) {
	p, err := pool.NewPool("health", pool.BackgroundPool, pool.BackgroundPoolConfig())
	require.NoError(t, err)
	defer p.Release()

	tests := []struct {
		name string
		pool *pool.Pool
	}{
		{name: "使用协程池", pool: p},
		{name: "无协程池", pool: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.pool)
			require.NoError(t, m.Register("db", &fakeClient{name: "sqlite"}))
			require.NoError(t, m.Register("redis", &fakeClient{name: "redis", pingErr: stderrors.New("refused")}))

			statuses := m.HealthCheckAll(context.Background())
			require.Len(t, statuses, 2)
			assert.True(t, statuses["db"].Healthy)
			assert.False(t, statuses["redis"].Healthy)
			assert.Equal(t, "refused", statuses["redis"].Error)
			assert.False(t, m.AllHealthy(context.Background()))
		})
	}
}

func TestManagerCloseAll(t *testing.T) {
	m := NewManager(nil)
	c := &fakeClient{name: "sqlite"}
	require.NoError(t, m.Register("db", c))

	require.NoError(t, m.CloseAll())
	assert.True(t, c.closed)
	assert.Empty(t, m.List())
}
