package etcd

import (
	"encoding/json"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/bhasha/pkg/options/etcd"
)

func TestNewInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		opts   *options.Options
		mutate func(*options.Options)
	}{
		{name: "空配置", opts: nil},
		{name: "缺少 endpoints", opts: options.NewOptions(), mutate: func(o *options.Options) { o.Endpoints = nil }},
		{name: "启用时缺少公布地址", opts: options.NewOptions(), mutate: func(o *options.Options) { o.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mutate != nil {
				tt.mutate(tt.opts)
			}
			_, err := New(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestOptions(t *testing.T) {
	o := options.NewOptions()
	assert.Empty(t, o.Validate())

	o.Password = "secret"
	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"secret"`)
	assert.NotContains(t, o.String(), "secret")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--etcd.enabled",
		"--etcd.endpoints=e1:2379,e2:2379",
		"--etcd.advertise-url=http://10.0.0.5:8000",
	}))
	assert.True(t, o.Enabled)
	assert.Equal(t, []string{"e1:2379", "e2:2379"}, o.Endpoints)
	assert.Empty(t, o.Validate())
}
