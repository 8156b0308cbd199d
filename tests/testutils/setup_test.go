package testutils

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultToxiproxyConfig(t *testing.T) {
	t.Setenv("SETSTREAM_HOST", "")

	var buf bytes.Buffer
	config := DefaultToxiproxyConfig(zerolog.New(&buf))

	require.Len(t, config.Proxies, 3)
	assert.Equal(t, "setstream1:6379", config.Proxies[0].Upstream)
	assert.Equal(t, []string{"127.0.0.1:26381", "127.0.0.1:26382", "127.0.0.1:26383"}, config.ClientAddrs())
	assert.Empty(t, buf.String())
}

func TestDefaultToxiproxyConfig_RemoteHost(t *testing.T) {
	t.Setenv("SETSTREAM_HOST", "10.1.2.3")

	var buf bytes.Buffer
	config := DefaultToxiproxyConfig(zerolog.New(&buf))

	assert.Equal(t, "10.1.2.3:6381", config.Proxies[0].Upstream)
	assert.Equal(t, "10.1.2.3:6383", config.Proxies[2].Upstream)
	assert.Contains(t, buf.String(), `"message":"resolved toxiproxy upstream host"`)
	assert.Contains(t, buf.String(), `"ip":"10.1.2.3"`)
}
