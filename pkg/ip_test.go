package pkg

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPIsLocal(t *testing.T) {
	assert.True(t, IPIsLocal("127.0.0.1:8080"))
	assert.True(t, IPIsLocal("172.17.0.1:45912"))
	assert.False(t, IPIsLocal("93.184.216.34"))
}

func TestReadUserIP(t *testing.T) {
	req, err := http.NewRequest("GET", "/dashboard", nil)
	require.NoError(t, err)

	req.Header.Set("X-Real-Ip", "93.184.216.34")
	ip, err := ReadUserIP(req)
	require.NoError(t, err)
	assert.Equal(t, "93.184.216.34", ip)

	req.Header.Set("X-Real-Ip", "127.0.0.1:51515")
	ip, err = ReadUserIP(req)
	require.NoError(t, err)
	assert.Equal(t, "localhost", ip)
}
