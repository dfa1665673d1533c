package cache

import (
	"strconv"
	"testing"

	"pointsystem/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	host := mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := InitRedis(&config.RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	assert.NoError(t, client.Close())

	mr.Close()
	_, err = InitRedis(&config.RedisConfig{Host: host, Port: port})
	assert.Error(t, err)
}
