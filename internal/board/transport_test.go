package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBDAddr(t *testing.T) {
	addr, err := parseBDAddr("00:1E:35:AA:bb:0C")
	require.NoError(t, err)
	assert.Equal(t, [6]uint8{0x00, 0x1E, 0x35, 0xAA, 0xBB, 0x0C}, addr)

	for _, bad := range []string{"", "00:1E:35:AA:BB", "00:1E:35:AA:BB:CC:DD", "0:1E:35:AA:BB:CC", "GG:1E:35:AA:BB:CC"} {
		_, err := parseBDAddr(bad)
		assert.Error(t, err, bad)
	}
}
