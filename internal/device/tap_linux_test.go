//go:build linux

package device

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs CAP_NET_ADMIN; skipped elsewhere.
func TestOpenTAP(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	if _, err := os.Stat(cloneDevice); err != nil {
		t.Skip("no " + cloneDevice)
	}

	tap, err := OpenTAP("tstest0")
	require.NoError(t, err)
	defer tap.Close()
	assert.Equal(t, "tstest0", tap.Name())

	raw, err := EtherTypeFilter(StackEtherTypes...)
	require.NoError(t, err)
	assert.NoError(t, tap.AttachFilter(raw))

	require.NoError(t, tap.Close())
	_, err = tap.ReadFrame(make([]byte, 1514))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenTAPNameTooLong(t *testing.T) {
	_, err := OpenTAP("this-name-is-way-too-long")
	assert.Error(t, err)
}
