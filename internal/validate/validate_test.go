package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMAC(t *testing.T) {
	require.NoError(t, MAC("aa:bb:cc:dd:ee:ff"))
	require.Error(t, MAC(""))
	require.Error(t, MAC("not-a-mac"))
}

func TestIP(t *testing.T) {
	require.NoError(t, IP("10.0.0.1"))
	require.Error(t, IP(""))
	require.Error(t, IP("bogus"))
}

func TestCIDR(t *testing.T) {
	require.NoError(t, CIDR("10.0.0.0/24"))
	require.Error(t, CIDR("10.0.0.0"))
}

func TestHostname(t *testing.T) {
	require.NoError(t, Hostname("host-01"))
	require.Error(t, Hostname(""))
	require.Error(t, Hostname("bad_host!"))
}

func TestPort(t *testing.T) {
	require.NoError(t, Port("8080"))
	require.Error(t, Port("0"))
	require.Error(t, Port("70000"))
	require.Error(t, Port("not-a-port"))
}

func TestRequired(t *testing.T) {
	require.NoError(t, Required("f", "x"))
	require.Error(t, Required("f", "   "))
}

func TestMaxLength(t *testing.T) {
	require.NoError(t, MaxLength("f", "abc", 5))
	require.Error(t, MaxLength("f", "abcdef", 5))
}
