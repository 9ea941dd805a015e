package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()

	dhcpU, ok := r.Universe("dhcp")
	require.True(t, ok)
	def, ok := dhcpU.ByName("subnet-mask")
	require.True(t, ok)
	assert.Equal(t, CodeSubnetMask, def.Code)

	serverU, ok := r.Universe("server")
	require.True(t, ok)
	_, ok = serverU.ByCode(ServerCodeAuthoritative)
	assert.True(t, ok)
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	st := NewState()
	st.Set("dhcp", CodeSubnetMask, &Cache{Data: []byte{255, 255, 255, 0}})
	st.Set("dhcp", CodeRouter, &Cache{Data: []byte{192, 0, 2, 1}})

	res := Encapsulate(st, "dhcp", nil, 312, 128, 64)
	assert.False(t, res.Overloaded)

	decoded, err := DecodeDHCP(res.Options)
	require.NoError(t, err)

	mask, ok := decoded.Get("dhcp", CodeSubnetMask)
	require.True(t, ok)
	assert.Equal(t, []byte{255, 255, 255, 0}, mask.Data)
}

func TestEncapsulateSegmentsLongValues(t *testing.T) {
	st := NewState()
	long := make([]byte, 300)
	for i := range long {
		long[i] = byte(i)
	}
	st.Set("dhcp", CodeBootFileName, &Cache{Data: long})

	res := Encapsulate(st, "dhcp", nil, 4096, 0, 0)
	decoded, err := DecodeDHCP(res.Options)
	require.NoError(t, err)

	got, ok := decoded.Get("dhcp", CodeBootFileName)
	require.True(t, ok)
	assert.Equal(t, long, got.Data)
}

func TestEncapsulateOverloadsWhenMainIsFull(t *testing.T) {
	st := NewState()
	st.Set("dhcp", CodeSubnetMask, &Cache{Data: []byte{255, 255, 255, 0}})
	st.Set("dhcp", CodeBootFileName, &Cache{Data: []byte("pxelinux.0")})

	res := Encapsulate(st, "dhcp", nil, 4 /* forces overflow immediately */, 128, 64)
	assert.True(t, res.Overloaded)
}

func TestEncapsulateTruncatesUnderOverflow(t *testing.T) {
	st := NewState()
	st.Set("dhcp", CodeSubnetMask, &Cache{Data: []byte{255, 255, 255, 0}})
	st.Set("dhcp", CodeRouter, &Cache{Data: []byte{192, 0, 2, 1}})
	st.Set("dhcp", CodeDomainNameServer, &Cache{Data: []byte{8, 8, 8, 8}})

	res := Encapsulate(st, "dhcp", nil, 6, 0, 0)
	assert.NotEmpty(t, res.Truncated)
}

func TestPRLOrderingWins(t *testing.T) {
	st := NewState()
	st.Set("dhcp", CodeSubnetMask, &Cache{Data: []byte{255, 255, 255, 0}})
	st.Set("dhcp", CodeRouter, &Cache{Data: []byte{192, 0, 2, 1}})

	order := orderedCodes(st, "dhcp", []uint8{CodeRouter, CodeSubnetMask})
	require.Len(t, order, 2)
	assert.Equal(t, CodeRouter, order[0])
	assert.Equal(t, CodeSubnetMask, order[1])
}
