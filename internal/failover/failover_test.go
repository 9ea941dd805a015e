package failover

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Type: MsgUpdate, Sequence: 42, PayloadLen: 17}
	got, err := DecodeHeader(EncodeHeader(h))
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestConnectRoundTrip(t *testing.T) {
	p := ConnectPayload{ServerName: "dhcpd-primary", MajorVer: 2, MinorVer: 0}
	got, err := DecodeConnect(EncodeConnect(p))
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestUpdateRoundTrip(t *testing.T) {
	p := UpdatePayload{
		IP:           [4]byte{10, 0, 0, 5},
		ClientID:     []byte{1, 2, 3},
		HWAddr:       []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		ExpiresUnix:  1700000000,
		BindingState: StateNormal,
	}
	got, err := DecodeUpdate(EncodeUpdate(p))
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestUpdateTruncated(t *testing.T) {
	_, err := DecodeUpdate([]byte{10, 0, 0, 5, 0})
	require.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	got, err := DecodeState(EncodeState(StatePayload{State: StateCommunicationsInterrupted}))
	require.NoError(t, err)
	require.Equal(t, StateCommunicationsInterrupted, got.State)
}

func TestMessageTypeString(t *testing.T) {
	require.Equal(t, "connect", MsgConnect.String())
	require.Equal(t, "pool-resp", MsgPoolResp.String())
}
