// Package failover defines the ISC dhcpd failover peer-link message
// framing (RFC-draft "DHCP Failover Protocol" §binding-update-message-
// format): connect, connect-ack, update, update-ack, poolreq,
// poolresp, state, contact. It is wire framing only — struct types
// plus binary encode/decode — with no peer-consensus state machine,
// per spec's Non-goals.
package failover

import (
	"encoding/binary"
	"fmt"
)

// MessageType is the failover peer-link opcode.
type MessageType uint16

const (
	MsgConnect MessageType = iota + 1
	MsgConnectAck
	MsgUpdate
	MsgUpdateAck
	MsgPoolReq
	MsgPoolResp
	MsgState
	MsgContact
)

func (m MessageType) String() string {
	switch m {
	case MsgConnect:
		return "connect"
	case MsgConnectAck:
		return "connect-ack"
	case MsgUpdate:
		return "update"
	case MsgUpdateAck:
		return "update-ack"
	case MsgPoolReq:
		return "pool-req"
	case MsgPoolResp:
		return "pool-resp"
	case MsgState:
		return "state"
	case MsgContact:
		return "contact"
	default:
		return "unknown"
	}
}

// PeerState is the failover role/state a peer reports in a State
// message (CPL §failover-states, trimmed to the values this framing
// layer needs to carry; the peer-consensus transitions between them
// are not implemented).
type PeerState uint8

const (
	StateUnknownPeer PeerState = iota
	StatePartnerDown
	StateNormal
	StateCommunicationsInterrupted
	StatePotentialConflict
	StateRecover
	StatePaused
)

// Header is the fixed-size prefix every peer-link frame carries: a
// message type, a sequence number for connect/contact liveness
// tracking, and a payload length so the reader can frame the next
// message off a stream socket.
type Header struct {
	Type       MessageType
	Sequence   uint32
	PayloadLen uint32
}

const headerLen = 2 + 4 + 4

// EncodeHeader writes h's wire form.
func EncodeHeader(h Header) []byte {
	b := make([]byte, headerLen)
	binary.BigEndian.PutUint16(b[0:2], uint16(h.Type))
	binary.BigEndian.PutUint32(b[2:6], h.Sequence)
	binary.BigEndian.PutUint32(b[6:10], h.PayloadLen)
	return b
}

// DecodeHeader parses a frame's fixed header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < headerLen {
		return Header{}, fmt.Errorf("failover: short header (%d bytes)", len(b))
	}
	return Header{
		Type:       MessageType(binary.BigEndian.Uint16(b[0:2])),
		Sequence:   binary.BigEndian.Uint32(b[2:6]),
		PayloadLen: binary.BigEndian.Uint32(b[6:10]),
	}, nil
}

// ConnectPayload is the Connect/ConnectAck body: peer identity and the
// protocol version it speaks.
type ConnectPayload struct {
	ServerName string
	MajorVer   uint8
	MinorVer   uint8
}

// EncodeConnect serializes a ConnectPayload as a length-prefixed name
// followed by the two version bytes.
func EncodeConnect(p ConnectPayload) []byte {
	name := []byte(p.ServerName)
	b := make([]byte, 2+len(name)+2)
	binary.BigEndian.PutUint16(b[0:2], uint16(len(name)))
	copy(b[2:], name)
	b[2+len(name)] = p.MajorVer
	b[2+len(name)+1] = p.MinorVer
	return b
}

// DecodeConnect parses a ConnectPayload.
func DecodeConnect(b []byte) (ConnectPayload, error) {
	if len(b) < 2 {
		return ConnectPayload{}, fmt.Errorf("failover: short connect payload")
	}
	nameLen := int(binary.BigEndian.Uint16(b[0:2]))
	if len(b) < 2+nameLen+2 {
		return ConnectPayload{}, fmt.Errorf("failover: connect payload truncated")
	}
	return ConnectPayload{
		ServerName: string(b[2 : 2+nameLen]),
		MajorVer:   b[2+nameLen],
		MinorVer:   b[2+nameLen+1],
	}, nil
}

// UpdatePayload carries one lease binding update, per the protocol's
// binding-update-message-format: the assigned address, its client
// identity, and the binding's expiry.
type UpdatePayload struct {
	IP           [4]byte
	ClientID     []byte
	HWAddr       []byte
	ExpiresUnix  int64
	BindingState PeerState
}

// EncodeUpdate serializes an UpdatePayload.
func EncodeUpdate(p UpdatePayload) []byte {
	b := make([]byte, 4+1+len(p.ClientID)+1+len(p.HWAddr)+8+1)
	off := 0
	copy(b[off:off+4], p.IP[:])
	off += 4
	b[off] = uint8(len(p.ClientID))
	off++
	copy(b[off:off+len(p.ClientID)], p.ClientID)
	off += len(p.ClientID)
	b[off] = uint8(len(p.HWAddr))
	off++
	copy(b[off:off+len(p.HWAddr)], p.HWAddr)
	off += len(p.HWAddr)
	binary.BigEndian.PutUint64(b[off:off+8], uint64(p.ExpiresUnix))
	off += 8
	b[off] = uint8(p.BindingState)
	return b
}

// DecodeUpdate parses an UpdatePayload.
func DecodeUpdate(b []byte) (UpdatePayload, error) {
	if len(b) < 4+1 {
		return UpdatePayload{}, fmt.Errorf("failover: short update payload")
	}
	var p UpdatePayload
	off := 0
	copy(p.IP[:], b[off:off+4])
	off += 4

	cidLen := int(b[off])
	off++
	if len(b) < off+cidLen+1 {
		return UpdatePayload{}, fmt.Errorf("failover: update payload truncated (client-id)")
	}
	p.ClientID = append([]byte(nil), b[off:off+cidLen]...)
	off += cidLen

	hwLen := int(b[off])
	off++
	if len(b) < off+hwLen+8+1 {
		return UpdatePayload{}, fmt.Errorf("failover: update payload truncated (hwaddr/tail)")
	}
	p.HWAddr = append([]byte(nil), b[off:off+hwLen]...)
	off += hwLen

	p.ExpiresUnix = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	p.BindingState = PeerState(b[off])
	return p, nil
}

// StatePayload is the State message body: the sender's current
// failover role/state.
type StatePayload struct {
	State PeerState
}

func EncodeState(p StatePayload) []byte { return []byte{uint8(p.State)} }

func DecodeState(b []byte) (StatePayload, error) {
	if len(b) < 1 {
		return StatePayload{}, fmt.Errorf("failover: short state payload")
	}
	return StatePayload{State: PeerState(b[0])}, nil
}
