package server

import (
	"context"
	"log/slog"
	"net"

	"github.com/krolaw/dhcp4"
)

// PacketSource is a dispatch.Source that owns the raw DHCPv4 UDP
// socket. It does its own blocking reads on a dedicated goroutine (per
// krolaw/dhcp4's own Serve loop) but, unlike that library's default
// Serve, never calls the handler directly: it posts the decode-and-
// respond work onto the dispatcher's event channel so every lease
// mutation still happens on the single dispatcher goroutine, per spec
// §5.
type PacketSource struct {
	Conn     *net.UDPConn
	Handler  dhcp4.Handler
	ServerIP net.IP
	Logger   *slog.Logger
}

// Run reads packets until ctx is canceled, handing each one to post as
// a callback that decodes options, calls Handler.ServeDHCP, and writes
// back any reply.
func (s *PacketSource) Run(ctx context.Context, post func(func())) {
	go func() {
		<-ctx.Done()
		s.Conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, addr, err := s.Conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if s.Logger != nil {
					s.Logger.Warn("dhcp4 read error", "error", err)
				}
				continue
			}
		}
		if n < 240 {
			continue
		}
		req := dhcp4.Packet(append([]byte(nil), buf[:n]...))
		if req.HLen() > 16 {
			continue
		}
		opts := req.ParseOptions()
		mtBytes, ok := opts[dhcp4.OptionDHCPMessageType]
		if !ok || len(mtBytes) != 1 {
			continue
		}
		msgType := dhcp4.MessageType(mtBytes[0])
		if msgType < dhcp4.Discover || msgType > dhcp4.Inform {
			continue
		}

		from := addr
		select {
		case <-ctx.Done():
			return
		default:
		}
		post(func() {
			reply := s.Handler.ServeDHCP(req, msgType, s.ServerIP, opts)
			if reply == nil {
				return
			}
			if _, err := s.Conn.WriteToUDP(reply, from); err != nil && s.Logger != nil {
				s.Logger.Warn("dhcp4 write error", "error", err)
			}
		})
	}
}
