package controlsocket

import (
	"bufio"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dhcpd/internal/group"
	"dhcpd/internal/options"
)

func startTestServer(t *testing.T) (net.Conn, func()) {
	t.Helper()
	root := group.New(group.KindRoot, "", nil)
	group.New(group.KindSubnet, "10.0.0.0", root)

	reg := options.NewRegistry()
	srv := &Server{Root: root, Registry: reg}

	path := filepath.Join(t.TempDir(), "ctl.sock")
	ln, err := Listen(path)
	require.NoError(t, err)

	go srv.Serve(ln)

	var conn net.Conn
	require.Eventually(t, func() bool {
		conn, err = net.Dial("unix", path)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	return conn, func() {
		conn.Close()
		ln.Close()
	}
}

func sendLine(t *testing.T, conn net.Conn, r *bufio.Reader, line string) string {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
	reply, err := r.ReadString('\n')
	require.NoError(t, err)
	return reply
}

func TestLsCdPrintExit(t *testing.T) {
	conn, cleanup := startTestServer(t)
	defer cleanup()
	r := bufio.NewReader(conn)

	reply := sendLine(t, conn, r, "ls")
	require.Contains(t, reply, "10.0.0.0")

	reply = sendLine(t, conn, r, "cd 10.0.0.0")
	require.Contains(t, reply, "ok")

	reply = sendLine(t, conn, r, "print")
	require.Contains(t, reply, "name=10.0.0.0")

	reply = sendLine(t, conn, r, "cd ..")
	require.Contains(t, reply, "ok")

	reply = sendLine(t, conn, r, "exit")
	require.Contains(t, reply, "bye")
}

func TestCdUnknownScope(t *testing.T) {
	conn, cleanup := startTestServer(t)
	defer cleanup()
	r := bufio.NewReader(conn)

	reply := sendLine(t, conn, r, "cd nonexistent")
	require.Contains(t, reply, "error")
}

func TestSetAndRmOption(t *testing.T) {
	conn, cleanup := startTestServer(t)
	defer cleanup()
	r := bufio.NewReader(conn)

	reply := sendLine(t, conn, r, "set dhcp.domain-name example.com")
	require.Contains(t, reply, "ok")

	reply = sendLine(t, conn, r, "print")
	require.Contains(t, reply, "dhcp.domain-name")

	reply = sendLine(t, conn, r, "rm dhcp.domain-name")
	require.Contains(t, reply, "ok")

	reply = sendLine(t, conn, r, "print")
	require.NotContains(t, reply, "domain-name")
}

func TestUnknownCommand(t *testing.T) {
	conn, cleanup := startTestServer(t)
	defer cleanup()
	r := bufio.NewReader(conn)

	reply := sendLine(t, conn, r, "frobnicate")
	require.Contains(t, reply, "error: unknown command")
}

func TestReadLogicalLineJoinsContinuations(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("set dhcp.domain-name-\nexample-\n.com\n"))
	line, err := readLogicalLine(r)
	require.NoError(t, err)
	require.Equal(t, "set dhcp.domain-name\nexample\n.com", line)
}
