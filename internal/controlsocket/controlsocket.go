// Package controlsocket implements the admin control protocol over an
// AF_UNIX stream socket (spec §6 "control socket — unchanged
// protocol"): a line-oriented session with five verbs (ls, cd, print,
// set, rm) plus exit, navigating the group scope tree the way
// ISC dhcpd's omshell navigates OMAPI objects. A line ending in a
// trailing "-" is a continuation: its value is joined with the next
// line (newline-separated) before the command is parsed, letting a
// caller send a multi-line option value across several writes.
package controlsocket

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"dhcpd/internal/group"
	"dhcpd/internal/options"
)

// Server accepts control connections against a fixed tree root.
type Server struct {
	Root     *group.Group
	Registry *options.Registry
	Logger   *slog.Logger

	ln net.Listener
}

// Listen binds the control socket at path, removing any stale socket
// file left behind by a previous run.
func Listen(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
	return net.Listen("unix", path)
}

// Serve accepts connections on ln until it is closed, handling each in
// its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	s.ln = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	sess := &session{cwd: s.Root, reg: s.Registry}
	r := bufio.NewReader(conn)
	w := conn

	for {
		line, err := readLogicalLine(r)
		if err != nil {
			if err != io.EOF && s.Logger != nil {
				s.Logger.Warn("control socket read error", "error", err)
			}
			return
		}
		reply, shouldExit := sess.exec(line)
		if _, werr := fmt.Fprintln(w, reply); werr != nil {
			return
		}
		if shouldExit {
			return
		}
	}
}

// readLogicalLine reads one or more physical lines, joining any line
// ending in "-" with the next, until a line without a trailing "-" is
// found.
func readLogicalLine(r *bufio.Reader) (string, error) {
	var parts []string
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" && err != nil {
			return "", err
		}
		if strings.HasSuffix(line, "-") {
			parts = append(parts, strings.TrimSuffix(line, "-"))
			if err != nil {
				return strings.Join(parts, "\n"), nil
			}
			continue
		}
		parts = append(parts, line)
		return strings.Join(parts, "\n"), err
	}
}

// session holds one connection's navigation state: the scope currently
// "cd"-ed into.
type session struct {
	cwd *group.Group
	reg *options.Registry
}

// exec dispatches one logical command line and returns the text reply
// and whether the connection should close.
func (s *session) exec(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}

	switch fields[0] {
	case "exit":
		return "bye", true
	case "ls":
		return s.ls(), false
	case "cd":
		if len(fields) != 2 {
			return "error: usage: cd <name>|..", false
		}
		return s.cd(fields[1]), false
	case "print":
		return s.print(), false
	case "set":
		if len(fields) < 3 {
			return "error: usage: set <option> <value>", false
		}
		return s.set(fields[1], strings.Join(fields[2:], " ")), false
	case "rm":
		if len(fields) != 2 {
			return "error: usage: rm <option>", false
		}
		return s.rm(fields[1]), false
	default:
		return fmt.Sprintf("error: unknown command %q", fields[0]), false
	}
}

func (s *session) ls() string {
	if len(s.cwd.Children) == 0 {
		return "(empty)"
	}
	names := make([]string, len(s.cwd.Children))
	for i, c := range s.cwd.Children {
		names[i] = c.Name
	}
	return strings.Join(names, " ")
}

func (s *session) cd(target string) string {
	if target == ".." {
		if s.cwd.Parent == nil {
			return "error: already at root"
		}
		s.cwd = s.cwd.Parent
		return "ok"
	}
	if target == "." || target == "/" {
		return "ok"
	}
	child, ok := s.cwd.Child(target)
	if !ok {
		return fmt.Sprintf("error: no such scope %q", target)
	}
	s.cwd = child
	return "ok"
}

// print renders the current scope's identity and every option it has
// set as one reply line, fields separated by "; " to keep the
// protocol strictly line-oriented (a single ReadString('\n') always
// captures the whole reply).
func (s *session) print() string {
	fields := []string{fmt.Sprintf("name=%s kind=%d authoritative=%v", s.cwd.Name, s.cwd.Kind, s.cwd.Authoritative)}
	for _, uname := range s.reg.Universes() {
		u, ok := s.reg.Universe(uname)
		if !ok {
			continue
		}
		for _, def := range u.Defs() {
			if c, ok := s.cwd.Options.Get(uname, def.Code); ok {
				fields = append(fields, fmt.Sprintf("%s.%s=%x", uname, def.Name, c.Data))
			}
		}
	}
	return strings.Join(fields, "; ")
}

// set parses "universe.name" and stores value's raw bytes against the
// current scope's option state. Numeric/text encoding is left to the
// caller (a richer client would pre-encode via the same parseValueByType
// logic internal/confparse uses); this layer only stores raw bytes.
func (s *session) set(ref, value string) string {
	universe, name, ok := splitRef(ref)
	if !ok {
		return "error: option ref must be universe.name"
	}
	def, ok := s.reg.Lookup(universe, name)
	if !ok {
		return fmt.Sprintf("error: unknown option %s.%s", universe, name)
	}
	s.cwd.Options.Set(universe, def.Code, &options.Cache{Data: []byte(value)})
	return "ok"
}

func (s *session) rm(ref string) string {
	universe, name, ok := splitRef(ref)
	if !ok {
		return "error: option ref must be universe.name"
	}
	def, ok := s.reg.Lookup(universe, name)
	if !ok {
		return fmt.Sprintf("error: unknown option %s.%s", universe, name)
	}
	s.cwd.Options.Delete(universe, def.Code)
	return "ok"
}

func splitRef(ref string) (universe, name string, ok bool) {
	i := strings.IndexByte(ref, '.')
	if i < 0 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

func isClosedErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}
