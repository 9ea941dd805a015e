// Package tftpboot serves the files named by a lease's bootfile-name/
// tftp-server-name options to PXE clients, adapted from the teacher's
// tftp package onto github.com/pin/tftp/v3.
package tftpboot

import (
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	v3 "github.com/pin/tftp/v3"
)

// Server manages the TFTP server, handling file read and write operations.
type Server struct {
	serveDir   string
	log        *slog.Logger
	Port       int
	listener   *net.UDPConn
	tftpServer *v3.Server
}

// NewServer creates and returns a new TFTP server instance serving
// files out of serveDir.
func NewServer(serveDir string, logger *slog.Logger) *Server {
	return &Server{
		serveDir: serveDir,
		log:      logger,
		Port:     69,
	}
}

// Start initiates the TFTP server, listening for incoming connections
// on Port.
func (s *Server) Start() error {
	var err error
	s.listener, err = net.ListenUDP("udp4", &net.UDPAddr{Port: s.Port})
	if err != nil {
		return err
	}

	s.tftpServer = v3.NewServer(s.readHandler, s.writeHandler)

	errChan := make(chan error, 1)
	go func() {
		err := s.tftpServer.Serve(s.listener)
		if err != nil {
			s.log.Error("tftp server stopped", "error", err)
		}
		errChan <- err
		s.tftpServer.Shutdown()
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop closes the server's listener, effectively stopping the server
// from accepting new connections.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// readHandler serves file read requests by opening and reading from
// the specified file in the server's directory.
func (s *Server) readHandler(filename string, rf io.ReaderFrom) error {
	file, err := os.Open(s.serveDir + "/" + filename)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = rf.ReadFrom(file)
	return err
}

// writeHandler handles file write requests by creating a new file or
// overwriting an existing one in the server's directory.
func (s *Server) writeHandler(filename string, wt io.WriterTo) error {
	s.log.Info("tftp write request", "filename", filename)

	file, err := os.Create(s.serveDir + "/" + filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = wt.WriteTo(file)
	return err
}

// HasFile reports whether name exists under the server's directory,
// letting the packet path confirm a bootfile-name option resolves to
// something TFTP can actually serve before it is handed to a client.
func (s *Server) HasFile(name string) bool {
	info, err := os.Stat(s.serveDir + "/" + name)
	return err == nil && !info.IsDir()
}
