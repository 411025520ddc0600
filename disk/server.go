package disk

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rclone/csfs/diskproto"
	"github.com/sirupsen/logrus"
)

// Server serves the disk wire protocol over TCP on behalf of a Disk.
// One goroutine handles each accepted connection; the Disk itself
// serializes seek simulation and sector access across all of them.
type Server struct {
	disk *Disk
	log  *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closing  bool
}

// NewServer returns a Server that will serve d once Serve is called.
func NewServer(d *Disk, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{disk: d, log: log}
}

// Serve accepts connections on ln until ctx is canceled or Close is
// called, handling each on its own goroutine. It returns nil on a clean
// shutdown.
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			srv.mu.Lock()
			closing := srv.closing
			srv.mu.Unlock()
			if closing {
				srv.wg.Wait()
				return nil
			}
			return fmt.Errorf("disk: accept: %w", err)
		}

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			srv.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections. Connections already accepted are
// allowed to finish on their own.
func (srv *Server) Close() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.closing {
		return nil
	}
	srv.closing = true
	if srv.listener != nil {
		return srv.listener.Close()
	}
	return nil
}

func (srv *Server) handleConn(conn net.Conn) {
	id := uuid.NewString()
	log := srv.log.WithField("conn", id)
	log.Debug("disk: connection accepted")
	defer func() {
		conn.Close()
		log.Debug("disk: connection closed")
	}()

	r := bufio.NewReader(conn)
	for {
		req, err := diskproto.ReadRequest(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Debug("disk: malformed command, closing connection")
			}
			return
		}

		if !srv.dispatch(conn, r, log, req) {
			return
		}
	}
}

// dispatch executes one request and writes its reply. It returns false if
// the connection must be closed afterward.
func (srv *Server) dispatch(conn net.Conn, r *bufio.Reader, log *logrus.Entry, req diskproto.Request) bool {
	switch req.Cmd {
	case 'I':
		srv.disk.metrics.command("I")
		geom := srv.disk.Geometry()
		if err := diskproto.WriteIdentifyReply(conn, geom.Cylinders, geom.Sectors); err != nil {
			log.WithError(err).Debug("disk: write I reply")
			return false
		}
		return true

	case 'R':
		srv.disk.metrics.command("R")
		sector, err := srv.disk.ReadSector(req.C, req.S)
		if err != nil {
			srv.disk.metrics.error("range")
			if werr := diskproto.WriteFail(conn); werr != nil {
				log.WithError(werr).Debug("disk: write R failure reply")
				return false
			}
			return true
		}
		if err := diskproto.WriteReadOK(conn, sector); err != nil {
			log.WithError(err).Debug("disk: write R reply")
			return false
		}
		srv.disk.metrics.transferred("read", len(sector))
		return true

	case 'W':
		srv.disk.metrics.command("W")
		return srv.dispatchWrite(conn, r, log, req)

	default:
		log.Warn("disk: internal: unreachable command letter")
		return false
	}
}

// dispatchWrite handles W. An invalid (c, s) or out-of-range length is
// rejected with a single '0' byte *without* consuming the payload, which
// desynchronizes the stream, so this implementation then closes the
// connection rather than risk interpreting payload bytes as the next
// command line.
func (srv *Server) dispatchWrite(conn net.Conn, r *bufio.Reader, log *logrus.Entry, req diskproto.Request) bool {
	geom := srv.disk.Geometry()
	if !geom.Valid(req.C, req.S) || req.L < 0 || req.L > diskproto.SectorSize {
		srv.disk.metrics.error("range")
		if err := diskproto.WriteFail(conn); err != nil {
			log.WithError(err).Debug("disk: write W failure reply")
		}
		log.Debug("disk: rejected W, closing connection to avoid stream desync")
		return false
	}

	payload, err := diskproto.ReadPayload(r, req.L)
	if err != nil {
		log.WithError(err).Debug("disk: read W payload")
		return false
	}

	if err := srv.disk.WriteSector(req.C, req.S, payload); err != nil {
		// geometry was already validated above, so this is an internal
		// error rather than a semantic one; the connection is unusable.
		log.WithError(err).Warn("disk: write sector")
		return false
	}

	if err := diskproto.WriteWriteOK(conn); err != nil {
		log.WithError(err).Debug("disk: write W reply")
		return false
	}
	srv.disk.metrics.transferred("write", len(payload))
	return true
}
