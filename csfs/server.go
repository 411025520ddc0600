package csfs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rclone/csfs/fsproto"
	"github.com/sirupsen/logrus"
)

// Server serves the filesystem wire protocol over TCP on behalf of a
// Service. One goroutine handles each accepted connection; the Service
// itself serializes every metadata mutation and read behind its single
// lock.
type Server struct {
	svc *Service
	log *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closing  bool
}

// NewServer returns a Server that will serve svc once Serve is called.
func NewServer(svc *Service, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{svc: svc, log: log}
}

// Serve accepts connections on ln until ctx is canceled or Close is
// called, handling each on its own goroutine.
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
			return fmt.Errorf("csfs: accept: %w", err)
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
	log.Debug("csfs: connection accepted")
	defer func() {
		conn.Close()
		log.Debug("csfs: connection closed")
	}()

	r := bufio.NewReader(conn)
	for {
		req, err := fsproto.ReadRequest(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Debug("csfs: malformed command, closing connection")
			}
			return
		}

		if !srv.dispatch(conn, r, log, req) {
			return
		}
	}
}

// dispatch executes one request and writes its reply. It returns false if
// the connection must be closed afterward: when a reply or a W payload
// cannot be transferred, or when L fails for a reason other than an
// unformatted filesystem. F, C, D, R, and W that fail on a disk error
// reply with code 2 and keep the connection open.
func (srv *Server) dispatch(conn net.Conn, r *bufio.Reader, log *logrus.Entry, req fsproto.Request) bool {
	switch req.Cmd {
	case 'F':
		err := srv.svc.Format()
		return writeCode(conn, log, codeFor(err))

	case 'C':
		err := srv.svc.Create(req.Name)
		return writeCode(conn, log, codeFor(err))

	case 'D':
		err := srv.svc.Delete(req.Name)
		return writeCode(conn, log, codeFor(err))

	case 'L':
		entries, err := srv.svc.List()
		if errors.Is(err, ErrNotFormatted) {
			if werr := fsproto.WriteUnformattedListReply(conn); werr != nil {
				log.WithError(werr).Debug("csfs: write L reply")
				return false
			}
			return true
		}
		if err != nil {
			log.WithError(err).Warn("csfs: list")
			return false
		}
		lines := make([]fsproto.ListLine, len(entries))
		for i, e := range entries {
			lines[i] = fsproto.ListLine{Name: e.Name, Length: e.Length}
		}
		if err := fsproto.WriteListReply(conn, lines, req.B == 1); err != nil {
			log.WithError(err).Debug("csfs: write L reply")
			return false
		}
		return true

	case 'R':
		data, err := srv.svc.Read(req.Name)
		code := codeFor(err)
		if err != nil && code == fsproto.CodeError && !errors.Is(err, ErrNotFormatted) {
			log.WithError(err).Warn("csfs: read")
		}
		if werr := fsproto.WriteReadReply(conn, code, data); werr != nil {
			log.WithError(werr).Debug("csfs: write R reply")
			return false
		}
		return true

	case 'W':
		return srv.dispatchWrite(conn, r, log, req)

	default:
		log.Warn("csfs: internal: unreachable command letter")
		return false
	}
}

// dispatchWrite handles W. The l payload bytes are always consumed, even
// on a rejected write, since — unlike the disk protocol's W — the
// filesystem protocol's failure paths are defined after the length is
// already known, so the payload must be drained regardless of outcome
// to keep the stream in sync for the next command.
func (srv *Server) dispatchWrite(conn net.Conn, r *bufio.Reader, log *logrus.Entry, req fsproto.Request) bool {
	payload, err := fsproto.ReadPayload(r, req.L)
	if err != nil {
		log.WithError(err).Debug("csfs: read W payload")
		return false
	}

	werr := srv.svc.Write(req.Name, payload)
	return writeCode(conn, log, codeFor(werr))
}

// codeFor maps a Service error to a wire protocol reply code. C/D/R/W
// have no distinct "not formatted" code of their own, so ErrNotFormatted
// falls through to the resource/IO class (CodeError) alongside disk and
// internal failures; see DESIGN.md.
func codeFor(err error) int {
	switch {
	case err == nil:
		return fsproto.CodeOK
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrInvalidName):
		return fsproto.CodeRejected
	default:
		return fsproto.CodeError
	}
}

func writeCode(w io.Writer, log *logrus.Entry, code int) bool {
	if err := fsproto.WriteCode(w, code); err != nil {
		log.WithError(err).Debug("csfs: write reply")
		return false
	}
	return true
}
