// Package diskproto implements the disk service's wire protocol: ASCII
// command lines terminated by '\n', mixed with fixed 128-byte binary
// sector payloads. The stream is command-framed, not length-prefixed, so
// a reader must use the length given by the command rather than scanning
// for '\n' inside binary payloads.
package diskproto

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SectorSize is the fixed size in bytes of every sector payload.
const SectorSize = 128

// Status bytes.
const (
	StatusFail byte = '0'
	StatusOK   byte = '1'
)

// Request is a parsed disk command line.
type Request struct {
	Cmd byte // 'I', 'R', or 'W'
	C   int
	S   int
	L   int // only set for W
}

// ReadRequest reads and parses one command line from r. It returns io.EOF
// (possibly wrapped) if the connection closed cleanly between commands.
func ReadRequest(r *bufio.Reader) (Request, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return Request{}, io.EOF
		}
		return Request{}, fmt.Errorf("diskproto: read command line: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{}, fmt.Errorf("diskproto: empty command line")
	}

	switch fields[0] {
	case "I":
		if len(fields) != 1 {
			return Request{}, fmt.Errorf("diskproto: malformed I command %q", line)
		}
		return Request{Cmd: 'I'}, nil
	case "R":
		c, s, err := parseCS(fields)
		if err != nil {
			return Request{}, err
		}
		return Request{Cmd: 'R', C: c, S: s}, nil
	case "W":
		if len(fields) != 4 {
			return Request{}, fmt.Errorf("diskproto: malformed W command %q", line)
		}
		c, err := strconv.Atoi(fields[1])
		if err != nil {
			return Request{}, fmt.Errorf("diskproto: malformed cylinder in %q: %w", line, err)
		}
		s, err := strconv.Atoi(fields[2])
		if err != nil {
			return Request{}, fmt.Errorf("diskproto: malformed sector in %q: %w", line, err)
		}
		l, err := strconv.Atoi(fields[3])
		if err != nil {
			return Request{}, fmt.Errorf("diskproto: malformed length in %q: %w", line, err)
		}
		return Request{Cmd: 'W', C: c, S: s, L: l}, nil
	default:
		return Request{}, fmt.Errorf("diskproto: unknown command %q", fields[0])
	}
}

func parseCS(fields []string) (c, s int, err error) {
	if len(fields) != 3 {
		return 0, 0, fmt.Errorf("diskproto: malformed command %q", strings.Join(fields, " "))
	}
	c, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("diskproto: malformed cylinder %q: %w", fields[1], err)
	}
	s, err = strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, fmt.Errorf("diskproto: malformed sector %q: %w", fields[2], err)
	}
	return c, s, nil
}

// WriteIdentifyReply writes the "<C> <S>\n" response to an I command.
func WriteIdentifyReply(w io.Writer, cylinders, sectors int) error {
	_, err := fmt.Fprintf(w, "%d %d\n", cylinders, sectors)
	return err
}

// WriteFail writes a single '0' status byte.
func WriteFail(w io.Writer) error {
	_, err := w.Write([]byte{StatusFail})
	return err
}

// WriteReadOK writes the '1' status byte followed by the 128-byte sector
// payload.
func WriteReadOK(w io.Writer, sector []byte) error {
	if len(sector) != SectorSize {
		return fmt.Errorf("diskproto: sector payload must be %d bytes, got %d", SectorSize, len(sector))
	}
	if _, err := w.Write([]byte{StatusOK}); err != nil {
		return err
	}
	_, err := w.Write(sector)
	return err
}

// WriteWriteOK writes the '1' status byte acknowledging a write.
func WriteWriteOK(w io.Writer) error {
	_, err := w.Write([]byte{StatusOK})
	return err
}

// ReadPayload reads exactly l raw bytes following a W command line.
func ReadPayload(r *bufio.Reader, l int) ([]byte, error) {
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("diskproto: read %d-byte write payload: %w", l, err)
	}
	return buf, nil
}
