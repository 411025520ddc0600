// Package diskclient is the disk-protocol client helper used by the
// filesystem service: one connection, geometry learned via I at dial
// time, thereafter only whole-sector R/W by absolute block index.
// cmd/fsserver dials a single Client and shares it across every
// filesystem connection; client connections do not get a disk connection
// of their own.
package diskclient

import (
	"bufio"
	"fmt"
	"net"

	"github.com/rclone/csfs/diskproto"
)

// Client owns one connection to the disk service. It is not safe for
// concurrent use by multiple goroutines; csfs.Service makes every call on
// its device while holding its service-wide lock.
type Client struct {
	conn net.Conn
	r    *bufio.Reader

	cylinders int
	sectors   int
}

// Dial connects to the disk service at addr and issues I to learn its
// geometry.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("diskclient: dial %s: %w", addr, err)
	}
	c := &Client{conn: conn, r: bufio.NewReader(conn)}
	if err := c.identify(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) identify() error {
	if _, err := c.conn.Write([]byte("I\n")); err != nil {
		return fmt.Errorf("diskclient: send I: %w", err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("diskclient: read I reply: %w", err)
	}
	var cyl, sec int
	if _, err := fmt.Sscanf(line, "%d %d", &cyl, &sec); err != nil {
		return fmt.Errorf("diskclient: parse I reply %q: %w", line, err)
	}
	c.cylinders, c.sectors = cyl, sec
	return nil
}

// Geometry returns the (cylinders, sectors) learned at dial time.
func (c *Client) Geometry() (cylinders, sectors int) {
	return c.cylinders, c.sectors
}

// Blocks returns the total addressable block count (cylinders*sectors).
func (c *Client) Blocks() int {
	return c.cylinders * c.sectors
}

// blockCS converts an absolute block index to (cylinder, sector).
func (c *Client) blockCS(idx int) (cyl, sec int) {
	return idx / c.sectors, idx % c.sectors
}

// ReadBlock reads the 128-byte sector at absolute block index idx. The
// FS only ever asks for indices it computed from geometry it already
// trusts, so a '0' reply is treated as an error rather than a normal
// out-of-range response.
func (c *Client) ReadBlock(idx int) ([]byte, error) {
	cyl, sec := c.blockCS(idx)
	if _, err := fmt.Fprintf(c.conn, "R %d %d\n", cyl, sec); err != nil {
		return nil, fmt.Errorf("diskclient: send R %d: %w", idx, err)
	}
	status, err := c.r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("diskclient: read R status for block %d: %w", idx, err)
	}
	if status != diskproto.StatusOK {
		return nil, fmt.Errorf("diskclient: disk rejected read of block %d", idx)
	}
	buf := make([]byte, diskproto.SectorSize)
	if err := readFull(c.r, buf); err != nil {
		return nil, fmt.Errorf("diskclient: read sector payload for block %d: %w", idx, err)
	}
	return buf, nil
}

// WriteBlock writes exactly one full 128-byte sector to absolute block
// index idx. data must already be SectorSize bytes (the FS never relies
// on the disk's own zero-fill).
func (c *Client) WriteBlock(idx int, data []byte) error {
	if len(data) != diskproto.SectorSize {
		return fmt.Errorf("diskclient: WriteBlock requires exactly %d bytes, got %d", diskproto.SectorSize, len(data))
	}
	cyl, sec := c.blockCS(idx)
	if _, err := fmt.Fprintf(c.conn, "W %d %d %d\n", cyl, sec, len(data)); err != nil {
		return fmt.Errorf("diskclient: send W %d: %w", idx, err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("diskclient: send write payload for block %d: %w", idx, err)
	}
	status, err := c.r.ReadByte()
	if err != nil {
		return fmt.Errorf("diskclient: read W status for block %d: %w", idx, err)
	}
	if status != diskproto.StatusOK {
		return fmt.Errorf("diskclient: disk rejected write of block %d", idx)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func readFull(r *bufio.Reader, buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return err
		}
	}
	return nil
}
