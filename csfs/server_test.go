package csfs

import (
	"bufio"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, blocks int) string {
	t.Helper()
	dev := newMemDevice(blocks)
	svc := NewService(dev, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(svc, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = srv.Serve(ctx, ln) }()
	return ln.Addr().String()
}

func dialTest(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func TestServerFormatCreateListScenario(t *testing.T) {
	addr := startTestServer(t, 100)
	conn, r := dialTest(t, addr)

	_, err := conn.Write([]byte("F\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "0\n", line)

	_, err = conn.Write([]byte("C foo\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "0\n", line)

	_, err = conn.Write([]byte("C foo\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "1\n", line)

	mustWrite(t, conn, r, "L 0\n", "foo\n")
	mustWrite(t, conn, r, "L 1\n", "foo 0\n")
}

func TestServerWriteReadDeleteScenario(t *testing.T) {
	addr := startTestServer(t, 100)
	conn, r := dialTest(t, addr)

	mustWrite(t, conn, r, "F\n", "0\n")
	mustWrite(t, conn, r, "C foo\n", "0\n")

	_, err := conn.Write([]byte("W foo 12\nhello world!"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "0\n", line)

	_, err = conn.Write([]byte("R foo\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "0 12 hello world!\n", line)

	mustWrite(t, conn, r, "D foo\n", "0\n")

	_, err = conn.Write([]byte("R foo\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "1 0 \n", line)
}

func TestServerListBeforeFormatIsUnformatted(t *testing.T) {
	addr := startTestServer(t, 100)
	conn, r := dialTest(t, addr)

	_, err := conn.Write([]byte("L 0\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "(unformatted)\n", line)
}

func mustWrite(t *testing.T, conn net.Conn, r *bufio.Reader, cmd, want string) {
	t.Helper()
	_, err := conn.Write([]byte(cmd))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, want, line)
}
