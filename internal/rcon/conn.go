package rcon

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// Source RCON packet types. AUTH_RESPONSE and EXECCOMMAND share the
// value 2; direction disambiguates them.
const (
	typeResponseValue int32 = 0
	typeExecCommand   int32 = 2
	typeAuthResponse  int32 = 2
	typeAuth          int32 = 3
)

const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 10 * time.Second

	// packet overhead: id (4) + type (4) + two trailing NULs
	packetHeaderSize = 10
	maxPacketSize    = 4096
)

// Conn is the transport beneath a Session. Implementations are not safe
// for concurrent use; the Session serializes access.
type Conn interface {
	// Auth authenticates the connection with the server's RCON password.
	Auth(password string) error

	// Execute sends one command and returns the server's text response.
	Execute(command string) (string, error)

	// Close tears down the underlying transport.
	Close() error
}

// Dialer opens a transport to an RCON endpoint. Replaceable in tests.
type Dialer func(host string, port int) (Conn, error)

// Dial opens a TCP connection speaking the Source RCON framing:
// little-endian int32 size, id, type, NUL-terminated body, trailing NUL.
func Dial(host string, port int) (Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &tcpConn{conn: c}, nil
}

type tcpConn struct {
	conn   net.Conn
	nextID int32
}

type packet struct {
	id   int32
	typ  int32
	body string
}

func (c *tcpConn) Auth(password string) error {
	id, err := c.write(typeAuth, password)
	if err != nil {
		return err
	}

	// Some servers precede the auth response with an empty RESPONSE_VALUE.
	for {
		pkt, err := c.read()
		if err != nil {
			return err
		}
		if pkt.typ == typeResponseValue {
			continue
		}
		if pkt.typ != typeAuthResponse {
			return fmt.Errorf("unexpected packet type %d during auth", pkt.typ)
		}
		if pkt.id == -1 {
			return ErrAuthFailed
		}
		if pkt.id != id {
			return fmt.Errorf("auth response id mismatch: sent %d, got %d", id, pkt.id)
		}
		return nil
	}
}

func (c *tcpConn) Execute(command string) (string, error) {
	id, err := c.write(typeExecCommand, command)
	if err != nil {
		return "", err
	}

	pkt, err := c.read()
	if err != nil {
		return "", err
	}
	if pkt.id != id {
		return "", fmt.Errorf("response id mismatch: sent %d, got %d", id, pkt.id)
	}
	return pkt.body, nil
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) write(typ int32, body string) (int32, error) {
	c.nextID++
	id := c.nextID

	size := packetHeaderSize + len(body)
	buf := make([]byte, 4+size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(id))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(typ))
	copy(buf[12:], body)
	// trailing NULs already zeroed by make

	if err := c.conn.SetWriteDeadline(time.Now().Add(ioTimeout)); err != nil {
		return 0, err
	}
	if _, err := c.conn.Write(buf); err != nil {
		return 0, fmt.Errorf("writing packet: %w", err)
	}
	return id, nil
}

func (c *tcpConn) read() (packet, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(ioTimeout)); err != nil {
		return packet{}, err
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		return packet{}, fmt.Errorf("reading packet size: %w", err)
	}
	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size < packetHeaderSize || size > maxPacketSize {
		return packet{}, fmt.Errorf("invalid packet size %d", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return packet{}, fmt.Errorf("reading packet body: %w", err)
	}

	return packet{
		id:   int32(binary.LittleEndian.Uint32(buf[0:4])),
		typ:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		body: string(buf[8 : size-2]),
	}, nil
}
