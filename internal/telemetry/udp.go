package telemetry

import (
	"context"
	"fmt"
	"net"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

// UDP sends each report as one JSON datagram.
type UDP struct {
	dest string
	conn udpConn
}

func NewUDP(dest string) (*UDP, error) {
	return newUDP(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newUDP(
	dest string,
	resolve func(network, address string) (*net.UDPAddr, error),
	dial func(network string, laddr, raddr *net.UDPAddr) (udpConn, error),
) (*UDP, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &UDP{dest: dest, conn: conn}, nil
}

func (u *UDP) Name() string { return "udp" }

func (u *UDP) Send(ctx context.Context, r Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := r.JSON()
	if err != nil {
		return err
	}
	_, err = u.conn.Write(payload)
	return err
}

func (u *UDP) Close() error {
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}
