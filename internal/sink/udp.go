package sink

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/pkg/errors"
)

// UDPForwarder sends one datagram per record to a syslog collector
type UDPForwarder struct {
	addr    string
	conn    net.Conn
	timeout time.Duration
}

func NewUDPForwarder(host string, port int) (*UDPForwarder, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, domain.SendFailure{Sink: "udp", Err: errors.Wrapf(err, "failed to dial %s", addr)}
	}
	log.Infof("forwarding records to udp %s", addr)
	return &UDPForwarder{addr: addr, conn: conn, timeout: 5 * time.Second}, nil
}

func (u *UDPForwarder) Write(_ context.Context, rec domain.Record) error {
	if err := u.conn.SetWriteDeadline(time.Now().Add(u.timeout)); err != nil {
		return domain.SendFailure{Sink: "udp", Err: err}
	}
	if _, err := u.conn.Write([]byte(rec.Line)); err != nil {
		return domain.SendFailure{Sink: "udp", Err: errors.Wrapf(err, "failed to send to %s", u.addr)}
	}
	return nil
}

func (u *UDPForwarder) Close() error {
	return u.conn.Close()
}
