package connector

import (
	"context"
	"net"
)

// Dial is a Connector for string endpoints that dials a TCP address and
// immediately closes the probe connection on success — the same "can we
// open a socket" readiness check the teacher's transport layer performs
// before handing a connection to a pool.
type Dial struct {
	dialer net.Dialer
}

// NewDial creates a Connector that TCP-dials the endpoint string
// (host:port) as its readiness probe.
func NewDial() *Dial {
	return &Dial{}
}

func (d *Dial) Connect(ctx context.Context, endpoint string) error {
	conn, err := d.dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return err
	}
	return conn.Close()
}
