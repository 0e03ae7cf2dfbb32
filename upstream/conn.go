package upstream

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net"
	"net/url"
	"time"
)

// newConn dials u and finishes the tls handshake for tls urls.
// return conn, elapse, error
func newConn(ctx context.Context, u *url.URL, timeout time.Duration) (net.Conn, time.Duration, error) {

	ept := time.Now() // entry point time

	network := u.Scheme
	if network == "tls" {
		network = "tcp"
	}

	// dial
	dialer := &net.Dialer{Timeout: timeout}
	start := time.Now()
	rawConn, err := dialer.DialContext(ctx, network, u.Host)
	elapse := time.Since(start)
	if err != nil {
		return nil, math.MaxInt64, fmt.Errorf("dial [%+v], elapse %s", err, elapse)
	}

	if u.Scheme != "tls" {
		return rawConn, time.Since(ept), nil
	}

	// set deadline
	conn := tls.Client(rawConn, &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS13})
	if err = conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		_ = conn.Close()
		return nil, math.MaxInt64, fmt.Errorf("set deadline [%+v]", err)
	}

	// handshake
	start = time.Now()
	err = conn.HandshakeContext(ctx)
	elapse = time.Since(start)
	if err != nil {
		_ = conn.Close()
		return nil, math.MaxInt64, fmt.Errorf("handshake [%+v], elapse %s", err, elapse)
	}

	return conn, time.Since(ept), nil
}
