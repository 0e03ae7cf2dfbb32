// Package upstream sends raw queries to one resolver over udp, tcp or tls.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/miekg/dns"

	"github.com/treemana/quickdot/log"
)

var ErrIDMismatch = errors.New("unmatched request and response")

type Upstream struct {
	u       *url.URL
	timeout time.Duration
}

func New(rawURL string, timeout time.Duration) (*Upstream, error) {
	u, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Upstream{u: u, timeout: timeout}, nil
}

func (s *Upstream) URL() string { return s.u.String() }

// Exchange sends query on a fresh connection and returns the raw reply.
func (s *Upstream) Exchange(ctx context.Context, query []byte) ([]byte, error) {
	if len(query) < 2 {
		return nil, fmt.Errorf("query of %d bytes", len(query))
	}

	conn, _, err := newConn(ctx, s.u, s.timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// dns.Conn adds the length prefix on stream connections
	var dnsConn = dns.Conn{Conn: conn}
	start := time.Now()
	if _, err = dnsConn.Write(query); err != nil {
		return nil, fmt.Errorf("sending request to %s error=[%+v]", s.u, err)
	}

	resp := make([]byte, dns.MaxMsgSize)
	n, err := dnsConn.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s error=[%+v]", s.u, err)
	}
	resp = resp[:n]
	elapsed := time.Since(start)

	if len(resp) < 2 || !bytes.Equal(resp[:2], query[:2]) {
		return nil, ErrIDMismatch
	}

	log.Sugar.Debugf("%s response success, cost %s", s.u, elapsed)
	return resp, nil
}
