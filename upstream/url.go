package upstream

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/treemana/quickdot/log"
)

const (
	defaultPort    = "53"
	defaultTLSPort = "853"
)

// Parse reads udp://, tcp:// and tls:// resolver urls. A bare host[:port] is
// udp. The port defaults to 53, or 853 for tls.
func Parse(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "udp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "udp", "tcp":
		if len(u.Port()) == 0 {
			u.Host = net.JoinHostPort(u.Hostname(), defaultPort)
		}
	case "tls":
		if len(u.Port()) == 0 {
			u.Host = net.JoinHostPort(u.Hostname(), defaultTLSPort)
		}
	default:
		return nil, fmt.Errorf("unsupported scheme %s", u.Scheme)
	}

	if len(u.Hostname()) == 0 {
		return nil, fmt.Errorf("%s without host", raw)
	}
	return u, nil
}

// Fastest returns the resolver of rawURLs that establishes a connection first,
// unparsable and unreachable ones are skipped.
func Fastest(ctx context.Context, rawURLs []string, timeout time.Duration) (*Upstream, error) {
	var (
		fast    *url.URL
		min     time.Duration = math.MaxInt64
		hostMap               = make(map[string]struct{}, len(rawURLs))
	)

	for _, rawURL := range rawURLs {
		u, err := Parse(rawURL)
		if err != nil {
			log.Sugar.Warnf("%s parse error=[%+v]", rawURL, err)
			continue
		}

		if _, ok := hostMap[u.String()]; ok {
			continue
		}
		hostMap[u.String()] = struct{}{}

		conn, elapse, err := newConn(ctx, u, timeout)
		if err != nil {
			log.Sugar.Warnf("%s connection [%+v]", u, err)
			continue
		}
		_ = conn.Close()

		log.Sugar.Debugf("%s connected, elapse %s", u, elapse)
		if elapse < min {
			fast, min = u, elapse
		}
	}

	if fast == nil {
		return nil, fmt.Errorf("no reachable resolver in %v", rawURLs)
	}

	log.Sugar.Infof("upstream resolver %s", fast)
	return &Upstream{u: fast, timeout: timeout}, nil
}
