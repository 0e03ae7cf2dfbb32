package util

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

func DNSNewFailure(source *dns.Msg) *dns.Msg {
	if source == nil {
		return nil
	}

	var target = new(dns.Msg)
	target.SetRcode(source, dns.RcodeServerFailure)
	target.RecursionAvailable = true

	// keep the EDNS0 advertisement so the client gets the same shape back
	if opt := source.IsEdns0(); opt != nil {
		target.SetEdns0(opt.UDPSize(), opt.Do())
	}

	return target
}

// DNSNewFailureRaw builds a packed SERVFAIL reply for the raw query.
func DNSNewFailureRaw(query []byte) ([]byte, error) {
	var source = new(dns.Msg)
	if err := source.Unpack(query); err != nil {
		return nil, fmt.Errorf("unpack query error=[%+v]", err)
	}
	if len(source.Question) == 0 {
		return nil, fmt.Errorf("query id=%d without question", source.Id)
	}

	raw, err := DNSNewFailure(source).Pack()
	if err != nil {
		return nil, fmt.Errorf("pack failure id=%d error=[%+v]", source.Id, err)
	}
	return raw, nil
}

// DNSCanonicalName returns name in lowercase without the trailing dot, the
// form query names are cached under. Only ASCII letters are folded, as on
// the wire. The root is the empty string.
func DNSCanonicalName(name string) string {
	name = strings.TrimSuffix(dns.Fqdn(name), ".")
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + 'a' - 'A'
		}
		return r
	}, name)
}
