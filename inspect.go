package main

import (
	"github.com/miekg/dns"
	"github.com/spf13/cobra"
	"golang.org/x/net/idna"

	"github.com/treemana/quickdot/wire"
)

type inspectFlags struct {
	hex      bool
	response bool
}

type headerView struct {
	ID        uint16 `yaml:"id"`
	Rcode     string `yaml:"rcode"`
	Truncated bool   `yaml:"truncated"`
	QDCount   uint16 `yaml:"qdcount"`
	ANCount   uint16 `yaml:"ancount"`
	NSCount   uint16 `yaml:"nscount"`
	ARCount   uint16 `yaml:"arcount"`
}

type queryView struct {
	Name     string `yaml:"name"`
	Unicode  string `yaml:"unicode,omitempty"`
	Type     string `yaml:"type"`
	Class    string `yaml:"class"`
	EDNS     bool   `yaml:"edns"`
	Borrowed bool   `yaml:"borrowed"`
}

type responseView struct {
	Rcode      string `yaml:"rcode"`
	Truncated  bool   `yaml:"truncated"`
	Answers    uint16 `yaml:"answers"`
	MinTTL     uint32 `yaml:"min_ttl"`
	TTLRecords int    `yaml:"ttl_records"`
}

type inspectView struct {
	Header   headerView    `yaml:"header"`
	Query    *queryView    `yaml:"query,omitempty"`
	Response *responseView `yaml:"response,omitempty"`
}

func newInspectCmd() *cobra.Command {
	f := new(inspectFlags)
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Print what the fast path reads from a raw DNS message.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}

			packet, err := readPacket(cmd.InOrStdin(), path, f.hex)
			if err != nil {
				return err
			}

			view, err := inspect(packet, f.response)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), view)
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&f.hex, "hex", false, "input is hex text")
	fs.BoolVarP(&f.response, "response", "r", false, "scan the message as a response")
	return cmd
}

func inspect(packet []byte, response bool) (*inspectView, error) {
	h, err := wire.ReadHeader(packet)
	if err != nil {
		return nil, err
	}

	view := &inspectView{Header: headerView{
		ID:        h.ID,
		Rcode:     dns.RcodeToString[h.Rcode],
		Truncated: h.Truncated,
		QDCount:   h.QDCount,
		ANCount:   h.ANCount,
		NSCount:   h.NSCount,
		ARCount:   h.ARCount,
	}}

	if response {
		r, err := wire.ParseResponseQuick(packet)
		if err != nil {
			return nil, err
		}
		plan, err := wire.PlanTTLs(packet)
		if err != nil {
			return nil, err
		}
		view.Response = &responseView{
			Rcode:      r.RcodeString(),
			Truncated:  r.Truncated,
			Answers:    r.Answers,
			MinTTL:     r.MinTTL,
			TTLRecords: plan.Len(),
		}
		return view, nil
	}

	var buf [wire.NameBufferSize]byte
	q, err := wire.ParseQuick(packet, buf[:])
	if err != nil {
		return nil, err
	}

	name := q.Name.String()
	view.Query = &queryView{
		Name:     name,
		Type:     dns.Type(q.Qtype).String(),
		Class:    dns.Class(q.Qclass).String(),
		EDNS:     q.EDNS,
		Borrowed: q.Name.Borrowed(),
	}
	if u, err := idna.ToUnicode(name); err == nil && u != name {
		view.Query.Unicode = u
	}
	return view, nil
}
