package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/net/idna"

	"github.com/treemana/quickdot/engine"
	"github.com/treemana/quickdot/log"
	"github.com/treemana/quickdot/upstream"
	"github.com/treemana/quickdot/util"
)

type lookupFlags struct {
	upstreams []string
	qtype     string
	count     int
	interval  time.Duration
	timeout   time.Duration
	edns      bool
	watch     bool
}

type roundView struct {
	Round   int      `yaml:"round"`
	Elapsed string   `yaml:"elapsed"`
	Rcode   string   `yaml:"rcode"`
	Answers []string `yaml:"answers,omitempty"`
}

type lookupView struct {
	Name     string             `yaml:"name"`
	Upstream string             `yaml:"upstream"`
	Rounds   []roundView        `yaml:"rounds"`
	Cached   []string           `yaml:"cached,omitempty"`
	Metrics  map[string]float64 `yaml:"metrics"`
}

func newLookupCmd() *cobra.Command {
	f := new(lookupFlags)
	cmd := &cobra.Command{
		Use:   "lookup name",
		Short: "Resolve a name through the cache a number of times over UDP.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			view, err := lookup(ctx, f, args[0])
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), view)
		},
	}

	fs := cmd.Flags()
	fs.StringSliceVarP(&f.upstreams, "upstream", "u", []string{"udp://1.1.1.1:53"}, "upstream resolver urls (udp, tcp, tls), the fastest is used")
	fs.StringVarP(&f.qtype, "type", "t", "A", "query type")
	fs.IntVarP(&f.count, "count", "n", 2, "number of rounds")
	fs.DurationVar(&f.interval, "interval", time.Second, "pause between rounds")
	fs.DurationVar(&f.timeout, "timeout", 3*time.Second, "upstream timeout")
	fs.BoolVar(&f.edns, "edns", false, "send EDNS0 with the DO bit")
	fs.BoolVarP(&f.watch, "watch", "w", false, "reload the cache options when the config file changes")
	return cmd
}

func lookup(ctx context.Context, f *lookupFlags, name string) (*lookupView, error) {
	qtype, ok := dns.StringToType[strings.ToUpper(f.qtype)]
	if !ok {
		return nil, fmt.Errorf("unknown query type %s", f.qtype)
	}

	ascii, err := idna.Lookup.ToASCII(util.DNSCanonicalName(name))
	if err != nil {
		return nil, fmt.Errorf("invalid name %s: %w", name, err)
	}

	up, err := upstream.Fastest(ctx, f.upstreams, f.timeout)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	e, err := engine.New(cfg, up, reg)
	if err != nil {
		return nil, err
	}
	e.Start()
	defer e.Stop()

	if f.watch {
		if len(rf.config) == 0 {
			return nil, fmt.Errorf("--watch needs --config")
		}
		go func() {
			if err := e.Watch(ctx, rf.config); err != nil {
				log.Sugar.Warnf("config watch error=[%+v]", err)
			}
		}()
	}

	view := &lookupView{Name: dns.Fqdn(ascii), Upstream: up.URL()}

	for i := 1; i <= f.count; i++ {
		if i > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.interval):
			}
		}

		q := new(dns.Msg)
		q.SetQuestion(view.Name, qtype)
		if f.edns {
			q.SetEdns0(dns.DefaultMsgSize, true)
		}
		raw, err := q.Pack()
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := e.Handle(ctx, raw)
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(start)

		m := new(dns.Msg)
		if err = m.Unpack(resp); err != nil {
			return nil, fmt.Errorf("unpack response: %w", err)
		}

		round := roundView{Round: i, Elapsed: elapsed.String(), Rcode: dns.RcodeToString[m.Rcode]}
		for _, rr := range m.Answer {
			round.Answers = append(round.Answers, rr.String())
		}
		view.Rounds = append(view.Rounds, round)
	}

	for _, k := range e.Cached() {
		view.Cached = append(view.Cached, k.String())
	}
	sort.Strings(view.Cached)

	if view.Metrics, err = gather(reg); err != nil {
		return nil, err
	}
	return view, nil
}

// gather flattens the counters and gauges of reg into name{labels} keys.
func gather(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)

			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}

			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}
