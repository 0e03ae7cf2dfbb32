// Package engine answers raw DNS queries from the response cache and forwards
// misses to an upstream. It owns no transport, callers hand in packets.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/treemana/quickdot/cache"
	"github.com/treemana/quickdot/config"
	"github.com/treemana/quickdot/log"
	"github.com/treemana/quickdot/model"
	"github.com/treemana/quickdot/util"
	"github.com/treemana/quickdot/wire"
)

var (
	ErrMalformedQuery    = errors.New("malformed query")
	ErrMalformedResponse = errors.New("malformed response")
)

// exchangeTimeout bounds a coalesced upstream exchange, it outlives the
// caller that started it.
const exchangeTimeout = 5 * time.Second

type Upstream interface {
	Exchange(ctx context.Context, query []byte) ([]byte, error)
}

type UpstreamFunc func(ctx context.Context, query []byte) ([]byte, error)

func (f UpstreamFunc) Exchange(ctx context.Context, query []byte) ([]byte, error) {
	return f(ctx, query)
}

type Engine struct {
	upstream Upstream
	cache    *cache.Cache
	metrics  *metrics
	sf       singleflight.Group

	opts atomic.Pointer[config.Cache]

	mu      sync.Mutex // serializes Start, Stop and Reload
	running bool

	now func() time.Time
}

// New builds an engine for cfg. Metrics are registered with reg unless it is nil.
func New(cfg *config.Config, upstream Upstream, reg prometheus.Registerer) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if upstream == nil {
		return nil, errors.New("nil upstream")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		upstream: upstream,
		cache:    cache.New(cfg.Cache.Size),
		now:      time.Now,
	}
	opts := cfg.Cache
	e.opts.Store(&opts)
	e.metrics = newMetrics(e.cache)

	if reg != nil {
		if err := e.metrics.register(reg); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return e, nil
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.cache.Start(e.opts.Load().CleanEvery())
	e.running = true
	log.Sugar.Info("engine started")
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.cache.Stop()
	e.running = false
	log.Sugar.Info("engine stopped")
}

// Reload replaces the running cache options with the ones of cfg in a single
// step. Entries already stored keep their expiry.
func (e *Engine) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	opts := cfg.Cache
	old := e.opts.Swap(&opts)

	if opts.Size != old.Size {
		e.cache.SetCapacity(opts.Size)
	}
	if opts.CleanInterval != old.CleanInterval && e.running {
		e.cache.Stop()
		e.cache.Start(opts.CleanEvery())
	}

	log.Sugar.Infof("engine reloaded, size=%d min_ttl=%d max_ttl=%d negative_ttl=%d clean_interval=%d",
		opts.Size, opts.MinTTL, opts.MaxTTL, opts.NegativeTTL, opts.CleanInterval)
	return nil
}

// Watch reloads the engine every time the config file at path changes. It
// blocks until ctx is done.
func (e *Engine) Watch(ctx context.Context, path string) error {
	return config.Watch(ctx, path, func(cfg *config.Config) {
		if err := e.Reload(cfg); err != nil {
			log.Sugar.Warnf("engine reload failed, path=%s error=[%+v]", path, err)
		}
	})
}

// Cached returns the keys in the cache, expired ones included until swept.
func (e *Engine) Cached() []model.Key {
	return e.cache.Keys()
}

// Handle answers one raw query. Upstream failures are answered with SERVFAIL,
// the returned error is non-nil only when no reply can be built at all.
func (e *Engine) Handle(ctx context.Context, query []byte) ([]byte, error) {
	e.metrics.queries.Inc()

	var buf [wire.NameBufferSize]byte
	q, err := wire.ParseQuick(query, buf[:])
	if err != nil {
		return e.fallback(ctx, query, err)
	}

	key := model.NewKey(&q)
	if resp := e.fromCache(key, q.ID); resp != nil {
		e.metrics.hits.Inc()
		return resp, nil
	}
	e.metrics.misses.Inc()

	ch := e.sf.DoChan(key.String(), func() (any, error) {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
		defer cancel()
		return e.exchange(uctx, key, query)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// the shared reply carries the id of the query that went upstream
		resp := bytes.Clone(res.Val.([]byte))
		if err = wire.SetID(resp, q.ID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		return resp, nil
	}
}

func (e *Engine) fromCache(key model.Key, id uint16) []byte {
	now := e.now()
	ent := e.cache.Get(key, now)
	if ent == nil {
		return nil
	}

	resp := bytes.Clone(ent.Packet)
	if err := wire.SetID(resp, id); err != nil {
		return e.evict(key, err)
	}
	if err := ent.TTLs.Apply(resp, ent.Age(now)); err != nil {
		return e.evict(key, err)
	}

	return resp
}

func (e *Engine) evict(key model.Key, err error) []byte {
	e.metrics.fallbacks.WithLabelValues(fallbackPatch).Inc()
	log.Sugar.Warnf("cached response unusable, key=%s error=[%+v]", key, err)
	e.cache.Delete(key)
	return nil
}

// exchange resolves key upstream and stores the reply when it is cacheable.
func (e *Engine) exchange(ctx context.Context, key model.Key, query []byte) ([]byte, error) {
	resp, err := e.upstream.Exchange(ctx, query)
	if err != nil {
		return e.failure(key, query, err)
	}

	r, err := wire.ParseResponseQuick(resp)
	if err != nil {
		e.metrics.fallbacks.WithLabelValues(fallbackResponse).Inc()
		if uerr := new(dns.Msg).Unpack(resp); uerr != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		log.Sugar.Debugf("quick scan failed, passing response through, key=%s error=[%+v]", key, err)
		e.metrics.uncacheable.Inc()
		return resp, nil
	}

	e.store(key, resp, r)
	return resp, nil
}

func (e *Engine) store(key model.Key, resp []byte, r wire.QuickResponse) {
	ttl, ok := cacheTTL(e.opts.Load(), r)
	if !ok {
		e.metrics.uncacheable.Inc()
		log.Sugar.Debugf("response not cacheable, key=%s rcode=%s tc=%t answers=%d min_ttl=%d",
			key, r.RcodeString(), r.Truncated, r.Answers, r.MinTTL)
		return
	}

	// a cached packet must survive aging on every hit
	plan, err := wire.PlanTTLs(resp)
	if err != nil {
		e.metrics.uncacheable.Inc()
		log.Sugar.Debugf("response not patchable, key=%s error=[%+v]", key, err)
		return
	}

	now := e.now().Unix()
	e.cache.Update(key, &model.Entry{
		Packet: resp,
		TTLs:   plan,
		Stored: now,
		Expire: now + int64(ttl),
	})
}

// cacheTTL returns how long a response may be served from the cache.
func cacheTTL(opts *config.Cache, r wire.QuickResponse) (uint32, bool) {
	if r.Truncated {
		return 0, false
	}
	if r.Rcode != dns.RcodeSuccess && r.Rcode != dns.RcodeNameError {
		return 0, false
	}

	if r.Answers == 0 {
		return opts.NegativeTTL, opts.NegativeTTL > 0
	}
	if r.MinTTL == 0 {
		return 0, false
	}

	ttl := r.MinTTL
	if ttl < opts.MinTTL {
		ttl = opts.MinTTL
	}
	if opts.MaxTTL > 0 && ttl > opts.MaxTTL {
		ttl = opts.MaxTTL
	}
	return ttl, ttl > 0
}

// fallback forwards queries the fast path rejected but a full decoder accepts,
// they are never cached.
func (e *Engine) fallback(ctx context.Context, query []byte, cause error) ([]byte, error) {
	e.metrics.fallbacks.WithLabelValues(fallbackQuery).Inc()

	m := new(dns.Msg)
	if err := m.Unpack(query); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedQuery, cause)
	}

	log.Sugar.Debugf("quick parse failed, forwarding uncached, id=%d error=[%+v]", m.Id, cause)

	resp, err := e.upstream.Exchange(ctx, query)
	if err != nil {
		return e.failure(model.Key{}, query, err)
	}
	return resp, nil
}

func (e *Engine) failure(key model.Key, query []byte, err error) ([]byte, error) {
	e.metrics.upstreamErrors.Inc()
	log.Sugar.Warnf("upstream exchange failed, key=%s error=[%+v]", key, err)

	fail, ferr := util.DNSNewFailureRaw(query)
	if ferr != nil {
		return nil, fmt.Errorf("upstream exchange: %w", err)
	}
	return fail, nil
}
