package clients

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"orchestrator-api/internal/config"
	"orchestrator-api/internal/health"
	"orchestrator-api/internal/metrics"
	"orchestrator-api/internal/shared"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRegistrySealed  = errors.New("client registry is sealed")
	ErrDuplicateClient = errors.New("client already registered")
)

type registryKey struct {
	kind Kind
	name string
}

type Entry struct {
	Kind   Kind
	Name   string
	Client Client
}

// Registry maps (kind, logical name) to a client. It is filled during
// startup and sealed before requests are served. Reads lock until Seal; after
// it the map is never written again and reads take no lock.
type Registry struct {
	mu      sync.Mutex
	clients map[registryKey]Client
	sealed  atomic.Bool
}

func NewRegistry() *Registry {
	return &Registry{clients: map[registryKey]Client{}}
}

func (r *Registry) Register(kind Kind, name string, client Client) error {
	if client == nil {
		return fmt.Errorf("register %s/%s: nil client", kind, name)
	}
	if kind == "" || name == "" {
		return fmt.Errorf("register %q/%q: kind and name are required", kind, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return fmt.Errorf("register %s/%s: %w", kind, name, ErrRegistrySealed)
	}
	k := registryKey{kind: kind, name: name}
	if _, ok := r.clients[k]; ok {
		return fmt.Errorf("register %s/%s: %w", kind, name, ErrDuplicateClient)
	}
	r.clients[k] = client
	return nil
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed.Store(true)
}

func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// read runs fn against the map, holding the lock while Register may still
// write to it.
func (r *Registry) read(fn func(map[registryKey]Client)) {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	fn(r.clients)
}

func (r *Registry) Lookup(kind Kind, name string) (Client, error) {
	var (
		client Client
		ok     bool
	)
	r.read(func(m map[registryKey]Client) {
		client, ok = m[registryKey{kind: kind, name: name}]
	})
	if !ok {
		return nil, &shared.NotFoundError{Kind: string(kind), Name: name}
	}
	return client, nil
}

func (r *Registry) Len() int {
	var n int
	r.read(func(m map[registryKey]Client) { n = len(m) })
	return n
}

// Entries lists registered clients ordered by kind then name.
func (r *Registry) Entries() []Entry {
	var out []Entry
	r.read(func(m map[registryKey]Client) {
		out = make([]Entry, 0, len(m))
		for k, c := range m {
			out = append(out, Entry{Kind: k.kind, Name: k.name, Client: c})
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Health probes every client concurrently. Each client reports on its own;
// one slow or failing probe does not affect the others' results.
func (r *Registry) Health(ctx context.Context) *health.HealthProbeResponse {
	entries := r.Entries()
	results := make([]health.HealthCheckResult, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shared.MaxConcurrentHealthProbes)
	for i, e := range entries {
		g.Go(func() error {
			results[i] = e.Client.Health(gctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := health.NewHealthProbeResponse()
	for i, e := range entries {
		resp.Add(string(e.Kind), e.Name, results[i])
		metrics.ClientHealth.WithLabelValues(string(e.Kind), e.Name).Set(healthGauge(results[i].Status))
	}
	return resp
}

func healthGauge(s health.HealthStatus) float64 {
	switch s {
	case health.StatusHealthy:
		return 1
	case health.StatusUnhealthy:
		return 0
	default:
		return -1
	}
}

// BuildRegistry creates a client for every configured service and seals the
// registry.
func BuildRegistry(cfg *config.Config, log *zap.SugaredLogger) (*Registry, error) {
	r := NewRegistry()
	var errs []error
	for kind, byName := range cfg.Clients {
		for name, svc := range byName {
			client, err := New(Kind(kind), name, svc, log)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := r.Register(Kind(kind), name, client); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	r.Seal()
	return r, nil
}
