package transport

import "strings"

// Default route paths per logical endpoint.
const (
	PathEvents  = "/api/events"
	PathLegacy  = "/api/track"
	PathResults = "/api/results"
)

// Resolver produces an absolute URL per logical endpoint.
type Resolver interface {
	URL(ep Endpoint) string
}

// BaseResolver joins a single collector base URL with the default route
// paths, optionally overridden per endpoint.
type BaseResolver struct {
	base      string
	overrides map[Endpoint]string
}

// NewBaseResolver builds a resolver for the given base URL, e.g.
// "http://localhost:4000" or "https://collector.example.com".
func NewBaseResolver(base string) *BaseResolver {
	return &BaseResolver{base: strings.TrimRight(base, "/")}
}

// Override replaces the path for a logical endpoint. Paths must start
// with '/'. Returns the resolver for chaining.
func (r *BaseResolver) Override(ep Endpoint, path string) *BaseResolver {
	if r.overrides == nil {
		r.overrides = make(map[Endpoint]string)
	}
	r.overrides[ep] = path
	return r
}

func (r *BaseResolver) URL(ep Endpoint) string {
	if p, ok := r.overrides[ep]; ok {
		return r.base + p
	}
	switch ep {
	case EndpointEvents:
		return r.base + PathEvents
	case EndpointLegacy:
		return r.base + PathLegacy
	case EndpointResults:
		return r.base + PathResults
	default:
		return r.base
	}
}

// SelectBase implements the host-context contract: local development
// hosts get the development base, everything else the hosted production
// base. Host may carry a port.
func SelectBase(host, devBase, prodBase string) string {
	h := host
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	switch h {
	case "localhost", "127.0.0.1", "::1", "":
		return devBase
	default:
		return prodBase
	}
}
