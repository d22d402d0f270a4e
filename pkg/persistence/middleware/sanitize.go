package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// Redacted replaces custom property values whose key matches a redact pattern.
const Redacted = "***"

type sanitizeMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewSanitizeMiddleware strips session-unsafe properties (missing and
// placeholder markers, transient keys) before a snapshot reaches the store.
// Custom property values whose key matches one of redactPatterns are
// masked, at any depth.
func NewSanitizeMiddleware(redactPatterns ...string) Middleware {
	patterns := make([]*regexp.Regexp, len(redactPatterns))
	for i, p := range redactPatterns {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &sanitizeMiddleware{next: next, patterns: patterns}
	}
}

func (m *sanitizeMiddleware) Save(ctx context.Context, name string, snap *domain.Snapshot) error {
	// Clone so the caller's snapshot is left untouched.
	cloned := snap.Clone()
	domain.SanitizeProperties(cloned)
	if len(m.patterns) > 0 {
		cloned.Walk(func(_ *domain.Snapshot, n *domain.NodeSnapshot) {
			if n.Properties.Custom != nil {
				n.Properties.Custom = deepCopyMap(n.Properties.Custom)
				maskMap(n.Properties.Custom, m.patterns)
			}
		})
	}
	return m.next.Save(ctx, name, cloned)
}

func (m *sanitizeMiddleware) Load(ctx context.Context, name string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, name)
}

func (m *sanitizeMiddleware) Delete(ctx context.Context, name string) error {
	return m.next.Delete(ctx, name)
}

func (m *sanitizeMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Redacted
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
