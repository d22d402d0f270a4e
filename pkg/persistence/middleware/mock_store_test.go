package middleware_test

import (
	"context"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// MockStore keeps what it is given without copying, so tests can inspect
// exactly what a middleware passed down.
type MockStore struct {
	data map[string]*domain.Snapshot
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.Snapshot),
	}
}

func (s *MockStore) Save(ctx context.Context, name string, snap *domain.Snapshot) error {
	s.data[name] = snap
	return nil
}

func (s *MockStore) Load(ctx context.Context, name string) (*domain.Snapshot, error) {
	snap, ok := s.data[name]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *MockStore) Delete(ctx context.Context, name string) error {
	delete(s.data, name)
	return nil
}

func (s *MockStore) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

var _ ports.SnapshotStore = (*MockStore)(nil)

func patch(name string, custom map[string]any) *domain.Snapshot {
	return &domain.Snapshot{
		Version: domain.SnapshotVersion,
		Name:    name,
		Nodes: []domain.NodeSnapshot{{
			ID:         1,
			Identifier: domain.TypeMidiMonitor,
			Format:     domain.FormatInternal,
			Properties: domain.Properties{Name: "mon", Missing: true, Custom: custom},
		}},
		Arcs: []domain.Arc{},
	}
}
