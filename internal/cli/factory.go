package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/patchbay"
	"github.com/aretw0/patchbay/internal/adapters/file"
	"github.com/aretw0/patchbay/pkg/adapters/memory"
	"github.com/aretw0/patchbay/pkg/adapters/redis"
	"github.com/aretw0/patchbay/pkg/adapters/s3"
	"github.com/aretw0/patchbay/pkg/config"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/persistence/middleware"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/aretw0/patchbay/pkg/session"
)

// Store is an opened snapshot store with the session options it implies.
type Store struct {
	ports.SnapshotStore
	SessionOptions []session.Option
	close          func() error
}

// Close releases the backend connection, if any.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore builds the backend named by cfg.Store. Saved snapshots are
// always sanitized; with an encryption key they are also encrypted.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	st := &Store{}
	var base ports.SnapshotStore

	switch cfg.Store.Backend {
	case config.BackendMemory:
		base = memory.NewStore()
	case config.BackendFile:
		base = file.New(cfg.Store.Path)
	case config.BackendRedis:
		rc := cfg.Store.Redis
		var opts []redis.Option
		if rc.TTL > 0 {
			opts = append(opts, redis.WithTTL(rc.TTL))
		}
		prefix := redis.DefaultPrefix
		if rc.Prefix != "" {
			prefix = rc.Prefix
			opts = append(opts, redis.WithPrefix(prefix))
		}
		rs := redis.New(rc.Addr, rc.Password, rc.DB, opts...)
		if err := rs.Client().Ping(ctx).Err(); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", rc.Addr, err)
		}
		base = rs
		st.close = rs.Close
		if rc.Lock {
			st.SessionOptions = append(st.SessionOptions,
				session.WithLocker(redis.NewLocker(rs.Client(), prefix+"lock:")))
		}
	case config.BackendS3:
		sc := cfg.Store.S3
		s, err := s3.NewFromConfig(ctx, s3.Config{
			Bucket:    sc.Bucket,
			Region:    sc.Region,
			Endpoint:  sc.Endpoint,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
			Prefix:    sc.Prefix,
		})
		if err != nil {
			return nil, err
		}
		base = s
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	mws := []middleware.Middleware{middleware.NewSanitizeMiddleware(cfg.Store.Redact...)}
	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, errors.Join(err, st.Close())
	}
	if key != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	st.SnapshotStore = middleware.Chain(base, mws...)
	return st, nil
}

// Stack is a host plus the store behind it.
type Stack struct {
	Host  *patchbay.Host
	Store *Store
}

// Close closes the host and then the store.
func (s *Stack) Close() error {
	return errors.Join(s.Host.Close(), s.Store.Close())
}

// NewStack opens the configured store and builds a host on it. With debug
// set, lifecycle hooks log every node and sequence change.
func NewStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, debug bool, opts ...patchbay.Option) (*Stack, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	hostOpts := []patchbay.Option{
		patchbay.WithName(cfg.Patch),
		patchbay.WithLogger(logger),
		patchbay.WithFormat(cfg.Audio.SampleRate, cfg.Audio.BlockSize),
		patchbay.WithPublishPolicy(patchbay.PublishPolicy(cfg.Engine.Policy)),
		patchbay.WithStore(store, store.SessionOptions...),
	}
	if debug {
		hostOpts = append(hostOpts, patchbay.WithLifecycleHooks(createDebugHooks(logger)))
	}
	host, err := patchbay.New(append(hostOpts, opts...)...)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return &Stack{Host: host, Store: store}, nil
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeAdded: func(n domain.Node) {
			logger.Debug("node added", "node", n.ID, "identifier", n.Identifier, "parent", n.Parent)
		},
		OnNodeRemoved: func(id domain.NodeID) {
			logger.Debug("node removed", "node", id)
		},
		OnPublish: func(info domain.SequenceInfo) {
			logger.Debug("sequence published", "generation", info.Generation, "units", len(info.Order))
		},
		OnDispose: func(info domain.SequenceInfo) {
			logger.Debug("sequence disposed", "generation", info.Generation)
		},
	}
}
