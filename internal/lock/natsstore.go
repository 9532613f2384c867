package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// kvBucket is the subset of jetstream.KeyValue used by NATSStore.
type kvBucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Create(ctx context.Context, key string, value []byte) error
	Purge(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// NATSStore keeps locks in a JetStream KeyValue bucket. Create is atomic.
type NATSStore struct {
	conn *nats.Conn
	kv   kvBucket
}

// NewNATSStore connects to url and opens (or creates) bucket.
func NewNATSStore(ctx context.Context, url, bucket string) (*NATSStore, error) {
	conn, err := nats.Connect(url, nats.Name("buildworker-lock"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "buildworker task locks",
			History:     1,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create KV bucket: %w", err)
		}
		slog.Info("Created KV bucket for task locks", "bucket", bucket)
	}

	return &NATSStore{conn: conn, kv: jetstreamBucket{kv: kv}}, nil
}

func (s *NATSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *NATSStore) Create(ctx context.Context, key string, value []byte) error {
	if err := s.kv.Create(ctx, key, value); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrHeld
		}
		return err
	}
	return nil
}

func (s *NATSStore) Delete(ctx context.Context, key string, recursive bool) error {
	if err := s.kv.Purge(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return err
	}
	if !recursive {
		return nil
	}
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, key+".") {
			continue
		}
		if err := s.kv.Purge(ctx, k); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return err
		}
	}
	return nil
}

func (s *NATSStore) Children(ctx context.Context, key string) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return childNames(key, ".", func(yield func(string) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}), nil
}

// Close drains the NATS connection.
func (s *NATSStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// jetstreamBucket adapts jetstream.KeyValue to kvBucket.
type jetstreamBucket struct {
	kv jetstream.KeyValue
}

func (b jetstreamBucket) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

func (b jetstreamBucket) Create(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Create(ctx, key, value)
	return err
}

func (b jetstreamBucket) Purge(ctx context.Context, key string) error {
	return b.kv.Purge(ctx, key)
}

func (b jetstreamBucket) Keys(ctx context.Context) ([]string, error) {
	lister, err := b.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = lister.Stop() }()
	var keys []string
	for k := range lister.Keys() {
		keys = append(keys, k)
	}
	return keys, nil
}
