package lock

import (
	"context"
	"fmt"
	"path"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
)

// consulKV is the subset of *consulapi.KV used by ConsulStore.
type consulKV interface {
	Get(key string, q *consulapi.QueryOptions) (*consulapi.KVPair, *consulapi.QueryMeta, error)
	CAS(p *consulapi.KVPair, q *consulapi.WriteOptions) (bool, *consulapi.WriteMeta, error)
	Delete(key string, w *consulapi.WriteOptions) (*consulapi.WriteMeta, error)
	DeleteTree(prefix string, w *consulapi.WriteOptions) (*consulapi.WriteMeta, error)
	Keys(prefix, separator string, q *consulapi.QueryOptions) ([]string, *consulapi.QueryMeta, error)
}

// ConsulStore keeps locks in Consul KV under prefix. "." in lock ids becomes "/".
type ConsulStore struct {
	kv     consulKV
	prefix string
}

// NewConsulStore connects to the Consul agent at addr.
func NewConsulStore(addr, prefix string) (*ConsulStore, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &ConsulStore{kv: client.KV(), prefix: strings.Trim(prefix, "/")}, nil
}

func (s *ConsulStore) path(key string) string {
	return path.Join(s.prefix, strings.ReplaceAll(key, ".", "/"))
}

func (s *ConsulStore) Exists(ctx context.Context, key string) (bool, error) {
	pair, _, err := s.kv.Get(s.path(key), (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return false, err
	}
	return pair != nil, nil
}

// Create writes key only if it does not exist (check-and-set with index 0).
func (s *ConsulStore) Create(ctx context.Context, key string, value []byte) error {
	ok, _, err := s.kv.CAS(&consulapi.KVPair{Key: s.path(key), Value: value, ModifyIndex: 0},
		(&consulapi.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

func (s *ConsulStore) Delete(ctx context.Context, key string, recursive bool) error {
	w := (&consulapi.WriteOptions{}).WithContext(ctx)
	p := s.path(key)
	if _, err := s.kv.Delete(p, w); err != nil {
		return err
	}
	if recursive {
		_, err := s.kv.DeleteTree(p+"/", w)
		return err
	}
	return nil
}

func (s *ConsulStore) Children(ctx context.Context, key string) ([]string, error) {
	p := s.path(key) + "/"
	keys, _, err := s.kv.Keys(p, "/", (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return childNames(strings.TrimSuffix(p, "/"), "/", func(yield func(string) bool) {
		for _, k := range keys {
			if !yield(strings.TrimSuffix(k, "/")) {
				return
			}
		}
	}), nil
}
