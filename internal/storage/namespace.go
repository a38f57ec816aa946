package storage

import (
	"context"

	"brand-studio/server/internal/interfaces"
)

const keyPrefix = "brand-studio:ws:"

// Namespace scopes every key of one workspace under its own prefix so many
// workspaces share a backend.
type Namespace struct {
	inner  interfaces.KVStore
	prefix string
}

func NewNamespace(inner interfaces.KVStore, workspaceID string) *Namespace {
	return &Namespace{inner: inner, prefix: keyPrefix + workspaceID + ":"}
}

func (n *Namespace) key(k string) string { return n.prefix + k }

func (n *Namespace) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.key(key))
}

func (n *Namespace) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.key(key), value)
}

func (n *Namespace) Delete(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = n.key(k)
	}
	return n.inner.Delete(ctx, scoped...)
}
