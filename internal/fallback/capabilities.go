package fallback

import (
	"context"
	"time"
)

// The capability interfaces below are the consumed contract between the
// coordinator and cloud/local adapters. Every operation is tenant-scoped —
// the core never infers tenancy from ambient state — and each must be
// implementable by both a cloud and a local variant.

// SearchCapability indexes and queries documents.
type SearchCapability interface {
	IndexDocument(ctx context.Context, tenant, id string, doc interface{}) error
	Search(ctx context.Context, tenant, query string, filters map[string]interface{}) (interface{}, error)
	HybridSearch(ctx context.Context, tenant, query string, filters map[string]interface{}) (interface{}, error)
	DeleteDocument(ctx context.Context, tenant, id string) error
}

// CacheCapability is a tenant-scoped key/value store with TTL support.
type CacheCapability interface {
	Get(ctx context.Context, tenant, key string) (interface{}, bool, error)
	Set(ctx context.Context, tenant, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, tenant, key string) error
	Exists(ctx context.Context, tenant, key string) (bool, error)
}

// StorageCapability is a tenant-scoped object store.
type StorageCapability interface {
	PutObject(ctx context.Context, tenant, key string, data []byte) error
	GetObject(ctx context.Context, tenant, key string) ([]byte, error)
	DeleteObject(ctx context.Context, tenant, key string) error
	ListObjects(ctx context.Context, tenant, prefix string) ([]string, error)
}

// ComputeCapability runs and schedules invocations.
type ComputeCapability interface {
	Invoke(ctx context.Context, tenant, name string, payload interface{}, async bool) (interface{}, error)
	Schedule(ctx context.Context, tenant string, config interface{}) (string, error)
	Status(ctx context.Context, tenant, id string) (interface{}, error)
}
