package storage

import (
	"context"

	"github.com/cennso/sitegen/pkg/models"
)

// DocumentCache stores rendered documents keyed by route
type DocumentCache interface {
	// GetDocument retrieves the cached render of a route
	// Returns the entry, whether it was found, and any error. Undecodable entries count as not found
	GetDocument(route string) (entry *models.CacheEntry, found bool, err error)

	// PutDocument stores or replaces the cached render of a route
	PutDocument(route string, entry *models.CacheEntry) error
}

// MetaStore keeps small build-level values (last run id, renderer version)
type MetaStore interface {
	GetMeta(key string) (value string, found bool, err error)
	SetMeta(key, value string) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// Count returns the number of cached documents
	Count() int

	// Routes returns every cached route in key order
	Routes() ([]string, error)

	// Prune deletes cached routes not present in keep and returns how many were removed
	Prune(ctx context.Context, keep map[string]bool) (int, error)

	// CollectGarbage reclaims value log space left by overwrites and pruning
	CollectGarbage() (int, error)

	// Close cleanly closes the database connection
	Close() error
}

// BuildCache combines all store interfaces for components that need full access
type BuildCache interface {
	DocumentCache
	MetaStore
	StoreAdmin
}
