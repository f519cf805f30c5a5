// Package iocache is for caching I/O calls and derived results.
package iocache

import (
	"sync"

	"github.com/huangsam/subpulse/internal/contract"
)

// CacheStoreManager manages the persistent stores.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	events       contract.CacheStore
	runs         contract.RunStore
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// GetEventStore returns the store holding normalized event snapshots.
func (mgr *CacheStoreManager) GetEventStore() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.events
}

// GetRunStore returns the forecast run store.
func (mgr *CacheStoreManager) GetRunStore() contract.RunStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.runs
}
