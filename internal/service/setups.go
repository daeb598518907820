package service

import (
	"io/fs"
	"sync"

	"github.com/keatohn/baggins-and-allies/pkg/engine"
)

// SetupCatalog loads setup bundles from a filesystem and caches them.
// Loaded setups are immutable, so a single cached copy is shared by
// every game created from it.
type SetupCatalog struct {
	fsys fs.FS

	mu    sync.RWMutex
	cache map[string]*engine.Setup
}

// NewSetupCatalog creates a catalog over the given setup filesystem.
func NewSetupCatalog(fsys fs.FS) *SetupCatalog {
	return &SetupCatalog{fsys: fsys, cache: map[string]*engine.Setup{}}
}

// List returns the available setup bundles.
func (c *SetupCatalog) List() ([]engine.SetupInfo, error) {
	return engine.ListSetups(c.fsys)
}

// Load returns a setup bundle by id, from cache when possible.
func (c *SetupCatalog) Load(id string) (*engine.Setup, error) {
	c.mu.RLock()
	setup, ok := c.cache[id]
	c.mu.RUnlock()
	if ok {
		return setup, nil
	}

	setup, err := engine.LoadSetup(c.fsys, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[id] = setup
	c.mu.Unlock()
	return setup, nil
}
