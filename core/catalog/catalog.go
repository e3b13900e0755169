// Package catalog keeps the in-memory registry of tables and their files.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

type tableEntry struct {
	name string
	file flushmanager.DBFile
}

// Catalog maps table ids and names to storage files. Safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[pagemanager.TableID]tableEntry
	byName map[string]pagemanager.TableID
}

var _ flushmanager.Catalog = (*Catalog)(nil)

func New() *Catalog {
	return &Catalog{
		byID:   make(map[pagemanager.TableID]tableEntry),
		byName: make(map[string]pagemanager.TableID),
	}
}

// AddTable registers file under name. Re-adding a name replaces the previous
// table of that name; re-adding an id replaces its file and name.
func (c *Catalog) AddTable(name string, file flushmanager.DBFile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := file.TableID()
	if old, ok := c.byID[id]; ok {
		delete(c.byName, old.name)
	}
	if oldID, ok := c.byName[name]; ok {
		delete(c.byID, oldID)
	}
	c.byID[id] = tableEntry{name: name, file: file}
	c.byName[name] = id
}

func (c *Catalog) DBFile(id pagemanager.TableID) (flushmanager.DBFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", flushmanager.ErrTableNotFound, id)
	}
	return e.file, nil
}

func (c *Catalog) TableName(id pagemanager.TableID) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: id %d", flushmanager.ErrTableNotFound, id)
	}
	return e.name, nil
}

func (c *Catalog) TableID(name string) (pagemanager.TableID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", flushmanager.ErrTableNotFound, name)
	}
	return id, nil
}

// TableIDs returns every registered id in ascending order.
func (c *Catalog) TableIDs() []pagemanager.TableID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]pagemanager.TableID, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
