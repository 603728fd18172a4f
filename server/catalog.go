// Package server implements the connection listener of spec.md §4.7:
// a bounded worker pool in place of the original fork-per-client
// model (SPEC_FULL.md §6.7), SIGHUP-triggered reload, and the
// in-memory Catalog that ties the loaded schema to the on-disk store
// for the query/referral/register packages.
package server

import (
	"fmt"
	"sync"

	"github.com/rwhoisd/rwhoisd/config"
	"github.com/rwhoisd/rwhoisd/schema"
	"github.com/rwhoisd/rwhoisd/store"
)

// Catalog holds one consistent snapshot of the loaded authority
// areas and their open class stores. A fresh Catalog is built on
// every successful reload (initial load and SIGHUP); each session keeps
// the snapshot it was handed when it started for its whole lifetime.
type Catalog struct {
	mu      sync.RWMutex
	areas   map[string]*schema.Area
	order   []string
	stores  map[string]*store.ClassStore // "area\x00class"
	lockOpts store.LockOptions
}

// NewCatalog opens a ClassStore for every class of every loaded area.
func NewCatalog(areas []schema.Area, lockOpts store.LockOptions) (*Catalog, error) {
	cat := &Catalog{
		areas:    map[string]*schema.Area{},
		stores:   map[string]*store.ClassStore{},
		lockOpts: lockOpts,
	}
	for i := range areas {
		a := &areas[i]
		cat.areas[a.Name] = a
		cat.order = append(cat.order, a.Name)
		for j := range a.Classes {
			c := &a.Classes[j]
			cs, err := store.OpenClassStore(c, lockOpts)
			if err != nil {
				return nil, fmt.Errorf("open store for %s/%s: %w", a.Name, c.Name, err)
			}
			cat.stores[storeKey(a.Name, c.Name)] = cs
		}
	}
	return cat, nil
}

func storeKey(area, class string) string { return area + "\x00" + class }

// Areas implements query.Catalog.
func (c *Catalog) Areas() []*schema.Area {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*schema.Area, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.areas[name])
	}
	return out
}

// AreaByName implements query.Catalog.
func (c *Catalog) AreaByName(name string) (*schema.Area, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.areas[schema.NormalizedKey(name)]
	if ok {
		return a, true
	}
	a, ok = c.areas[name]
	return a, ok
}

// ClassStore implements query.Catalog.
func (c *Catalog) ClassStore(areaName, className string) (*store.ClassStore, *schema.Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.areas[areaName]
	if !ok {
		return nil, nil, false
	}
	class, ok := a.ClassByName(className)
	if !ok {
		return nil, nil, false
	}
	cs, ok := c.stores[storeKey(areaName, class.Name)]
	return cs, class, ok
}

// Reload rebuilds the catalog from the root config + schema files by
// re-running the whole loader, used both at startup and on SIGHUP
// (spec.md §4.1/§7).
func Reload(cfg *config.Config, lockOpts store.LockOptions) (*Catalog, []string, error) {
	areas, warnings, err := schema.LoadAreas(cfg, cfg.AuthAreaFile)
	if err != nil {
		return nil, nil, err
	}
	cat, err := NewCatalog(areas, lockOpts)
	if err != nil {
		return nil, nil, err
	}
	return cat, warnings, nil
}
