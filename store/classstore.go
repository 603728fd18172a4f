package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rwhoisd/rwhoisd/schema"
)

// ClassStore is the full on-disk record store for one (area, class)
// pair: its master file list, data files, and per-attribute indexes
// (spec.md §4.2).
type ClassStore struct {
	Class    *schema.Class
	dir      string
	lockOpts LockOptions
	master   *MasterFileList
	indexes  map[string]*Index // attribute name -> index
}

// OpenClassStore loads (or lazily creates) the store rooted at
// class.DataDir.
func OpenClassStore(class *schema.Class, lockOpts LockOptions) (*ClassStore, error) {
	if err := os.MkdirAll(class.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create class data dir %s: %w", class.DataDir, err)
	}
	master, err := LoadMasterFileList(class.DataDir)
	if err != nil {
		return nil, err
	}
	cs := &ClassStore{Class: class, dir: class.DataDir, lockOpts: lockOpts, master: master, indexes: map[string]*Index{}}
	for i := range class.Attributes {
		a := &class.Attributes[i]
		if a.Index == schema.IndexNone {
			continue
		}
		idx, err := LoadIndex(cs.indexPath(a.Name), a.Index)
		if err != nil {
			return nil, err
		}
		cs.indexes[a.Name] = idx
	}
	return cs, nil
}

func (cs *ClassStore) indexPath(attrName string) string {
	return filepath.Join(cs.dir, "idx."+attrName)
}

func (cs *ClassStore) multiLineAttrs() map[string]bool {
	out := map[string]bool{}
	for _, a := range cs.Class.Attributes {
		if a.MultiLine {
			out[a.Name] = true
		}
	}
	return out
}

// currentDataEntry returns the master-list entry of the highest-numbered
// unlocked data file, which new records are appended to, or false if
// the store has none yet.
func (cs *ClassStore) currentDataEntry() (MasterEntry, bool) {
	var best *MasterEntry
	for i := range cs.master.Entries {
		e := &cs.master.Entries[i]
		if e.Type != EntryData || e.Locked {
			continue
		}
		if best == nil || e.FileNo > best.FileNo {
			best = e
		}
	}
	if best == nil {
		return MasterEntry{}, false
	}
	return *best, true
}

// AddRecord appends fields to the active data file (creating one via
// a master-list Add batch if none exists yet), indexes every indexed
// attribute value, and updates the master list's size/num-recs
// (spec.md §4.2 Add/Modify operations).
func (cs *ClassStore) AddRecord(fields []Field) error {
	entry, ok := cs.currentDataEntry()
	if !ok {
		tmp := filepath.Join(cs.dir, "."+uuid.NewString()+".tmp")
		if err := os.WriteFile(tmp, nil, 0644); err != nil {
			return fmt.Errorf("create initial data file: %w", err)
		}
		batch := Batch{Adds: []AddOp{{Type: EntryData, NameTemplate: "data.%04d", TmpPath: tmp}}}
		if err := cs.master.Apply(batch, cs.lockOpts); err != nil {
			return err
		}
		entry, _ = cs.currentDataEntry()
	}

	df := DataFile{Path: filepath.Join(cs.dir, entry.File)}
	offset, _, err := df.Append(fields)
	if err != nil {
		return err
	}
	info, err := os.Stat(df.Path)
	if err != nil {
		return err
	}

	for _, f := range fields {
		a, ok := cs.Class.AttrByName(f.Name)
		if !ok || a.Index == schema.IndexNone {
			continue
		}
		idx, ok := cs.indexes[a.Name]
		if !ok {
			idx = NewIndex(a.Index)
			cs.indexes[a.Name] = idx
		}
		idx.Add(f.Value, Locator{FileNo: entry.FileNo, Offset: offset})
		if err := cs.persistIndex(a.Name, a.Index, idx); err != nil {
			return err
		}
	}

	return cs.master.Apply(Batch{Mods: []ModOp{{FileNo: entry.FileNo, Size: info.Size(), NumRecs: entry.NumRecs + 1}}}, cs.lockOpts)
}

// ReadRecord loads the anonymous record at loc.
func (cs *ClassStore) ReadRecord(loc Locator) (AnonymousRecord, error) {
	entry, ok := cs.master.ByFileNo(loc.FileNo)
	if !ok {
		return AnonymousRecord{}, fmt.Errorf("read record: file-no %d not in master list", loc.FileNo)
	}
	path := filepath.Join(cs.dir, entry.File)
	f, err := os.Open(path)
	if err != nil {
		return AnonymousRecord{}, fmt.Errorf("open data file %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return AnonymousRecord{}, err
	}
	return ReadRecordAt(f, loc.Offset, info.Size()-loc.Offset, cs.multiLineAttrs())
}

// Index returns the loaded index for attrName, if any.
func (cs *ClassStore) Index(attrName string) (*Index, bool) {
	idx, ok := cs.indexes[attrName]
	return idx, ok
}

// DataFilePath resolves a data file's on-disk path for a master-list
// entry.
func (cs *ClassStore) DataFilePath(entry MasterEntry) string {
	return filepath.Join(cs.dir, entry.File)
}

// ByFileNo resolves a master-list entry by its dense file number, for
// callers (register.Commit) that only have a store.Locator.
func (cs *ClassStore) ByFileNo(no int) (MasterEntry, bool) {
	return cs.master.ByFileNo(no)
}

// ActiveDataFiles returns the non-locked data-file entries, in
// file-no order, for full-scan operations (mkdb rebuild, repack).
func (cs *ClassStore) ActiveDataFiles() []MasterEntry {
	var out []MasterEntry
	for _, e := range cs.master.Active() {
		if e.Type == EntryData {
			out = append(out, e)
		}
	}
	return out
}

// Rebuild rescans every active data file and rebuilds every attribute
// index from scratch, used by cmd/mkdb after a bulk import.
func (cs *ClassStore) Rebuild() error {
	fresh := map[string]*Index{}
	for i := range cs.Class.Attributes {
		a := &cs.Class.Attributes[i]
		if a.Index != schema.IndexNone {
			fresh[a.Name] = NewIndex(a.Index)
		}
	}
	for _, entry := range cs.ActiveDataFiles() {
		df := DataFile{Path: cs.DataFilePath(entry)}
		records, err := df.ScanAll(cs.multiLineAttrs())
		if err != nil {
			return err
		}
		for _, rec := range records {
			for _, f := range rec.Fields {
				idx, ok := fresh[f.Name]
				if !ok {
					continue
				}
				idx.Add(f.Value, Locator{FileNo: entry.FileNo, Offset: rec.Offset})
			}
		}
	}
	for i := range cs.Class.Attributes {
		a := &cs.Class.Attributes[i]
		idx, ok := fresh[a.Name]
		if !ok {
			continue
		}
		if err := cs.persistIndex(a.Name, a.Index, idx); err != nil {
			return err
		}
		cs.indexes[a.Name] = idx
	}
	return nil
}

// persistIndex writes attrName's index file to disk and upserts its
// master-list row under the type matching kind.
func (cs *ClassStore) persistIndex(attrName string, kind schema.IndexKind, idx *Index) error {
	path := cs.indexPath(attrName)
	if err := idx.WriteTo(path); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return cs.master.UpsertIndexEntry(filepath.Base(path), indexEntryType(kind), info.Size(), cs.lockOpts)
}
