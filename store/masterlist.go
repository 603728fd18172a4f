package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rwhoisd/rwhoisd/config"
	"github.com/rwhoisd/rwhoisd/schema"
)

// EntryType is the master file list's `type` tag domain (spec.md §3):
// a data file, or one of the three index-file kinds it builds.
type EntryType string

const (
	EntryData         EntryType = "data"
	EntryExactIndex   EntryType = "exact-index"
	EntryCIDRIndex    EntryType = "cidr-index"
	EntrySoundexIndex EntryType = "soundex-index"
)

// indexEntryType maps an attribute's index kind to its master-list
// entry type. IndexAllWords shares the exact-index on-disk encoding
// (store.Index holds both by value, keyed differently), so it is
// filed as exact-index too; there is no fourth on-disk kind for it.
func indexEntryType(kind schema.IndexKind) EntryType {
	switch kind {
	case schema.IndexCIDR:
		return EntryCIDRIndex
	case schema.IndexSoundex:
		return EntrySoundexIndex
	default:
		return EntryExactIndex
	}
}

// MasterEntry is one row of the master file list (spec.md §4.2): a
// dense file number, its type, the filename, current size, record
// count, and whether it is excluded from searches by the lock bit.
type MasterEntry struct {
	Type    EntryType
	File    string
	FileNo  int
	Size    int64
	NumRecs int
	Locked  bool
}

// MasterFileList is the full set of entries for one class directory,
// plus the on-disk paths of its three coexisting copies (read, write,
// backup).
type MasterFileList struct {
	dir     string
	Entries []MasterEntry
}

func readPath(dir string) string   { return filepath.Join(dir, "local.db") }
func writePath(dir string) string  { return filepath.Join(dir, "local.db.write") }
func backupPath(dir string) string { return filepath.Join(dir, "local.db.bak") }

// LoadMasterFileList reads the current read copy. A missing file is
// not an error; it yields an empty list (a freshly created class).
func LoadMasterFileList(dir string) (*MasterFileList, error) {
	m := &MasterFileList{dir: dir}
	f, err := os.Open(readPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("open master file list %s: %w", readPath(dir), err)
	}
	defer f.Close()
	recs, err := config.ScanRecords(f)
	if err != nil {
		return nil, fmt.Errorf("parse master file list %s: %w", readPath(dir), err)
	}
	for _, rec := range recs {
		e, err := entryFromRecord(rec)
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

func entryFromRecord(rec config.Record) (MasterEntry, error) {
	var e MasterEntry
	typ, _ := rec.Get("type")
	e.Type = EntryType(typ)
	e.File, _ = rec.Get("file")
	fileNo, _ := rec.Get("file-no")
	n, err := strconv.Atoi(fileNo)
	if err != nil {
		return e, fmt.Errorf("master file list: invalid file-no %q: %w", fileNo, err)
	}
	e.FileNo = n
	if size, ok := rec.Get("size"); ok {
		e.Size, _ = strconv64(size)
	}
	if numRecs, ok := rec.Get("num-recs"); ok {
		e.NumRecs, _ = strconv.Atoi(numRecs)
	}
	if lock, ok := rec.Get("lock"); ok {
		e.Locked = lock == "1" || lock == "on"
	}
	return e, nil
}

func strconv64(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err
}

func entryToRecord(e MasterEntry) config.Record {
	lock := "0"
	if e.Locked {
		lock = "1"
	}
	return config.Record{Tags: []config.TagValue{
		{Tag: "type", Value: string(e.Type)},
		{Tag: "file", Value: e.File},
		{Tag: "file-no", Value: strconv.Itoa(e.FileNo)},
		{Tag: "size", Value: strconv.FormatInt(e.Size, 10)},
		{Tag: "num-recs", Value: strconv.Itoa(e.NumRecs)},
		{Tag: "lock", Value: lock},
	}}
}

// Batch is a set of add/delete/modify/lock/unlock operations applied
// atomically to a master file list (spec.md §4.2).
type Batch struct {
	Adds    []AddOp
	Deletes []int // file-no
	Mods    []ModOp
	Locks   []int
	Unlocks []int
}

// AddOp describes a new entry: tmpPath is the caller's temporary file,
// link()+unlink()'d into place under a generated name; nameTemplate is
// a printf-style template such as "data.%04d" used to pick the next
// filename by incrementing past the highest existing index.
type AddOp struct {
	Type         EntryType
	NameTemplate string
	TmpPath      string
	Size         int64
	NumRecs      int
}

// ModOp overwrites size/num-recs for an existing file-no.
type ModOp struct {
	FileNo  int
	Size    int64
	NumRecs int
}

// Apply executes batch atomically under the placeholder lock: it
// loads the current read copy, mutates it in memory, writes the
// result as the write copy, then performs the install dance (spec.md
// §4.2: unlink backup, rename read→backup, rename write→read).
func (m *MasterFileList) Apply(batch Batch, lockOpts LockOptions) error {
	lock, err := AcquirePlaceholderLock(lockFilePath(m.dir), lockOpts)
	if err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	defer lock.Release()

	fresh, err := LoadMasterFileList(m.dir)
	if err != nil {
		return err
	}
	entries := fresh.Entries

	nextNo := 0
	for _, e := range entries {
		if e.FileNo >= nextNo {
			nextNo = e.FileNo + 1
		}
	}

	for _, add := range batch.Adds {
		name := nextFilename(m.dir, add.NameTemplate)
		finalPath := filepath.Join(m.dir, name)
		if err := os.Link(add.TmpPath, finalPath); err != nil {
			return fmt.Errorf("link new file %s: %w", finalPath, err)
		}
		if err := os.Remove(add.TmpPath); err != nil {
			return fmt.Errorf("unlink temp %s: %w", add.TmpPath, err)
		}
		entries = append(entries, MasterEntry{
			Type: add.Type, File: name, FileNo: nextNo,
			Size: add.Size, NumRecs: add.NumRecs,
		})
		nextNo++
	}

	if len(batch.Deletes) > 0 {
		del := map[int]bool{}
		for _, n := range batch.Deletes {
			del[n] = true
		}
		var kept []MasterEntry
		for _, e := range entries {
			if !del[e.FileNo] {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	for _, mod := range batch.Mods {
		for i := range entries {
			if entries[i].FileNo == mod.FileNo {
				entries[i].Size = mod.Size
				entries[i].NumRecs = mod.NumRecs
			}
		}
	}
	applyLockToggle(entries, batch.Locks, true)
	applyLockToggle(entries, batch.Unlocks, false)

	sort.Slice(entries, func(i, j int) bool { return entries[i].FileNo < entries[j].FileNo })

	if err := writeEntries(writePath(m.dir), entries); err != nil {
		return err
	}
	if err := install(m.dir); err != nil {
		return err
	}
	m.Entries = entries
	return nil
}

func applyLockToggle(entries []MasterEntry, fileNos []int, locked bool) {
	set := map[int]bool{}
	for _, n := range fileNos {
		set[n] = true
	}
	for i := range entries {
		if set[entries[i].FileNo] {
			entries[i].Locked = locked
		}
	}
}

func nextFilename(dir, template string) string {
	// template is a printf pattern like "data.%04d"; scan existing
	// files matching the pattern's static parts to find the highest
	// index, per spec.md's "matching a template against the highest
	// existing index and incrementing".
	highest := -1
	entries, _ := os.ReadDir(dir)
	for i := 0; i < 100000; i++ {
		candidate := fmt.Sprintf(template, i)
		for _, e := range entries {
			if e.Name() == candidate {
				if i > highest {
					highest = i
				}
			}
		}
	}
	return fmt.Sprintf(template, highest+1)
}

func writeEntries(path string, entries []MasterEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write master file list %s: %w", path, err)
	}
	defer f.Close()
	for _, e := range entries {
		if err := config.WriteRecord(f, entryToRecord(e)); err != nil {
			return err
		}
	}
	return nil
}

// install performs the atomic copy-rotation: unlink any existing
// backup, rename read→backup, rename write→read (spec.md §4.2).
func install(dir string) error {
	bp, rp, wp := backupPath(dir), readPath(dir), writePath(dir)
	if _, err := os.Stat(bp); err == nil {
		if err := os.Remove(bp); err != nil {
			return fmt.Errorf("unlink backup %s: %w", bp, err)
		}
	}
	if _, err := os.Stat(rp); err == nil {
		if err := os.Rename(rp, bp); err != nil {
			return fmt.Errorf("rotate read->backup: %w", err)
		}
	}
	if err := os.Rename(wp, rp); err != nil {
		return fmt.Errorf("install write->read: %w", err)
	}
	return nil
}

// UpsertIndexEntry records (or refreshes) the master-list row for an
// index file, keyed by its on-disk name: a class's index files share
// the same master-list add/mod lifecycle as its data files (spec.md
// §3/§4.2), filed under the matching exact-index/cidr-index/soundex-
// index type rather than a generic "index" tag.
func (m *MasterFileList) UpsertIndexEntry(fileName string, typ EntryType, size int64, lockOpts LockOptions) error {
	lock, err := AcquirePlaceholderLock(lockFilePath(m.dir), lockOpts)
	if err != nil {
		return fmt.Errorf("upsert index entry: %w", err)
	}
	defer lock.Release()

	fresh, err := LoadMasterFileList(m.dir)
	if err != nil {
		return err
	}
	entries := fresh.Entries

	found := false
	for i := range entries {
		if entries[i].File == fileName {
			entries[i].Type = typ
			entries[i].Size = size
			found = true
			break
		}
	}
	if !found {
		nextNo := 0
		for _, e := range entries {
			if e.FileNo >= nextNo {
				nextNo = e.FileNo + 1
			}
		}
		entries = append(entries, MasterEntry{Type: typ, File: fileName, FileNo: nextNo, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].FileNo < entries[j].FileNo })
	if err := writeEntries(writePath(m.dir), entries); err != nil {
		return err
	}
	if err := install(m.dir); err != nil {
		return err
	}
	m.Entries = entries
	return nil
}

// Active returns the entries that are not excluded by the lock bit
// (spec.md §4.2: "a locked file is excluded from searches but still
// on disk").
func (m *MasterFileList) Active() []MasterEntry {
	var out []MasterEntry
	for _, e := range m.Entries {
		if !e.Locked {
			out = append(out, e)
		}
	}
	return out
}

// ByFileNo resolves an entry by its dense file number.
func (m *MasterFileList) ByFileNo(no int) (MasterEntry, bool) {
	for _, e := range m.Entries {
		if e.FileNo == no {
			return e, true
		}
	}
	return MasterEntry{}, false
}
