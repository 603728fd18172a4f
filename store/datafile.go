package store

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DataFile wraps one append-only record file (spec.md §4.2).
type DataFile struct {
	Path string
}

// Append writes a new record to the end of the file, returning the
// byte offset at which it starts (for indexing) and its encoded size.
func (d DataFile) Append(fields []Field) (offset int64, size int64, err error) {
	f, err := os.OpenFile(d.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, 0, fmt.Errorf("open data file %s: %w", d.Path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	offset = info.Size()
	size, err = EncodeRecord(f, fields)
	return offset, size, err
}

// Tombstone marks the record at offset as deleted by rewriting its
// first byte with '_' (spec.md §4.2: "a leading underscore on a line
// means the line is a tombstone"). It tombstones every physical line
// of the record so readers skip the whole thing.
func (d DataFile) Tombstone(offset int64, size int64) error {
	f, err := os.OpenFile(d.Path, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open data file %s for tombstone: %w", d.Path, err)
	}
	defer f.Close()
	sr := make([]byte, size)
	if _, err := f.ReadAt(sr, offset); err != nil {
		return fmt.Errorf("read record at %d for tombstone: %w", offset, err)
	}
	lines := strings.Split(string(sr), "\n")
	for i, line := range lines {
		if line == "" || isDataSeparator(line) {
			continue
		}
		if !isTombstone(line) {
			lines[i] = "_" + line[1:]
		}
	}
	out := strings.Join(lines, "\n")
	if len(out) != len(sr) {
		// Every other record is addressed by byte offset, so a rewrite
		// that would change this record's length is refused rather than
		// shifting the rest of the file.
		return fmt.Errorf("tombstone would change record length (%d -> %d) at offset %d", len(sr), len(out), offset)
	}
	if _, err := f.WriteAt([]byte(out), offset); err != nil {
		return fmt.Errorf("write tombstone at %d: %w", offset, err)
	}
	return nil
}

// ScanAll reads every non-tombstoned record in the file along with
// its offset and size, used by index rebuilds and cmd/mkdb.
func (d DataFile) ScanAll(multiLineAttrs map[string]bool) ([]AnonymousRecord, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open data file %s: %w", d.Path, err)
	}
	defer f.Close()

	var records []AnonymousRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var offset int64
	recStart := int64(0)
	rec := AnonymousRecord{Offset: 0}
	var lastField *Field
	flush := func(end int64) {
		if len(rec.Fields) > 0 {
			rec.Offset = recStart
			records = append(records, rec)
		}
		rec = AnonymousRecord{}
		lastField = nil
		recStart = end
	}
	for sc.Scan() {
		line := sc.Text()
		lineLen := int64(len(line)) + 1 // newline
		if isDataSeparator(line) {
			flush(offset + lineLen)
			offset += lineLen
			continue
		}
		if isTombstone(line) {
			offset += lineLen
			continue
		}
		if strings.TrimSpace(line) != "" {
			idx := strings.Index(line, ":")
			if idx < 0 {
				if lastField != nil && multiLineAttrs[lastField.Name] {
					lastField.Value += "\n" + line
					offset += lineLen
					continue
				}
			} else {
				name := strings.TrimSpace(line[:idx])
				value := strings.TrimSpace(line[idx+1:])
				rec.Fields = append(rec.Fields, Field{Name: name, Value: value})
				lastField = &rec.Fields[len(rec.Fields)-1]
			}
		}
		offset += lineLen
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush(offset)
	return records, nil
}
