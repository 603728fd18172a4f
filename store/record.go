package store

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// AnonymousRecord is a record as read straight off disk, before the
// reader resolves which class/area it belongs to (spec.md §4.2:
// "reading yields anonymous records"). Attribute order is preserved
// since multi-line values continue onto the following physical lines.
type AnonymousRecord struct {
	Fields []Field
	// Offset is this record's byte offset within its data file, used
	// by index files to address it.
	Offset int64
}

// Field is one "Name:Value" line of an anonymous record.
type Field struct {
	Name  string
	Value string
}

// Get returns the first value for name, matching any of the supplied
// aliases in order, and whether one was found.
func (r AnonymousRecord) Get(names ...string) (string, bool) {
	for _, f := range r.Fields {
		for _, n := range names {
			if f.Name == n {
				return f.Value, true
			}
		}
	}
	return "", false
}

// All returns every value for name.
func (r AnonymousRecord) All(names ...string) []string {
	var out []string
	for _, f := range r.Fields {
		for _, n := range names {
			if f.Name == n {
				out = append(out, f.Value)
			}
		}
	}
	return out
}

// classAttrAliases and areaAttrAliases are the fixed attribute-name
// sets used to resolve an anonymous record's class and area (spec.md
// §4.2: "the reader then resolves the class via the Class-Name/
// Schema-Name/Object-Type/cn attribute (any alias) and the area via
// Auth-Area/AA").
var classAttrAliases = []string{"Class-Name", "Schema-Name", "Object-Type", "cn"}
var areaAttrAliases = []string{"Auth-Area", "AA"}

// ResolveClassName returns the record's class name, falling back to
// fallback if none of the recognised attributes are present.
func (r AnonymousRecord) ResolveClassName(fallback string) string {
	if v, ok := r.Get(classAttrAliases...); ok {
		return v
	}
	return fallback
}

// ResolveAreaName returns the record's authority-area name, falling
// back to fallback if absent.
func (r AnonymousRecord) ResolveAreaName(fallback string) string {
	if v, ok := r.Get(areaAttrAliases...); ok {
		return v
	}
	return fallback
}

// isTombstone reports whether a physical line is a tombstone (a
// leading underscore marks the line as deleted; spec.md §4.2).
func isTombstone(line string) bool {
	return strings.HasPrefix(line, "_") && !strings.HasPrefix(line, "_NEW_")
}

func isDataSeparator(line string) bool {
	t := strings.TrimRight(line, "\r")
	return strings.HasPrefix(t, "---") || t == "_NEW_"
}

// ReadRecordAt reads the single anonymous record beginning at offset
// in r, stopping at the next separator line or EOF. multiLineAttrs
// names attributes whose values continue onto unlabelled following
// lines (spec.md §4.2 "is_multi_line").
func ReadRecordAt(r io.ReaderAt, offset int64, size int64, multiLineAttrs map[string]bool) (AnonymousRecord, error) {
	sectionReader := io.NewSectionReader(r, offset, size)
	sc := bufio.NewScanner(sectionReader)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	rec := AnonymousRecord{Offset: offset}
	var lastField *Field
	for sc.Scan() {
		line := sc.Text()
		if isDataSeparator(line) {
			break
		}
		if isTombstone(line) {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			if lastField != nil && multiLineAttrs[lastField.Name] {
				lastField.Value += "\n" + line
				continue
			}
			return rec, fmt.Errorf("malformed record line (no ':' and no open multi-line field): %q", line)
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		rec.Fields = append(rec.Fields, Field{Name: name, Value: value})
		lastField = &rec.Fields[len(rec.Fields)-1]
	}
	if err := sc.Err(); err != nil {
		return rec, err
	}
	return rec, nil
}

// EncodeRecord renders fields back to "Name:Value" lines followed by
// a "---" separator, the write-side counterpart of ReadRecordAt.
func EncodeRecord(w io.Writer, fields []Field) (int64, error) {
	var written int64
	for _, f := range fields {
		n, err := fmt.Fprintf(w, "%s:%s\n", f.Name, f.Value)
		if err != nil {
			return written, err
		}
		written += int64(n)
	}
	n, err := fmt.Fprintln(w, "---")
	written += int64(n)
	return written, err
}
