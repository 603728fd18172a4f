// Package config implements the loader for the daemon's on-disk
// tag:value file formats (spec.md Sec 4.1/6): the main config file,
// the directive table, and (via the ambient runtime-tuning file) a
// small amount of Go-native operational config.
//
// The tag:value grammar is fixed by the wire/file-format specification
// rather than being a general-purpose serialization choice, so it is
// hand-scanned here rather than reached for a third-party format
// library (see DESIGN.md).
package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Record is one parsed tag:value block, terminated by a line that
// begins with "---" (e.g. "-----") or is exactly "_NEW_" (spec.md Sec
// 6). Tags preserve input
// order since several file formats (schema, attribute-defs) are
// order-sensitive (attribute local-id is assigned by position).
type Record struct {
	Tags []TagValue
}

// TagValue is one "tag: value" line.
type TagValue struct {
	Tag   string
	Value string
}

// Get returns the first value for tag, and whether it was present.
func (r Record) Get(tag string) (string, bool) {
	for _, tv := range r.Tags {
		if tv.Tag == tag {
			return tv.Value, true
		}
	}
	return "", false
}

// All returns every value for tag, in order, for repeatable tags
// (e.g. "master", "slave", "attributedef").
func (r Record) All(tag string) []string {
	var out []string
	for _, tv := range r.Tags {
		if tv.Tag == tag {
			out = append(out, tv.Value)
		}
	}
	return out
}

// isSeparator reports whether line is a record separator.
func isSeparator(line string) bool {
	t := strings.TrimSpace(line)
	return t == "-----" || t == "_NEW_" || strings.HasPrefix(t, "---")
}

// ScanRecords reads a tag:value file, splitting it into records on
// the "-----"/"_NEW_" separator lines. A file with no separators at
// all is returned as a single record (used by the main config and SOA
// files, which have exactly one logical record).
func ScanRecords(r io.Reader) ([]Record, error) {
	var records []Record
	cur := Record{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(trimmed), "#") {
			continue
		}
		if isSeparator(trimmed) {
			if len(cur.Tags) > 0 {
				records = append(records, cur)
				cur = Record{}
			}
			continue
		}
		idx := strings.Index(trimmed, ":")
		if idx < 0 {
			return nil, fmt.Errorf("line %d: missing ':' in tag:value line %q", lineNo, trimmed)
		}
		tag := strings.TrimSpace(trimmed[:idx])
		val := strings.TrimSpace(trimmed[idx+1:])
		cur.Tags = append(cur.Tags, TagValue{Tag: tag, Value: val})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(cur.Tags) > 0 {
		records = append(records, cur)
	}
	return records, nil
}

// WriteRecord serializes a Record back out in tag:value form followed
// by a "-----" separator, the inverse of ScanRecords; used by
// SOA-file rewrites and schema-version bumps.
func WriteRecord(w io.Writer, rec Record) error {
	for _, tv := range rec.Tags {
		if _, err := fmt.Fprintf(w, "%s: %s\n", tv.Tag, tv.Value); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "-----")
	return err
}
