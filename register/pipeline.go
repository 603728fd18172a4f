// Package register implements the registration commit pipeline of
// spec.md §4.6: spool parsing, primary-key uniqueness checking, the
// optional external parse-program hook, Updated stamping, SOA serial
// bump, and the commit under the store's placeholder lock.
package register

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rwhoisd/rwhoisd/proto"
	"github.com/rwhoisd/rwhoisd/schema"
	"github.com/rwhoisd/rwhoisd/store"
)

// Action is the registration action named on `-register on`.
type Action string

const (
	ActionAdd Action = "add"
	ActionMod Action = "mod"
	ActionDel Action = "del"
)

// Request bundles everything Commit needs for one spool.
type Request struct {
	Area        *schema.Area
	Class       *schema.Class
	Store       *store.ClassStore
	LockOpts    store.LockOptions
	SpoolPath   string
	Action      Action
	Email       string
	ClientVendor string
	BinPath     string // class.ParseProgram, resolved
	Now         time.Time
}

// Result reports the outcome of a commit attempt.
type Result struct {
	Deferred bool
	Code     proto.Code // zero on success
}

// Commit runs the full pipeline for one spool (spec.md §4.6).
func Commit(req Request) (Result, error) {
	oldFields, newFields, err := parseSpool(req.SpoolPath, req.Action)
	if err != nil {
		return Result{Code: proto.InvalidAttributeSyntax}, err
	}

	if req.BinPath != "" {
		exitKind, err := runParseProgram(req)
		if err != nil {
			return Result{Code: proto.UnidentifiedError}, err
		}
		switch exitKind {
		case exitDeferred:
			return Result{Deferred: true, Code: proto.RegistrationDeferred}, nil
		case exitError:
			return Result{Code: proto.UnidentifiedError}, nil
		}
		// exitOK: re-read the spool, since the parser may have rewritten it.
		oldFields, newFields, err = parseSpool(req.SpoolPath, req.Action)
		if err != nil {
			return Result{Code: proto.InvalidAttributeSyntax}, err
		}
	}

	if req.Action == ActionDel {
		return commitDelete(req, oldFields)
	}

	matches, err := primaryKeyMatches(req, newFields)
	if err != nil {
		return Result{Code: proto.UnrecoverableError}, err
	}

	var modTarget *store.Locator
	switch req.Action {
	case ActionAdd:
		if len(matches) > 0 {
			return Result{Code: proto.PrimaryKeyNotUnique}, fmt.Errorf("primary key already registered")
		}
	case ActionMod:
		loc, code, merr := resolveModTarget(req, oldFields, matches)
		if merr != nil {
			return Result{Code: code}, merr
		}
		modTarget = &loc
	}

	newFields = stampUpdated(newFields, req.Now)

	if violations, verr := store.Validate(req.Class, store.AnonymousRecord{Fields: newFields}, store.ValidateOn|store.ValidateFindAll); len(violations) > 0 {
		return Result{Code: proto.RequiredAttributeMissing}, fmt.Errorf("record invalid: %v", violations)
	} else if verr != nil {
		return Result{Code: proto.UnidentifiedError}, verr
	}

	if modTarget != nil {
		if err := tombstoneLocator(req.Store, *modTarget); err != nil {
			return Result{Code: proto.UnrecoverableError}, err
		}
	}

	if err := req.Store.AddRecord(newFields); err != nil {
		return Result{Code: proto.UnrecoverableError}, err
	}

	if err := bumpSOA(req); err != nil {
		return Result{Code: proto.UnrecoverableError}, err
	}

	return Result{}, nil
}

func commitDelete(req Request, oldFields []store.Field) (Result, error) {
	id, _ := fieldValue(oldFields, "ID")
	if id == "" {
		return Result{Code: proto.InvalidAttributeSyntax}, fmt.Errorf("del spool missing ID")
	}
	// Deletion tombstones every record that the exact-match ID index
	// maps the stated ID to.
	idx, ok := req.Store.Index("ID")
	if !ok {
		return Result{Code: proto.ObjectNotFound}, fmt.Errorf("class has no ID index")
	}
	locs := idx.Lookup(id)
	if len(locs) == 0 {
		return Result{Code: proto.ObjectNotFound}, fmt.Errorf("no record with ID %q", id)
	}
	for _, loc := range locs {
		if err := tombstoneLocator(req.Store, loc); err != nil {
			return Result{Code: proto.UnrecoverableError}, err
		}
	}
	if err := bumpSOA(req); err != nil {
		return Result{Code: proto.UnrecoverableError}, err
	}
	return Result{}, nil
}

// tombstoneLocator marks the record at loc deleted in its data file
// (spec.md §3: "logically deleted by writing a tombstone line"),
// shared by del commits and the record a mod replaces.
func tombstoneLocator(cs *store.ClassStore, loc store.Locator) error {
	entry, ok := cs.ByFileNo(loc.FileNo)
	if !ok {
		return fmt.Errorf("no data file %d", loc.FileNo)
	}
	rec, err := cs.ReadRecord(loc)
	if err != nil {
		return err
	}
	var encoded bytes.Buffer
	exactSize, err := store.EncodeRecord(&encoded, rec.Fields)
	if err != nil {
		return err
	}
	df := store.DataFile{Path: cs.DataFilePath(entry)}
	return df.Tombstone(loc.Offset, exactSize)
}

func fieldValue(fields []store.Field, name string) (string, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func stampUpdated(fields []store.Field, now time.Time) []store.Field {
	out := make([]store.Field, 0, len(fields)+1)
	found := false
	for _, f := range fields {
		if f.Name == "Updated" {
			out = append(out, store.Field{Name: "Updated", Value: schema.Stamp(now)})
			found = true
			continue
		}
		out = append(out, f)
	}
	if !found {
		out = append(out, store.Field{Name: "Updated", Value: schema.Stamp(now)})
	}
	return out
}

func bumpSOA(req Request) error {
	req.Area.SOA.SerialNumber = schema.BumpSerial(req.Area.SOA.SerialNumber, req.Now)
	return schema.WriteSOA(req.Area.SOAFile, req.Area.SOA)
}

// parseSpool reads the spool in its action's layout (spec.md §4.6):
// add is one record; mod is an old identifier, a separator, then the
// replacement; del is an identifier only.
func parseSpool(path string, action Action) (oldFields, newFields []store.Field, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open spool %s: %w", path, err)
	}
	defer f.Close()

	var sections [][]store.Field
	var cur []store.Field
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "---") || line == "_NEW_" {
			sections = append(sections, cur)
			cur = nil
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, nil, fmt.Errorf("malformed spool line: %q", line)
		}
		cur = append(cur, store.Field{Name: strings.TrimSpace(line[:idx]), Value: strings.TrimSpace(line[idx+1:])})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	sections = append(sections, cur)

	switch action {
	case ActionAdd:
		if len(sections) < 1 {
			return nil, nil, fmt.Errorf("add spool empty")
		}
		return nil, sections[0], nil
	case ActionMod:
		if len(sections) < 2 {
			return nil, nil, fmt.Errorf("mod spool missing separator between old identifier and replacement")
		}
		return sections[0], sections[1], nil
	case ActionDel:
		if len(sections) < 1 {
			return nil, nil, fmt.Errorf("del spool empty")
		}
		return sections[0], nil, nil
	}
	return nil, nil, fmt.Errorf("unknown action %q", action)
}

// primaryKeyMatches constructs a query over every primary-key
// attribute of fields, intersecting the per-attribute index lookups
// so the result is records matching the *full* primary-key tuple
// rather than the sum of per-attribute hits (spec.md §4.6: "a query
// over all primary-key attributes of the new record"). An attribute
// missing from fields contributes no constraint, matching the base
// schema's case of a single required PK attribute (ID).
func primaryKeyMatches(req Request, fields []store.Field) ([]store.Locator, error) {
	pkAttrs := req.Class.PrimaryKeyAttrs()
	if len(pkAttrs) == 0 {
		return nil, nil
	}
	var result map[store.Locator]bool
	for _, a := range pkAttrs {
		value, ok := fieldValue(fields, a.Name)
		if !ok {
			continue
		}
		idx, ok := req.Store.Index(a.Name)
		if !ok {
			continue
		}
		set := map[store.Locator]bool{}
		for _, loc := range idx.Lookup(value) {
			set[loc] = true
		}
		if result == nil {
			result = set
			continue
		}
		intersected := map[store.Locator]bool{}
		for loc := range result {
			if set[loc] {
				intersected[loc] = true
			}
		}
		result = intersected
	}
	var out []store.Locator
	for loc := range result {
		out = append(out, loc)
	}
	return out, nil
}

// resolveModTarget picks the single record a mod spool replaces out of
// matches (the new record's primary-key hits), enforcing spec.md
// §4.6's "one match that matches the stated ID and, if supplied,
// Updated" rule. A stale Updated value maps to 325 Failed to Update
// Outdated Object; anything else amounts to the stated old record not
// existing.
func resolveModTarget(req Request, oldFields []store.Field, matches []store.Locator) (store.Locator, proto.Code, error) {
	if len(matches) == 0 {
		return store.Locator{}, proto.ObjectNotFound, fmt.Errorf("no record matches the new primary key")
	}
	if len(matches) > 1 {
		return store.Locator{}, proto.PrimaryKeyNotUnique, fmt.Errorf("primary key ambiguous across %d records", len(matches))
	}
	loc := matches[0]
	rec, err := req.Store.ReadRecord(loc)
	if err != nil {
		return store.Locator{}, proto.UnrecoverableError, err
	}

	oldID, _ := fieldValue(oldFields, "ID")
	curID, _ := rec.Get("ID")
	if oldID != "" && oldID != curID {
		return store.Locator{}, proto.ObjectNotFound, fmt.Errorf("mod identifier mismatch: %q != %q", oldID, curID)
	}
	if oldUpdated, ok := fieldValue(oldFields, "Updated"); ok && oldUpdated != "" {
		curUpdated, _ := rec.Get("Updated")
		if oldUpdated != curUpdated {
			return store.Locator{}, proto.FailedToUpdateOutdated, fmt.Errorf("stale Updated: %q != %q", oldUpdated, curUpdated)
		}
	}
	return loc, 0, nil
}

type exitKind int

const (
	exitOK exitKind = iota
	exitDeferred
	exitError
)

// runParseProgram hands the spool off to the class's external parser
// with BIN_PATH/ACTION/EMAIL/CLIENT_VENDOR in the environment (spec.md
// §4.6), mapping its exit code to {ok, deferred, error}. Exit code 0
// is ok, 1 is deferred, anything else is error, matching the
// original_source convention for mkdb/parser hooks.
func runParseProgram(req Request) (exitKind, error) {
	cmd := exec.Command(req.BinPath, req.SpoolPath)
	cmd.Env = append(os.Environ(),
		"BIN_PATH="+req.BinPath,
		"ACTION="+string(req.Action),
		"EMAIL="+req.Email,
		"CLIENT_VENDOR="+req.ClientVendor,
	)
	err := cmd.Run()
	if err == nil {
		return exitOK, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		switch exitErr.ExitCode() {
		case 1:
			return exitDeferred, nil
		default:
			return exitError, nil
		}
	}
	return exitError, err
}
