package schema

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rwhoisd/rwhoisd/config"
)

// RootResolver resolves a path under the server root, applying
// chroot-containment checks (spec.md Sec 4.1). config.Config
// satisfies this.
type RootResolver interface {
	ResolvePath(p string) (string, error)
}

// LoadAreas reads the authority-area list file and, for each primary
// area, its SOA file, schema file, and per-class attribute-definitions
// file, returning the fully validated in-memory model (spec.md Sec
// 4.1). Secondary areas carry only the tags of their list-file record.
// Loading fails on the first hard error.
func LoadAreas(resolver RootResolver, authAreaFile string) ([]Area, []string, error) {
	var warnings []string
	path, err := resolver.ResolvePath(authAreaFile)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open authority-area file %s: %w", path, err)
	}
	defer f.Close()
	recs, err := config.ScanRecords(f)
	if err != nil {
		return nil, nil, fmt.Errorf("parse authority-area file %s: %w", path, err)
	}

	var areas []Area
	seen := map[string]bool{}
	for _, rec := range recs {
		area, warns, err := loadOneArea(resolver, rec)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, warns...)
		key := string(area.Type) + "\x00" + area.Name
		if seen[key] {
			return nil, nil, fmt.Errorf("duplicate authority area (%s,%s)", area.Name, area.Type)
		}
		seen[key] = true
		if err := area.Validate(); err != nil {
			return nil, nil, err
		}
		areas = append(areas, *area)
	}
	return areas, warnings, nil
}

func loadOneArea(resolver RootResolver, rec config.Record) (*Area, []string, error) {
	var warnings []string
	name, ok := rec.Get("name")
	if !ok {
		return nil, nil, fmt.Errorf("authority area missing required 'name' tag")
	}
	typeStr, _ := rec.Get("type")
	if typeStr == "" {
		typeStr = string(Primary)
	}
	area := &Area{
		Name:      name,
		Type:      AreaType(typeStr),
		Masters:   rec.All("master"),
		Slaves:    rec.All("slave"),
		Guardians: rec.All("guardian"),
	}
	dataDir, _ := rec.Get("data-dir")
	schemaFile, _ := rec.Get("schema-file")
	soaFile, _ := rec.Get("soa-file")

	var err error
	if area.DataDir, err = resolver.ResolvePath(dataDir); err != nil {
		return nil, nil, err
	}
	if area.Type == Primary {
		if area.SchemaFile, err = resolver.ResolvePath(schemaFile); err != nil {
			return nil, nil, err
		}
		if area.SOAFile, err = resolver.ResolvePath(soaFile); err != nil {
			return nil, nil, err
		}
		soa, err := loadSOA(area.SOAFile)
		if err != nil {
			return nil, nil, fmt.Errorf("area %q: %w", name, err)
		}
		area.SOA = *soa
		area.PrimaryServer = soa.PrimaryServer
		area.Hostmaster = soa.Hostmaster

		classes, warns, err := loadSchema(resolver, area.SchemaFile)
		if err != nil {
			return nil, nil, fmt.Errorf("area %q: %w", name, err)
		}
		warnings = append(warnings, warns...)
		area.Classes = classes
	}
	return area, warnings, nil
}

func loadSOA(path string) (*SOA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open SOA file %s: %w", path, err)
	}
	defer f.Close()
	recs, err := config.ScanRecords(f)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("SOA file %s: empty", path)
	}
	rec := recs[0]
	soa := &SOA{}
	soa.SerialNumber, _ = rec.Get("Serial-Number")
	soa.PrimaryServer, _ = rec.Get("Primary-Server")
	soa.Hostmaster, _ = rec.Get("Hostmaster")
	soa.RefreshInterval = mustAtoiDefault(rec, "Refresh-Interval", 3600)
	soa.IncrementInterval = mustAtoiDefault(rec, "Increment-Interval", 3600)
	soa.RetryInterval = mustAtoiDefault(rec, "Retry-Interval", 600)
	soa.TimeToLive = mustAtoiDefault(rec, "Time-To-Live", 86400)
	return soa, nil
}

func mustAtoiDefault(rec config.Record, tag string, def int) int {
	v, ok := rec.Get(tag)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// WriteSOA serializes the SOA back to disk, used by the registration
// pipeline after bumping the serial (spec.md Sec 4.6 step 4).
func WriteSOA(path string, soa SOA) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write SOA file %s: %w", path, err)
	}
	defer f.Close()
	rec := config.Record{Tags: []config.TagValue{
		{Tag: "Serial-Number", Value: soa.SerialNumber},
		{Tag: "Refresh-Interval", Value: strconv.Itoa(soa.RefreshInterval)},
		{Tag: "Increment-Interval", Value: strconv.Itoa(soa.IncrementInterval)},
		{Tag: "Retry-Interval", Value: strconv.Itoa(soa.RetryInterval)},
		{Tag: "Time-To-Live", Value: strconv.Itoa(soa.TimeToLive)},
		{Tag: "Primary-Server", Value: soa.PrimaryServer},
		{Tag: "Hostmaster", Value: soa.Hostmaster},
	}}
	return config.WriteRecord(f, rec)
}

func loadSchema(resolver RootResolver, path string) ([]Class, []string, error) {
	var warnings []string
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open schema file %s: %w", path, err)
	}
	defer f.Close()
	recs, err := config.ScanRecords(f)
	if err != nil {
		return nil, nil, err
	}
	var classes []Class
	for _, rec := range recs {
		name, ok := rec.Get("name")
		if !ok {
			return nil, nil, fmt.Errorf("schema %s: class record missing 'name'", path)
		}
		attrFile, _ := rec.Get("attributedef")
		dbdir, _ := rec.Get("dbdir")
		resolvedAttrFile, err := resolver.ResolvePath(attrFile)
		if err != nil {
			return nil, nil, err
		}
		resolvedDBDir, err := resolver.ResolvePath(dbdir)
		if err != nil {
			return nil, nil, err
		}
		desc, _ := rec.Get("description")
		parseProgram, _ := rec.Get("parse-program")
		version, _ := rec.Get("schema-version")
		attrs, warns, err := loadAttributeDefs(resolvedAttrFile)
		if err != nil {
			return nil, nil, fmt.Errorf("class %q: %w", name, err)
		}
		warnings = append(warnings, warns...)
		class := Class{
			Name:         name,
			Aliases:      rec.All("alias"),
			Description:  desc,
			Version:      version,
			DataDir:      resolvedDBDir,
			AttrFile:     resolvedAttrFile,
			ParseProgram: parseProgram,
			Attributes:   attrs,
		}
		classes = append(classes, *class.WithBaseAttributes())
	}
	return classes, warnings, nil
}

func loadAttributeDefs(path string) ([]Attribute, []string, error) {
	var warnings []string
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open attribute-defs file %s: %w", path, err)
	}
	defer f.Close()
	recs, err := config.ScanRecords(f)
	if err != nil {
		return nil, nil, err
	}
	var attrs []Attribute
	for i, rec := range recs {
		name, ok := rec.Get("attribute")
		if !ok {
			return nil, nil, fmt.Errorf("attribute-defs %s: record %d missing 'attribute'", path, i)
		}
		format, _ := rec.Get("format")
		format = strings.TrimPrefix(format, "re:")
		format = strings.TrimSpace(format)
		a := Attribute{
			Name:        name,
			Aliases:     rec.All("attrib-alias"),
			Description: firstOr(rec, "description", ""),
			Format:      format,
			Index:       IndexKind(firstOr(rec, "index", "none")),
			Type:        ValueType(firstOr(rec, "type", "text")),
			Required:    boolTag(rec, "is-required"),
			Repeatable:  boolTag(rec, "is-repeat"),
			MultiLine:   boolTag(rec, "is-multi-line"),
			PrimaryKey:  boolTag(rec, "is-primary-key"),
			Hierarchical: boolTag(rec, "is-hierarchical"),
			Private:     boolTag(rec, "is-private"),
			LocalID:     i,
		}
		if err := a.CompileFormat(); err != nil {
			return nil, nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, warnings, nil
}

func firstOr(rec config.Record, tag, def string) string {
	if v, ok := rec.Get(tag); ok {
		return v
	}
	return def
}

func boolTag(rec config.Record, tag string) bool {
	v, ok := rec.Get(tag)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "yes", "1":
		return true
	}
	return false
}
