package main

// mkdb program
// Bulk-loads flat tag:value records into an authority area's class
// store, validating each record against its schema before indexing
// (generalized from original_source/rwhoisd/mkdb's anon_record/records
// translate-and-validate pipeline).

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rwhoisd/rwhoisd/config"
	"github.com/rwhoisd/rwhoisd/schema"
	"github.com/rwhoisd/rwhoisd/store"
)

type MkdbOptions struct {
	configFile string
	areaName   string
	className  string
	dataFile   string
	rebuild    bool
	maxRecords int
	debugRec   int
}

// Mkdb loads one class's worth of flat records into its on-disk
// store, matching original_source's "translate, validate, append,
// index" pipeline one record at a time.
type Mkdb struct {
	logger    *logrus.Logger
	opts      MkdbOptions
	cfg       *config.Config
	area      *schema.Area
	class     *schema.Class
	store     *store.ClassStore
	numLoaded int
	numSkipped int
}

func NewMkdb(logger *logrus.Logger, opts *MkdbOptions) *Mkdb {
	return &Mkdb{logger: logger, opts: *opts}
}

// Open loads the config/schema and resolves the target class's store.
func (m *Mkdb) Open() error {
	cfg, err := config.Load(m.opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, w := range cfg.Warnings {
		m.logger.Warn(w)
	}
	m.cfg = cfg

	areas, warnings, err := schema.LoadAreas(cfg, cfg.AuthAreaFile)
	if err != nil {
		return fmt.Errorf("load authority areas: %w", err)
	}
	for _, w := range warnings {
		m.logger.Warn(w)
	}

	for i := range areas {
		if areas[i].Name == m.opts.areaName {
			m.area = &areas[i]
			break
		}
	}
	if m.area == nil {
		return fmt.Errorf("authority area %q not found", m.opts.areaName)
	}
	class, ok := m.area.ClassByName(m.opts.className)
	if !ok {
		return fmt.Errorf("class %q not found in area %q", m.opts.className, m.opts.areaName)
	}
	m.class = class

	cs, err := store.OpenClassStore(m.class, store.DefaultLockOptions())
	if err != nil {
		return fmt.Errorf("open class store: %w", err)
	}
	m.store = cs
	return nil
}

// LoadRecords streams tag:value records from opts.dataFile, validating
// each against the class schema before appending it (spec.md §4.2/§4.6
// validation rules, generalized from mkdb's translate_anon_av_pair /
// validate_record pipeline). A record failing validation is skipped
// and logged rather than aborting the whole run, matching the
// original's quiet-mode default.
func (m *Mkdb) LoadRecords() error {
	f, err := os.Open(m.opts.dataFile)
	if err != nil {
		return fmt.Errorf("open data file %s: %w", m.opts.dataFile, err)
	}
	defer f.Close()

	recs, err := config.ScanRecords(f)
	if err != nil {
		return fmt.Errorf("parse data file %s: %w", m.opts.dataFile, err)
	}

	for i, rec := range recs {
		if m.opts.maxRecords > 0 && m.numLoaded >= m.opts.maxRecords {
			m.logger.Infof("stopping at max.records=%d", m.opts.maxRecords)
			break
		}
		if m.opts.debugRec > 0 && i == m.opts.debugRec {
			m.logger.Debugf("record %d: %+v", i, rec)
		}

		var fields []store.Field
		for _, tv := range rec.Tags {
			fields = append(fields, store.Field{Name: tv.Tag, Value: tv.Value})
		}
		anon := store.AnonymousRecord{Fields: fields}

		violations, err := store.Validate(m.class, anon, store.ValidateOn|store.ValidateFindAll)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if len(violations) > 0 {
			m.numSkipped++
			m.logger.Warnf("record %d: %d validation failures, skipped: %v", i, len(violations), violations)
			continue
		}

		if err := m.store.AddRecord(fields); err != nil {
			return fmt.Errorf("record %d: append failed: %w", i, err)
		}
		m.numLoaded++
	}
	return nil
}

// Rebuild rebuilds every index for the loaded class from scratch, used
// when opts.rebuild is set to repair or regenerate indexes after a
// bulk load.
func (m *Mkdb) Rebuild() error {
	if !m.opts.rebuild {
		return nil
	}
	return m.store.Rebuild()
}

func Humanize(b int) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMGTPE"[exp])
}

func main() {
	var (
		dataFile = kingpin.Arg(
			"datafile",
			"Flat tag:value record file to load.",
		).Required().String()
		configFile = kingpin.Flag(
			"config",
			"rwhoisd root config file.",
		).Short('c').Required().String()
		areaName = kingpin.Flag(
			"area",
			"Authority area name to load records into.",
		).Short('a').Required().String()
		className = kingpin.Flag(
			"class",
			"Class name within the authority area to load records into.",
		).Short('n').Required().String()
		rebuild = kingpin.Flag(
			"rebuild",
			"Rebuild every index from scratch after loading.",
		).Short('r').Bool()
		maxRecords = kingpin.Flag(
			"max.records",
			"Max no of records to load (default 0 means all).",
		).Default("0").Short('m').Int()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
		debugRecord = kingpin.Flag(
			"debug.record",
			"Record index to log verbosely, for debugging.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version("mkdb (rwhoisd)").Author("rwhoisd")
	kingpin.CommandLine.Help = "Bulk-loads flat tag:value records into an rwhoisd class store\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	startTime := time.Now()
	logger.Infof("Starting %s, datafile: %v", startTime, *dataFile)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	opts := &MkdbOptions{
		configFile: *configFile,
		areaName:   *areaName,
		className:  *className,
		dataFile:   *dataFile,
		rebuild:    *rebuild,
		maxRecords: *maxRecords,
		debugRec:   *debugRecord,
	}
	logger.Infof("Options: %+v", opts)

	m := NewMkdb(logger, opts)
	if err := m.Open(); err != nil {
		logger.Fatal(err)
	}
	if err := m.LoadRecords(); err != nil {
		logger.Fatal(err)
	}
	if err := m.Rebuild(); err != nil {
		logger.Fatal(err)
	}
	logger.Infof("Loaded %d records (%d skipped) into %s/%s in %s",
		m.numLoaded, m.numSkipped, opts.areaName, opts.className, time.Since(startTime))
}
