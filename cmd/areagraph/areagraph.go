package main

// areagraph program
// This processes a server's root config and authority-area file and writes:
//   * a graph file (graphviz dot format) showing authority-area containment

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/emicklei/dot"
	"github.com/goccy/go-graphviz"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rwhoisd/rwhoisd/config"
	"github.com/rwhoisd/rwhoisd/referral"
	"github.com/rwhoisd/rwhoisd/schema"
)

type AreaGraphOptions struct {
	configFile string
	dotFile    string
	pngFile    string
}

// AreaGraph renders the containment hierarchy of every loaded
// authority area as a graphviz graph.
type AreaGraph struct {
	logger *logrus.Logger
	opts   AreaGraphOptions
	areas  []schema.Area
	graph  *dot.Graph
	nodes  map[string]dot.Node
}

func NewAreaGraph(logger *logrus.Logger, opts *AreaGraphOptions) *AreaGraph {
	return &AreaGraph{logger: logger, opts: *opts, nodes: make(map[string]dot.Node)}
}

// Load reads the root config and authority-area file.
func (g *AreaGraph) Load() error {
	cfg, err := config.Load(g.opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, w := range cfg.Warnings {
		g.logger.Warn(w)
	}
	areas, warnings, err := schema.LoadAreas(cfg, cfg.AuthAreaFile)
	if err != nil {
		return fmt.Errorf("load authority areas: %w", err)
	}
	for _, w := range warnings {
		g.logger.Warn(w)
	}
	g.areas = areas
	return nil
}

// BuildGraph adds one node per authority area and one edge per
// parent/child containment pair, determined by removing each area in
// turn from the containment tree and asking what (if anything) still
// encloses its key (spec.md §4.4's containment rule, reused here as a
// graph-layout device rather than a referral lookup).
func (g *AreaGraph) BuildGraph() {
	g.graph = dot.NewGraph(dot.Directed)
	for _, a := range g.areas {
		label := fmt.Sprintf("%s\n(%s)", a.Name, a.Type)
		n := g.graph.Node(a.Name).Label(label)
		g.nodes[a.Name] = n
	}
	for i, a := range g.areas {
		key, isNetwork := containmentKey(a)
		tree := referral.NewTree()
		for j, other := range g.areas {
			if i == j {
				continue
			}
			okey, ok := containmentKey(other)
			_ = ok
			tree.Insert(okey, other.Name)
		}
		parent, ok := tree.Contains(key)
		_ = isNetwork
		if !ok {
			continue
		}
		g.graph.Edge(g.nodes[parent], g.nodes[a.Name])
	}
}

func containmentKey(a schema.Area) (string, bool) {
	if a.CIDR {
		if key, ok := referral.NetworkKey(a.Name); ok {
			return key, true
		}
	}
	return referral.DomainKey(a.Name), false
}

// WriteDOT writes the graphviz DOT source to opts.dotFile.
func (g *AreaGraph) WriteDOT() error {
	if g.opts.dotFile == "" {
		return nil
	}
	f, err := os.OpenFile(g.opts.dotFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(g.graph.String()))
	return err
}

// WritePNG renders the graph to a PNG via go-graphviz, when requested.
func (g *AreaGraph) WritePNG() error {
	if g.opts.pngFile == "" {
		return nil
	}
	parsed, err := graphviz.ParseBytes([]byte(g.graph.String()))
	if err != nil {
		return fmt.Errorf("parse dot output: %w", err)
	}
	gv := graphviz.New()
	return gv.RenderFilename(parsed, graphviz.PNG, g.opts.pngFile)
}

func main() {
	var (
		configFile = kingpin.Arg(
			"config",
			"rwhoisd root config file to load authority areas from.",
		).Required().String()
		dotFile = kingpin.Flag(
			"output",
			"Graphviz dot file to output authority-area structure to.",
		).Short('o').String()
		pngFile = kingpin.Flag(
			"png",
			"PNG file to render the graph to (requires graphviz).",
		).Short('p').String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version("areagraph (rwhoisd)").Author("rwhoisd")
	kingpin.CommandLine.Help = "Parses an rwhoisd root config to create a graphviz DOT file of authority-area containment\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	startTime := time.Now()
	logger.Infof("Starting %s, config: %v", startTime, *configFile)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	opts := &AreaGraphOptions{configFile: *configFile, dotFile: *dotFile, pngFile: *pngFile}
	g := NewAreaGraph(logger, opts)
	if err := g.Load(); err != nil {
		logger.Fatal(err)
	}
	g.BuildGraph()
	if err := g.WriteDOT(); err != nil {
		logger.Fatal(err)
	}
	if err := g.WritePNG(); err != nil {
		logger.Fatal(err)
	}
	logger.Infof("Wrote %d authority areas in %s", len(g.areas), time.Since(startTime))
}
