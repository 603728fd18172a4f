package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rwhoisd/rwhoisd/config"
	"github.com/rwhoisd/rwhoisd/referral"
	"github.com/rwhoisd/rwhoisd/server"
	"github.com/rwhoisd/rwhoisd/store"
)

func main() {
	var (
		configFile = kingpin.Flag(
			"config",
			"rwhoisd root config file.",
		).Default("rwhoisd.conf").Short('c').String()
		runtimeFile = kingpin.Flag(
			"runtime",
			"Optional runtime-tuning YAML file (worker pool sizing, profiling).",
		).Default("rwhoisd.runtime.yaml").Short('y').String()
		rootServer = kingpin.Flag(
			"root",
			"Run as a root server (suppresses punt referrals).",
		).Short('r').Bool()
		hostnameOverride = kingpin.Flag(
			"hostname",
			"Override the hostname used in the banner and referral URLs.",
		).Short('s').String()
		portOverride = kingpin.Flag(
			"port",
			"Override the listening port.",
		).Short('p').Int()
		pidFile = kingpin.Flag(
			"pidfile",
			"Override the PID file path.",
		).Short('i').String()
		validateOnly = kingpin.Flag(
			"validate",
			"Load and validate the configuration, then exit.",
		).Short('n').Bool()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Short('v').Default("0").Int()
		quiet = kingpin.Flag(
			"quiet",
			"Suppress informational logging.",
		).Short('q').Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version("rwhoisd (Go)").Author("rwhoisd")
	kingpin.CommandLine.Help = "RWhois directory service daemon\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *quiet {
		logger.Level = logrus.WarnLevel
	}
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}

	startTime := time.Now()
	logger.Infof("Starting rwhoisd %s, config: %v", startTime, *configFile)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatalf("error loading config file: %v", err)
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	if *rootServer {
		cfg.RootServer = true
	}
	if *hostnameOverride != "" {
		cfg.Hostname = *hostnameOverride
	}
	if *portOverride != 0 {
		cfg.Port = *portOverride
	}
	if *pidFile != "" {
		cfg.PidFile = *pidFile
	}

	rt, err := config.LoadRuntimeFile(*runtimeFile)
	if err != nil {
		logger.Fatalf("error loading runtime file: %v", err)
	}
	switch rt.ProfileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile).Stop()
	}

	dir := config.NewDirectiveTable()
	if cfg.DirectiveFile != "" {
		if err := dir.LoadDirectiveFile(cfg.DirectiveFile); err != nil {
			logger.Fatalf("error loading directive file: %v", err)
		}
	}
	if cfg.ExtDirectiveFile != "" {
		if err := dir.LoadExtendedDirectiveFile(cfg.ExtDirectiveFile); err != nil {
			logger.Fatalf("error loading extended directive file: %v", err)
		}
	}

	lockOpts := store.LockOptions{Retries: rt.LockRetries, RetryDelay: time.Duration(rt.LockRetryDelayMS) * time.Millisecond}
	cat, warnings, err := server.Reload(cfg, lockOpts)
	if err != nil {
		logger.Fatalf("error loading authority areas: %v", err)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	puntURLs, err := referral.LoadPuntFile(cfg.PuntFile)
	if err != nil {
		logger.Fatalf("error loading punt file: %v", err)
	}
	eng := referral.NewEngine(cat, puntURLs, cfg.RootServer)

	logger.Infof("Loaded %d authority area(s)", len(cat.Areas()))

	if *validateOnly {
		logger.Info("validation successful")
		return
	}

	srv := server.New(cfg, rt, dir, cat, eng, puntURLs, logger)
	if err := srv.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
