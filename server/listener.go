package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"

	"github.com/rwhoisd/rwhoisd/config"
	"github.com/rwhoisd/rwhoisd/referral"
	"github.com/rwhoisd/rwhoisd/session"
	"github.com/rwhoisd/rwhoisd/store"
)

// Server owns the listening socket, the worker pool that bounds
// concurrent sessions, and the live Catalog/Engine pair that SIGHUP
// reload swaps out (spec.md §4.7, reinterpreted per SPEC_FULL.md
// §6.7/§7: a pond worker pool stands in for fork()-per-client).
type Server struct {
	cfg      *config.Config
	rt       *config.Runtime
	dir      *config.DirectiveTable
	log      *logrus.Logger
	cat      *Catalog
	eng      *referral.Engine
	puntURLs []string
	pool     *pond.WorkerPool
}

// New builds a Server from an already-loaded config/directive table
// and an initial catalog/engine pair. The pool's max worker count comes
// from cfg.MaxChildren, the spec'd `max-children` limit (spec.md §6/§8:
// a client past max-children gets %error 501); rt.WorkerPoolMinIdle is
// a purely operational tuning knob with no spec-named counterpart.
func New(cfg *config.Config, rt *config.Runtime, dir *config.DirectiveTable, cat *Catalog, eng *referral.Engine, puntURLs []string, log *logrus.Logger) *Server {
	pool := pond.New(cfg.MaxChildren, 0, pond.MinWorkers(rt.WorkerPoolMinIdle))
	return &Server{cfg: cfg, rt: rt, dir: dir, log: log, cat: cat, eng: eng, puntURLs: puntURLs, pool: pool}
}

// Run binds the listening socket and serves connections until the
// process receives SIGTERM/SIGINT. SIGHUP triggers a full reload
// consulted between accepts (spec.md §4.7/§5: "SIGHUP never
// interrupts an in-flight handler; it is processed at the next accept
// boundary").
func (s *Server) Run() error {
	if s.cfg.PidFile != "" {
		if err := writePIDFile(s.cfg.PidFile); err != nil {
			return err
		}
		defer os.Remove(s.cfg.PidFile)
	}

	addr := net.JoinHostPort(s.cfg.Hostname, strconv.Itoa(s.cfg.Port))
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()
	s.log.WithField("addr", addr).Info("rwhoisd listening")

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigterm
		s.log.Info("received termination signal, shutting down")
		ln.Close()
	}()

	for {
		select {
		case <-sighup:
			s.handleReload()
		default:
		}

		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.pool.StopAndWait()
				return nil
			}
			s.log.WithError(err).Warn("accept failed")
			continue
		}

		submitted := s.pool.TrySubmit(func() {
			sess := session.New(conn, s.cfg, s.dir, s.cat, s.eng, s.log.WithField("remote", conn.RemoteAddr()))
			sess.Serve()
		})
		if !submitted {
			fmt.Fprintf(conn, "%%error 501 Service Not Available\r\n")
			conn.Close()
		}
	}
}

func (s *Server) handleReload() {
	s.log.Info("reloading configuration")
	lockOpts := store.LockOptions{Retries: s.rt.LockRetries, RetryDelay: time.Duration(s.rt.LockRetryDelayMS) * time.Millisecond}
	cat, warnings, err := Reload(s.cfg, lockOpts)
	if err != nil {
		s.log.WithError(err).Error("reload failed, keeping prior configuration")
		return
	}
	for _, w := range warnings {
		s.log.Warn(w)
	}
	puntURLs, err := referral.LoadPuntFile(s.cfg.PuntFile)
	if err != nil {
		s.log.WithError(err).Error("reload punt file failed, keeping prior configuration")
		return
	}
	s.cat = cat
	s.puntURLs = puntURLs
	s.eng = referral.NewEngine(cat, puntURLs, s.cfg.RootServer)
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}
