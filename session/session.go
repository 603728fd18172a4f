// Package session implements the per-connection request/response loop
// of spec.md §4.5: banner emission, line reading, directive-vs-query
// dispatch, hold-connect, the deadman timer, and the registration
// spool state machine.
package session

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rwhoisd/rwhoisd/config"
	"github.com/rwhoisd/rwhoisd/proto"
	"github.com/rwhoisd/rwhoisd/query"
	"github.com/rwhoisd/rwhoisd/referral"
	"github.com/rwhoisd/rwhoisd/register"
)

// state is the registration spool state machine of spec.md §4.5.
type state int

const (
	stateQuery state = iota
	stateSpool
)

// Session is one client connection's worker state. Unlike the
// original daemon's fork-per-client model there is no shared mutable state
// between sessions except the on-disk store, so a Session needs no
// synchronization of its own (spec.md §5 design note, reinterpreted
// per SPEC_FULL.md §7).
type Session struct {
	conn    net.Conn
	cfg     *config.Config
	dir     *config.DirectiveTable
	cat     query.Catalog
	eng     *referral.Engine
	log     *logrus.Entry
	reader  *bufio.Reader

	state       state
	area        string
	class       string
	hitLimit    int
	holdConnect bool
	guardians   []string

	spool *spoolFile
}

// New constructs a Session ready to Serve a freshly accepted
// connection.
func New(conn net.Conn, cfg *config.Config, dir *config.DirectiveTable, cat query.Catalog, eng *referral.Engine, log *logrus.Entry) *Session {
	return &Session{
		conn:     conn,
		cfg:      cfg,
		dir:      dir,
		cat:      cat,
		eng:      eng,
		log:      log,
		reader:   bufio.NewReader(conn),
		hitLimit: cfg.MaxHitsDefault,
	}
}

// Serve drives the session to completion: banner, then a strict
// request/response loop until the client disconnects, `quit`s, or the
// deadman timer fires.
func (s *Session) Serve() {
	defer s.conn.Close()

	banner := proto.Banner(s.cfg.Hostname, "rwhoisd-go", s.dir.EnabledCapabilities())
	if err := s.writeLine(banner); err != nil {
		return
	}

	for {
		deadline := time.Duration(s.cfg.DeadmanSeconds) * time.Second
		if deadline <= 0 {
			deadline = 20 * time.Minute
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(deadline))

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.writeLine(proto.ErrorLine(proto.IdleTimeExceeded, ""))
			}
			return
		}
		line = stripControl(strings.TrimRight(line, "\r\n"))
		if line == "" {
			continue
		}

		closeAfter := s.dispatch(line)
		if closeAfter {
			return
		}
	}
}

// stripControl removes non-printable control characters from a
// client-supplied line before it is interpreted (spec.md §4.5: "strip
// control characters").
func stripControl(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r != 0x7f {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *Session) writeLine(line string) error {
	_, err := fmt.Fprintf(s.conn, "%s\r\n", line)
	return err
}

// dispatch decides directive vs query and returns whether the
// connection should now close.
func (s *Session) dispatch(line string) bool {
	if strings.HasPrefix(line, "-") {
		return s.handleDirective(line[1:])
	}
	if s.state == stateSpool {
		if err := s.spool.appendLine(line); err != nil {
			s.log.WithError(err).Warn("spool append failed")
		}
		return false
	}
	return s.handleQuery(line)
}

func (s *Session) handleQuery(line string) bool {
	opts := query.Options{AllowWildcard: s.cfg.AllowWildcard, AllowSubstring: s.cfg.AllowSubstring}
	q, err := query.Parse(line, opts)
	if err != nil {
		s.writeLine(proto.ErrorLine(proto.InvalidQuerySyntax, err.Error()))
		return !s.holdConnect
	}
	if s.class != "" && q.Class == "" {
		q.Class = s.class
	}
	if code := query.CheckComplexity(q, s.cfg.MaxHitsCeiling); code != 0 {
		s.writeLine(proto.ErrorLine(code, ""))
		return !s.holdConnect
	}

	results, code, err := query.Evaluate(s.cat, q, s.area, s.hitLimit, s.guardians)
	if err != nil {
		s.writeLine(proto.ErrorLine(proto.InvalidQuerySyntax, err.Error()))
		return !s.holdConnect
	}
	for _, r := range results {
		for _, line := range r.Lines {
			s.writeLine(line)
		}
	}
	if code != 0 {
		s.writeLine(proto.ErrorLine(code, ""))
	} else {
		s.writeLine(proto.OKLine)
	}
	return !s.holdConnect
}

// registerCommitter is satisfied by register.Commit; declared as a
// var so tests can substitute a fake.
var registerCommitter = register.Commit
