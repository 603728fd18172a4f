package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rwhoisd/rwhoisd/proto"
	"github.com/rwhoisd/rwhoisd/register"
	"github.com/rwhoisd/rwhoisd/schema"
)

// handleDirective dispatches a "-name args..." line and returns
// whether the connection should now close (spec.md §4.5).
func (s *Session) handleDirective(rest string) bool {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		s.writeLine(proto.ErrorLine(proto.InvalidDirectiveSyntax, ""))
		return false
	}
	name, args := fields[0], fields[1:]

	entry, ok := s.dir.Lookup(name)
	if !ok {
		s.writeLine(proto.ErrorLine(proto.DirectiveNotAvailable, ""))
		return false
	}
	if entry.Disabled {
		s.writeLine(proto.ErrorLine(proto.DirectiveNotAvailable, ""))
		return false
	}

	switch {
	case strings.HasPrefix(entry.Name, "X-"):
		return s.runExtendedDirective(entry.Name, entry.Program, args)
	case entry.Name == "quit":
		s.writeLine(proto.OKLine)
		return true
	case entry.Name == "holdconnect":
		return s.directiveHoldConnect(args)
	case entry.Name == "limit":
		return s.directiveLimit(args)
	case entry.Name == "class":
		return s.directiveClass(args)
	case entry.Name == "rwhois":
		return s.directiveRwhois(args)
	case entry.Name == "directive":
		return s.directiveDirective()
	case entry.Name == "schema":
		return s.directiveSchema(args)
	case entry.Name == "soa":
		return s.directiveSOA(args)
	case entry.Name == "status":
		return s.directiveStatus()
	case entry.Name == "display":
		return s.directiveDisplay(args)
	case entry.Name == "forward":
		return s.directiveForward(args)
	case entry.Name == "notify":
		s.writeLine(proto.OKLine)
		return false
	case entry.Name == "register":
		return s.directiveRegister(args)
	case entry.Name == "xfer":
		return s.directiveXfer(args)
	case entry.Name == "security":
		s.writeLine(proto.ErrorLine(proto.InvalidSecurityMethod, "security negotiation not implemented"))
		return false
	default:
		s.writeLine(proto.ErrorLine(proto.DirectiveNotAvailable, ""))
		return false
	}
}

func (s *Session) directiveHoldConnect(args []string) bool {
	if len(args) == 0 {
		s.writeLine(proto.ErrorLine(proto.InvalidDirectiveSyntax, ""))
		return false
	}
	switch strings.ToLower(args[0]) {
	case "on":
		s.holdConnect = true
	case "off":
		s.holdConnect = false
	default:
		s.writeLine(proto.ErrorLine(proto.InvalidDirectiveSyntax, ""))
		return false
	}
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) directiveLimit(args []string) bool {
	if len(args) == 0 {
		s.writeLine(proto.Tag("limit", strconv.Itoa(s.hitLimit)))
		s.writeLine(proto.OKLine)
		return false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		s.writeLine(proto.ErrorLine(proto.InvalidLimit, ""))
		return false
	}
	ceiling := s.cfg.MaxHitsCeiling
	if ceiling > 0 && n > ceiling {
		s.writeLine(proto.ErrorLine(proto.InvalidLimit, fmt.Sprintf("exceeds ceiling %d", ceiling)))
		return false
	}
	s.hitLimit = n
	s.writeLine(proto.OKLine)
	return false
}

// directiveClass implements "-class <auth-area> [<class-name>]"
// (original_source/rwhoisd/server/class_directive.c, whose comment
// reads "Input: -class [auth_area] [<class-name>]"): it both selects
// the session's current authority area for subsequent bare queries
// and directives, and echoes each matching class's description and
// version. spec.md's closed directive list names "class" without
// specifying its parameter grammar; this supplements it from the
// original.
func (s *Session) directiveClass(args []string) bool {
	if len(args) == 0 {
		s.writeLine(proto.ErrorLine(proto.InvalidDirectiveSyntax, "class <auth-area> [class-name]"))
		return false
	}
	a, ok := s.cat.AreaByName(args[0])
	if !ok {
		s.writeLine(proto.ErrorLine(proto.InvalidAuthorityArea, ""))
		return false
	}
	s.area = a.Name

	classes := a.Classes
	if len(args) > 1 {
		c, ok := a.ClassByName(args[1])
		if !ok {
			s.writeLine(proto.ErrorLine(proto.InvalidClass, ""))
			return false
		}
		s.class = c.Name
		classes = []schema.Class{*c}
	} else {
		s.class = ""
	}

	for _, c := range classes {
		s.writeLine(proto.Tag("class", fmt.Sprintf("%s:description:%s", c.Name, c.Description)))
		s.writeLine(proto.Tag("class", fmt.Sprintf("%s:version:%s", c.Name, c.Version)))
		s.writeLine(proto.Tag("class", ""))
	}
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) directiveRwhois(args []string) bool {
	if len(args) > 0 && args[0] != proto.Version {
		s.writeLine(proto.ErrorLine(proto.NotCompatibleWithVersion, args[0]))
		return false
	}
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) directiveDirective() bool {
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) directiveSchema(args []string) bool {
	areaName := s.area
	if len(args) > 0 {
		areaName = args[0]
	}
	a, ok := s.cat.AreaByName(areaName)
	if !ok {
		s.writeLine(proto.ErrorLine(proto.InvalidAuthorityArea, ""))
		return false
	}
	for _, c := range a.Classes {
		s.writeLine(proto.Tag("schema", c.Name))
	}
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) directiveSOA(args []string) bool {
	areaName := s.area
	if len(args) > 0 {
		areaName = args[0]
	}
	a, ok := s.cat.AreaByName(areaName)
	if !ok {
		s.writeLine(proto.ErrorLine(proto.InvalidAuthorityArea, ""))
		return false
	}
	s.writeLine(proto.Tag("soa", fmt.Sprintf("%s %s", a.Name, a.SOA.SerialNumber)))
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) directiveStatus() bool {
	s.writeLine(proto.Tag("status", fmt.Sprintf("limit=%d holdconnect=%v", s.hitLimit, s.holdConnect)))
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) directiveDisplay(args []string) bool {
	if len(args) == 0 || strings.EqualFold(args[0], "dump") {
		s.writeLine(proto.OKLine)
		return false
	}
	s.writeLine(proto.ErrorLine(proto.InvalidDisplayFormat, args[0]))
	return false
}

func (s *Session) directiveForward(args []string) bool {
	if len(args) == 0 {
		s.writeLine(proto.ErrorLine(proto.InvalidHostPort, ""))
		return false
	}
	urls, err := s.eng.Resolve(args[0])
	if err != nil {
		s.writeLine(proto.ErrorLine(proto.UnidentifiedError, err.Error()))
		return false
	}
	for _, u := range urls {
		s.writeLine(proto.Tag("referral", u))
	}
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) directiveXfer(args []string) bool {
	s.writeLine(proto.ErrorLine(proto.NothingToTransfer, ""))
	return false
}

func (s *Session) directiveRegister(args []string) bool {
	if len(args) == 0 {
		s.writeLine(proto.ErrorLine(proto.InvalidDirectiveSyntax, ""))
		return false
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return s.registerOn(args[1:])
	case "off":
		return s.registerOff()
	default:
		s.writeLine(proto.ErrorLine(proto.InvalidDirectiveSyntax, ""))
		return false
	}
}

func (s *Session) registerOn(args []string) bool {
	if len(args) < 2 {
		s.writeLine(proto.ErrorLine(proto.InvalidDirectiveSyntax, "register on <add|mod|del> <email>"))
		return false
	}
	action := strings.ToLower(args[0])
	switch action {
	case "add", "mod", "del":
	default:
		s.writeLine(proto.ErrorLine(proto.InvalidDirectiveSyntax, ""))
		return false
	}
	sp, err := openSpool(s.cfg.SpoolDir, action, args[1])
	if err != nil {
		s.writeLine(proto.ErrorLine(proto.UnrecoverableError, err.Error()))
		return false
	}
	s.spool = sp
	s.state = stateSpool
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) registerOff() bool {
	if s.state != stateSpool || s.spool == nil {
		s.writeLine(proto.ErrorLine(proto.InvalidDirectiveSyntax, "no open registration"))
		return false
	}
	s.spool.close()
	defer func() {
		s.state = stateQuery
		s.spool = nil
	}()

	a, ok := s.cat.AreaByName(s.area)
	if !ok {
		s.writeLine(proto.ErrorLine(proto.InvalidAuthorityArea, ""))
		os.Remove(s.spool.path)
		return false
	}
	class, ok := a.ClassByName(s.class)
	if !ok {
		s.writeLine(proto.ErrorLine(proto.InvalidClass, ""))
		return false
	}
	cs, _, ok := s.cat.ClassStore(a.Name, class.Name)
	if !ok {
		s.writeLine(proto.ErrorLine(proto.UnrecoverableError, ""))
		return false
	}

	req := register.Request{
		Area: a, Class: class, Store: cs,
		SpoolPath: s.spool.path, Action: register.Action(s.spool.action),
		Email: s.spool.email, ClientVendor: "rwhoisd-go",
		BinPath: class.ParseProgram, Now: time.Now(),
	}
	result, err := registerCommitter(req)
	if err != nil {
		s.log.WithError(err).Warn("registration commit failed")
	}
	if result.Deferred {
		s.writeLine(proto.ErrorLine(proto.RegistrationDeferred, ""))
		return false
	}
	if result.Code != 0 {
		s.writeLine(proto.ErrorLine(result.Code, ""))
		return false
	}
	s.writeLine(proto.OKLine)
	return false
}

func (s *Session) runExtendedDirective(name, program string, args []string) bool {
	if program == "" {
		s.writeLine(proto.ErrorLine(proto.DirectiveNotAvailable, name))
		return false
	}
	s.writeLine(proto.Tag(name, strings.Join(args, " ")))
	s.writeLine(proto.OKLine)
	return false
}
