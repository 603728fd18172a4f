// Package proto defines the RWhois wire protocol: the banner, the
// closed error-code taxonomy, and response line framing. It has no
// dependencies on the rest of the daemon so that both the server and
// any client-side tooling can share the wire format.
package proto

import "fmt"

// Version is the protocol version this daemon advertises.
const Version = "1.5"

// Capability bits advertised in the banner's hex bitmap. Each bit
// corresponds to a directive in the closed set of spec.md Sec 4.5,
// assigned in the order the directive set is introduced there, e.g.
// "class=0x000001, directive=0x000002, … xfer=0x002000, X-=0x004000".
// `rwhois` is not independently toggleable and carries no bit of its
// own.
const (
	CapRWhois    uint32 = 0x000000
	CapClass     uint32 = 0x000001
	CapDirective uint32 = 0x000002
	CapDisplay   uint32 = 0x000004
	CapForward   uint32 = 0x000008
	CapHoldConn  uint32 = 0x000010
	CapLimit     uint32 = 0x000020
	CapNotify    uint32 = 0x000040
	CapQuit      uint32 = 0x000080
	CapRegister  uint32 = 0x000100
	CapSchema    uint32 = 0x000200
	CapSOA       uint32 = 0x000400
	CapStatus    uint32 = 0x000800
	CapSecurity  uint32 = 0x001000
	CapXfer      uint32 = 0x002000
	CapExtended  uint32 = 0x004000
)

// Banner renders the %rwhois greeting line, e.g.
//
//	%rwhois V-1.5:000fff:00 whois.example.net (rwhoisd-go)
func Banner(host, vendor string, caps uint32) string {
	return fmt.Sprintf("%%rwhois V-%s:%06x:00 %s (%s)", Version, caps, host, vendor)
}

// Code is one entry of the closed wire error-code taxonomy (spec.md Sec 6).
type Code int

const (
	RegistrationDeferred      Code = 120
	NotAuthoritative          Code = 130
	NoObjectsFound            Code = 230
	NotCompatibleWithVersion  Code = 300
	InvalidAttribute          Code = 320
	InvalidAttributeSyntax    Code = 321
	RequiredAttributeMissing  Code = 322
	ObjectReferenceNotFound   Code = 323
	PrimaryKeyNotUnique       Code = 324
	FailedToUpdateOutdated    Code = 325
	ExceededMaxObjectsLimit   Code = 330
	InvalidLimit              Code = 331
	NothingToTransfer         Code = 332
	NotMasterForAuthArea      Code = 333
	ObjectNotFound            Code = 336
	InvalidDirectiveSyntax    Code = 338
	InvalidAuthorityArea      Code = 340
	InvalidClass              Code = 341
	InvalidHostPort           Code = 342
	InvalidQuerySyntax        Code = 350
	QueryTooComplex           Code = 351
	InvalidSecurityMethod     Code = 352
	AuthenticationFailed      Code = 353
	EncriptionFailed          Code = 354
	CorruptDataKeyaddFailed   Code = 360
	DirectiveNotAvailable     Code = 400
	NotAuthorizedForDirective Code = 401
	UnidentifiedError         Code = 402
	RegistrationNotAuthorized Code = 420
	InvalidDisplayFormat      Code = 436
	MemoryAllocationProblem   Code = 500
	ServiceNotAvailable       Code = 501
	UnrecoverableError        Code = 502
	IdleTimeExceeded          Code = 503
	Diagnostic                Code = 560
)

// messages holds the fixed wire text for each code; text is never
// changed for protocol compatibility even when it reads oddly
// ("Encription").
var messages = map[Code]string{
	RegistrationDeferred:      "Registration Deferred",
	NotAuthoritative:          "Object not authoritative",
	NoObjectsFound:            "No Objects Found",
	NotCompatibleWithVersion:  "Not Compatible With Version",
	InvalidAttribute:          "Invalid Attribute",
	InvalidAttributeSyntax:    "Invalid Attribute Syntax",
	RequiredAttributeMissing:  "Required Attribute Missing",
	ObjectReferenceNotFound:   "Object Reference Not Found",
	PrimaryKeyNotUnique:       "Primary Key Not Unique",
	FailedToUpdateOutdated:    "Failed to Update Outdated Object",
	ExceededMaxObjectsLimit:   "Exceeded Max Objects Limit",
	InvalidLimit:              "Invalid Limit",
	NothingToTransfer:         "Nothing To Transfer",
	NotMasterForAuthArea:      "Not Master for Authority Area",
	ObjectNotFound:            "Object Not Found",
	InvalidDirectiveSyntax:    "Invalid Directive Syntax",
	InvalidAuthorityArea:      "Invalid Authority Area",
	InvalidClass:              "Invalid Class",
	InvalidHostPort:           "Invalid Host/Port",
	InvalidQuerySyntax:        "Invalid Query Syntax",
	QueryTooComplex:           "Query Too Complex",
	InvalidSecurityMethod:     "Invalid Security Method",
	AuthenticationFailed:      "Authentication Failed",
	EncriptionFailed:          "Encription Failed",
	CorruptDataKeyaddFailed:   "Corrupt Data. Keyadd Failed",
	DirectiveNotAvailable:     "Directive Not Available",
	NotAuthorizedForDirective: "Not Authorized for Directive",
	UnidentifiedError:         "Unidentified Error",
	RegistrationNotAuthorized: "Registration Not Authorized",
	InvalidDisplayFormat:      "Invalid Display Format",
	MemoryAllocationProblem:   "Memory Allocation Problem",
	ServiceNotAvailable:       "Service Not Available",
	UnrecoverableError:        "Unrecoverable Error",
	IdleTimeExceeded:          "Idle Time Exceeded",
	Diagnostic:                "",
}

// Error implements the error interface so Code values can flow
// through normal Go error handling up to the point a session handler
// renders them onto the wire.
func (c Code) Error() string {
	return fmt.Sprintf("%d %s", int(c), messages[c])
}

// ErrorLine renders a terminal %error line, with an optional detail
// suffix (": <detail>").
func ErrorLine(c Code, detail string) string {
	if detail == "" {
		return fmt.Sprintf("%%error %s", c.Error())
	}
	return fmt.Sprintf("%%error %s: %s", c.Error(), detail)
}

// DiagnosticLine renders the 560 free-text diagnostic code.
func DiagnosticLine(detail string) string {
	return fmt.Sprintf("%%error 560 %s", detail)
}

// OKLine is the terminal success line.
const OKLine = "%ok"

// Tag renders a tagged response line, e.g. "%referral <url>".
func Tag(tag, payload string) string {
	if payload == "" {
		return "%" + tag
	}
	return fmt.Sprintf("%%%s %s", tag, payload)
}
