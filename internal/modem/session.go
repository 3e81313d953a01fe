package modem

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

type Result uint8

const (
	ResultNone Result = iota
	ResultOK
	ResultError
	ResultTimeout
)

func (r Result) String() string {
	switch r {
	case ResultNone:
		return "none"
	case ResultOK:
		return "OK"
	case ResultError:
		return "ERROR"
	case ResultTimeout:
		return "TIMEOUT"
	}
	return fmt.Sprintf("Result(%d)", uint8(r))
}

// Matcher inspects accumulated response and reports final result, if any.
type Matcher func(buf []byte) (Result, bool)

var (
	tokenOK       = []byte("OK")
	tokenError    = []byte("ERROR")
	tokenDownload = []byte("DOWNLOAD")
)

// MatchFinal classifies standard final result codes.
func MatchFinal(buf []byte) (Result, bool) {
	if bytes.Contains(buf, tokenError) {
		return ResultError, true
	}
	if bytes.Contains(buf, tokenOK) {
		return ResultOK, true
	}
	return ResultNone, false
}

// MatchDownload waits for data prompt after AT+HTTPDATA.
func MatchDownload(buf []byte) (Result, bool) {
	if bytes.Contains(buf, tokenError) {
		return ResultError, true
	}
	if bytes.Contains(buf, tokenDownload) {
		return ResultOK, true
	}
	return ResultNone, false
}

// status is complete once followed by comma, length and line end are not awaited
var reHTTPAction = regexp.MustCompile(`\+HTTPACTION: ?\d+,(\d+),`)

// MatchHTTPAction waits for asynchronous `+HTTPACTION: <method>,<status>,<length>` line.
// Only status 200 and 201 are success.
func MatchHTTPAction(buf []byte) (Result, bool) {
	if m := reHTTPAction.FindSubmatch(buf); m != nil {
		switch status, _ := strconv.Atoi(string(m[1])); status {
		case 200, 201:
			return ResultOK, true
		}
		return ResultError, true
	}
	if bytes.Contains(buf, tokenError) {
		return ResultError, true
	}
	return ResultNone, false
}

// HTTPStatus extracts status from action line, 0 if absent.
func HTTPStatus(buf []byte) int {
	m := reHTTPAction.FindSubmatch(buf)
	if m == nil {
		return 0
	}
	status, _ := strconv.Atoi(string(m[1]))
	return status
}

type SessionState uint8

const (
	Idle SessionState = iota
	Awaiting
	Done
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Awaiting:
		return "awaiting"
	case Done:
		return "done"
	}
	return fmt.Sprintf("SessionState(%d)", uint8(s))
}

// Session tracks one request/response exchange: Idle -> Awaiting -> Done.
// It does no I/O, driver feeds it received bytes and current time.
type Session struct {
	state    SessionState
	match    Matcher
	deadline time.Time
	buf      []byte
	result   Result
}

func (self *Session) Begin(now time.Time, timeout time.Duration, match Matcher) {
	self.state = Awaiting
	self.match = match
	self.deadline = now.Add(timeout)
	self.buf = self.buf[:0]
	self.result = ResultNone
}

// Feed appends received bytes and returns true when session is Done.
// Match is checked before deadline, so bytes arriving with expiry still count.
func (self *Session) Feed(b []byte, now time.Time) bool {
	if self.state != Awaiting {
		return self.state == Done
	}
	self.buf = append(self.buf, b...)
	if r, ok := self.match(self.buf); ok {
		self.finish(r)
	} else if !now.Before(self.deadline) {
		self.finish(ResultTimeout)
	}
	return self.state == Done
}

func (self *Session) finish(r Result) {
	self.state = Done
	self.result = r
}

func (self *Session) State() SessionState { return self.state }
func (self *Session) Result() Result      { return self.result }
func (self *Session) Response() []byte    { return self.buf }
