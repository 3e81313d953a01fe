// Package modem performs HTTP POST over serial-attached cellular modem using AT commands.
// Every exchange is bounded by timeout, link may drop, delay or garble bytes.
package modem

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/errors"

	"github.com/temoto/floodnode/hardware/led"
	"github.com/temoto/floodnode/hardware/uart"
	"github.com/temoto/floodnode/helpers"
	"github.com/temoto/floodnode/log2"
)

const (
	DefaultCommandTimeout = 2 * time.Second
	DefaultDataTimeout    = 5 * time.Second
	DefaultActionTimeout  = 30 * time.Second
	DefaultPollInterval   = 20 * time.Millisecond
	DefaultLEDPulse       = 200 * time.Millisecond
)

type Config struct {
	CommandTimeout time.Duration
	DataTimeout    time.Duration
	ActionTimeout  time.Duration
	PollInterval   time.Duration
	LEDPulse       time.Duration
	APN            string
	InitRetries    int
}

func (c *Config) applyDefaults() {
	c.CommandTimeout = helpers.DurationDefault(c.CommandTimeout, DefaultCommandTimeout)
	c.DataTimeout = helpers.DurationDefault(c.DataTimeout, DefaultDataTimeout)
	c.ActionTimeout = helpers.DurationDefault(c.ActionTimeout, DefaultActionTimeout)
	c.PollInterval = helpers.DurationDefault(c.PollInterval, DefaultPollInterval)
	c.LEDPulse = helpers.DurationDefault(c.LEDPulse, DefaultLEDPulse)
}

type Step uint8

const (
	StepURL Step = iota + 1
	StepContent
	StepDataLength
	StepData
	StepAction
	StepResponse
)

var stepNames = [...]string{"", "url", "content", "data-length", "data", "action", "response"}

func (s Step) String() string {
	if int(s) < len(stepNames) && s != 0 {
		return stepNames[s]
	}
	return fmt.Sprintf("Step(%d)", uint8(s))
}

// StepError reports the first POST step that did not end with OK.
type StepError struct {
	Step     Step
	Result   Result
	Response []byte
}

func (self *StepError) Error() string {
	return fmt.Sprintf("modem step=%s result=%s response=%q", self.Step, self.Result, self.Response)
}

func AsStepError(err error) (*StepError, bool) {
	se, ok := errors.Cause(err).(*StepError)
	return se, ok
}

type Driver struct {
	port uart.Port
	log  *log2.Log
	cfg  Config
	led  led.Indicator
	rbuf [256]byte

	// OnStep observes every POST step outcome.
	OnStep func(Step, Result)

	now         func() time.Time
	sleep       func(time.Duration)
	initBackOff func() backoff.BackOff
}

func NewDriver(port uart.Port, cfg Config, indicator led.Indicator, log *log2.Log) *Driver {
	cfg.applyDefaults()
	if indicator == nil {
		indicator = led.Noop{}
	}
	return &Driver{
		port:  port,
		log:   log,
		cfg:   cfg,
		led:   indicator,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

func (self *Driver) Config() Config { return self.cfg }

// SendCommand writes cmd with line terminator and polls until OK, ERROR or timeout.
func (self *Driver) SendCommand(cmd string, timeout time.Duration) Result {
	r, _ := self.Exchange(cmd, timeout, MatchFinal)
	return r
}

// Exchange drops stale input, writes cmd and awaits matcher result.
func (self *Driver) Exchange(cmd string, timeout time.Duration, match Matcher) (Result, []byte) {
	if err := self.port.Discard(); err != nil {
		self.log.Debugf("modem discard stale input err=%v", err)
	}
	return self.exchangeRaw([]byte(cmd+"\r\n"), timeout, match, cmd)
}

func (self *Driver) exchangeRaw(b []byte, timeout time.Duration, match Matcher, label string) (Result, []byte) {
	var s Session
	if err := helpers.WriteAll(self.port, b); err != nil {
		self.log.Errorf("modem write %s err=%v", label, err)
		return ResultError, nil
	}
	s.Begin(self.now(), timeout, match)
	r, resp := self.await(&s)
	self.log.Debugf("modem %s -> %s %q", label, r, resp)
	return r, resp
}

func (self *Driver) await(s *Session) (Result, []byte) {
	readErrLogged := false
	for {
		n, err := self.port.Read(self.rbuf[:])
		if err != nil && !readErrLogged {
			self.log.Errorf("modem read err=%v", err)
			readErrLogged = true
		}
		if s.Feed(self.rbuf[:n], self.now()) {
			return s.Result(), append([]byte(nil), s.Response()...)
		}
		if n == 0 {
			self.sleep(self.cfg.PollInterval)
		}
	}
}

// Post delivers payload with single attempt. Returns *StepError for first non-OK step,
// later steps are not attempted. Retry policy belongs to caller.
func (self *Driver) Post(url string, payload []byte) error {
	type cmdStep struct {
		step    Step
		cmd     string
		timeout time.Duration
		match   Matcher
	}
	seq := []cmdStep{
		{StepURL, `AT+HTTPPARA="URL","` + url + `"`, self.cfg.CommandTimeout, MatchFinal},
		{StepContent, `AT+HTTPPARA="CONTENT","application/json"`, self.cfg.CommandTimeout, MatchFinal},
		{StepDataLength, "AT+HTTPDATA=" + strconv.Itoa(len(payload)) + "," + strconv.FormatInt(self.cfg.DataTimeout.Milliseconds(), 10), self.cfg.CommandTimeout, MatchDownload},
	}
	for _, st := range seq {
		r, resp := self.Exchange(st.cmd, st.timeout, st.match)
		if err := self.stepDone(st.step, r, resp); err != nil {
			return err
		}
	}

	r, resp := self.exchangeRaw(payload, self.cfg.DataTimeout, MatchFinal, "data")
	if err := self.stepDone(StepData, r, resp); err != nil {
		return err
	}

	r, resp = self.Exchange("AT+HTTPACTION=1", self.cfg.CommandTimeout, MatchFinal)
	if err := self.stepDone(StepAction, r, resp); err != nil {
		return err
	}

	// status line may arrive in same chunk as OK
	var s Session
	s.Begin(self.now(), self.cfg.ActionTimeout, MatchHTTPAction)
	rest := resp[bytes.Index(resp, tokenOK)+len(tokenOK):]
	if !s.Feed(rest, self.now()) {
		r, resp = self.await(&s)
	} else {
		r, resp = s.Result(), s.Response()
	}
	self.log.Debugf("modem action status=%d -> %s %q", HTTPStatus(resp), r, resp)
	if err := self.stepDone(StepResponse, r, resp); err != nil {
		return err
	}

	self.led.Pulse(self.cfg.LEDPulse)
	return nil
}

func (self *Driver) stepDone(step Step, r Result, resp []byte) error {
	if self.OnStep != nil {
		self.OnStep(step, r)
	}
	if r == ResultOK {
		return nil
	}
	return &StepError{Step: step, Result: r, Response: resp}
}
