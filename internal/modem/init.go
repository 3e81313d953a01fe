package modem

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/errors"
)

const DefaultInitRetries = 3

type initCmd struct {
	cmd      string
	optional bool // ERROR tolerated
	long     bool // uses action timeout
}

func (self *Driver) initSequence() []initCmd {
	seq := []initCmd{
		{cmd: "AT"},
		{cmd: "ATE0"},
		{cmd: `AT+SAPBR=3,1,"Contype","GPRS"`},
	}
	if self.cfg.APN != "" {
		seq = append(seq, initCmd{cmd: `AT+SAPBR=3,1,"APN","` + self.cfg.APN + `"`})
	}
	return append(seq,
		// bearer may be open already
		initCmd{cmd: "AT+SAPBR=1,1", optional: true, long: true},
		// HTTP service may be left running from previous boot
		initCmd{cmd: "AT+HTTPTERM", optional: true},
		initCmd{cmd: "AT+HTTPINIT"},
		initCmd{cmd: `AT+HTTPPARA="CID",1`},
	)
}

func (self *Driver) handshake() error {
	for _, ic := range self.initSequence() {
		timeout := self.cfg.CommandTimeout
		if ic.long {
			timeout = self.cfg.ActionTimeout
		}
		switch r := self.SendCommand(ic.cmd, timeout); {
		case r == ResultOK:
		case r == ResultError && ic.optional:
			self.log.Debugf("modem init %s ERROR ignored", ic.cmd)
		default:
			return errors.Errorf("modem init cmd=%s result=%s", ic.cmd, r)
		}
	}
	return nil
}

// Init brings modem to HTTP-ready state, retrying whole handshake with exponential backoff.
func (self *Driver) Init(ctx context.Context) error {
	retries := self.cfg.InitRetries
	if retries <= 0 {
		retries = DefaultInitRetries
	}
	attempt := 0
	op := func() error {
		attempt++
		err := self.handshake()
		if err != nil {
			self.log.Errorf("modem init attempt=%d err=%v", attempt, err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(self.newBackOff(), uint64(retries-1)), ctx))
	return errors.Annotate(err, "modem init")
}

func (self *Driver) newBackOff() backoff.BackOff {
	if self.initBackOff != nil {
		return self.initBackOff()
	}
	return backoff.NewExponentialBackOff()
}
