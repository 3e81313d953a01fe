package tele

import (
	"github.com/temoto/floodnode/internal/modem"
)

type transportModem struct {
	d *modem.Driver
}

// NewModemTransport also feeds modem step outcomes into metrics.
func NewModemTransport(d *modem.Driver, m *Metrics) Transporter {
	if m != nil {
		d.OnStep = func(s modem.Step, r modem.Result) { m.Step(s.String(), r.String()) }
	}
	return &transportModem{d: d}
}

func (self *transportModem) Post(url string, body []byte) error { return self.d.Post(url, body) }
