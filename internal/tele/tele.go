// Package tele builds telemetry payloads and hands them to transport,
// accounting every attempt in Metrics.
package tele

import (
	"github.com/juju/errors"

	"github.com/temoto/floodnode/internal/alert"
	"github.com/temoto/floodnode/log2"
)

// Tele contract:
// - fire and forget: Send makes single attempt, nothing is stored
// - Metrics count every attempt, delivered or not
// - failure is reported to caller and never fatal
type Tele struct {
	enc       *Encoder
	transport Transporter
	metrics   *Metrics
	endpoint  string
	log       *log2.Log
}

func New(enc *Encoder, transport Transporter, metrics *Metrics, endpoint string, log *log2.Log) *Tele {
	return &Tele{enc: enc, transport: transport, metrics: metrics, endpoint: endpoint, log: log}
}

func (self *Tele) Metrics() *Metrics { return self.metrics }

func (self *Tele) Send(ev alert.Event) (Packet, error) {
	p, err := self.enc.Encode(ev)
	if err != nil {
		return p, errors.Trace(err)
	}
	self.log.Debugf("tele send %s", p.Bytes)
	err = self.transport.Post(self.endpoint, p.Bytes)
	self.metrics.Record(len(p.Bytes))
	if err != nil {
		return p, errors.Annotatef(err, "tele send %s", ev.Type)
	}
	return p, nil
}
