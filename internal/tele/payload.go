package tele

import (
	"encoding/json"
	"math"

	"github.com/juju/errors"

	"github.com/temoto/floodnode/internal/alert"
	"github.com/temoto/floodnode/internal/clock"
	"github.com/temoto/floodnode/internal/power"
	"github.com/temoto/floodnode/log2"
)

// Payload is wire format accepted by ingestion service.
type Payload struct {
	SensorID     string     `json:"sensor_id"`
	WaterLevelCM float64    `json:"water_level_cm"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	PowerWatts   *float64   `json:"power_consumption_watts,omitempty"`
	MCUTimestamp string     `json:"mcu_timestamp"`
	AlertStatus  bool       `json:"alert_status"`
	AlertType    alert.Type `json:"alert_type"`
}

// Identity is static per node.
type Identity struct {
	SensorID      string
	Latitude      float64
	Longitude     float64
	BasinHeightCM float64
}

type PowerReader interface {
	Read() (float64, error)
}

type Packet struct {
	Event       alert.Event
	Payload     Payload
	Bytes       []byte
	CapacityPct float64
}

type Encoder struct {
	id    Identity
	power PowerReader
	clock clock.Source
	log   *log2.Log
}

func NewEncoder(id Identity, pr PowerReader, cs clock.Source, log *log2.Log) *Encoder {
	return &Encoder{id: id, power: pr, clock: cs, log: log}
}

func (self *Encoder) Encode(ev alert.Event) (Packet, error) {
	p := Packet{
		Event:       ev,
		CapacityPct: CapacityPct(ev.Level, self.id.BasinHeightCM),
		Payload: Payload{
			SensorID:     self.id.SensorID,
			WaterLevelCM: round(ev.Level, 1),
			Latitude:     self.id.Latitude,
			Longitude:    self.id.Longitude,
			MCUTimestamp: clock.Stamp(self.clock),
			AlertStatus:  ev.Type.Status(),
			AlertType:    ev.Type,
		},
	}
	if self.power != nil {
		switch w, err := self.power.Read(); {
		case err == nil:
			w = round(w, 3)
			p.Payload.PowerWatts = &w
		case power.IsUnavailable(err):
			self.log.Debugf("tele: power omitted: %v", err)
		default:
			self.log.Errorf("tele: power err=%v", err)
		}
	}
	b, err := json.Marshal(p.Payload)
	if err != nil {
		return Packet{}, errors.Annotate(err, "tele encode")
	}
	p.Bytes = b
	return p, nil
}

func CapacityPct(levelCM, basinHeightCM float64) float64 {
	if basinHeightCM <= 0 {
		return 0
	}
	return levelCM / basinHeightCM * 100
}

func round(x float64, digits int) float64 {
	k := math.Pow10(digits)
	return math.Round(x*k) / k
}
