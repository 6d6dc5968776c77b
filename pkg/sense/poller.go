package sense

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"edo/pkg/events"
	"edo/pkg/memory"
)

// Publisher is the slice of the event router the poller needs.
type Publisher interface {
	Publish(topic string, ev events.Event) error
}

// Backend is a source of readings the poller can cycle.
type Backend interface {
	Readings(ctx context.Context) ([]Reading, error)
}

// Poller fetches readings on a fixed interval, persists them, and publishes
// one sensor-reading event per device.
type Poller struct {
	backend  Backend
	store    *memory.Store
	pub      Publisher
	interval time.Duration
}

func NewPoller(backend Backend, store *memory.Store, pub Publisher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{backend: backend, store: store, pub: pub, interval: interval}
}

// Run polls until the context is cancelled. The first cycle runs
// immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	readings, err := p.backend.Readings(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("sensor poll failed")
		}
		return
	}
	for _, r := range readings {
		if p.store != nil {
			p.store.AddSensorReading(memory.SensorReading{
				Source:      r.Source,
				DeviceID:    r.DeviceID,
				DeviceName:  r.DeviceName,
				Temperature: r.Temperature,
				Humidity:    r.Humidity,
				Illuminance: r.Illuminance,
				Motion:      r.Motion,
				EventTime:   r.EventTime,
			})
		}
		ev := events.New(events.KindSensorReading, 0)
		ev.Text = r.Describe()
		ev.Fields = map[string]any{
			"source":      r.Source,
			"device_id":   r.DeviceID,
			"device_name": r.DeviceName,
		}
		if r.Temperature != nil {
			ev.Fields["temperature"] = *r.Temperature
		}
		if r.Humidity != nil {
			ev.Fields["humidity"] = *r.Humidity
		}
		if r.Illuminance != nil {
			ev.Fields["illuminance"] = *r.Illuminance
		}
		if r.Motion != nil {
			ev.Fields["motion"] = *r.Motion
		}
		if err := p.pub.Publish(events.TopicChat, ev); err != nil {
			log.Warn().Err(err).Msg("publish sensor reading failed")
		}
	}
}
