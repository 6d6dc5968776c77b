// Package sense polls ambient sensors and feeds readings into the event
// stream. The only backend today is the Nature Remo cloud API.
package sense

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const DefaultRemoBaseURL = "https://api.nature.global"

// Reading is one ambient sample from a device. Nil pointers mean the device
// does not report that quantity.
type Reading struct {
	Source      string
	DeviceID    string
	DeviceName  string
	Temperature *float64
	Humidity    *float64
	Illuminance *float64
	Motion      *int
	EventTime   string
}

// RemoClient fetches device readings from the Nature Remo cloud.
type RemoClient struct {
	base   string
	token  string
	client *http.Client
}

func NewRemoClient(baseURL, token string) *RemoClient {
	if baseURL == "" {
		baseURL = DefaultRemoBaseURL
	}
	return &RemoClient{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type remoEvent struct {
	Val       float64 `json:"val"`
	CreatedAt string  `json:"created_at"`
}

type remoDevice struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	NewestEvents map[string]remoEvent `json:"newest_events"`
}

// Readings fetches the newest sensor events for every device on the
// account. Event keys: te temperature, hu humidity, il illuminance, mo
// motion.
func (c *RemoClient) Readings(ctx context.Context) ([]Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/1/devices", nil)
	if err != nil {
		return nil, errors.Wrap(err, "remo: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "remo: fetch devices")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("remo: devices returned %s", resp.Status)
	}

	var devices []remoDevice
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, errors.Wrap(err, "remo: decode devices")
	}

	var out []Reading
	for _, d := range devices {
		if len(d.NewestEvents) == 0 {
			continue
		}
		r := Reading{Source: "remo", DeviceID: d.ID, DeviceName: d.Name}
		for key, ev := range d.NewestEvents {
			v := ev.Val
			switch key {
			case "te":
				r.Temperature = &v
			case "hu":
				r.Humidity = &v
			case "il":
				r.Illuminance = &v
			case "mo":
				m := int(v)
				r.Motion = &m
			default:
				continue
			}
			if ev.CreatedAt > r.EventTime {
				r.EventTime = ev.CreatedAt
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Describe renders a short human summary of a reading for notices.
func (r Reading) Describe() string {
	var parts []string
	if r.Temperature != nil {
		parts = append(parts, fmt.Sprintf("%.1f℃", *r.Temperature))
	}
	if r.Humidity != nil {
		parts = append(parts, fmt.Sprintf("湿度%.0f%%", *r.Humidity))
	}
	if r.Illuminance != nil {
		parts = append(parts, fmt.Sprintf("照度%.0f", *r.Illuminance))
	}
	if len(parts) == 0 {
		return r.DeviceName
	}
	return r.DeviceName + ": " + strings.Join(parts, " ")
}
