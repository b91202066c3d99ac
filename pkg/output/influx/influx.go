package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ericogr/plura-monitor/pkg/config"
	"github.com/ericogr/plura-monitor/pkg/output"
	"github.com/ericogr/plura-monitor/pkg/store"
)

const (
	DefaultURL         = "http://localhost:8086"
	DefaultMeasurement = "sensor_data"
	writeTimeout       = 5 * time.Second
)

// InfluxOutput writes one point per entry. Points are written
// synchronously so failures reach the caller.
type InfluxOutput struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
}

func NewInflux(cfg config.InfluxConfig) (output.Output, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("influx: bucket is required")
	}
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	client := influxdb2.NewClient(url, cfg.Token)
	return &InfluxOutput{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
	}, nil
}

func (o *InfluxOutput) points(entries []store.Entry) []*write.Point {
	pts := make([]*write.Point, 0, len(entries))
	for _, e := range entries {
		r := e.Reading
		p := influxdb2.NewPointWithMeasurement(o.measurement).
			AddTag("channel", string(e.ID)).
			AddField("calibrated", r.Calibrated).
			SetTime(r.UpdatedAt)
		if r.Unit != "" {
			p.AddTag("unit", r.Unit)
		}
		if r.Calibrated {
			p.AddField("value", r.Value)
		}
		if r.HasRaw {
			p.AddField("raw", r.Raw)
		}
		pts = append(pts, p)
	}
	return pts
}

func (o *InfluxOutput) Publish(entries []store.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return o.writeAPI.WritePoint(ctx, o.points(entries)...)
}

func (o *InfluxOutput) Close() error {
	o.client.Close()
	return nil
}
