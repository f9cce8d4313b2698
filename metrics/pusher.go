package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"

	"thermobeacon-exporter/locations"
	"thermobeacon-exporter/store"
)

// Pusher periodically pushes the latest readings to a Prometheus remote_write
// endpoint. The store keeps only the latest value per device, so each tick
// pushes one sample per series; a failed push is simply superseded by the next
// snapshot.
type Pusher struct {
	url          string
	username     string
	password     string
	client       *http.Client
	logger       *zap.Logger
	store        *store.Store
	locations    *locations.Table
	pushInterval time.Duration
}

// New creates a new Prometheus remote_write pusher
func New(url, username, password string, st *store.Store, table *locations.Table, pushIntervalSeconds int, logger *zap.Logger) *Pusher {
	return &Pusher{
		url:      url,
		username: username,
		password: password,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       logger,
		store:        st,
		locations:    table,
		pushInterval: time.Duration(pushIntervalSeconds) * time.Second,
	}
}

// Start begins the periodic metrics pushing; it blocks until ctx is cancelled
func (p *Pusher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pushInterval)
	defer ticker.Stop()

	p.logger.Info("remote write pusher started",
		zap.String("url", p.url),
		zap.Duration("push_interval", p.pushInterval),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("remote write pusher stopping")
			return
		case <-ticker.C:
			snapshot := p.store.Snapshot()
			if len(snapshot) == 0 && p.locations.Len() == 0 {
				p.logger.Debug("no readings to push")
				continue
			}

			if err := p.Push(ctx, snapshot); err != nil {
				p.logger.Error("failed to push metrics", zap.Error(err))
			}
		}
	}
}

// Push pushes one snapshot of readings, retrying up to 3 times
func (p *Pusher) Push(ctx context.Context, snapshot map[string]store.Reading) error {
	writeReq := p.buildWriteRequest(snapshot)
	if len(writeReq.Timeseries) == 0 {
		p.logger.Debug("no time series to push")
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		err := p.pushOnce(ctx, writeReq)
		if err == nil {
			p.logger.Info("successfully pushed metrics",
				zap.Int("device_count", len(snapshot)),
				zap.Int("time_series", len(writeReq.Timeseries)),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		lastErr = err
		p.logger.Warn("failed to push metrics, will retry",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		// Exponential backoff: 1s, 2s
		if attempt < 3 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("failed to push metrics after 3 attempts: %w", lastErr)
}

// buildWriteRequest converts a store snapshot to a Prometheus WriteRequest,
// one sample per gauge per device, stamped with the reading's observation time
func (p *Pusher) buildWriteRequest(snapshot map[string]store.Reading) *prompb.WriteRequest {
	// Stable ordering makes the request deterministic for a given snapshot
	addresses := make([]string, 0, len(snapshot))
	for address := range snapshot {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	var timeSeries []prompb.TimeSeries

	gaugeSeries := func(name, address string, value float64, timestampMs int64) prompb.TimeSeries {
		return prompb.TimeSeries{
			Labels: []prompb.Label{
				{Name: "__name__", Value: name},
				{Name: "address", Value: address},
			},
			Samples: []prompb.Sample{
				{Value: value, Timestamp: timestampMs},
			},
		}
	}

	for _, address := range addresses {
		reading := snapshot[address]
		timestampMs := reading.ObservedAt.UnixMilli()

		timeSeries = append(timeSeries,
			gaugeSeries("sensor_temperature_celsius", address, reading.TemperatureCelsius, timestampMs),
			gaugeSeries("sensor_humidity_percent", address, reading.HumidityPercent, timestampMs),
			gaugeSeries("sensor_voltage", address, float64(reading.VoltageMillivolts), timestampMs),
		)
		if reading.HasUptime {
			timeSeries = append(timeSeries,
				gaugeSeries("sensor_uptime_seconds", address, float64(reading.UptimeSeconds), timestampMs))
		}
	}

	// Location metadata series, constant value 1
	locationEntries := p.locations.All()
	locationAddresses := make([]string, 0, len(locationEntries))
	for address := range locationEntries {
		locationAddresses = append(locationAddresses, address)
	}
	sort.Strings(locationAddresses)

	nowMs := time.Now().UnixMilli()
	for _, address := range locationAddresses {
		timeSeries = append(timeSeries, prompb.TimeSeries{
			Labels: []prompb.Label{
				{Name: "__name__", Value: "sensor_location_info"},
				{Name: "address", Value: address},
				{Name: "location", Value: locationEntries[address]},
			},
			Samples: []prompb.Sample{
				{Value: 1, Timestamp: nowMs},
			},
		})
	}

	return &prompb.WriteRequest{
		Timeseries: timeSeries,
	}
}

// pushOnce attempts to push the write request once
func (p *Pusher) pushOnce(ctx context.Context, writeReq *prompb.WriteRequest) error {
	// Marshal to protobuf
	data, err := proto.Marshal(writeReq)
	if err != nil {
		return fmt.Errorf("failed to marshal protobuf: %w", err)
	}

	// Compress with snappy
	compressed := snappy.Encode(nil, data)

	req, err := http.NewRequestWithContext(ctx, "POST", p.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	if p.username != "" && p.password != "" {
		req.SetBasicAuth(p.username, p.password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
