package scanner

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"thermobeacon-exporter/decoder"
	"thermobeacon-exporter/store"
)

// ThermoBeacon sensors broadcast their payload as manufacturer data under
// company ID 0x0010. The device address is taken from the payload itself, not
// from the BLE source address.
const thermoBeaconCompanyID = 0x0010

// Scanner handles passive BLE scanning for ThermoBeacon sensors
type Scanner struct {
	adapter *bluetooth.Adapter
	store   *store.Store
	logger  *zap.Logger
}

// New creates a new BLE scanner feeding the given store
func New(st *store.Store, logger *zap.Logger) *Scanner {
	return &Scanner{
		adapter: bluetooth.DefaultAdapter,
		store:   st,
		logger:  logger,
	}
}

// Start initializes the BLE adapter and starts scanning
func (s *Scanner) Start(ctx context.Context) error {
	s.logger.Info("initializing BLE adapter")

	// Enable the BLE stack
	err := s.adapter.Enable()
	if err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	s.logger.Info("BLE adapter initialized successfully")
	s.logger.Info("starting BLE scan")

	// Start scanning
	err = s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		// Check if context is cancelled
		select {
		case <-ctx.Done():
			s.adapter.StopScan()
			return
		default:
		}

		for _, element := range result.ManufacturerData() {
			if element.CompanyID != thermoBeaconCompanyID {
				continue
			}
			s.handleFrame(element.Data)
		}
	})

	if err != nil {
		return fmt.Errorf("failed to start BLE scan: %w", err)
	}

	return nil
}

// handleFrame classifies, decodes and records one advertisement payload.
func (s *Scanner) handleFrame(data []byte) {
	kind, ok := decoder.Classify(data)
	if !ok {
		// Expected for every non-ThermoBeacon advertisement in range
		s.logger.Debug("ignoring unrecognized frame", zap.Int("length", len(data)))
		return
	}

	reading, err := decoder.Decode(kind, data)
	if err != nil {
		// Cannot happen after a successful Classify; surface it loudly
		s.logger.Error("failed to decode classified frame",
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		return
	}

	s.store.Record(*reading)

	s.logger.Info("sensor_reading",
		zap.String("address", reading.Address),
		zap.Float64("temperature_celsius", reading.TemperatureCelsius),
		zap.Float64("humidity_percent", reading.HumidityPercent),
		zap.Int("voltage_mv", reading.VoltageMillivolts),
		zap.Uint32("uptime_seconds", reading.UptimeSeconds),
		zap.Bool("has_uptime", reading.HasUptime),
	)
}

// Stop stops the BLE scanner
func (s *Scanner) Stop() error {
	s.logger.Info("stopping BLE scan")
	err := s.adapter.StopScan()
	if err != nil {
		return fmt.Errorf("failed to stop BLE scan: %w", err)
	}
	return nil
}
