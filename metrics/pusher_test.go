package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"

	"thermobeacon-exporter/decoder"
	"thermobeacon-exporter/locations"
	"thermobeacon-exporter/store"
)

func testSnapshot() map[string]store.Reading {
	return map[string]store.Reading{
		"AA:BB:CC:DD:EE:FF": {
			Reading: decoder.Reading{
				Address:            "AA:BB:CC:DD:EE:FF",
				VoltageMillivolts:  3000,
				TemperatureCelsius: 22.0,
				HumidityPercent:    50.0,
				UptimeSeconds:      12345,
				HasUptime:          true,
			},
			ObservedAt: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestNew(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	pusher := New(
		"https://example.com/api/push",
		"test-user",
		"test-password",
		store.New(),
		locations.Empty(),
		15,
		logger,
	)

	if pusher == nil {
		t.Fatal("Expected pusher to be created, got nil")
	}

	if pusher.url != "https://example.com/api/push" {
		t.Errorf("Expected URL https://example.com/api/push, got %s", pusher.url)
	}

	if pusher.username != "test-user" {
		t.Errorf("Expected username test-user, got %s", pusher.username)
	}

	if pusher.pushInterval != 15*time.Second {
		t.Errorf("Expected push interval 15s, got %v", pusher.pushInterval)
	}

	if pusher.client == nil {
		t.Error("Expected HTTP client to be initialized")
	}
}

func TestBuildWriteRequest(t *testing.T) {
	pusher := New("https://example.com", "user", "pass", store.New(), locations.Empty(), 15, zap.NewNop())

	writeReq := pusher.buildWriteRequest(testSnapshot())

	// temperature + humidity + voltage + uptime
	if len(writeReq.Timeseries) != 4 {
		t.Fatalf("Expected 4 time series, got %d", len(writeReq.Timeseries))
	}

	expectedValues := map[string]float64{
		"sensor_temperature_celsius": 22.0,
		"sensor_humidity_percent":    50.0,
		"sensor_voltage":             3000,
		"sensor_uptime_seconds":      12345,
	}

	expectedTimestamp := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC).UnixMilli()

	for _, series := range writeReq.Timeseries {
		var name, address string
		for _, label := range series.Labels {
			switch label.Name {
			case "__name__":
				name = label.Value
			case "address":
				address = label.Value
			}
		}

		expectedValue, known := expectedValues[name]
		if !known {
			t.Errorf("Unexpected series name %s", name)
			continue
		}
		delete(expectedValues, name)

		if address != "AA:BB:CC:DD:EE:FF" {
			t.Errorf("Series %s: expected address label AA:BB:CC:DD:EE:FF, got %s", name, address)
		}

		if len(series.Samples) != 1 {
			t.Fatalf("Series %s: expected 1 sample, got %d", name, len(series.Samples))
		}
		if series.Samples[0].Value != expectedValue {
			t.Errorf("Series %s: expected value %v, got %v", name, expectedValue, series.Samples[0].Value)
		}
		if series.Samples[0].Timestamp != expectedTimestamp {
			t.Errorf("Series %s: expected timestamp %d, got %d", name, expectedTimestamp, series.Samples[0].Timestamp)
		}
	}

	if len(expectedValues) != 0 {
		t.Errorf("Missing series: %v", expectedValues)
	}
}

func TestBuildWriteRequest_ShortFrameOmitsUptime(t *testing.T) {
	pusher := New("https://example.com", "user", "pass", store.New(), locations.Empty(), 15, zap.NewNop())

	snapshot := testSnapshot()
	reading := snapshot["AA:BB:CC:DD:EE:FF"]
	reading.HasUptime = false
	snapshot["AA:BB:CC:DD:EE:FF"] = reading

	writeReq := pusher.buildWriteRequest(snapshot)

	if len(writeReq.Timeseries) != 3 {
		t.Fatalf("Expected 3 time series without uptime, got %d", len(writeReq.Timeseries))
	}

	for _, series := range writeReq.Timeseries {
		for _, label := range series.Labels {
			if label.Name == "__name__" && label.Value == "sensor_uptime_seconds" {
				t.Error("Did not expect uptime series for short-frame reading")
			}
		}
	}
}

func TestPush_EmptySnapshot(t *testing.T) {
	pusher := New("https://example.com", "user", "pass", store.New(), locations.Empty(), 15, zap.NewNop())

	err := pusher.Push(context.Background(), map[string]store.Reading{})
	if err != nil {
		t.Errorf("Expected no error for empty snapshot, got: %v", err)
	}
}

func TestPush_Success(t *testing.T) {
	requestCount := 0
	var received prompb.WriteRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++

		if r.Method != "POST" {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/x-protobuf" {
			t.Errorf("Expected Content-Type application/x-protobuf, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Content-Encoding") != "snappy" {
			t.Errorf("Expected Content-Encoding snappy, got %s", r.Header.Get("Content-Encoding"))
		}

		username, password, ok := r.BasicAuth()
		if !ok || username != "user" || password != "pass" {
			t.Error("Expected basic auth user/pass")
		}

		compressed, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("Failed to read request body: %v", err)
		}
		data, err := snappy.Decode(nil, compressed)
		if err != nil {
			t.Fatalf("Failed to decompress body: %v", err)
		}
		if err := proto.Unmarshal(data, &received); err != nil {
			t.Fatalf("Failed to unmarshal write request: %v", err)
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pusher := New(server.URL, "user", "pass", store.New(), locations.Empty(), 15, zap.NewNop())

	err := pusher.Push(context.Background(), testSnapshot())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if requestCount != 1 {
		t.Errorf("Expected 1 request, got %d", requestCount)
	}

	if len(received.Timeseries) != 4 {
		t.Errorf("Expected 4 time series in received request, got %d", len(received.Timeseries))
	}
}

func TestPush_RetriesOnServerError(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pusher := New(server.URL, "user", "pass", store.New(), locations.Empty(), 15, zap.NewNop())

	err := pusher.Push(context.Background(), testSnapshot())
	if err != nil {
		t.Fatalf("Expected push to succeed on third attempt, got: %v", err)
	}

	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
}

func TestPush_FailsAfterThreeAttempts(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	pusher := New(server.URL, "user", "pass", store.New(), locations.Empty(), 15, zap.NewNop())

	err := pusher.Push(context.Background(), testSnapshot())
	if err == nil {
		t.Fatal("Expected error after exhausted retries, got nil")
	}

	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
}
