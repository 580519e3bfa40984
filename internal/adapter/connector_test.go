package adapter

import (
	"net"
	"testing"
	"time"
)

func TestHandleProtocolCommand_UUIDOverride(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleProtocolCommand("* uuid: newdev", nil)
	if c.currentUUID != "newdev" {
		t.Errorf("currentUUID = %q, want newdev", c.currentUUID)
	}
}

func TestHandleProtocolCommand_PreserveUUIDIgnoresOverride(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1", PreserveUUID: true})

	c.handleProtocolCommand("* uuid: newdev", nil)
	if c.currentUUID != "dev1" {
		t.Errorf("currentUUID = %q, want dev1 (preserved)", c.currentUUID)
	}
}

func TestHandleProtocolCommand_DeviceSwitch(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleProtocolCommand("* device: dev2", nil)
	if c.currentDevice != "dev2" {
		t.Errorf("currentDevice = %q, want dev2", c.currentDevice)
	}
}

func TestHandlePong_SetsHeartbeatFrequency(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handlePong("* PONG 5000")
	if !c.heartbeats || c.heartbeatFreq != 5*time.Second {
		t.Errorf("heartbeats=%v freq=%v, want true/5s", c.heartbeats, c.heartbeatFreq)
	}
}

func TestHandlePong_CapsAtMaxHeartbeat(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handlePong("* PONG 7200000") // 2 hours, above the 30-minute cap
	if c.heartbeatFreq != MaxHeartbeat {
		t.Errorf("heartbeatFreq = %v, want capped at %v", c.heartbeatFreq, MaxHeartbeat)
	}
}

func TestApplyCalibration_ParsesTriples(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.applyCalibration("pos|2.0|1.0")
	f, ok := c.calibration["pos"]
	if !ok || f.Scale != 2.0 || f.Offset != 1.0 {
		t.Errorf("calibration[pos] = %+v, ok=%v", f, ok)
	}
}

func TestCheckHeartbeat_LegacyTimeoutClosesIdleConnection(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})
	c.lastHeard = time.Now().Add(-time.Hour)

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	if c.checkHeartbeat(client, 10*time.Millisecond) {
		t.Error("expected checkHeartbeat to report the connection should close after legacy timeout")
	}
}

func TestCheckHeartbeat_WithinLegacyTimeoutStaysOpen(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})
	c.lastHeard = time.Now()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	if !c.checkHeartbeat(client, time.Hour) {
		t.Error("expected checkHeartbeat to keep a recently-active connection open")
	}
}

func TestParseTimestamp_IgnoreTimestampsUsesNow(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1", IgnoreTimestamps: true})

	before := time.Now()
	got := c.parseTimestamp("2000-01-01T00:00:00Z")
	if got.Before(before) {
		t.Error("expected parseTimestamp to ignore the wire timestamp and use now")
	}
}

func TestParseTimestamp_RFC3339(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	got := c.parseTimestamp("2026-01-01T00:00:00Z")
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parseTimestamp = %v, want %v", got, want)
	}
}
