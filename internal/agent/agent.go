// Package agent wires the device model, ring buffer, change notifier,
// asset store, and adapter connectors into one running process (C9),
// implementing the connect/disconnect AVAILABILITY fan-out of spec.md
// §4.9. Grounded on original_source/agent/agent.cpp's connected/
// disconnected handlers and the teacher's own supervision style:
// golang.org/x/sync/errgroup (a direct teacher dependency) replaces a
// hand-rolled WaitGroup+error-channel for running N adapter connectors
// under one cancelable group.
package agent

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mtconnect-org/agent/internal/adapter"
	"github.com/mtconnect-org/agent/internal/asset"
	"github.com/mtconnect-org/agent/internal/buffer"
	"github.com/mtconnect-org/agent/internal/metrics"
	"github.com/mtconnect-org/agent/internal/model"
	"github.com/mtconnect-org/agent/internal/notify"
	"github.com/mtconnect-org/agent/internal/observation"
)

// Agent owns every shared subsystem and the running adapter connectors.
type Agent struct {
	Model    *model.Model
	Buffer   *buffer.Buffer
	Notifier *notify.Notifier
	Assets   *asset.Store
	Metrics  *metrics.Metrics
	logger   *slog.Logger

	connectors []*adapter.Connector
}

// New wires the subsystems together. Adapter connectors are attached
// afterwards with AddAdapter, which wires each one to this Agent's model
// and to the Agent itself as its sink.
func New(m *model.Model, bufCapacity, checkpointFreq uint64, maxAssets int, met *metrics.Metrics, logger *slog.Logger) *Agent {
	notifier := notify.New()
	buf := buffer.New(bufCapacity, checkpointFreq, notifier)

	a := &Agent{
		Model:    m,
		Buffer:   buf,
		Notifier: notifier,
		Metrics:  met,
		logger:   logger,
	}
	a.Assets = asset.New(maxAssets, a)
	return a
}

// AddAdapter builds and attaches a connector for one configured adapter.
func (a *Agent) AddAdapter(cfg adapter.Config) {
	c := adapter.New(cfg, a.Model, a, a.logger,
		func(devices []string) { a.onConnected(cfg.Name, devices) },
		func(devices []string) { a.onDisconnected(cfg.Name, devices) },
	)
	a.connectors = append(a.connectors, c)
}

// Run starts every adapter connector and blocks until ctx is canceled or
// one connector returns an unrecoverable error.
func (a *Agent) Run(ctx context.Context) error {
	a.markAgentAvailable()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range a.connectors {
		c := c
		g.Go(func() error { return c.Run(gctx) })
	}
	return g.Wait()
}

// markAgentAvailable appends AVAILABLE to the AVAILABILITY item of every
// registered device at startup. There is no separate agent device; these
// items are afterwards driven by the connect/disconnect fan-out.
func (a *Agent) markAgentAvailable() {
	now := time.Now()
	for _, dev := range a.Model.Devices() {
		if dev.Availability == nil {
			continue
		}
		a.Buffer.Append(dev.Availability, observation.StringValue("AVAILABLE"), now)
	}
}

// onConnected fans AVAILABLE out to every associated device's AVAILABILITY
// item when the adapter is marked auto-available (spec.md §4.9).
func (a *Agent) onConnected(adapterName string, devices []string) {
	if a.Metrics != nil {
		a.Metrics.AdapterConnected.WithLabelValues(adapterName).Set(1)
	}
	now := time.Now()
	for _, devID := range devices {
		dev, ok := a.Model.DeviceByUUID(devID)
		if !ok || dev.Availability == nil {
			continue
		}
		a.Buffer.Append(dev.Availability, observation.StringValue("AVAILABLE"), now)
	}
}

// onDisconnected appends UNAVAILABLE to every data item whose dataSource is
// this adapter, unless already UNAVAILABLE or constant (spec.md §4.9).
func (a *Agent) onDisconnected(adapterName string, devices []string) {
	if a.Metrics != nil {
		a.Metrics.AdapterConnected.WithLabelValues(adapterName).Set(0)
	}
	now := time.Now()
	for _, devID := range devices {
		dev, ok := a.Model.DeviceByUUID(devID)
		if !ok {
			continue
		}
		for _, id := range a.Model.AllDataItemIDs(dev) {
			di, ok := a.Model.DataItemByID(id)
			if !ok || di.DataSource != adapterName {
				continue
			}
			a.unavailable(di, now)
		}
		if dev.Availability != nil && dev.Availability.DataSource == "" {
			a.unavailable(dev.Availability, now)
		}
	}
}

func (a *Agent) unavailable(di *model.DataItem, t time.Time) {
	if di.IsConstant() {
		return
	}
	latest := a.Buffer.Latest([]string{di.ID})
	for _, o := range latest {
		if o.IsUnavailable() {
			return
		}
	}
	var value observation.Value
	if di.IsCondition() {
		value = observation.Value{Condition: &observation.Condition{Level: observation.LevelUnavailable}}
	} else {
		value = observation.UnavailableValue()
	}
	a.Buffer.Append(di, value, t)
}

// --- adapter.Sink ---

// Append satisfies adapter.Sink, recording a metrics increment alongside
// the buffer append.
func (a *Agent) Append(di *model.DataItem, value observation.Value, timestamp time.Time) uint64 {
	seq := a.Buffer.Append(di, value, timestamp)
	if a.Metrics != nil && seq != 0 {
		a.Metrics.BufferAppends.Inc()
		nextSeq, firstSeq := a.Buffer.Snapshot()
		a.Metrics.BufferDepth.Set(float64(nextSeq - firstSeq))
	}
	return seq
}

func (a *Agent) AddAsset(deviceUUID, id, typ, body string, keys map[string]string, t time.Time) {
	a.Assets.Add(deviceUUID, id, typ, body, keys, t)
	a.refreshAssetMetric()
}

func (a *Agent) UpdateAsset(deviceUUID, id string, fields map[string]string, t time.Time) {
	a.Assets.Update(deviceUUID, id, fields, t)
}

func (a *Agent) RemoveAsset(deviceUUID, id string, t time.Time) {
	current := a.currentAssetChanged(deviceUUID)
	a.Assets.Remove(deviceUUID, id, current, t)
	a.refreshAssetMetric()
}

func (a *Agent) RemoveAllAssets(deviceUUID, typ string, t time.Time) {
	a.Assets.RemoveAll(deviceUUID, typ, t)
	a.refreshAssetMetric()
}

func (a *Agent) currentAssetChanged(deviceUUID string) string {
	dev, ok := a.Model.DeviceByUUID(deviceUUID)
	if !ok || dev.AssetChanged == nil {
		return ""
	}
	latest := a.Buffer.Latest([]string{dev.AssetChanged.ID})
	if len(latest) == 0 {
		return ""
	}
	if latest[0].Value.HasString {
		return latest[0].Value.String
	}
	return ""
}

func (a *Agent) refreshAssetMetric() {
	if a.Metrics != nil {
		a.Metrics.AssetCount.Set(float64(a.Assets.Count("")))
	}
}

// --- asset.ChangeEmitter ---

func (a *Agent) EmitAssetChanged(deviceUUID, value string, t time.Time) {
	dev, ok := a.Model.DeviceByUUID(deviceUUID)
	if !ok || dev.AssetChanged == nil {
		return
	}
	a.Buffer.Append(dev.AssetChanged, observation.StringValue(value), t)
}

func (a *Agent) EmitAssetRemoved(deviceUUID, value string, t time.Time) {
	dev, ok := a.Model.DeviceByUUID(deviceUUID)
	if !ok || dev.AssetRemoved == nil {
		return
	}
	a.Buffer.Append(dev.AssetRemoved, observation.StringValue(value), t)
}
