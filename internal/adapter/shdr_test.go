package adapter

import (
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/mtconnect-org/agent/internal/model"
	"github.com/mtconnect-org/agent/internal/observation"
)

type fakeModel struct {
	byID    map[string]*model.DataItem
	byAlias map[string]*model.DataItem
	devices map[string]*model.Device
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		byID:    make(map[string]*model.DataItem),
		byAlias: make(map[string]*model.DataItem),
		devices: make(map[string]*model.Device),
	}
}

func (f *fakeModel) add(di *model.DataItem) {
	f.byID[di.ID] = di
	if di.Name != "" {
		f.byAlias[di.Name] = di
	}
}

func (f *fakeModel) DataItemByAlias(alias string) (*model.DataItem, bool) {
	di, ok := f.byAlias[alias]
	return di, ok
}

func (f *fakeModel) DataItemByID(id string) (*model.DataItem, bool) {
	di, ok := f.byID[id]
	return di, ok
}

func (f *fakeModel) DeviceByUUID(idOrName string) (*model.Device, bool) {
	d, ok := f.devices[idOrName]
	return d, ok
}

type appendCall struct {
	id    string
	value observation.Value
	t     time.Time
}

type fakeSink struct {
	appends []appendCall
	assets  []string
}

func (s *fakeSink) Append(di *model.DataItem, value observation.Value, t time.Time) uint64 {
	s.appends = append(s.appends, appendCall{id: di.ID, value: value, t: t})
	return uint64(len(s.appends))
}

func (s *fakeSink) AddAsset(deviceUUID, id, typ, body string, keys map[string]string, t time.Time) {
	s.assets = append(s.assets, id+":"+body)
}

func (s *fakeSink) UpdateAsset(deviceUUID, id string, fields map[string]string, t time.Time) {
	s.assets = append(s.assets, "update:"+id)
}

func (s *fakeSink) RemoveAsset(deviceUUID, id string, t time.Time) {
	s.assets = append(s.assets, "remove:"+id)
}

func (s *fakeSink) RemoveAllAssets(deviceUUID, typ string, t time.Time) {
	s.assets = append(s.assets, "removeAll:"+typ)
}

func newTestConnector(m ModelLookup, sink Sink, cfg Config) *Connector {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, m, sink, logger, nil, nil)
}

func TestHandleDataFrame_ScalarNumber(t *testing.T) {
	m := newFakeModel()
	m.add(&model.DataItem{ID: "pos", Category: model.Sample})
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|pos|12.5")

	if len(sink.appends) != 1 {
		t.Fatalf("len(appends) = %d, want 1", len(sink.appends))
	}
	if !sink.appends[0].value.HasNumber || sink.appends[0].value.Number != 12.5 {
		t.Errorf("value = %+v, want Number 12.5", sink.appends[0].value)
	}
}

func TestHandleDataFrame_ScalarString(t *testing.T) {
	m := newFakeModel()
	m.add(&model.DataItem{ID: "exec", Category: model.Event})
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|exec|ACTIVE")

	if len(sink.appends) != 1 || sink.appends[0].value.String != "ACTIVE" {
		t.Fatalf("appends = %+v", sink.appends)
	}
}

func TestHandleDataFrame_UnknownKeySkipsFrame(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|nope|1")
	if len(sink.appends) != 0 {
		t.Errorf("expected no appends for an unresolvable key, got %d", len(sink.appends))
	}
}

func TestHandleDataFrame_Condition(t *testing.T) {
	m := newFakeModel()
	m.add(&model.DataItem{ID: "system", Category: model.Condition})
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|system|FAULT|4198|1|HIGH|Overtemp")

	if len(sink.appends) != 1 {
		t.Fatalf("len(appends) = %d, want 1", len(sink.appends))
	}
	cond := sink.appends[0].value.Condition
	if cond == nil || cond.Level != observation.LevelFault || cond.NativeCode != "4198" {
		t.Errorf("condition = %+v", cond)
	}
}

func TestHandleDataFrame_TimeSeries(t *testing.T) {
	m := newFakeModel()
	m.add(&model.DataItem{ID: "pc", Category: model.Sample, Representation: model.TimeSeries})
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|pc|3|100|1.0 2.0 3.0")

	if len(sink.appends) != 1 {
		t.Fatalf("len(appends) = %d, want 1", len(sink.appends))
	}
	ts := sink.appends[0].value.TimeSeries
	if ts == nil || ts.SampleCount != 3 || len(ts.Samples) != 3 {
		t.Errorf("timeseries = %+v", ts)
	}
}

func TestHandleDataFrame_AssetUpsert(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|@ASSET@|T1|CuttingTool|<CuttingTool/>")

	if len(sink.assets) != 1 || sink.assets[0] != "T1:<CuttingTool/>" {
		t.Errorf("assets = %v", sink.assets)
	}
}

func TestHandleDataFrame_MultilineAsset(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|@ASSET@|T1|CuttingTool|--multiline--XYZ")
	c.handleDataFrame("<CuttingTool>")
	c.handleDataFrame("  <Life>100</Life>")
	c.handleDataFrame("</CuttingTool>")
	c.handleDataFrame("--multiline--XYZ")

	if len(sink.assets) != 1 {
		t.Fatalf("len(assets) = %d, want 1", len(sink.assets))
	}
	if sink.assets[0] != "T1:<CuttingTool>\n  <Life>100</Life>\n</CuttingTool>" {
		t.Errorf("assets[0] = %q", sink.assets[0])
	}
}

func TestHandleDataFrame_RemoveAsset(t *testing.T) {
	m := newFakeModel()
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|@REMOVE_ASSET@|T1")
	if len(sink.assets) != 1 || sink.assets[0] != "remove:T1" {
		t.Errorf("assets = %v", sink.assets)
	}
}

func TestAcceptsDedup_FilterDuplicates(t *testing.T) {
	m := newFakeModel()
	di := &model.DataItem{ID: "exec", Category: model.Event}
	m.add(di)
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1", FilterDuplicates: true})

	c.handleDataFrame("2026-01-01T00:00:00Z|exec|ACTIVE")
	c.handleDataFrame("2026-01-01T00:00:01Z|exec|ACTIVE")
	c.handleDataFrame("2026-01-01T00:00:02Z|exec|READY")

	if len(sink.appends) != 2 {
		t.Fatalf("len(appends) = %d, want 2 (duplicate ACTIVE suppressed)", len(sink.appends))
	}
}

func TestAcceptsDedup_MinimumDelta(t *testing.T) {
	m := newFakeModel()
	di := &model.DataItem{ID: "pos", Category: model.Sample, Filters: model.Filters{HasMinimumDelta: true, MinimumDelta: 1.0}}
	m.add(di)
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|pos|10.0")
	c.handleDataFrame("2026-01-01T00:00:01Z|pos|10.5")
	c.handleDataFrame("2026-01-01T00:00:02Z|pos|11.2")

	if len(sink.appends) != 2 {
		t.Fatalf("len(appends) = %d, want 2 (10.5 suppressed by minimum_delta)", len(sink.appends))
	}
}

func TestConvert_AppliesUnitConversion(t *testing.T) {
	m := newFakeModel()
	di := &model.DataItem{ID: "pos", Category: model.Sample, NativeUnits: "INCH", Units: "MILLIMETER"}
	m.add(di)
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|pos|1")
	if len(sink.appends) != 1 || sink.appends[0].value.Number != 25.4 {
		t.Fatalf("appends = %+v, want 25.4mm from 1 inch", sink.appends)
	}
}

func TestResolveItem_DeviceScopedKey(t *testing.T) {
	m := newFakeModel()
	m.devices["dev1"] = &model.Device{UUID: "dev1"}
	m.add(&model.DataItem{ID: "pos", Category: model.Sample})
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1"})

	c.handleDataFrame("2026-01-01T00:00:00Z|dev1:pos|3")
	if len(sink.appends) != 1 {
		t.Fatalf("expected device-scoped key dev1:pos to resolve, got %d appends", len(sink.appends))
	}
}

func TestApplyCaseFolding(t *testing.T) {
	m := newFakeModel()
	m.add(&model.DataItem{ID: "exec", Category: model.Event})
	sink := &fakeSink{}
	c := newTestConnector(m, sink, Config{Device: "dev1", UpcaseDataItemValue: true})

	c.handleDataFrame("2026-01-01T00:00:00Z|exec|active")
	if len(sink.appends) != 1 || sink.appends[0].value.String != "ACTIVE" {
		t.Fatalf("appends = %+v, want upcased ACTIVE", sink.appends)
	}
}
