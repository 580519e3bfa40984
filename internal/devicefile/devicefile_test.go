package devicefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mtconnect-org/agent/internal/model"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp device file: %v", err)
	}
	return path
}

const sampleDevices = `
[[devices]]
uuid = "dev1"
name = "VMC-3Axis"
model_version = "1.7"

[devices.component]
id = "dev1_controller"
name = "Controller"
type = "Controller"

[[devices.component.data_items]]
id = "dev1_exec"
category = "EVENT"
type = "EXECUTION"

[[devices.component.data_items]]
id = "dev1_pos"
category = "SAMPLE"
type = "POSITION"
native_units = "MILLIMETER"
units = "MILLIMETER"
minimum_delta = 0.001

[[devices.component.components]]
id = "dev1_path"
name = "Path"
type = "Path"

[[devices.component.components.data_items]]
id = "dev1_mode"
category = "EVENT"
type = "CONTROLLER_MODE"
values = ["AUTOMATIC", "MANUAL"]
`

func TestLoad_BuildsDeviceTree(t *testing.T) {
	path := writeTemp(t, sampleDevices)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dev, ok := m.DeviceByUUID("dev1")
	if !ok {
		t.Fatal("expected device dev1 to be registered")
	}
	if dev.Availability == nil {
		t.Error("expected AVAILABILITY to be synthesized for model version 1.7")
	}

	exec, ok := m.DataItemByID("dev1_exec")
	if !ok || exec.Category != model.Event {
		t.Errorf("dev1_exec = %+v, ok=%v", exec, ok)
	}

	pos, ok := m.DataItemByID("dev1_pos")
	if !ok {
		t.Fatal("expected dev1_pos to be registered")
	}
	if !pos.Filters.HasMinimumDelta || pos.Filters.MinimumDelta != 0.001 {
		t.Errorf("pos.Filters = %+v, want HasMinimumDelta with 0.001", pos.Filters)
	}

	mode, ok := m.DataItemByID("dev1_mode")
	if !ok {
		t.Fatal("expected nested component's data item dev1_mode to be registered")
	}
	if mode.Constraint == nil || len(mode.Constraint.Values) != 2 {
		t.Errorf("mode.Constraint = %+v, want 2 enumerated values", mode.Constraint)
	}
}

func TestLoad_NoDevicesIsAnError(t *testing.T) {
	path := writeTemp(t, "")
	if _, err := Load(path); err == nil {
		t.Error("expected Load to reject a file defining no devices")
	}
}

func TestLoad_DuplicateUUIDPropagatesModelError(t *testing.T) {
	path := writeTemp(t, `
[[devices]]
uuid = "dup"
name = "A"
[devices.component]
id = "a_root"

[[devices]]
uuid = "dup"
name = "B"
[devices.component]
id = "b_root"
`)
	if _, err := Load(path); err == nil {
		t.Error("expected Load to surface model.AddDevice's duplicate-uuid error")
	}
}

func TestRepresentationOf(t *testing.T) {
	cases := map[string]model.Representation{
		"TIME_SERIES": model.TimeSeries,
		"time_series": model.TimeSeries,
		"DISCRETE":    model.Discrete,
		"":            model.Value,
		"VALUE":       model.Value,
	}
	for raw, want := range cases {
		if got := representationOf(raw); got != want {
			t.Errorf("representationOf(%q) = %q, want %q", raw, got, want)
		}
	}
}
