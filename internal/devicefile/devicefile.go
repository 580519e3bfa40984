// Package devicefile is the external configuration parser spec.md §1/§3
// assumes but puts out of scope: it reads a TOML device description and
// builds the model.Model the rest of the agent treats as read-only.
// Grounded on internal/config's own BurntSushi/toml decode-then-validate
// shape; this is the minimal concrete stand-in for the "external parser"
// role, not a general MTConnect device-model XML reader.
package devicefile

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mtconnect-org/agent/internal/model"
)

type dataItemSpec struct {
	ID               string   `toml:"id"`
	Name             string   `toml:"name"`
	Source           string   `toml:"source"`
	Category         string   `toml:"category"`
	Type             string   `toml:"type"`
	SubType          string   `toml:"sub_type"`
	Representation   string   `toml:"representation"`
	NativeUnits      string   `toml:"native_units"`
	Units            string   `toml:"units"`
	NativeScale      *float64 `toml:"native_scale"`
	Minimum          *float64 `toml:"minimum"`
	Maximum          *float64 `toml:"maximum"`
	Values           []string `toml:"values"`
	MinimumDelta     *float64 `toml:"minimum_delta"`
	MinimumPeriod    *float64 `toml:"minimum_period"`
	ResetTrigger     string   `toml:"reset_trigger"`
	InitialValue     *string  `toml:"initial_value"`
	DataSource       string   `toml:"data_source"`
}

type componentSpec struct {
	ID         string          `toml:"id"`
	Name       string          `toml:"name"`
	Type       string          `toml:"type"`
	DataItems  []dataItemSpec  `toml:"data_items"`
	Components []componentSpec `toml:"components"`
}

type deviceSpec struct {
	UUID          string        `toml:"uuid"`
	Name          string        `toml:"name"`
	ModelVersion  string        `toml:"model_version"`
	AutoAvailable bool          `toml:"auto_available"`
	Component     componentSpec `toml:"component"`
}

type file struct {
	Devices []deviceSpec `toml:"devices"`
}

// Load parses path and builds a model.Model with one device per [[devices]]
// table. Duplicate ids/uuids surface as the same fatal model-load error
// model.Model.AddDevice already reports (spec.md §7 rule 6).
func Load(path string) (*model.Model, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("devicefile: decode %s: %w", path, err)
	}
	if len(f.Devices) == 0 {
		return nil, fmt.Errorf("devicefile: %s defines no devices", path)
	}

	m := model.New()
	for _, ds := range f.Devices {
		dev := &model.Device{
			UUID:          ds.UUID,
			Name:          ds.Name,
			ModelVersion:  ds.ModelVersion,
			AutoAvailable: ds.AutoAvailable,
		}
		dev.Component = buildComponent(ds.Component)
		if err := m.AddDevice(dev); err != nil {
			return nil, fmt.Errorf("devicefile: %w", err)
		}
	}
	return m, nil
}

func buildComponent(cs componentSpec) *model.Component {
	c := &model.Component{ID: cs.ID, Name: cs.Name, Type: cs.Type}
	for _, dis := range cs.DataItems {
		c.DataItems = append(c.DataItems, buildDataItem(dis))
	}
	for _, child := range cs.Components {
		cc := buildComponent(child)
		cc.Parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

func buildDataItem(s dataItemSpec) *model.DataItem {
	di := &model.DataItem{
		ID:             s.ID,
		Name:           s.Name,
		Source:         s.Source,
		Category:       model.Category(strings.ToUpper(s.Category)),
		Type:           s.Type,
		SubType:        s.SubType,
		Representation: representationOf(s.Representation),
		NativeUnits:    s.NativeUnits,
		Units:          s.Units,
		ResetTrigger:   s.ResetTrigger,
		DataSource:     s.DataSource,
	}
	if s.NativeScale != nil {
		di.HasNativeScale = true
		di.NativeScale = *s.NativeScale
	}
	if s.InitialValue != nil {
		di.HasInitial = true
		di.InitialValue = *s.InitialValue
	}
	if s.Minimum != nil || s.Maximum != nil || len(s.Values) > 0 {
		di.Constraint = &model.Constraint{Minimum: s.Minimum, Maximum: s.Maximum, Values: s.Values}
	}
	if s.MinimumDelta != nil {
		di.Filters.HasMinimumDelta = true
		di.Filters.MinimumDelta = *s.MinimumDelta
	}
	if s.MinimumPeriod != nil {
		di.Filters.HasMinimumPeriod = true
		di.Filters.MinimumPeriod = *s.MinimumPeriod
	}
	return di
}

func representationOf(raw string) model.Representation {
	switch strings.ToUpper(raw) {
	case "TIME_SERIES":
		return model.TimeSeries
	case "DISCRETE":
		return model.Discrete
	default:
		return model.Value
	}
}
