// Package model holds the in-memory device model: the immutable tree of
// devices, components, and data items built once from an external
// configuration parser and then read concurrently for the lifetime of the
// agent.
package model

import (
	"fmt"
	"sync"
)

// Category distinguishes the three kinds of data item spec.md §3 defines.
type Category string

const (
	Sample    Category = "SAMPLE"
	Event     Category = "EVENT"
	Condition Category = "CONDITION"
)

// Representation controls how a data item's value is shaped.
type Representation string

const (
	Value      Representation = "VALUE"
	TimeSeries Representation = "TIME_SERIES"
	Discrete   Representation = "DISCRETE"
)

// Constraint bounds a data item's legal values. A Constraint with exactly
// one entry in Values is a *constant*: the item never emits more than its
// initial value (spec.md §3, §13.5).
type Constraint struct {
	Minimum *float64
	Maximum *float64
	Values  []string
}

// IsConstant reports whether this constraint pins the data item to a
// single enumerated value.
func (c *Constraint) IsConstant() bool {
	return c != nil && len(c.Values) == 1
}

// Filters hold the dedup/suppression thresholds the adapter connector
// consults before appending a new sample (spec.md §4.5 "Suppression").
type Filters struct {
	HasMinimumDelta  bool
	MinimumDelta     float64
	HasMinimumPeriod bool
	MinimumPeriod    float64 // seconds
}

// DataItem is immutable after the model is loaded. An id resolves to at
// most one DataItem across all devices in the agent (spec.md §3 invariant).
type DataItem struct {
	ID             string
	Name           string // optional alias
	Source         string // optional alias
	Category       Category
	Type           string
	SubType        string
	Representation Representation
	NativeUnits    string
	Units          string
	HasNativeScale bool
	NativeScale    float64
	Constraint     *Constraint
	Filters        Filters
	ResetTrigger   string
	InitialValue   string
	HasInitial     bool

	// DataSource names the adapter (or adapter:device pair) this item is
	// fed by. Used by the disconnect fan-out (spec.md §4.9).
	DataSource string

	Component *Component
	Device    *Device
}

// IsCondition, IsSample, IsEvent, IsTimeSeries answer the category/
// representation questions C1 promises to answer in O(1).
func (d *DataItem) IsCondition() bool  { return d.Category == Condition }
func (d *DataItem) IsSample() bool     { return d.Category == Sample }
func (d *DataItem) IsEvent() bool      { return d.Category == Event }
func (d *DataItem) IsTimeSeries() bool { return d.Representation == TimeSeries }
func (d *DataItem) IsDiscrete() bool   { return d.Representation == Discrete }

// IsConstant reports whether this item carries a single-valued constraint,
// which suppresses all observations after the initial value (spec.md §13.5).
func (d *DataItem) IsConstant() bool { return d.Constraint.IsConstant() }

// Component is a node in a Device's tree.
type Component struct {
	ID        string
	Name      string
	Type      string
	Parent    *Component
	Children  []*Component
	DataItems []*DataItem
	Device    *Device
}

// Special data-item types every Device ≥ model version 1.2 exposes.
const (
	TypeAvailability  = "AVAILABILITY"
	TypeAssetChanged  = "ASSET_CHANGED"
	TypeAssetRemoved  = "ASSET_REMOVED"
)

// Device is the root of a Component tree.
type Device struct {
	UUID          string
	Name          string
	ModelVersion  string // e.g. "1.7"
	Component     *Component // the device's own root component
	Availability  *DataItem
	AssetChanged  *DataItem
	AssetRemoved  *DataItem

	AutoAvailable bool // loaded from the device file; the fan-out reads the adapter's own AutoAvailable, not this field
}

// versionAtLeast12 reports whether a device's model version is
// ≥ 1.2, the threshold at which AVAILABILITY/ASSET_CHANGED/ASSET_REMOVED
// are guaranteed to exist (spec.md §3).
func versionAtLeast12(version string) bool {
	if version == "" {
		return true // undeclared version defaults to the modern behavior
	}
	var major, minor int
	if _, err := fmt.Sscanf(version, "%d.%d", &major, &minor); err != nil {
		return true
	}
	if major != 1 {
		return major > 1
	}
	return minor >= 2
}

// Model is the process-wide, build-once, read-many device tree. It is
// constructed by an external configuration parser (out of scope per
// spec.md §1) via New and AddDevice, then handed to the agent as read-only.
type Model struct {
	mu        sync.RWMutex
	devices   []*Device
	itemsByID map[string]*DataItem
	itemsByAlias map[string]*DataItem // name or source, not guaranteed unique
	devByUUID map[string]*Device
}

// New returns an empty Model ready to accept devices via AddDevice.
func New() *Model {
	return &Model{
		itemsByID:    make(map[string]*DataItem),
		itemsByAlias: make(map[string]*DataItem),
		devByUUID:    make(map[string]*Device),
	}
}

// AddDevice registers a device (and, transitively, every component and
// data item beneath it) into the model. It synthesizes the three special
// data items when the source model omitted them and the device's
// model version qualifies (spec.md §3). Duplicate UUIDs or duplicate
// data-item ids are a fatal model-load error (spec.md §7.6).
func (m *Model) AddDevice(dev *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dev.UUID == "" {
		return fmt.Errorf("model: device %q has no uuid", dev.Name)
	}
	if _, exists := m.devByUUID[dev.UUID]; exists {
		return fmt.Errorf("model: duplicate device uuid %q", dev.UUID)
	}

	if versionAtLeast12(dev.ModelVersion) {
		m.synthesizeSpecialItems(dev)
	}

	var walkErr error
	walkComponents(dev.Component, func(c *Component) {
		c.Device = dev
		for _, di := range c.DataItems {
			if walkErr != nil {
				return
			}
			di.Component = c
			di.Device = dev
			if err := m.registerItem(di); err != nil {
				walkErr = err
			}
		}
	})
	if walkErr != nil {
		return walkErr
	}

	m.devByUUID[dev.UUID] = dev
	m.devices = append(m.devices, dev)
	return nil
}

func (m *Model) registerItem(di *DataItem) error {
	if di.ID == "" {
		return fmt.Errorf("model: data item with empty id on device %q", di.Device.UUID)
	}
	if _, exists := m.itemsByID[di.ID]; exists {
		return fmt.Errorf("model: duplicate data item id %q", di.ID)
	}
	m.itemsByID[di.ID] = di
	for _, alias := range []string{di.Name, di.Source} {
		if _, taken := m.itemsByAlias[alias]; alias != "" && !taken {
			m.itemsByAlias[alias] = di
		}
	}
	return nil
}

func walkComponents(c *Component, visit func(*Component)) {
	if c == nil {
		return
	}
	visit(c)
	for _, child := range c.Children {
		walkComponents(child, visit)
	}
}

// synthesizeSpecialItems adds AVAILABILITY/ASSET_CHANGED/ASSET_REMOVED to
// the device's root component when the source model didn't define them.
func (m *Model) synthesizeSpecialItems(dev *Device) {
	existing := map[string]*DataItem{}
	walkComponents(dev.Component, func(c *Component) {
		for _, di := range c.DataItems {
			switch di.Type {
			case TypeAvailability:
				existing[TypeAvailability] = di
			case TypeAssetChanged:
				existing[TypeAssetChanged] = di
			case TypeAssetRemoved:
				existing[TypeAssetRemoved] = di
			}
		}
	})

	synth := func(kind, idSuffix string) *DataItem {
		if di, ok := existing[kind]; ok {
			return di
		}
		di := &DataItem{
			ID:             dev.UUID + "_" + idSuffix,
			Category:       Event,
			Type:           kind,
			Representation: Value,
		}
		dev.Component.DataItems = append(dev.Component.DataItems, di)
		return di
	}

	dev.Availability = synth(TypeAvailability, "avail")
	dev.AssetChanged = synth(TypeAssetChanged, "asset_chg")
	dev.AssetRemoved = synth(TypeAssetRemoved, "asset_rem")
}

// Devices returns every registered device.
func (m *Model) Devices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Device, len(m.devices))
	copy(out, m.devices)
	return out
}

// DeviceByUUID looks up a device, also matching on Name for convenience
// (HTTP paths address devices by either).
func (m *Model) DeviceByUUID(idOrName string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if dev, ok := m.devByUUID[idOrName]; ok {
		return dev, true
	}
	for _, dev := range m.devices {
		if dev.Name == idOrName {
			return dev, true
		}
	}
	return nil, false
}

// DataItemByID resolves an opaque id to its DataItem. An id resolves to at
// most one DataItem across all devices (spec.md §3 invariant).
func (m *Model) DataItemByID(id string) (*DataItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	di, ok := m.itemsByID[id]
	return di, ok
}

// DataItemByAlias resolves a name or source alias. Not guaranteed unique;
// returns the first registration that claimed the alias.
func (m *Model) DataItemByAlias(alias string) (*DataItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	di, ok := m.itemsByAlias[alias]
	return di, ok
}

// AllDataItemIDs returns every registered data-item id, optionally scoped
// to a single device. Used by the HTTP layer to build a default (path-less)
// filter set.
func (m *Model) AllDataItemIDs(dev *Device) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	if dev != nil {
		walkComponents(dev.Component, func(c *Component) {
			for _, di := range c.DataItems {
				ids = append(ids, di.ID)
			}
		})
		return ids
	}
	for id := range m.itemsByID {
		ids = append(ids, id)
	}
	return ids
}
