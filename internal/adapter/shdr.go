package adapter

import (
	"strconv"
	"strings"
	"time"

	"github.com/mtconnect-org/agent/internal/model"
	"github.com/mtconnect-org/agent/internal/observation"
)

// handleDataFrame parses one non-protocol SHDR line and routes each
// key/value pair it contains (spec.md §4.5's grammar). A frame already
// inside a multi-line asset body is diverted to the multiline accumulator.
func (c *Connector) handleDataFrame(line string) {
	if c.multiline != nil {
		if line == c.multiline.tag {
			c.finishMultilineAsset()
			return
		}
		c.multiline.lines = append(c.multiline.lines, line)
		return
	}

	fields := strings.Split(line, "|")
	if len(fields) < 2 {
		c.logger.Info("malformed SHDR frame, skipping", "line", line)
		return
	}

	t := c.parseTimestamp(strings.TrimSpace(fields[0]))
	key := strings.TrimSpace(fields[1])

	switch {
	case key == "@ASSET@":
		c.handleAssetUpsert(fields, t)
	case key == "@UPDATE_ASSET@":
		c.handleAssetUpdate(fields, t)
	case key == "@REMOVE_ASSET@":
		c.handleAssetRemove(fields, t)
	case key == "@REMOVE_ALL_ASSETS@":
		c.handleAssetRemoveAll(fields, t)
	default:
		c.handleScalarFields(fields, t)
	}
}

// handleScalarFields walks TIME|KEY|VALUE[|KEY|VALUE]* pairs, dispatching
// each to the condition/time-series/alarm/scalar handler that the resolved
// data item's category and representation call for. A single malformed
// key/value pair is skipped without dropping the rest of the line
// (spec.md §7's error-handling rule 1).
func (c *Connector) handleScalarFields(fields []string, t time.Time) {
	rest := fields[1:]
	i := 0
	for i < len(rest) {
		key := strings.TrimSpace(rest[i])
		if key == "" {
			i++
			continue
		}

		di, ok := c.resolveItem(key)
		if !ok {
			c.logger.Info("unknown data item key, skipping frame field", "key", key)
			i++
			continue
		}

		switch {
		case di.IsCondition():
			i += c.handleCondition(di, key, rest[i:], t)
		case di.IsTimeSeries():
			i += c.handleTimeSeries(di, key, rest[i:], t)
		default:
			i += c.handleScalar(di, key, rest[i:], t)
		}
	}
}

// handleScalar consumes one KEY|VALUE pair for a sample or event and returns
// how many slice elements it consumed. There is no separate alarm form: an
// alarm-shaped EVENT is read as KEY|VALUE like any other event.
func (c *Connector) handleScalar(di *model.DataItem, key string, rest []string, t time.Time) int {
	if len(rest) < 2 {
		return len(rest)
	}
	raw := strings.TrimSpace(rest[1])

	// Strip a `value:trigger` reset-trigger suffix for dedup comparison,
	// per spec.md §4.5's suppression rule.
	dedupVal := c.applyCaseFolding(raw)
	if idx := strings.LastIndex(dedupVal, ":"); idx >= 0 && di.ResetTrigger != "" {
		dedupVal = dedupVal[:idx]
	}

	if raw == observation.Unavailable {
		if !c.acceptsDedup(di, key, observation.Unavailable, t) {
			return 2
		}
		c.sink.Append(di, observation.UnavailableValue(), t)
		return 2
	}

	if di.IsSample() {
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.logger.Info("non-numeric SAMPLE value, skipping", "key", key, "value", raw)
			return 2
		}
		if !c.acceptsDedup(di, key, strconv.FormatFloat(n, 'g', -1, 64), t) {
			return 2
		}
		n = c.convert(di, key, n)
		c.sink.Append(di, observation.NumberValue(n), t)
		return 2
	}

	// EVENT/DISCRETE: numeric count/number types pass through as numbers,
	// everything else as a string. Discrete items skip dedup entirely
	// (spec.md §3).
	folded := c.applyCaseFolding(raw)
	if !di.IsDiscrete() {
		if !c.acceptsDedup(di, key, dedupVal, t) {
			return 2
		}
	}
	if n, err := strconv.ParseFloat(folded, 64); err == nil {
		c.sink.Append(di, observation.NumberValue(n), t)
	} else {
		c.sink.Append(di, observation.StringValue(folded), t)
	}
	return 2
}

// handleCondition consumes the 6-field condition form
// KEY|LEVEL|NATIVE|NSEV|QUAL|DESC. The field after KEY is always read as
// the level; the alarm form ALARM_KEY|CODE|NATIVE|SEV|STATE|DESC is not
// mapped onto this shape.
func (c *Connector) handleCondition(di *model.DataItem, key string, rest []string, t time.Time) int {
	if len(rest) < 6 {
		return len(rest)
	}
	levelRaw := strings.TrimSpace(rest[1])
	native := strings.TrimSpace(rest[2])
	nsev := strings.TrimSpace(rest[3])
	qual := strings.TrimSpace(rest[4])
	desc := strings.TrimSpace(rest[5])

	level := observation.Level(strings.ToUpper(levelRaw))
	switch level {
	case observation.LevelNormal, observation.LevelWarning, observation.LevelFault, observation.LevelUnavailable:
	default:
		c.logger.Info("unknown condition level, skipping", "key", key, "level", levelRaw)
		return 6
	}

	dedupKey := native
	if !c.acceptsDedup(di, key+":"+dedupKey, levelRaw+"|"+native, t) {
		return 6
	}

	cond := &observation.Condition{
		Level:          level,
		NativeCode:     native,
		NativeSeverity: nsev,
		Qualifier:      qual,
		Description:    desc,
	}
	c.sink.Append(di, observation.Value{Condition: cond}, t)
	return 6
}

// handleTimeSeries consumes COUNT|RATE|v1 v2 v3 ...
func (c *Connector) handleTimeSeries(di *model.DataItem, key string, rest []string, t time.Time) int {
	if len(rest) < 4 {
		return len(rest)
	}
	count, err := strconv.Atoi(strings.TrimSpace(rest[1]))
	if err != nil {
		c.logger.Info("non-numeric TIME_SERIES count, skipping", "key", key)
		return 4
	}
	rate, rateErr := strconv.ParseFloat(strings.TrimSpace(rest[2]), 64)

	samples := strings.Fields(rest[3])
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.logger.Info("non-numeric TIME_SERIES sample, skipping frame", "key", key)
			return 4
		}
		values = append(values, c.convert(di, key, n))
	}

	ts := &observation.TimeSeries{
		SampleCount: count,
		SampleRate:  rate,
		HasRate:     rateErr == nil,
		Samples:     values,
	}
	c.sink.Append(di, observation.Value{TimeSeries: ts}, t)
	return 4
}

func (c *Connector) splitDeviceAsset(raw string) (deviceUUID, id string) {
	if idx := strings.Index(raw, ":"); idx >= 0 {
		return raw[:idx], raw[idx+1:]
	}
	c.mu.Lock()
	dev := c.currentDevice
	c.mu.Unlock()
	return dev, raw
}

// handleAssetUpsert parses the single-line and multiline-opener asset
// forms: TIME|@ASSET@|[dev:]ID|TYPE|body or ...|--multiline--TAG.
func (c *Connector) handleAssetUpsert(fields []string, t time.Time) {
	if len(fields) < 5 {
		c.logger.Info("malformed asset upsert frame, skipping")
		return
	}
	deviceUUID, id := c.splitDeviceAsset(strings.TrimSpace(fields[2]))
	typ := strings.TrimSpace(fields[3])
	body := strings.Join(fields[4:], "|")

	const multilinePrefix = "--multiline--"
	if strings.HasPrefix(strings.TrimSpace(body), multilinePrefix) {
		tag := strings.TrimSpace(body)
		c.multiline = &multilineAsset{
			tag:        tag,
			deviceUUID: deviceUUID,
			assetID:    id,
			assetType:  typ,
			timestamp:  t,
		}
		return
	}

	c.sink.AddAsset(deviceUUID, id, typ, body, nil, t)
}

func (c *Connector) finishMultilineAsset() {
	m := c.multiline
	c.multiline = nil
	body := strings.Join(m.lines, "\n")
	c.sink.AddAsset(m.deviceUUID, m.assetID, m.assetType, body, nil, m.timestamp)
}

// handleAssetUpdate parses TIME|@UPDATE_ASSET@|ID|k|v[|k|v]* (the XML
// fragment form is the same shape with fragment strings instead of plain
// values; both are stored as opaque field patches here).
func (c *Connector) handleAssetUpdate(fields []string, t time.Time) {
	if len(fields) < 4 {
		c.logger.Info("malformed asset update frame, skipping")
		return
	}
	deviceUUID, id := c.splitDeviceAsset(strings.TrimSpace(fields[2]))
	kv := fields[3:]
	patch := make(map[string]string)
	for i := 0; i+1 < len(kv); i += 2 {
		patch[strings.TrimSpace(kv[i])] = strings.TrimSpace(kv[i+1])
	}
	if len(kv) == 1 {
		patch["__body__"] = strings.TrimSpace(kv[0])
	}
	c.sink.UpdateAsset(deviceUUID, id, patch, t)
}

func (c *Connector) handleAssetRemove(fields []string, t time.Time) {
	if len(fields) < 3 {
		c.logger.Info("malformed asset remove frame, skipping")
		return
	}
	deviceUUID, id := c.splitDeviceAsset(strings.TrimSpace(fields[2]))
	c.sink.RemoveAsset(deviceUUID, id, t)
}

func (c *Connector) handleAssetRemoveAll(fields []string, t time.Time) {
	if len(fields) < 3 {
		c.logger.Info("malformed remove-all-assets frame, skipping")
		return
	}
	c.mu.Lock()
	dev := c.currentDevice
	c.mu.Unlock()
	typ := strings.TrimSpace(fields[2])
	c.sink.RemoveAllAssets(dev, typ, t)
}
