package adapter

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mtconnect-org/agent/internal/model"
	"github.com/mtconnect-org/agent/internal/observation"
	"github.com/mtconnect-org/agent/internal/units"
)

// Sink is the narrow slice of the agent a connector writes into. Kept as
// an interface (rather than importing internal/buffer/internal/asset
// directly) so the connector can be tested against a fake.
type Sink interface {
	Append(di *model.DataItem, value observation.Value, timestamp time.Time) uint64
	AddAsset(deviceUUID, id, typ, body string, keys map[string]string, t time.Time)
	UpdateAsset(deviceUUID, id string, fields map[string]string, t time.Time)
	RemoveAsset(deviceUUID, id string, t time.Time)
	RemoveAllAssets(deviceUUID, typ string, t time.Time)
}

// ModelLookup resolves data items and devices by the keys SHDR frames use.
type ModelLookup interface {
	DataItemByAlias(alias string) (*model.DataItem, bool)
	DataItemByID(id string) (*model.DataItem, bool)
	DeviceByUUID(idOrName string) (*model.Device, bool)
}

// state is the connector's connection-state machine (spec.md §4.5).
type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
)

// dedupEntry tracks the last accepted scalar per data item for the
// suppression rules of spec.md §4.5.
type dedupEntry struct {
	value     string
	timestamp time.Time
	hasValue  bool
}

// Connector runs one adapter's TCP connection for the lifetime of the
// agent, reconnecting on failure.
type Connector struct {
	cfg    Config
	model  ModelLookup
	sink   Sink
	logger *slog.Logger

	onConnected    func(devices []string)
	onDisconnected func(devices []string)

	mu            sync.Mutex
	st            state
	heartbeats    bool
	heartbeatFreq time.Duration
	lastSent      time.Time
	lastHeard     time.Time
	relativeBase  time.Time
	hasRelBase    bool
	dedup         map[string]*dedupEntry
	calibration   map[string]units.Factor
	currentUUID   string // overridable via `* uuid:` unless PreserveUUID
	currentDevice string

	// multiline holds in-progress `--multiline--TAG` asset body accumulation
	// (spec.md §4.5's asset-upsert grammar second form).
	multiline *multilineAsset
}

// multilineAsset accumulates body lines between an asset-upsert opener and
// its exact byte-for-byte terminator echo.
type multilineAsset struct {
	tag        string
	deviceUUID string
	assetID    string
	assetType  string
	timestamp  time.Time
	lines      []string
}

// New returns a Connector for one adapter entry, ready to Run.
func New(cfg Config, m ModelLookup, sink Sink, logger *slog.Logger, onConnected, onDisconnected func(devices []string)) *Connector {
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.LegacyTimeout == 0 {
		cfg.LegacyTimeout = DefaultLegacyTimeout
	}
	return &Connector{
		cfg:           cfg,
		model:         m,
		sink:          sink,
		logger:        logger.With("adapter", cfg.Name),
		onConnected:   onConnected,
		onDisconnected: onDisconnected,
		dedup:         make(map[string]*dedupEntry),
		calibration:   make(map[string]units.Factor),
		currentUUID:   cfg.Device,
		currentDevice: cfg.Device,
	}
}

// Run drives the connect/read/reconnect loop until ctx is canceled.
func (c *Connector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.setState(stateConnecting)
		addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			c.logger.Warn("connect failed", "addr", addr, "error", err)
			if !c.sleepReconnect(ctx) {
				return ctx.Err()
			}
			continue
		}

		c.handleConnection(ctx, conn)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !c.sleepReconnect(ctx) {
			return ctx.Err()
		}
	}
}

func (c *Connector) sleepReconnect(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.cfg.ReconnectInterval):
		return true
	}
}

func (c *Connector) setState(s state) {
	c.mu.Lock()
	c.st = s
	c.mu.Unlock()
}

func (c *Connector) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	c.mu.Lock()
	c.heartbeats = false
	c.heartbeatFreq = 0
	c.hasRelBase = false
	c.st = stateConnected
	now := time.Now()
	c.lastSent = now
	c.lastHeard = now
	c.mu.Unlock()

	if _, err := conn.Write([]byte("* PING\n")); err != nil {
		c.logger.Warn("could not write initial PING", "error", err)
		return
	}

	c.fireConnected()
	defer c.fireDisconnected()

	readDeadline := c.cfg.LegacyTimeout

	reader := bufio.NewReader(conn)
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case lines <- strings.TrimRight(line, "\r\n"):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	heartbeatTick := time.NewTicker(1 * time.Second)
	defer heartbeatTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			c.logger.Info("adapter connection closed", "error", err)
			return
		case line := <-lines:
			c.mu.Lock()
			c.lastHeard = time.Now()
			c.mu.Unlock()
			c.handleLine(line, conn)
		case <-heartbeatTick.C:
			if !c.checkHeartbeat(conn, readDeadline) {
				return
			}
		}
	}
}

// checkHeartbeat applies spec.md §4.5's heartbeat/legacy-timeout rules.
// Returns false if the connection should be torn down.
func (c *Connector) checkHeartbeat(conn net.Conn, legacyTimeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.heartbeats {
		if now.Sub(c.lastHeard) > 2*c.heartbeatFreq {
			c.logger.Error("did not receive heartbeat in time", "frequency", c.heartbeatFreq)
			return false
		}
		if now.Sub(c.lastSent) >= c.heartbeatFreq {
			if _, err := conn.Write([]byte("* PING\n")); err != nil {
				c.logger.Error("could not write heartbeat", "error", err)
				return false
			}
			c.lastSent = now
		}
		return true
	}

	if now.Sub(c.lastHeard) >= legacyTimeout {
		c.logger.Warn("legacy timeout elapsed, closing idle connection")
		return false
	}
	return true
}

func (c *Connector) fireConnected() {
	devices := c.fanoutDevices()
	if c.cfg.AutoAvailable && c.onConnected != nil {
		c.onConnected(devices)
	}
}

func (c *Connector) fireDisconnected() {
	devices := c.fanoutDevices()
	if c.onDisconnected != nil {
		c.onDisconnected(devices)
	}
}

func (c *Connector) fanoutDevices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	devs := []string{c.currentDevice}
	devs = append(devs, c.cfg.AdditionalDevices...)
	return devs
}

// handleLine dispatches one framed line: protocol command (leading '*',
// but not a heartbeat reply) or a data frame.
func (c *Connector) handleLine(line string, conn net.Conn) {
	if line == "" {
		return
	}

	if strings.HasPrefix(line, "*") {
		if strings.HasPrefix(line, "* PONG") {
			c.handlePong(line)
			return
		}
		c.handleProtocolCommand(line, conn)
		return
	}

	c.handleDataFrame(line)
}

func (c *Connector) handlePong(line string) {
	arg := strings.TrimSpace(strings.TrimPrefix(line, "* PONG"))
	freqMs, err := strconv.Atoi(arg)
	if err != nil || freqMs <= 0 {
		c.logger.Error("bad heartbeat frequency in PONG", "line", line)
		return
	}
	freq := time.Duration(freqMs) * time.Millisecond
	if freq > MaxHeartbeat {
		freq = MaxHeartbeat
	}
	c.mu.Lock()
	if !c.heartbeats {
		c.heartbeats = true
		c.heartbeatFreq = freq
		c.logger.Debug("heartbeats started", "frequency", freq)
	}
	c.mu.Unlock()
}

func (c *Connector) handleProtocolCommand(line string, conn net.Conn) {
	body := strings.TrimSpace(strings.TrimPrefix(line, "*"))
	if strings.EqualFold(body, "PROBE") {
		// Probe-document response over the adapter socket is out of scope
		// for the core connector (the HTTP printer owns document
		// rendering); acknowledge only.
		c.logger.Debug("received PROBE command")
		return
	}

	colon := strings.Index(body, ":")
	if colon < 0 {
		c.logger.Info("unknown protocol command", "command", body)
		return
	}
	key := strings.TrimSpace(body[:colon])
	value := strings.TrimSpace(body[colon+1:])

	switch strings.ToLower(key) {
	case "uuid":
		c.mu.Lock()
		if !c.cfg.PreserveUUID {
			c.currentUUID = value
		}
		c.mu.Unlock()
	case "device":
		c.mu.Lock()
		c.currentDevice = value
		c.mu.Unlock()
	case "relativetime":
		c.mu.Lock()
		c.cfg.RelativeTime = strings.EqualFold(value, "true") || strings.EqualFold(value, "yes")
		c.hasRelBase = false
		c.mu.Unlock()
	case "conversionrequired":
		c.mu.Lock()
		c.cfg.ConversionRequired = strings.EqualFold(value, "true") || strings.EqualFold(value, "yes")
		c.mu.Unlock()
	case "realtime":
		// Accepted, not modeled further — no behavior in this agent
		// distinguishes real-time delivery.
	case "calibration":
		c.applyCalibration(value)
	case "manufacturer", "station", "serialnumber", "description", "nativename":
		// Device metadata out of scope for the streaming core; logged for
		// operational visibility only.
		c.logger.Debug("device metadata command", "key", key, "value", value)
	default:
		c.logger.Info("unknown protocol command", "command", key)
	}
}

// applyCalibration parses `* calibration: name|factor|offset[|...]*`
// (spec.md §13.1 supplemented feature) into per-key override factors
// consulted before the static unit table.
func (c *Connector) applyCalibration(value string) {
	parts := strings.Split(value, "|")
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i+2 < len(parts); i += 3 {
		name := strings.TrimSpace(parts[i])
		factor, err1 := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		offset, err2 := strconv.ParseFloat(strings.TrimSpace(parts[i+2]), 64)
		if name == "" || err1 != nil || err2 != nil {
			c.logger.Error("bad calibration triple", "value", value)
			continue
		}
		c.calibration[name] = units.Factor{Scale: factor, Offset: offset, Required: true}
	}
}

// resolveItem resolves a SHDR key of the form "device:item" or a bare item
// key by alias, then id, across the whole model. A device prefix naming a
// known device does not restrict the lookup to that device, and a bare key
// is not resolved against the connector's primary device.
func (c *Connector) resolveItem(key string) (*model.DataItem, bool) {
	devicePart := ""
	itemKey := key
	if idx := strings.Index(key, ":"); idx >= 0 {
		devicePart = key[:idx]
		itemKey = key[idx+1:]
	}

	if devicePart != "" {
		if _, ok := c.model.DeviceByUUID(devicePart); ok {
			if di, ok := c.model.DataItemByAlias(itemKey); ok {
				return di, true
			}
			if di, ok := c.model.DataItemByID(itemKey); ok {
				return di, true
			}
		}
	}

	if di, ok := c.model.DataItemByAlias(itemKey); ok {
		return di, true
	}
	return c.model.DataItemByID(itemKey)
}

// parseTimestamp resolves TIME per the mode rules of spec.md §4.5.
func (c *Connector) parseTimestamp(raw string) time.Time {
	if c.cfg.IgnoreTimestamps {
		return time.Now()
	}
	if c.cfg.RelativeTime {
		return c.resolveRelative(raw)
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	return time.Now()
}

func (c *Connector) resolveRelative(raw string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasRelBase {
		c.relativeBase = time.Now()
		c.hasRelBase = true
		return c.relativeBase
	}

	if ms, err := strconv.ParseFloat(raw, 64); err == nil {
		return c.relativeBase.Add(time.Duration(ms * float64(time.Millisecond)))
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	return time.Now()
}

// convert applies unit conversion to a scalar reading if the data item's
// nativeUnits differ from units, preferring a calibration override when one
// was set for this key (spec.md §13.1).
func (c *Connector) convert(di *model.DataItem, key string, x float64) float64 {
	if !c.cfg.ConversionRequired && di.Units == "" {
		return x
	}
	if di.Units == "" || di.Units == di.NativeUnits {
		return x
	}
	c.mu.Lock()
	f, ok := c.calibration[key]
	c.mu.Unlock()
	if !ok {
		f = units.Compute(di.NativeUnits, di.Units, di.HasNativeScale, di.NativeScale)
	}
	if !f.Required {
		return x
	}
	return f.Apply(x)
}

// acceptsDedup implements the dedup/suppression rules of spec.md §4.5.
func (c *Connector) acceptsDedup(di *model.DataItem, key, value string, t time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.dedup[key]
	if !ok {
		prev = &dedupEntry{}
		c.dedup[key] = prev
	}

	if di.Filters.HasMinimumPeriod && prev.hasValue {
		if t.Sub(prev.timestamp).Seconds() < di.Filters.MinimumPeriod {
			return false
		}
	}

	if di.Filters.HasMinimumDelta && prev.hasValue {
		prevN, err1 := strconv.ParseFloat(prev.value, 64)
		curN, err2 := strconv.ParseFloat(value, 64)
		if err1 == nil && err2 == nil {
			delta := curN - prevN
			if delta < 0 {
				delta = -delta
			}
			if delta < di.Filters.MinimumDelta {
				return false
			}
		}
	}

	if !di.IsTimeSeries() && !di.IsCondition() && !di.IsDiscrete() && c.cfg.FilterDuplicates {
		if prev.hasValue && prev.value == value {
			return false
		}
	}

	prev.value = value
	prev.timestamp = t
	prev.hasValue = true
	return true
}

// applyCaseFolding upper-cases string values before dedup comparison and
// storage when the adapter's UpcaseDataItemValue flag is set (spec.md §13.3).
func (c *Connector) applyCaseFolding(s string) string {
	if c.cfg.UpcaseDataItemValue {
		return strings.ToUpper(s)
	}
	return s
}

