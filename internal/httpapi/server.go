// Package httpapi implements the HTTP service (C8): probe/current/sample/
// asset/PUT endpoints, query-parameter validation, and the long-poll
// streamer of spec.md §4.7-§4.8. Grounded on
// _examples/ghjramos-aistore/ais/prxs3.go's manual-path-parsing net/http
// handler style — no router library appears anywhere in the retrieval
// pack, so routing here is a plain ServeMux plus path splitting.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mtconnect-org/agent/internal/asset"
	"github.com/mtconnect-org/agent/internal/buffer"
	"github.com/mtconnect-org/agent/internal/metrics"
	"github.com/mtconnect-org/agent/internal/model"
	"github.com/mtconnect-org/agent/internal/mterror"
	"github.com/mtconnect-org/agent/internal/notify"
	"github.com/mtconnect-org/agent/internal/observation"
	"github.com/mtconnect-org/agent/internal/printer"
)

const (
	defaultSampleCount     = 100
	defaultHeartbeatMillis = 10000
	minHeartbeatMillis     = 10
	maxHeartbeatMillis     = 600000
)

// Injector is the narrow append interface a PUT request drives (satisfied by
// *agent.Agent and *buffer.Buffer): injecting an observation value directly, bypassing the SHDR wire
// protocol (spec.md §4.7's `PUT /<device>`).
type Injector interface {
	Append(di *model.DataItem, value observation.Value, timestamp time.Time) uint64
}

// Server implements the HTTP surface over a shared Model/Buffer/Notifier/
// Assets. It holds no state of its own beyond the allow-list — the static
// file cache spec.md §5 mentions is out of scope per §1's "file-serving
// for static schema documents" exclusion.
type Server struct {
	Model    *model.Model
	Buffer   *buffer.Buffer
	Notifier *notify.Notifier
	Assets   *asset.Store
	Injector Injector
	Metrics  *metrics.Metrics

	AllowPut     bool
	AllowPutFrom []string

	Logger *slog.Logger
}

// Handler builds the net/http handler for the whole surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.route)
	return mux
}

// statusRecorder captures the status code for the HTTPRequests metric
// without changing response body semantics for the streaming handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	w = rec
	defer func() {
		if rec2 := recover(); rec2 != nil {
			s.Logger.Error("panic handling request", "path", r.URL.Path, "recovered", rec2)
			s.writeError(w, formatFor(r), mterror.ServerException, "internal error", http.StatusOK)
		}
		if s.Metrics != nil {
			s.Metrics.HTTPRequests.WithLabelValues(r.URL.Path, statusClass(rec.status)).Inc()
		}
	}()

	path := strings.Trim(r.URL.Path, "/")
	segments := []string{}
	if path != "" {
		segments = strings.Split(path, "/")
	}

	if r.Method == http.MethodPut || r.Method == http.MethodPost {
		s.handlePut(w, r, segments)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, formatFor(r), mterror.InvalidRequest, "method not allowed", http.StatusOK)
		return
	}

	switch {
	case len(segments) >= 1 && segments[len(segments)-1] == "assets":
		s.handleAssets(w, r, "", "")
	case len(segments) >= 2 && segments[0] == "asset":
		s.handleAssetFetch(w, r, segments[1])
	case len(segments) == 1 && segments[0] == "asset":
		s.handleAssetFetch(w, r, "")
	case len(segments) >= 1 && segments[0] == "assets" && len(segments) == 1:
		s.handleAssets(w, r, "", "")
	case hasSuffix(segments, "current"):
		s.handleCurrent(w, r, devicePrefix(segments, "current"))
	case hasSuffix(segments, "sample"):
		s.handleSample(w, r, devicePrefix(segments, "sample"))
	case hasSuffix(segments, "probe") || len(segments) <= 1:
		s.handleProbe(w, r, devicePrefix(segments, "probe"))
	default:
		// Any other multi-segment path resolves to the probe document of the
		// device named by its first segment.
		s.handleProbe(w, r, devicePrefix(segments, ""))
	}
}

func statusClass(status int) string {
	switch status / 100 {
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "other"
	}
}

func hasSuffix(segments []string, name string) bool {
	return len(segments) > 0 && segments[len(segments)-1] == name
}

func devicePrefix(segments []string, suffix string) string {
	if suffix != "" && len(segments) > 0 && segments[len(segments)-1] == suffix {
		segments = segments[:len(segments)-1]
	}
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

func formatFor(r *http.Request) printer.Format {
	if r.URL.Query().Get("format") == "json" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		return printer.JSON
	}
	return printer.XML
}

func (s *Server) writeError(w http.ResponseWriter, f printer.Format, code mterror.Code, detail string, status int) {
	body, err := printer.RenderError(f, code, detail)
	if err != nil {
		http.Error(w, detail, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.WriteHeader(status)
	w.Write(body)
}

// resolveDevice resolves an optional device path segment, returning
// (nil, nil) when none was given (meaning "every device").
func (s *Server) resolveDevice(name string) (*model.Device, *mterror.Error) {
	if name == "" {
		return nil, nil
	}
	dev, ok := s.Model.DeviceByUUID(name)
	if !ok {
		return nil, mterror.Newf(mterror.NoDevice, "no device named %q", name)
	}
	return dev, nil
}

// resolveFilter turns the "path" query parameter into a set of data-item
// ids. Full XPath evaluation is out of this system's scope (spec.md §1
// excludes device-model serialization, which owns document structure);
// what's implemented is the documented subset: a bare data-item id/name,
// or "*" / absent meaning every item the device (or, with no device,
// every device) exposes.
func (s *Server) resolveFilter(dev *model.Device, pathParam string) ([]string, *mterror.Error) {
	if pathParam == "" || pathParam == "*" {
		return s.Model.AllDataItemIDs(dev), nil
	}
	var ids []string
	for _, tok := range strings.Split(pathParam, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if di, ok := s.Model.DataItemByID(tok); ok {
			ids = append(ids, di.ID)
			continue
		}
		if di, ok := s.Model.DataItemByAlias(tok); ok {
			ids = append(ids, di.ID)
			continue
		}
		return nil, mterror.Newf(mterror.InvalidXPath, "unresolvable path token %q", tok)
	}
	return ids, nil
}

func parseUintParam(r *http.Request, name string) (uint64, bool, *mterror.Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, mterror.Newf(mterror.OutOfRange, "%s must be a non-negative integer", name)
	}
	return n, true, nil
}

func parseIntParam(r *http.Request, name string, def int) (int, *mterror.Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, mterror.Newf(mterror.OutOfRange, "%s must be an integer", name)
	}
	return n, nil
}

// handleProbe serves the device-model document. Full device-model XML/JSON
// rendering is an external-collaborator concern per spec.md §1; this
// returns the minimal observation-shaped document internal/printer
// renders (the device's current data-item ids), sufficient for a client
// driving /current or /sample from the response.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request, deviceName string) {
	f := formatFor(r)
	dev, mErr := s.resolveDevice(deviceName)
	if mErr != nil {
		s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
		return
	}
	ids, mErr := s.resolveFilter(dev, r.URL.Query().Get("path"))
	if mErr != nil {
		s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
		return
	}
	obs := s.Buffer.Latest(ids)
	body, err := printer.RenderObservations(f, obs)
	if err != nil {
		s.writeError(w, f, mterror.InternalError, err.Error(), http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Write(body)
}
