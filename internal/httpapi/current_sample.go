package httpapi

import (
	"net/http"
	"time"

	"github.com/mtconnect-org/agent/internal/mterror"
	"github.com/mtconnect-org/agent/internal/observation"
	"github.com/mtconnect-org/agent/internal/printer"
)

// handleCurrent serves the latest-observation document, or (when interval
// is present) switches to the streaming variant (spec.md §4.7).
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request, deviceName string) {
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

	at, hasAt, mErr := parseUintParam(r, "at")
	if mErr != nil {
		s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
		return
	}
	interval, hasInterval, mErr := parseIntParam2(r, "interval")
	if mErr != nil {
		s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
		return
	}

	if hasAt && hasInterval {
		s.writeError(w, f, mterror.InvalidRequest, "at and interval are mutually exclusive", http.StatusOK)
		return
	}

	if hasInterval {
		heartbeat, mErr := s.parseHeartbeat(r)
		if mErr != nil {
			s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
			return
		}
		s.streamCurrent(w, r, f, ids, interval, heartbeat)
		return
	}

	var obs []*observation.Observation
	if hasAt {
		_, first := s.Buffer.Snapshot()
		if at < first {
			s.writeError(w, f, mterror.OutOfRange, "requested sequence has fallen out of the buffer", http.StatusOK)
			return
		}
		obs = s.Buffer.CurrentAt(ids, at)
	} else {
		obs = s.Buffer.Latest(ids)
	}

	body, err := printer.RenderObservations(f, obs)
	if err != nil {
		s.writeError(w, f, mterror.InternalError, err.Error(), http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Write(body)
}

// handleSample serves a contiguous observation range, or (when interval is
// present) the streaming variant.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request, deviceName string) {
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

	start, hasStart, mErr := parseUintParam(r, "from")
	if mErr != nil {
		s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
		return
	}
	if !hasStart {
		start, hasStart, mErr = parseUintParam(r, "start")
		if mErr != nil {
			s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
			return
		}
	}

	count, mErr := parseIntParam(r, "count", defaultSampleCount)
	if mErr != nil {
		s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
		return
	}
	if count <= 0 {
		s.writeError(w, f, mterror.OutOfRange, "count must be positive", http.StatusOK)
		return
	}

	_, firstSeq := s.Buffer.Snapshot()
	if !hasStart {
		start = firstSeq
	}
	if start < firstSeq {
		s.writeError(w, f, mterror.OutOfRange, "requested start has fallen out of the buffer", http.StatusOK)
		return
	}

	interval, hasInterval, mErr := parseIntParam2(r, "interval")
	if mErr != nil {
		s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
		return
	}

	if hasInterval {
		heartbeat, mErr := s.parseHeartbeat(r)
		if mErr != nil {
			s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
			return
		}
		s.streamSample(w, r, f, ids, start, count, interval, heartbeat)
		return
	}

	obs, _, _ := s.Buffer.Range(ids, start, count)
	body, err := printer.RenderObservations(f, obs)
	if err != nil {
		s.writeError(w, f, mterror.InternalError, err.Error(), http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Write(body)
}

// parseHeartbeat validates the heartbeat query parameter against spec.md
// §4.7's documented bounds [10, 600000] ms, defaulting to 10000.
func (s *Server) parseHeartbeat(r *http.Request) (time.Duration, *mterror.Error) {
	ms, mErr := parseIntParam(r, "heartbeat", defaultHeartbeatMillis)
	if mErr != nil {
		return 0, mErr
	}
	if ms < minHeartbeatMillis || ms > maxHeartbeatMillis {
		return 0, mterror.Newf(mterror.OutOfRange, "heartbeat %dms out of range [%d,%d]", ms, minHeartbeatMillis, maxHeartbeatMillis)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// parseIntParam2 distinguishes "absent" from "present", used for the
// at/interval mutual-exclusion check.
func parseIntParam2(r *http.Request, name string) (int, bool, *mterror.Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	n, mErr := parseIntParam(r, name, 0)
	if mErr != nil {
		return 0, true, mErr
	}
	if n <= 0 {
		return 0, true, mterror.Newf(mterror.OutOfRange, "%s must be positive", name)
	}
	return n, true, nil
}
