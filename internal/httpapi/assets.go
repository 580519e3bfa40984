package httpapi

import (
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtconnect-org/agent/internal/asset"
	"github.com/mtconnect-org/agent/internal/model"
	"github.com/mtconnect-org/agent/internal/mterror"
	"github.com/mtconnect-org/agent/internal/observation"
	"github.com/mtconnect-org/agent/internal/printer"
)

type assetDoc struct {
	XMLName xml.Name    `xml:"MTConnectAssets" json:"-"`
	Assets  []assetItem `xml:"Assets>Asset" json:"assets"`
}

type assetItem struct {
	AssetID    string `xml:"assetId,attr" json:"assetId"`
	Type       string `xml:"type,attr" json:"type"`
	DeviceUUID string `xml:"deviceUuid,attr" json:"deviceUuid"`
	Timestamp  string `xml:"timestamp,attr" json:"timestamp"`
	Removed    bool   `xml:"removed,attr" json:"removed"`
	Body       string `xml:",chardata" json:"body"`
}

// handleAssets serves /assets and /<device>/assets: a list of assets
// filtered by type/removed/count (spec.md §4.7).
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request, _, _ string) {
	f := formatFor(r)
	typ := r.URL.Query().Get("type")
	includeRemoved := r.URL.Query().Get("removed") == "true"
	count, mErr := parseIntParam(r, "count", 100)
	if mErr != nil {
		s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
		return
	}

	list := s.Assets.List(typ, includeRemoved, count)
	doc := assetDoc{Assets: make([]assetItem, len(list))}
	for i, a := range list {
		doc.Assets[i] = toAssetItem(a)
	}
	s.writeAssetDoc(w, f, doc)
}

// handleAssetFetch serves /asset/<id>[,<id>...], plus the secondary-index
// form /asset?key=<index>&value=<value> (spec.md §3's CuttingTool
// `Location` -> slot-number example), which resolves through the asset
// store's key index before fetching.
func (s *Server) handleAssetFetch(w http.ResponseWriter, r *http.Request, idsParam string) {
	f := formatFor(r)
	if idsParam == "" {
		key := r.URL.Query().Get("key")
		value := r.URL.Query().Get("value")
		if key == "" || value == "" {
			s.writeError(w, f, mterror.InvalidRequest, "asset lookup requires an id, or key and value", http.StatusOK)
			return
		}
		id, ok := s.Assets.ByKey(key, value)
		if !ok {
			s.writeError(w, f, mterror.AssetNotFound, "no asset indexed by "+key+"="+value, http.StatusOK)
			return
		}
		idsParam = id
	}
	ids := strings.Split(idsParam, ",")
	doc := assetDoc{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		a, ok := s.Assets.Get(id)
		if !ok {
			s.writeError(w, f, mterror.AssetNotFound, "no asset with id "+id, http.StatusOK)
			return
		}
		doc.Assets = append(doc.Assets, toAssetItem(a))
	}
	s.writeAssetDoc(w, f, doc)
}

func toAssetItem(a *asset.Asset) assetItem {
	return assetItem{
		AssetID:    a.ID,
		Type:       a.Type,
		DeviceUUID: a.DeviceUUID,
		Timestamp:  a.Timestamp.UTC().Format(time.RFC3339Nano),
		Removed:    a.Removed,
		Body:       a.Body,
	}
}

func (s *Server) writeAssetDoc(w http.ResponseWriter, f printer.Format, doc assetDoc) {
	var body []byte
	var err error
	if f == printer.JSON {
		body, err = printer.MarshalJSON(doc)
	} else {
		body, err = xml.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		s.writeError(w, f, mterror.InternalError, err.Error(), http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Write(body)
}

// handlePut dispatches PUT /<device> (inject observations/commands) and
// PUT /asset/<id> (store an asset), gated by AllowPut + the source-IP
// allow-list (spec.md §4.7, §6's AllowPut/AllowPutFrom surface).
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, segments []string) {
	f := formatFor(r)
	if !s.AllowPut {
		s.writeError(w, f, mterror.Unsupported, "PUT is disabled", http.StatusOK)
		return
	}
	if !s.sourceAllowed(r) {
		s.writeError(w, f, mterror.Unsupported, "source address is not permitted to PUT", http.StatusOK)
		return
	}

	if len(segments) >= 2 && segments[0] == "asset" {
		s.handleAssetPut(w, r, segments[1])
		return
	}
	if len(segments) >= 1 {
		s.handleDevicePut(w, r, segments[0])
		return
	}
	s.writeError(w, f, mterror.InvalidRequest, "PUT target not recognized", http.StatusOK)
}

func (s *Server) sourceAllowed(r *http.Request) bool {
	if len(s.AllowPutFrom) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	for _, allowed := range s.AllowPutFrom {
		if allowed == host {
			return true
		}
	}
	return false
}

// handleDevicePut injects PUT body key=value pairs (form-encoded) as
// observations against the named device, the HTTP analogue of an SHDR
// scalar frame (spec.md §4.7).
func (s *Server) handleDevicePut(w http.ResponseWriter, r *http.Request, deviceName string) {
	f := formatFor(r)
	dev, mErr := s.resolveDevice(deviceName)
	if mErr != nil {
		s.writeError(w, f, mErr.Code, mErr.Detail, http.StatusOK)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, f, mterror.InvalidRequest, "could not parse form body", http.StatusOK)
		return
	}

	now := time.Now()
	for key, values := range r.Form {
		if len(values) == 0 {
			continue
		}
		di, ok := s.Model.DataItemByAlias(key)
		if !ok {
			di, ok = s.Model.DataItemByID(key)
		}
		if !ok {
			continue
		}
		if dev != nil && di.Device != dev {
			continue
		}
		s.Injector.Append(di, valueFor(di, values[len(values)-1]), now)
	}
	w.WriteHeader(http.StatusOK)
}

func valueFor(di *model.DataItem, raw string) observation.Value {
	if raw == observation.Unavailable {
		return observation.UnavailableValue()
	}
	if di.IsSample() {
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return observation.NumberValue(n)
		}
		return observation.UnavailableValue()
	}
	return observation.StringValue(raw)
}

// handleAssetPut stores the request body as an asset (spec.md §4.7
// `PUT /asset/<id>`).
func (s *Server) handleAssetPut(w http.ResponseWriter, r *http.Request, id string) {
	f := formatFor(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, f, mterror.InvalidRequest, "could not read request body", http.StatusOK)
		return
	}
	typ := r.URL.Query().Get("type")
	deviceUUID := r.URL.Query().Get("device")
	if id == "" {
		id = uuid.NewString()
	}
	s.Assets.Add(deviceUUID, id, typ, string(body), nil, time.Now())
	w.WriteHeader(http.StatusOK)
}
