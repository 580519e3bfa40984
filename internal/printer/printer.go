// Package printer renders the device-model snapshot, observation lists,
// and error documents as XML or JSON. This is the minimal "external
// printer" role spec.md §1 and §6 describe — full MTConnect schema
// fidelity is out of scope; what's implemented is the sink the HTTP layer
// needs to produce a response body. Grounded on
// _examples/ghjramos-aistore/ais/prxs3.go's pairing of encoding/xml (XML)
// and jsoniter (JSON) from the same handler.
package printer

import (
	"encoding/xml"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/mtconnect-org/agent/internal/mterror"
	"github.com/mtconnect-org/agent/internal/observation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format selects the response body encoding.
type Format int

const (
	XML Format = iota
	JSON
)

// ContentType returns the MIME type for a Format, matching spec.md §6's
// "Content-type: text/xml (or application/json)" streaming-part rule.
func (f Format) ContentType() string {
	if f == JSON {
		return "application/json"
	}
	return "text/xml"
}

// ErrorDocument is the fixed error-document shape spec.md §6/§7 requires,
// in its JSON form. RenderError writes the XML form through errorDocXML.
type ErrorDocument struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorDocXML is <MTConnectError><Errors><Error errorCode="...">message</Error></Errors></MTConnectError>.
type errorDocXML struct {
	XMLName xml.Name      `xml:"MTConnectError"`
	Error   errorEntryXML `xml:"Errors>Error"`
}

type errorEntryXML struct {
	Code    string `xml:"errorCode,attr"`
	Message string `xml:",chardata"`
}

// RenderError serializes a client-facing error in the requested format.
func RenderError(f Format, code mterror.Code, detail string) ([]byte, error) {
	doc := ErrorDocument{Code: string(code), Message: detail}
	if f == JSON {
		return json.Marshal(doc)
	}
	return xml.MarshalIndent(errorDocXML{Error: errorEntryXML{Code: doc.Code, Message: doc.Message}}, "", "  ")
}

// observationDoc and observationEntry are the minimal streams document
// shape: one entry per observation, condition chains flattened by
// internal/checkpoint.Snapshot before reaching here.
type observationDoc struct {
	XMLName xml.Name            `xml:"Streams" json:"-"`
	Items   []observationEntry  `xml:"DataItem" json:"items"`
}

type observationEntry struct {
	DataItemID string `xml:"dataItemId,attr" json:"dataItemId"`
	Sequence   uint64 `xml:"sequence,attr" json:"sequence"`
	Timestamp  string `xml:"timestamp,attr" json:"timestamp"`
	Value      string `xml:",chardata" json:"value"`
}

func toEntry(o *observation.Observation) observationEntry {
	return observationEntry{
		DataItemID: o.DataItem.ID,
		Sequence:   o.Sequence,
		Timestamp:  o.Timestamp.UTC().Format(time.RFC3339Nano),
		Value:      valueString(o),
	}
}

func valueString(o *observation.Observation) string {
	v := o.Value
	switch {
	case v.IsUnavailable:
		return observation.Unavailable
	case v.Condition != nil:
		return string(v.Condition.Level)
	case v.TimeSeries != nil:
		return observation.Unavailable // time-series rendering is out of scope for this minimal sink
	case v.HasNumber:
		return trimFloat(v.Number)
	case v.HasString:
		return v.String
	default:
		return observation.Unavailable
	}
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// MarshalJSON exposes the package's jsoniter codec to callers that render
// their own document shapes (the asset list/fetch endpoints build their
// own XML-tagged structs and only need the matching JSON encoder).
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// RenderObservations serializes a flattened observation list as the
// Streams document body for current/sample responses.
func RenderObservations(f Format, obs []*observation.Observation) ([]byte, error) {
	doc := observationDoc{Items: make([]observationEntry, len(obs))}
	for i, o := range obs {
		doc.Items[i] = toEntry(o)
	}
	if f == JSON {
		return json.Marshal(doc)
	}
	return xml.MarshalIndent(doc, "", "  ")
}
