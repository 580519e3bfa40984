package printer

import (
	"strings"
	"testing"
	"time"

	"github.com/mtconnect-org/agent/internal/model"
	"github.com/mtconnect-org/agent/internal/mterror"
	"github.com/mtconnect-org/agent/internal/observation"
)

func TestContentType(t *testing.T) {
	if XML.ContentType() != "text/xml" {
		t.Errorf("XML.ContentType() = %q", XML.ContentType())
	}
	if JSON.ContentType() != "application/json" {
		t.Errorf("JSON.ContentType() = %q", JSON.ContentType())
	}
}

func TestRenderError_XML(t *testing.T) {
	body, err := RenderError(XML, mterror.NoDevice, "no device named foo")
	if err != nil {
		t.Fatalf("RenderError: %v", err)
	}
	s := string(body)
	if !strings.Contains(s, "NO_DEVICE") || !strings.Contains(s, "no device named foo") {
		t.Errorf("RenderError XML = %s", s)
	}
}

func TestRenderError_JSON(t *testing.T) {
	body, err := RenderError(JSON, mterror.OutOfRange, "bad start")
	if err != nil {
		t.Fatalf("RenderError: %v", err)
	}
	s := string(body)
	if !strings.Contains(s, `"code":"OUT_OF_RANGE"`) {
		t.Errorf("RenderError JSON = %s", s)
	}
}

func TestRenderObservations_NumberAndString(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := []*observation.Observation{
		{DataItem: &model.DataItem{ID: "x1"}, Sequence: 1, Timestamp: ts, Value: observation.NumberValue(3.5)},
		{DataItem: &model.DataItem{ID: "x2"}, Sequence: 2, Timestamp: ts, Value: observation.StringValue("RUNNING")},
	}
	body, err := RenderObservations(XML, obs)
	if err != nil {
		t.Fatalf("RenderObservations: %v", err)
	}
	s := string(body)
	if !strings.Contains(s, "3.5") || !strings.Contains(s, "RUNNING") {
		t.Errorf("RenderObservations XML = %s", s)
	}
}

func TestRenderObservations_Unavailable(t *testing.T) {
	obs := []*observation.Observation{
		{DataItem: &model.DataItem{ID: "x3"}, Sequence: 1, Value: observation.UnavailableValue()},
	}
	body, err := RenderObservations(JSON, obs)
	if err != nil {
		t.Fatalf("RenderObservations: %v", err)
	}
	if !strings.Contains(string(body), "UNAVAILABLE") {
		t.Errorf("expected UNAVAILABLE in output, got %s", body)
	}
}

func TestMarshalJSON(t *testing.T) {
	type doc struct {
		Name string `json:"name"`
	}
	body, err := MarshalJSON(doc{Name: "hi"})
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(body) != `{"name":"hi"}` {
		t.Errorf("MarshalJSON = %s", body)
	}
}
