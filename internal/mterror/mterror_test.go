package mterror

import (
	"fmt"
	"testing"
)

func TestError_Message(t *testing.T) {
	err := New(NoDevice, "no device named foo")
	if err.Error() != "NO_DEVICE: no device named foo" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNewf_FormatsDetail(t *testing.T) {
	err := Newf(InvalidXPath, "unresolvable token %q", "bar")
	if err.Detail != `unresolvable token "bar"` {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Code != InvalidXPath {
		t.Errorf("Code = %q, want %q", err.Code, InvalidXPath)
	}
}

func TestAs_RecognizesTypedError(t *testing.T) {
	var err error = New(OutOfRange, "start before firstSeq")
	me, ok := As(err)
	if !ok {
		t.Fatal("expected As to recognize a *Error")
	}
	if me.Code != OutOfRange {
		t.Errorf("Code = %q, want %q", me.Code, OutOfRange)
	}
}

func TestAs_RejectsPlainError(t *testing.T) {
	err := fmt.Errorf("plain error")
	if _, ok := As(err); ok {
		t.Error("As should not recognize a plain error")
	}
}
