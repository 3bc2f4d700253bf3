package wire

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := &Request{Kind: LoadPath, BackendID: "nvram0", Path: "/data/a", Size: 1024}
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if *got != *req {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	id := uint32(42)
	resp := &Response{Type: Accepted, TaskID: &id, Status: "success"}
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if got.Type != resp.Type || *got.TaskID != *resp.TaskID || got.Status != resp.Status {
		t.Fatalf("got %+v, want %+v", got, resp)
	}
}

func TestReadRequestRejectsOversizedMessage(t *testing.T) {
	var buf bytes.Buffer
	hdr := make([]byte, lengthPrefix)
	for i := range hdr {
		hdr[i] = 0xFF
	}
	buf.Write(hdr)
	if _, err := ReadRequest(&buf); err == nil {
		t.Fatalf("expected error for oversized message")
	}
}
