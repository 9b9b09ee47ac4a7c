package packethandler

import (
	"bytes"
	"testing"
)

func TestEncodeFramesWholePacketWhenItFits(t *testing.T) {
	h := NewFixedHeaderHandler()
	encoded, residue := h.Encode([]byte("hello"), 100)

	if residue != nil {
		t.Fatalf("residue = %v, want nil", residue)
	}
	if len(encoded) != fixedHeaderLen+5 {
		t.Fatalf("len(encoded) = %d, want %d", len(encoded), fixedHeaderLen+5)
	}
}

func TestEncodeFragmentsWhenItDoesNotFit(t *testing.T) {
	h := NewFixedHeaderHandler()
	encoded, residue := h.Encode([]byte("hello world"), fixedHeaderLen+5)

	if len(residue) != len("hello world")-5 {
		t.Fatalf("len(residue) = %d, want %d", len(residue), len("hello world")-5)
	}
	if len(encoded) != fixedHeaderLen+5 {
		t.Fatalf("len(encoded) = %d, want %d", len(encoded), fixedHeaderLen+5)
	}
}

func TestEncodeReturnsNoEncodedBytesWhenBudgetTooSmallForHeader(t *testing.T) {
	h := NewFixedHeaderHandler()
	encoded, residue := h.Encode([]byte("hello"), fixedHeaderLen-1)

	if encoded != nil {
		t.Fatalf("encoded = %v, want nil", encoded)
	}
	if string(residue) != "hello" {
		t.Fatalf("residue = %q, want the whole packet returned unfit", residue)
	}
}

func TestDecodeRecoversBackToBackFrames(t *testing.T) {
	h := NewFixedHeaderHandler()
	f1, _ := h.Encode([]byte("abc"), 100)
	f2, _ := h.Encode([]byte("defgh"), 100)

	decoded := h.Decode(append(append([]byte{}, f1...), f2...))
	if len(decoded) != 2 || string(decoded[0]) != "abc" || string(decoded[1]) != "defgh" {
		t.Fatalf("decoded = %v, want [abc defgh]", decoded)
	}
}

func TestDecodeStopsOnATruncatedTrailingFrame(t *testing.T) {
	h := NewFixedHeaderHandler()
	full, _ := h.Encode([]byte("abcdef"), 100)
	truncated := full[:len(full)-2]

	decoded := h.Decode(truncated)
	if len(decoded) != 0 {
		t.Fatalf("decoded = %v, want none (incomplete trailing frame discarded)", decoded)
	}
}

func TestGetSrcReadsTheEmbeddedTalID(t *testing.T) {
	h := NewFixedHeaderHandler()
	payload := []byte{0x00, 0x0A, 'x'} // tal_id 10, followed by one data byte
	talID, err := h.GetSrc(payload)
	if err != nil {
		t.Fatalf("GetSrc: %v", err)
	}
	if talID != 10 {
		t.Fatalf("GetSrc() = %d, want 10", talID)
	}
}

func TestGetSrcRejectsShortPayload(t *testing.T) {
	h := NewFixedHeaderHandler()
	if _, err := h.GetSrc([]byte{0x01}); err == nil {
		t.Fatalf("expected a 1-byte payload to be rejected")
	}
}

func TestGetCniExtensionIsUnsupported(t *testing.T) {
	h := NewFixedHeaderHandler()
	_, ok := h.GetCniExtension([]byte("anything"))
	if ok {
		t.Fatalf("GetCniExtension() ok = true, want false")
	}
}

func TestRoundTripThroughEncodeDecode(t *testing.T) {
	h := NewFixedHeaderHandler()
	original := []byte("round trip payload")

	var buf bytes.Buffer
	remaining := original
	for len(remaining) > 0 {
		encoded, residue := h.Encode(remaining, fixedHeaderLen+4)
		buf.Write(encoded)
		remaining = residue
	}

	decoded := h.Decode(buf.Bytes())
	var reassembled []byte
	for _, chunk := range decoded {
		reassembled = append(reassembled, chunk...)
	}
	if string(reassembled) != string(original) {
		t.Fatalf("reassembled = %q, want %q", reassembled, original)
	}
}
