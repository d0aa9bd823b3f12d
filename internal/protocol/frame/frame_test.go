package frame

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	in := NewEnvelope("addon", "ext.one", []byte(`{"hello":"world"}`))
	raw, err := Encode(in, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(raw, DefaultLimits())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.PackageID != "addon" || out.ClientID != "ext.one" || out.PackageSize != len(in.PackageData) {
		t.Fatalf("envelope mismatch: got=%+v", out)
	}
	if !bytes.Equal(out.PackageData, in.PackageData) {
		t.Fatalf("payload mismatch")
	}
}

func TestEnvelopeWireFieldNames(t *testing.T) {
	raw, err := Encode(NewEnvelope("command", "AS:SERVER", []byte{1, 2}), DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"PackageId":"command","ClientId":"AS:SERVER","PackageSize":2,"PackageData":"AQI="}`
	if string(raw) != want {
		t.Fatalf("unexpected wire form:\n got=%s\nwant=%s", raw, want)
	}
}

func TestDecodeRejectsSizeMismatch(t *testing.T) {
	raw := []byte(`{"PackageId":"command","ClientId":"AS:SERVER","PackageSize":5,"PackageData":"AQI="}`)
	if _, err := Decode(raw, DefaultLimits()); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestDecodeMinimalEnvelope(t *testing.T) {
	raw := []byte(`{"PackageId":"4"}`)
	if len(raw) != 17 {
		t.Fatalf("fixture length changed: %d", len(raw))
	}
	env, err := Decode(raw, DefaultLimits())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.PackageID != "4" || env.PackageSize != 0 || len(env.PackageData) != 0 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestDecodeRejectsMissingPackageID(t *testing.T) {
	if _, err := Decode([]byte(`{"ClientId":"x"}`), DefaultLimits()); !errors.Is(err, ErrMissingPackageID) {
		t.Fatalf("expected ErrMissingPackageID, got %v", err)
	}
}

func TestEncodeRespectsLimits(t *testing.T) {
	env := NewEnvelope("addon", "ext.one", bytes.Repeat([]byte("a"), 64))
	if _, err := Encode(env, Limits{MaxPayloadBytes: 32}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadPayloadExact(t *testing.T) {
	buf, n, err := ReadPayload(bytes.NewReader([]byte("0123456789rest")), 10, DefaultLimits())
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if n != 10 || string(buf) != "0123456789" {
		t.Fatalf("unexpected payload n=%d buf=%q", n, buf)
	}
}

func TestReadPayloadShort(t *testing.T) {
	buf, n, err := ReadPayload(bytes.NewReader([]byte("0123")), 10, DefaultLimits())
	if !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
	if n != 4 || string(buf) != "0123" {
		t.Fatalf("unexpected partial n=%d buf=%q", n, buf)
	}
}

func TestReadPayloadDeadline(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()
	if _, err := w.Write([]byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Skipf("read deadline unsupported: %v", err)
	}
	_, n, err := ReadPayload(r, 10, DefaultLimits())
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if n != 3 {
		t.Fatalf("unexpected partial count: %d", n)
	}
}

func TestReadPayloadRejectsOversized(t *testing.T) {
	if _, _, err := ReadPayload(bytes.NewReader(nil), 64, Limits{MaxPayloadBytes: 8}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
