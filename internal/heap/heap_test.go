package heap

import (
	"bytes"
	"testing"

	"github.com/h5coro-go/h5coro/internal/binary"
)

// TestLocalHeapGetString tests the LocalHeap.GetString method
func TestLocalHeapGetString(t *testing.T) {
	// Create a local heap with known data
	heap := &LocalHeap{
		DataSize:    20,
		FreeOffset:  20,
		DataAddress: 0,
		data:        []byte("hello\x00world\x00test\x00\x00\x00"),
	}

	tests := []struct {
		name   string
		offset uint64
		want   string
	}{
		{"first string", 0, "hello"},
		{"second string", 6, "world"},
		{"third string", 12, "test"},
		{"empty at end", 17, ""},
		{"out of bounds", 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := heap.GetString(tt.offset)
			if got != tt.want {
				t.Errorf("GetString(%d) = %q, want %q", tt.offset, got, tt.want)
			}
		})
	}
}

func TestLocalHeapGetStringEmpty(t *testing.T) {
	heap := &LocalHeap{
		data: []byte{},
	}

	got := heap.GetString(0)
	if got != "" {
		t.Errorf("expected empty string for empty heap, got %q", got)
	}
}

func TestLocalHeapGetStringNoNullTerminator(t *testing.T) {
	// String that fills entire buffer without null terminator
	heap := &LocalHeap{
		data: []byte("noterm"),
	}

	got := heap.GetString(0)
	if got != "noterm" {
		t.Errorf("expected 'noterm', got %q", got)
	}
}

func TestReadLocalHeapInvalidSignature(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	buf.WriteString("XXXX") // Invalid signature

	r := binary.NewReader(bytes.NewReader(buf.Bytes()), binary.Config{
		OffsetSize: 8,
		LengthSize: 8,
	})

	_, err := ReadLocalHeap(r, 0)
	if err == nil {
		t.Error("expected error for invalid signature")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("invalid local heap signature")) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReadLocalHeapUnsupportedVersion(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	buf.WriteString("HEAP") // Valid signature
	buf.WriteByte(5)        // Unsupported version (not 0)

	r := binary.NewReader(bytes.NewReader(buf.Bytes()), binary.Config{
		OffsetSize: 8,
		LengthSize: 8,
	})

	_, err := ReadLocalHeap(r, 0)
	if err == nil {
		t.Error("expected error for unsupported version")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("unsupported local heap version")) {
		t.Errorf("unexpected error: %v", err)
	}
}

