package download

import (
	"bytes"
	"testing"

	"github.com/hayate-dl/hayate/internal/utils"
)

func TestMetadataMarkDone(t *testing.T) {
	m := NewMetadata(3)
	for i := uint32(0); i < 3; i++ {
		if m.Done(i) {
			t.Errorf("fresh metadata reports chunk %d done", i)
		}
	}
	m.MarkDone(1)
	if !m.Done(1) {
		t.Error("chunk 1 not reported done after MarkDone")
	}
	if m.Done(0) || m.Done(2) {
		t.Error("unmarked chunks reported done")
	}
	if m.Complete() {
		t.Error("metadata complete with unmarked chunks")
	}
	m.MarkDone(0)
	m.MarkDone(2)
	if !m.Complete() {
		t.Error("metadata not complete with all chunks marked")
	}
	// Marking twice must not unset anything.
	m.MarkDone(1)
	if !m.Done(1) || !m.Complete() {
		t.Error("repeated MarkDone changed state")
	}
}

func TestMetadataDoneBytes(t *testing.T) {
	const fileSize = 10000 // 3 chunks: 4096 + 4096 + 1808
	m := NewMetadata(3)
	if got := m.DoneBytes(fileSize); got != 0 {
		t.Errorf("fresh metadata DoneBytes = %d, want 0", got)
	}
	m.MarkDone(0)
	m.MarkDone(1)
	if got := m.DoneBytes(fileSize); got != 2*utils.ChunkSize {
		t.Errorf("DoneBytes = %d, want %d", got, 2*utils.ChunkSize)
	}
	m.MarkDone(2)
	if got := m.DoneBytes(fileSize); got != fileSize {
		t.Errorf("DoneBytes = %d, want %d", got, fileSize)
	}
}

func TestMetadataDoneBytesAlignedFile(t *testing.T) {
	// Chunk-aligned file: the final chunk counts a full chunk.
	fileSize := 2 * utils.ChunkSize
	m := NewMetadata(2)
	m.MarkDone(1)
	if got := m.DoneBytes(fileSize); got != utils.ChunkSize {
		t.Errorf("DoneBytes = %d, want %d", got, utils.ChunkSize)
	}
}

func TestMetadataRoundtrip(t *testing.T) {
	m := NewMetadata(64)
	for _, i := range []uint32{0, 3, 17, 63} {
		m.MarkDone(i)
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	loaded := NewMetadata(64)
	if _, err := loaded.ReadFrom(&buf); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	for i := uint32(0); i < 64; i++ {
		want := i == 0 || i == 3 || i == 17 || i == 63
		if loaded.Done(i) != want {
			t.Errorf("chunk %d done = %v after roundtrip, want %v", i, loaded.Done(i), want)
		}
	}
}
