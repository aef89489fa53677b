package filetransfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wavry-io/wavry/internal/message"
)

func TestSanitizeFilenameRejectsPathTraversal(t *testing.T) {
	got, ok := SanitizeFilename("../../../../etc/passwd")
	if !ok || got != "passwd" {
		t.Fatalf("got (%q, %v), want (\"passwd\", true)", got, ok)
	}
	if _, ok := SanitizeFilename(""); ok {
		t.Fatal("empty filename should be rejected")
	}
	if _, ok := SanitizeFilename(".."); ok {
		t.Fatal("\"..\" should be rejected")
	}
}

func TestOutgoingOfferMatchesInputFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("hello wavry"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := NewOutgoingFile(path, 42, 4, DefaultMaxFileBytes)
	if err != nil {
		t.Fatalf("NewOutgoingFile: %v", err)
	}
	defer out.Close()

	offer := out.Offer()
	if offer.FileID != 42 || offer.Filename != "hello.txt" || offer.FileSize != 11 || offer.TotalChunks != 3 {
		t.Fatalf("unexpected offer: %+v", offer)
	}
	if offer.ChecksumSHA256 != SHA256BytesHex([]byte("hello wavry")) {
		t.Fatal("checksum mismatch")
	}
}

func transfer(t *testing.T, payload []byte, chunkSize uint32, fileID uint64, drop func(idx uint32) bool) (*OutgoingFile, *IncomingFile) {
	t.Helper()
	dir := t.TempDir()
	sendPath := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(sendPath, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	recvDir := filepath.Join(dir, "recv")

	out, err := NewOutgoingFile(sendPath, fileID, chunkSize, DefaultMaxFileBytes)
	if err != nil {
		t.Fatalf("NewOutgoingFile: %v", err)
	}
	in, err := NewIncomingFile(recvDir, out.Offer(), DefaultMaxFileBytes)
	if err != nil {
		t.Fatalf("NewIncomingFile: %v", err)
	}

	var pending []message.FileChunk
	for {
		chunk, ok, err := out.NextChunk()
		if err != nil {
			t.Fatalf("NextChunk: %v", err)
		}
		if !ok {
			break
		}
		if drop != nil && drop(chunk.ChunkIndex) {
			pending = append(pending, chunk)
			continue
		}
		if _, err := in.WriteChunk(chunk.ChunkIndex, chunk.Payload); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
	}
	for _, chunk := range pending {
		if _, err := in.WriteChunk(chunk.ChunkIndex, chunk.Payload); err != nil {
			t.Fatalf("retransmit WriteChunk: %v", err)
		}
	}
	return out, in
}

func TestTransferRoundTripSurvivesReorderedChunks(t *testing.T) {
	payload := make([]byte, 10_000)
	for i := range payload {
		payload[i] = 7
	}

	dir := t.TempDir()
	sendPath := filepath.Join(dir, "payload.bin")
	os.WriteFile(sendPath, payload, 0o644)
	recvDir := filepath.Join(dir, "recv")

	out, err := NewOutgoingFile(sendPath, 7, 900, DefaultMaxFileBytes)
	if err != nil {
		t.Fatal(err)
	}
	in, err := NewIncomingFile(recvDir, out.Offer(), DefaultMaxFileBytes)
	if err != nil {
		t.Fatal(err)
	}

	var chunks []message.FileChunk
	for {
		c, ok, err := out.NextChunk()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		chunks = append(chunks, c)
	}
	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}
	for _, c := range chunks {
		if _, err := in.WriteChunk(c.ChunkIndex, c.Payload); err != nil {
			t.Fatal(err)
		}
	}

	if !in.IsComplete() {
		t.Fatal("expected completion after all chunks written, regardless of order")
	}
	outPath, err := in.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatal("finalized content mismatch")
	}
}

func TestTransferWithSimulatedLossAndRetransmit(t *testing.T) {
	payload := make([]byte, 8192)
	for i := range payload {
		payload[i] = 3
	}
	_, in := transfer(t, payload, 700, 17, func(idx uint32) bool { return idx == 2 })
	if !in.IsComplete() {
		t.Fatal("expected completion once the dropped chunk is retransmitted")
	}
	outPath, err := in.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	got, _ := os.ReadFile(outPath)
	if string(got) != string(payload) {
		t.Fatal("finalized content mismatch")
	}
}

func TestChecksumMismatchIsRejected(t *testing.T) {
	dir := t.TempDir()
	sendPath := filepath.Join(dir, "payload.bin")
	os.WriteFile(sendPath, []byte("abcdef"), 0o644)
	recvDir := filepath.Join(dir, "recv")

	out, err := NewOutgoingFile(sendPath, 99, 2, DefaultMaxFileBytes)
	if err != nil {
		t.Fatal(err)
	}
	in, err := NewIncomingFile(recvDir, out.Offer(), DefaultMaxFileBytes)
	if err != nil {
		t.Fatal(err)
	}
	for {
		c, ok, err := out.NextChunk()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		if c.ChunkIndex == 1 {
			c.Payload[0] ^= 0xFF
		}
		if _, err := in.WriteChunk(c.ChunkIndex, c.Payload); err != nil {
			t.Fatal(err)
		}
	}
	if !in.IsComplete() {
		t.Fatal("expected all chunks delivered")
	}
	if _, err := in.Finalize(); err == nil {
		t.Fatal("expected checksum mismatch to fail finalize")
	}
}

func TestRejectsOversizedOffer(t *testing.T) {
	offer := message.FileOffer{
		FileID:         1,
		Filename:       "big.bin",
		FileSize:       DefaultMaxFileBytes + 1,
		ChecksumSHA256: "0000000000000000000000000000000000000000000000000000000000000000"[:64],
		ChunkSize:      1024,
		TotalChunks:    2,
	}
	if err := ValidateOffer(offer, DefaultMaxFileBytes); err == nil {
		t.Fatal("expected oversized offer to be rejected")
	}
}

func TestOutgoingFileSeekPauseAndRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	os.WriteFile(path, make([]byte, 5000), 0o644)

	out, err := NewOutgoingFile(path, 123, 700, DefaultMaxFileBytes)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	if out.NextChunkIndex() != 0 {
		t.Fatal("expected cursor at 0")
	}
	if err := out.SetNextChunk(3); err != nil {
		t.Fatal(err)
	}
	if out.NextChunkIndex() != 3 {
		t.Fatal("expected cursor at 3")
	}

	out.Pause()
	if !out.Paused() {
		t.Fatal("expected paused")
	}
	out.Resume()
	if out.Paused() {
		t.Fatal("expected resumed")
	}

	out.MarkHeaderSent()
	if !out.HeaderSent() {
		t.Fatal("expected header sent")
	}
	out.RestartFromBeginning()
	if out.NextChunkIndex() != 0 || out.HeaderSent() {
		t.Fatal("expected restart to reset cursor and header_sent")
	}
}

func TestIncomingFileProgressAndAbort(t *testing.T) {
	dir := t.TempDir()
	recvDir := filepath.Join(dir, "recv")

	payload := make([]byte, 2400)
	for i := range payload {
		payload[i] = 9
	}
	offer := message.FileOffer{
		FileID:         55,
		Filename:       "demo.bin",
		FileSize:       uint64(len(payload)),
		ChecksumSHA256: SHA256BytesHex(payload),
		ChunkSize:      600,
		TotalChunks:    4,
	}

	in, err := NewIncomingFile(recvDir, offer, DefaultMaxFileBytes)
	if err != nil {
		t.Fatal(err)
	}
	if in.ReceivedCount() != 0 || in.NextMissingChunk() != 0 {
		t.Fatal("expected a fresh transfer")
	}

	if _, err := in.WriteChunk(0, payload[0:600]); err != nil {
		t.Fatal(err)
	}
	if _, err := in.WriteChunk(1, payload[600:1200]); err != nil {
		t.Fatal(err)
	}
	if in.ReceivedCount() != 2 || in.NextMissingChunk() != 2 {
		t.Fatal("expected progress to reflect two received chunks")
	}

	partPath := filepath.Join(recvDir, "demo.bin.part")
	if _, err := os.Stat(partPath); err != nil {
		t.Fatal("expected part file to exist")
	}
	if err := in.Abort(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(partPath); !os.IsNotExist(err) {
		t.Fatal("expected part file to be removed after abort")
	}
}
