package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/pithecene-io/deliorder/types"
)

// encodeFrame encodes a payload with length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func TestFrameEncoder_RoundTrip(t *testing.T) {
	req := &Request{
		ID: 7,
		Op: OpMoveFile,
		Order: &types.OrderRecord{
			Action:         "move",
			AttachmentName: "a.txt",
			SourcePath:     "/src",
			ExecutionPath:  "/dst",
		},
	}

	var buf bytes.Buffer
	if err := NewFrameEncoder(&buf).WriteFrame(req); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if got := binary.BigEndian.Uint32(buf.Bytes()[:LengthPrefixSize]); int(got) != buf.Len()-LengthPrefixSize {
		t.Errorf("length prefix = %d, want %d", got, buf.Len()-LengthPrefixSize)
	}

	payload, err := NewFrameDecoder(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	decoded, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if decoded.ID != 7 || decoded.Op != OpMoveFile {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Order == nil || decoded.Order.SourcePath != "/src" || decoded.Order.ExecutionPath != "/dst" {
		t.Errorf("order = %+v", decoded.Order)
	}
}

func TestFrameDecoder_MultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)
	for i := uint64(1); i <= 3; i++ {
		if err := enc.WriteFrame(&Response{ID: i, OK: true, Result: "done"}); err != nil {
			t.Fatal(err)
		}
	}

	dec := NewFrameDecoder(&buf)
	for i := uint64(1); i <= 3; i++ {
		payload, err := dec.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		resp, err := DecodeResponse(payload)
		if err != nil {
			t.Fatal(err)
		}
		if resp.ID != i {
			t.Errorf("frame %d: ID = %d", i, resp.ID)
		}
	}
	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	_, err := NewFrameDecoder(bytes.NewReader(nil)).ReadFrame()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameDecoder_PartialLengthPrefix(t *testing.T) {
	_, err := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x01})).ReadFrame()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected FrameError, got %v", err)
	}
	if frameErr.Kind != FrameErrorPartial || !frameErr.IsFatal() {
		t.Errorf("Kind = %v, IsFatal = %v", frameErr.Kind, frameErr.IsFatal())
	}
}

func TestFrameDecoder_PartialPayload(t *testing.T) {
	frame := encodeFrame([]byte("0123456789"))
	_, err := NewFrameDecoder(bytes.NewReader(frame[:8])).ReadFrame()

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected wrapped io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestFrameDecoder_TooLarge(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], MaxPayloadSize+1)

	_, err := NewFrameDecoder(bytes.NewReader(prefix[:])).ReadFrame()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Fatalf("expected FrameErrorTooLarge, got %v", err)
	}
}

func TestDecodeRequest_Garbage(t *testing.T) {
	_, err := DecodeRequest([]byte{0xc1})

	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
		t.Fatalf("expected FrameErrorDecode, got %v", err)
	}
	if frameErr.IsFatal() || IsFatalFrameError(err) {
		t.Error("decode errors should not be fatal")
	}
}

func TestIsFatalFrameError_PlainError(t *testing.T) {
	if IsFatalFrameError(errors.New("boom")) {
		t.Error("plain error should not be fatal")
	}
}
