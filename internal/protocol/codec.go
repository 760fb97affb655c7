package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// AppendFrame appends pkt, prefixed with its signed 16-bit big-endian length,
// to dst.
func AppendFrame(dst, pkt []byte) ([]byte, error) {
	if len(pkt) > MaxFramePayload {
		return dst, NewError(ErrCodeFrameTooLarge, "packet of %d bytes exceeds %d", len(pkt), MaxFramePayload)
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(int16(len(pkt))))
	return append(dst, pkt...), nil
}

// EncodeFrame serializes a single packet as a frame.
func EncodeFrame(pkt []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, FrameHeaderSize+len(pkt)), pkt)
}

// WriteFrame writes pkt as one frame with a single Write call so a frame is
// never interleaved with other writers' bytes at the Write boundary.
func WriteFrame(w io.Writer, pkt []byte) error {
	buf, err := EncodeFrame(pkt)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame from r. A zero-length header yields an empty,
// non-nil slice and a nil error; callers on a control stream treat that as
// end of stream. Lengths that are negative or above limit (MaxFramePayload when
// limit <= 0) are protocol violations. I/O errors, including io.EOF before the
// header, are returned unchanged.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 || limit > MaxFramePayload {
		limit = MaxFramePayload
	}

	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	n := int(int16(binary.BigEndian.Uint16(hdr[:])))
	switch {
	case n < 0:
		return nil, NewError(ErrCodeBadLength, "negative frame length %d", n)
	case n == 0:
		return []byte{}, nil
	case n > limit:
		return nil, NewError(ErrCodeFrameTooLarge, "frame length %d exceeds %d", n, limit)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// ---------------------------------------------------------------------------
// Batches
// ---------------------------------------------------------------------------

// EncodeBatch frames every packet and concatenates the frames in order.
// A batch must contain at least one packet.
func EncodeBatch(pkts [][]byte) ([]byte, error) {
	if len(pkts) == 0 {
		return nil, NewError(ErrCodeEmptyBatch, "refusing to encode an empty batch")
	}

	size := 0
	for _, p := range pkts {
		size += FrameHeaderSize + len(p)
	}

	buf := make([]byte, 0, size)
	for _, p := range pkts {
		var err error
		if buf, err = AppendFrame(buf, p); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeBatch reads frames from r until a clean end of input on a frame
// boundary and calls fn for each packet in order. Zero-length frames carry no
// packet and are skipped. Input cut inside a frame is a protocol violation.
// An error returned by fn stops decoding and is returned as is.
func DecodeBatch(r io.Reader, fn func(pkt []byte) error) error {
	var hdr [FrameHeaderSize]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, io.ErrUnexpectedEOF):
				return NewError(ErrCodeTruncated, "batch ends inside a frame header")
			default:
				return err
			}
		}

		n := int(int16(binary.BigEndian.Uint16(hdr[:])))
		if n < 0 {
			return NewError(ErrCodeBadLength, "negative frame length %d in batch", n)
		}
		if n == 0 {
			continue
		}

		pkt := make([]byte, n)
		if _, err := io.ReadFull(r, pkt); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return NewError(ErrCodeTruncated, "batch ends inside a %d byte frame", n)
			}
			return err
		}

		if err := fn(pkt); err != nil {
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Handshake
// ---------------------------------------------------------------------------

// WriteSlotList sends the ordered slot identifiers: a 4-byte big-endian length
// followed by the UTF-8 identifiers joined with a newline.
func WriteSlotList(w io.Writer, ids []string) error {
	if len(ids) == 0 {
		return NewError(ErrCodeBadSlotList, "empty slot list")
	}
	for i, id := range ids {
		if id == "" || strings.Contains(id, SlotListSeparator) {
			return NewError(ErrCodeBadSlotList, "invalid slot id at position %d", i)
		}
	}

	payload := strings.Join(ids, SlotListSeparator)
	if len(payload) > MaxSlotListSize {
		return NewError(ErrCodeBadSlotList, "slot list of %d bytes exceeds %d", len(payload), MaxSlotListSize)
	}

	buf := make([]byte, 0, SlotListHeaderSize+len(payload))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadSlotList reads the handshake written by WriteSlotList.
func ReadSlotList(r io.Reader) ([]string, error) {
	var hdr [SlotListHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	n := int64(int32(binary.BigEndian.Uint32(hdr[:])))
	if n <= 0 || n > MaxSlotListSize {
		return nil, NewError(ErrCodeBadSlotList, "slot list length %d out of range", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	ids := strings.Split(string(buf), SlotListSeparator)
	for i, id := range ids {
		if id == "" {
			return nil, NewError(ErrCodeBadSlotList, "empty slot id at position %d", i)
		}
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

// WriteSlotIndex sends the index of the slot that was just updated.
func WriteSlotIndex(w io.Writer, idx uint16) error {
	var buf [SlotIndexSize]byte
	binary.BigEndian.PutUint16(buf[:], idx)
	_, err := w.Write(buf[:])
	return err
}

// ReadSlotIndex reads one slot index notification.
func ReadSlotIndex(r io.Reader) (uint16, error) {
	var buf [SlotIndexSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}
