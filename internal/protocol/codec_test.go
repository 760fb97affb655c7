package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameRoundTrip verifies that every packet size an interface can produce
// survives encode + decode unchanged.
func TestFrameRoundTrip(t *testing.T) {
	var stream bytes.Buffer
	for n := 0; n <= MTU; n++ {
		pkt := bytes.Repeat([]byte{byte(n)}, n)
		require.NoError(t, WriteFrame(&stream, pkt))
	}

	for n := 0; n <= MTU; n++ {
		got, err := ReadFrame(&stream, MTU)
		require.NoError(t, err, "size %d", n)
		require.NotNil(t, got)
		require.Len(t, got, n)
		if n > 0 {
			assert.Equal(t, byte(n), got[0])
		}
	}

	_, err := ReadFrame(&stream, MTU)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameHeaderIsSignedBigEndian(t *testing.T) {
	buf, err := EncodeFrame([]byte{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x03, 0xAA, 0xBB, 0xCC}, buf)

	_, err = EncodeFrame(make([]byte, MaxFramePayload+1))
	pe, ok := IsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeFrameTooLarge, pe.Code)
}

func TestReadFrameRejectsBadLengths(t *testing.T) {
	testCases := []struct {
		name  string
		input []byte
		limit int
		code  ErrorCode
	}{
		{"negative length", []byte{0xFF, 0xFE, 1, 2}, MTU, ErrCodeBadLength},
		{"above limit", []byte{0x05, 0xDD}, MTU, ErrCodeFrameTooLarge},
		{"above int16 max via default limit", []byte{0x80, 0x00}, 0, ErrCodeBadLength},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tc.input), tc.limit)
			pe, ok := IsProtocolError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tc.code, pe.Code)
		})
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x04, 1, 2}), MTU)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestBatchRoundTrip(t *testing.T) {
	pkts := [][]byte{
		bytes.Repeat([]byte{1}, 10),
		bytes.Repeat([]byte{2}, 20),
		bytes.Repeat([]byte{3}, 30),
	}

	batch, err := EncodeBatch(pkts)
	require.NoError(t, err)
	assert.Len(t, batch, 3*FrameHeaderSize+60)

	var got [][]byte
	require.NoError(t, DecodeBatch(bytes.NewReader(batch), func(p []byte) error {
		got = append(got, p)
		return nil
	}))
	assert.Equal(t, pkts, got)
}

func TestEncodeBatchRejectsEmpty(t *testing.T) {
	_, err := EncodeBatch(nil)
	pe, ok := IsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeEmptyBatch, pe.Code)
}

func TestDecodeBatchTruncated(t *testing.T) {
	batch, err := EncodeBatch([][]byte{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	for _, cut := range []int{1, 4, 6, 7} {
		err := DecodeBatch(bytes.NewReader(batch[:cut]), func([]byte) error { return nil })
		pe, ok := IsProtocolError(err)
		require.True(t, ok, "cut at %d: %v", cut, err)
		assert.Equal(t, ErrCodeTruncated, pe.Code)
	}
}

func TestDecodeBatchSkipsZeroFramesAndStopsOnCallbackError(t *testing.T) {
	input := []byte{0, 0, 0, 1, 9, 0, 1, 8}
	stop := io.ErrClosedPipe

	var got [][]byte
	err := DecodeBatch(bytes.NewReader(input), func(p []byte) error {
		got = append(got, p)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, [][]byte{{9}}, got)
}

func TestSlotListRoundTrip(t *testing.T) {
	ids := []string{"1AbC", "2dEf", "3gHi"}

	var buf bytes.Buffer
	require.NoError(t, WriteSlotList(&buf, ids))

	raw := buf.Bytes()
	assert.Equal(t, uint32(len("1AbC\n2dEf\n3gHi")), binary.BigEndian.Uint32(raw[:4]))
	assert.Equal(t, "1AbC\n2dEf\n3gHi", string(raw[4:]))

	got, err := ReadSlotList(&buf)
	require.NoError(t, err)
	assert.Equal(t, ids, got)
}

func TestSlotListRejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	_, ok := IsProtocolError(WriteSlotList(&buf, nil))
	assert.True(t, ok)
	_, ok = IsProtocolError(WriteSlotList(&buf, []string{"a\nb"}))
	assert.True(t, ok)
	_, ok = IsProtocolError(WriteSlotList(&buf, []string{"a", ""}))
	assert.True(t, ok)

	_, err := ReadSlotList(bytes.NewReader([]byte{0, 0, 0, 0}))
	pe, ok := IsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeBadSlotList, pe.Code)

	_, err = ReadSlotList(bytes.NewReader([]byte{0x7F, 0xFF, 0xFF, 0xFF}))
	_, ok = IsProtocolError(err)
	assert.True(t, ok)

	_, err = ReadSlotList(bytes.NewReader([]byte{0, 0, 0, 3, 'a', '\n', 'b'}))
	require.NoError(t, err)
	_, err = ReadSlotList(bytes.NewReader([]byte{0, 0, 0, 2, 'a', '\n'}))
	_, ok = IsProtocolError(err)
	assert.True(t, ok)
}

func TestSlotIndexRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	for _, idx := range []uint16{0, 1, 255, 256, 65535} {
		require.NoError(t, WriteSlotIndex(&buf, idx))
	}
	assert.Equal(t, 10, buf.Len())

	for _, want := range []uint16{0, 1, 255, 256, 65535} {
		got, err := ReadSlotIndex(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
