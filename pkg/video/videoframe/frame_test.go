package videoframe_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
)

func TestGeometrySizes(t *testing.T) {
	is := is.New(t)

	geo := videoframe.NewGeometry(640, 360, 3)
	is.Equal(geo.PayloadSize(), 691200)
	is.Equal(geo.SlotSize(), 691208)
	is.True(geo.Valid())
	is.True(!videoframe.NewGeometry(0, 360, 3).Valid())
}

func TestNewRejectsPayloadOfWrongSize(t *testing.T) {
	is := is.New(t)

	_, err := videoframe.New(make([]byte, 11), videoframe.NewGeometry(2, 2, 3), 0)
	is.True(err != nil)
	is.Equal(err.Error(), "frame payload is 11 bytes, geometry 2x2x3 expects 12")
}

func TestEncodeDecodeKeepsPayloadAndTimestamp(t *testing.T) {
	is := is.New(t)

	geo := videoframe.NewGeometry(2, 2, 3)
	timestamps := []int64{0, 1, 1634567890123, math.MaxInt64, -1}
	for i, ts := range timestamps {
		payload := bytes.Repeat([]byte{byte(i + 1)}, geo.PayloadSize())
		frame, err := videoframe.New(payload, geo, ts)
		is.NoErr(err)

		slot := make([]byte, geo.SlotSize())
		is.NoErr(frame.Encode(slot))

		decoded, err := videoframe.Decode(slot, geo)
		is.NoErr(err)
		is.Equal(decoded.Data(), payload)
		is.Equal(decoded.Timestamp(), ts)
		is.Equal(decoded.Dimensions(), videoframe.Dimensions{W: 2, H: 2})
	}
}

func TestEncodedTimestampIsBigEndianSuffix(t *testing.T) {
	is := is.New(t)

	geo := videoframe.NewGeometry(1, 1, 1)
	frame, err := videoframe.New([]byte{0xAA}, geo, 0x0102)
	is.NoErr(err)

	slot := make([]byte, geo.SlotSize())
	is.NoErr(frame.Encode(slot))
	is.Equal(slot, []byte{0xAA, 0, 0, 0, 0, 0, 0, 0x01, 0x02})
}

func TestDecodeRejectsSlotOfWrongSize(t *testing.T) {
	is := is.New(t)

	_, err := videoframe.Decode(make([]byte, 4), videoframe.NewGeometry(1, 1, 1))
	is.True(err != nil)
}

func TestNewDoesNotAliasCallerPayload(t *testing.T) {
	is := is.New(t)

	payload := []byte{1, 2, 3}
	frame, err := videoframe.New(payload, videoframe.NewGeometry(1, 1, 3), 7)
	is.NoErr(err)

	payload[0] = 0xFF
	is.Equal(frame.Data(), []byte{1, 2, 3})
}
