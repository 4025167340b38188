package stream

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"strconv"
	"time"

	"github.com/google/uuid"

	"rppg-dashboard/internal/model"
)

const DefaultJPEGQuality = 70

// EncodeFrame compresses a frame to JPEG at the given quality and returns it
// base64 encoded.
func EncodeFrame(frame model.Frame, quality int) (string, error) {
	if quality < 1 || quality > 100 {
		return "", fmt.Errorf("%w: jpeg quality %d out of range", ErrEncoding, quality)
	}
	img, err := frame.Image()
	if err != nil {
		return "", fmt.Errorf("%w: frame %d: %v", ErrEncoding, frame.Seq, err)
	}
	var buf bytes.Buffer
	buf.Grow(frame.Width * frame.Height / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("%w: frame %d: %v", ErrEncoding, frame.Seq, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func BuildEnvelope(id, timestamp, frameData string) model.EncodedFrameMessage {
	return model.EncodedFrameMessage{
		DataPointID: id,
		State:       model.FrameStateStream,
		Timestamp:   timestamp,
		FrameData:   frameData,
		Advanced:    true,
	}
}

// EpochSeconds formats t as fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func EncodeMessage(msg model.EncodedFrameMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// FrameEncoder turns captured frames into uplink messages.
type FrameEncoder struct {
	quality int
	newID   func() string
	now     func() time.Time
}

func NewFrameEncoder(quality int) *FrameEncoder {
	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	return &FrameEncoder{
		quality: quality,
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

func (e *FrameEncoder) Encode(frame model.Frame) (model.EncodedFrameMessage, error) {
	data, err := EncodeFrame(frame, e.quality)
	if err != nil {
		return model.EncodedFrameMessage{}, err
	}
	return BuildEnvelope(e.newID(), EpochSeconds(e.now()), data), nil
}
