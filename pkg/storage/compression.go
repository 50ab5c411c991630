package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/vjranagit/tsengine/pkg/types"
)

// Compressor handles block encoding for signal series
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a new compressor
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Compress zstd-compresses an arbitrary payload
func (c *Compressor) Compress(data []byte) []byte {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decompress reverses Compress
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return out, nil
}

// CompressTimestamps encodes millisecond timestamps as varint delta-of-deltas, then zstd.
// Regularly spaced series collapse to runs of zero bytes.
func (c *Compressor) CompressTimestamps(timestamps []int64) ([]byte, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(timestamps)*2)
	buf = binary.AppendVarint(buf, timestamps[0])

	var prevDelta int64
	for i := 1; i < len(timestamps); i++ {
		delta := timestamps[i] - timestamps[i-1]
		buf = binary.AppendVarint(buf, delta-prevDelta)
		prevDelta = delta
	}

	return c.Compress(buf), nil
}

// DecompressTimestamps decodes count timestamps written by CompressTimestamps
func (c *Compressor) DecompressTimestamps(data []byte, count int) ([]int64, error) {
	if count == 0 {
		return nil, nil
	}

	raw, err := c.Decompress(data)
	if err != nil {
		return nil, err
	}

	timestamps := make([]int64, count)
	var prevDelta int64
	off := 0
	for i := 0; i < count; i++ {
		v, n := binary.Varint(raw[off:])
		if n <= 0 {
			return nil, fmt.Errorf("corrupt timestamp block at entry %d", i)
		}
		off += n

		if i == 0 {
			timestamps[0] = v
			continue
		}
		delta := v + prevDelta
		timestamps[i] = timestamps[i-1] + delta
		prevDelta = delta
	}

	return timestamps, nil
}

// CompressValues XORs each float with its predecessor, then zstd.
// Slowly changing signals leave mostly zero bits behind.
func (c *Compressor) CompressValues(values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(values)*8)
	var prevBits uint64
	for _, v := range values {
		bits := math.Float64bits(v)
		buf = binary.LittleEndian.AppendUint64(buf, bits^prevBits)
		prevBits = bits
	}

	return c.Compress(buf), nil
}

// DecompressValues decodes count values written by CompressValues
func (c *Compressor) DecompressValues(data []byte, count int) ([]float64, error) {
	if count == 0 {
		return nil, nil
	}

	raw, err := c.Decompress(data)
	if err != nil {
		return nil, err
	}
	if len(raw) < count*8 {
		return nil, fmt.Errorf("corrupt value block: %d bytes for %d values", len(raw), count)
	}

	values := make([]float64, count)
	var prevBits uint64
	for i := range values {
		bits := binary.LittleEndian.Uint64(raw[i*8:]) ^ prevBits
		values[i] = math.Float64frombits(bits)
		prevBits = bits
	}

	return values, nil
}

// blockPayload is the stored form of one series
type blockPayload struct {
	Type       types.SeriesType `json:"type"`
	Properties types.Properties `json:"properties,omitempty"`
	Count      int              `json:"count"`
	IDs        []string         `json:"ids"`
	Begins     []byte           `json:"begins,omitempty"`
	// Durations holds end-begin per sample; only interval series carry it
	Durations []byte         `json:"durations,omitempty"`
	Values    []byte         `json:"values,omitempty"`
	Texts     map[int]string `json:"texts,omitempty"`
}

// EncodeSeries packs a series into a storage block. The series id is not part
// of the block; it lives in the key.
func (c *Compressor) EncodeSeries(series *types.Series) ([]byte, error) {
	n := len(series.Samples)
	begins := make([]int64, n)
	numbers := make([]float64, n)
	payload := &blockPayload{
		Type:       series.Type,
		Properties: series.Properties,
		Count:      n,
		IDs:        make([]string, n),
	}

	interval := series.Mode() == types.ModeInterval
	var durations []int64
	if interval {
		durations = make([]int64, n)
	}

	for i, sample := range series.Samples {
		payload.IDs[i] = sample.ID
		begins[i] = sample.Time.Begin()
		if interval {
			durations[i] = sample.Time.End() - sample.Time.Begin()
		}
		if sample.Value.IsNumeric() {
			numbers[i], _ = sample.Value.Float()
			continue
		}
		if payload.Texts == nil {
			payload.Texts = make(map[int]string)
		}
		payload.Texts[i] = sample.Value.String()
	}

	var err error
	if payload.Begins, err = c.CompressTimestamps(begins); err != nil {
		return nil, fmt.Errorf("failed to compress timestamps: %w", err)
	}
	if interval {
		if payload.Durations, err = c.CompressTimestamps(durations); err != nil {
			return nil, fmt.Errorf("failed to compress durations: %w", err)
		}
	}
	if payload.Values, err = c.CompressValues(numbers); err != nil {
		return nil, fmt.Errorf("failed to compress values: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// DecodeSeries unpacks a block written by EncodeSeries
func (c *Compressor) DecodeSeries(id string, data []byte) (*types.Series, error) {
	var payload blockPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if len(payload.IDs) != payload.Count {
		return nil, fmt.Errorf("corrupt block: %d ids for %d samples", len(payload.IDs), payload.Count)
	}

	begins, err := c.DecompressTimestamps(payload.Begins, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress timestamps: %w", err)
	}
	values, err := c.DecompressValues(payload.Values, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress values: %w", err)
	}

	interval := payload.Type.Mode() == types.ModeInterval
	var durations []int64
	if interval {
		if durations, err = c.DecompressTimestamps(payload.Durations, payload.Count); err != nil {
			return nil, fmt.Errorf("failed to decompress durations: %w", err)
		}
	}

	series := &types.Series{
		ID:         id,
		Type:       payload.Type,
		Properties: payload.Properties,
		Samples:    make([]types.Sample, payload.Count),
	}
	for i := range series.Samples {
		sample := types.Sample{ID: payload.IDs[i], Time: types.At(begins[i])}
		if interval {
			sample.Time = types.Between(begins[i], begins[i]+durations[i])
		}
		if text, ok := payload.Texts[i]; ok {
			sample.Value = types.Text(text)
		} else {
			sample.Value = types.Number(values[i])
		}
		series.Samples[i] = sample
	}

	return series, nil
}

// Close closes the compressor resources
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
