package protocol

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/mixdeck-io/mixdeck/internal/icon"
	"github.com/mixdeck-io/mixdeck/internal/rgb565"
	"github.com/mixdeck-io/mixdeck/internal/serial"
)

// DefaultIconSize is the display's icon edge in pixels.
const DefaultIconSize = 128

// ErrAckMismatch means the device acknowledged a row with something other
// than 0xFF. Only the transfer is aborted; the link stays up.
var ErrAckMismatch = errors.New("protocol: row acknowledgement mismatch")

// TransferStats describes one image transfer.
type TransferStats struct {
	Rows    int // rows acknowledged
	Bytes   int
	Elapsed time.Duration
}

// BytesPerSecond is the transfer's throughput.
func (s TransferStats) BytesPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Elapsed.Seconds()
}

// WriteImage sends img as a size×size transfer: one write per row of
// packed pixels, each answered by a 0xFF acknowledgement, then a trailing
// 0xFF. A nil img is sent as black.
func WriteImage(conn serial.Conn, img image.Image, size int) (stats TransferStats, err error) {
	start := time.Now()
	defer func() { stats.Elapsed = time.Since(start) }()

	src := icon.Fit(img, size)
	row := make([]byte, 0, 2*size)
	for y := 0; y < size; y++ {
		row = row[:0]
		for x := 0; x < size; x++ {
			row = rgb565.AppendPixel(row, src.RGBAAt(x, y))
		}
		if _, err := conn.Write(row); err != nil {
			return stats, fmt.Errorf("failed to write row %d: %w", y, err)
		}
		stats.Bytes += len(row)

		var ack byte
		ack, err = conn.ReadAck()
		if err != nil {
			return stats, fmt.Errorf("failed to read ack for row %d: %w", y, err)
		}
		if ack != serial.AckByte {
			return stats, fmt.Errorf("row %d acknowledged with 0x%02X: %w", y, ack, ErrAckMismatch)
		}
		stats.Rows++
	}

	if _, err := conn.Write([]byte{serial.AckByte}); err != nil {
		return stats, fmt.Errorf("failed to write end marker: %w", err)
	}
	stats.Bytes++
	return stats, nil
}
