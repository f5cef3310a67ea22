package tpdp

import (
	"crypto/cipher"
	"io"
)

// DefaultPumpBufferSize mirrors the original torpydo route()'s default
// segment_size; Torpydo's chunking is opaque to the protocol (spec §6.2)
// so this is purely a throughput knob, not a framing unit.
const DefaultPumpBufferSize = 32 * 1024

// Pump reads chunks from src, runs each chunk through stream (advancing
// its counter by exactly the number of bytes processed, per spec
// invariant 1), and writes the result to dst. It returns on clean EOF
// (nil error) or the first read/write error, and reports the total
// number of bytes it moved either way.
func Pump(dst io.Writer, src io.Reader, stream cipher.Stream, bufSize int) (int64, error) {
	if bufSize <= 0 {
		bufSize = DefaultPumpBufferSize
	}
	buf := make([]byte, bufSize)
	out := make([]byte, bufSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			stream.XORKeyStream(out[:n], buf[:n])
			if _, werr := dst.Write(out[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}
