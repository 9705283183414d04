package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
)

const headerSize = 4

// appendFrame returns payload prefixed with its length.
func appendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// readFrame reads one frame. It returns io.EOF only at a frame boundary;
// a connection closed mid-frame yields io.ErrUnexpectedEOF.
func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", bherrors.ErrFrameTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
