package codec

import (
	"errors"
	"fmt"
)

// Minimal EBML walker for extracting Opus packets out of WebM clusters.
// It understands just enough of the Matroska element tree to find
// SimpleBlock and BlockGroup/Block payloads; everything else is skipped.

// Matroska element IDs, as read with their marker bits intact.
const (
	idEBML        = 0x1A45DFA3
	idSegment     = 0x18538067
	idCluster     = 0x1F43B675
	idSimpleBlock = 0xA3
	idBlockGroup  = 0xA0
	idBlock       = 0xA1
)

var errTruncated = errors.New("truncated EBML element")

// extractOpusPackets walks a WebM byte stream and returns the raw block
// payloads in stream order. Laced blocks are not split; the backend sends
// one frame per block.
func extractOpusPackets(data []byte) ([][]byte, error) {
	var packets [][]byte
	if err := walkEBML(data, &packets, 0); err != nil {
		return nil, err
	}
	if len(packets) == 0 {
		return nil, errors.New("no audio blocks in container")
	}
	return packets, nil
}

func walkEBML(data []byte, packets *[][]byte, depth int) error {
	if depth > 8 {
		return errors.New("EBML nesting too deep")
	}

	pos := 0
	for pos < len(data) {
		id, n, err := readElementID(data[pos:])
		if err != nil {
			return err
		}
		pos += n

		size, n, err := readElementSize(data[pos:])
		if err != nil {
			return err
		}
		pos += n

		// Unknown-size elements (live streams) extend to end of input.
		if size < 0 {
			size = int64(len(data) - pos)
		}
		if int64(pos)+size > int64(len(data)) {
			// Tolerate a truncated trailing element; decode what we have.
			size = int64(len(data) - pos)
		}
		body := data[pos : pos+int(size)]

		switch id {
		case idSegment, idCluster, idBlockGroup:
			if err := walkEBML(body, packets, depth+1); err != nil {
				return err
			}
		case idSimpleBlock, idBlock:
			payload, err := blockPayload(body)
			if err != nil {
				return err
			}
			*packets = append(*packets, payload)
		}

		pos += int(size)
	}
	return nil
}

// blockPayload strips the block header (track number varint, 16-bit relative
// timecode, flags byte) and returns the codec data.
func blockPayload(block []byte) ([]byte, error) {
	_, n, err := readElementSize(block)
	if err != nil {
		return nil, fmt.Errorf("block track number: %w", err)
	}
	header := n + 3 // timecode (2) + flags (1)
	if len(block) < header {
		return nil, errTruncated
	}
	return block[header:], nil
}

// readElementID reads an EBML element ID, keeping the length-marker bits
// as Matroska convention dictates.
func readElementID(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, errTruncated
	}

	length := leadingLength(data[0])
	if length == 0 || length > 4 || len(data) < length {
		return 0, 0, errTruncated
	}

	var id uint64
	for i := 0; i < length; i++ {
		id = id<<8 | uint64(data[i])
	}
	return id, length, nil
}

// readElementSize reads an EBML data-size varint, stripping the marker bit.
// Returns -1 for the all-ones "unknown size" value.
func readElementSize(data []byte) (int64, int, error) {
	if len(data) == 0 {
		return 0, 0, errTruncated
	}

	length := leadingLength(data[0])
	if length == 0 || length > 8 || len(data) < length {
		return 0, 0, errTruncated
	}

	size := int64(data[0]) & (0xFF >> length)
	allOnes := size == int64(0xFF>>length)
	for i := 1; i < length; i++ {
		size = size<<8 | int64(data[i])
		if data[i] != 0xFF {
			allOnes = false
		}
	}
	if allOnes {
		return -1, length, nil
	}
	return size, length, nil
}

// leadingLength returns the varint length encoded in the first byte's
// leading zero count, or 0 if the byte is invalid.
func leadingLength(b byte) int {
	for i := 0; i < 8; i++ {
		if b&(0x80>>i) != 0 {
			return i + 1
		}
	}
	return 0
}
