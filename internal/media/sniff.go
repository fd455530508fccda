package media

import (
	"bytes"
	"io"
	"os"
)

const sniffLen = 1024

// Container names returned by SniffContainer.
const (
	ContainerMP4      = "mp4"
	ContainerMatroska = "matroska"
	ContainerAVI      = "avi"
	ContainerFLV      = "flv"
	ContainerUnknown  = ""
)

// SniffContainer inspects the first KiB of a file for known container
// signatures. An unknown result is a warning to callers, never an error:
// FFmpeg probes far deeper than this.
func SniffContainer(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return ContainerUnknown, err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return ContainerUnknown, err
	}
	return sniff(buf[:n]), nil
}

func sniff(head []byte) string {
	switch {
	// ISO BMFF: the ftyp box sits at offset 4.
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return ContainerMP4
	case bytes.HasPrefix(head, []byte{0x1a, 0x45, 0xdf, 0xa3}):
		return ContainerMatroska
	case bytes.HasPrefix(head, []byte("RIFF")):
		return ContainerAVI
	case bytes.HasPrefix(head, []byte{0x46, 0x4c, 0x56, 0x01}):
		return ContainerFLV
	default:
		return ContainerUnknown
	}
}
