package media

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSniff(t *testing.T) {
	mp4Head := append([]byte{0x00, 0x00, 0x00, 0x20}, []byte("ftypisom")...)

	cases := []struct {
		name string
		head []byte
		want string
	}{
		{"mp4", mp4Head, ContainerMP4},
		{"matroska", []byte{0x1a, 0x45, 0xdf, 0xa3, 0x01}, ContainerMatroska},
		{"avi", []byte("RIFF\x00\x00\x00\x00AVI "), ContainerAVI},
		{"flv", []byte{0x46, 0x4c, 0x56, 0x01, 0x05}, ContainerFLV},
		{"garbage", []byte("hello world, this is not a video"), ContainerUnknown},
		{"empty", nil, ContainerUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sniff(tc.head); got != tc.want {
				t.Fatalf("sniff = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSniffContainerReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mkv")
	head := append([]byte{0x1a, 0x45, 0xdf, 0xa3}, make([]byte, 100)...)
	if err := os.WriteFile(path, head, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := SniffContainer(path)
	if err != nil {
		t.Fatalf("SniffContainer: %v", err)
	}
	if got != ContainerMatroska {
		t.Fatalf("container = %q, want matroska", got)
	}

	if _, err := SniffContainer(filepath.Join(dir, "missing.mkv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
