package packager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

func testPackager() *Packager {
	return New(Config{
		FFmpegPath: "ffmpeg",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestBuildArgsStreamCopy(t *testing.T) {
	args := buildArgs("/data/movie.mkv", ModeStreamCopy)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-c copy",
		"-f hls",
		"-hls_time 10",
		"-hls_list_size 6",
		"-hls_flags delete_segments+append_list",
		"-hls_segment_filename segment%03d.ts",
		"-fflags +genpts",
		"-avoid_negative_ts make_zero",
		"-progress pipe:1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if strings.Contains(joined, "libx264") {
		t.Error("stream copy must not re-encode")
	}
	if strings.Contains(joined, "faststart") {
		t.Error("faststart applies to MP4-family inputs only")
	}
	if args[len(args)-1] != "playlist.m3u8" {
		t.Errorf("last arg = %q, want playlist.m3u8", args[len(args)-1])
	}
}

func TestBuildArgsReEncode(t *testing.T) {
	args := buildArgs("/data/movie.avi", ModeReEncode)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-c:v libx264",
		"-preset ultrafast",
		"-crf 28",
		"-c:a aac",
		"-hls_time 10",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if strings.Contains(joined, "-c copy") {
		t.Error("re-encode must not stream copy")
	}
}

func TestBuildArgsFastStartForMP4(t *testing.T) {
	for _, input := range []string{"/d/a.mp4", "/d/b.MOV", "/d/c.m4v"} {
		joined := strings.Join(buildArgs(input, ModeStreamCopy), " ")
		if !strings.Contains(joined, "-movflags +faststart") {
			t.Errorf("faststart missing for %s", input)
		}
	}
}

func TestClassifyExit(t *testing.T) {
	background := context.Background()
	waitErr := errors.New("exit status 1")

	cases := []struct {
		name   string
		stderr string
		want   error
	}{
		{"invalid data", "movie.mkv: Invalid data found when processing input", domain.ErrFileNotReady},
		{"error opening input", "Error opening input file movie.mkv", domain.ErrFileNotReady},
		{"moov atom", "moov atom not found", domain.ErrFileNotReady},
		{"codec", "Could not find codec parameters for stream 0", domain.ErrCodec},
		{"format", "Unable to find a suitable output format", domain.ErrCodec},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyExit(background, waitErr, tc.stderr)
			if !errors.Is(got, tc.want) {
				t.Fatalf("classifyExit(%q) = %v, want kind %v", tc.stderr, got, tc.want)
			}
		})
	}

	// Unrecognised stderr stays fatal: it must not match a recoverable kind.
	fatal := classifyExit(background, waitErr, "Conversion failed!")
	if errors.Is(fatal, domain.ErrFileNotReady) || errors.Is(fatal, domain.ErrCodec) {
		t.Fatalf("unknown stderr classified as recoverable: %v", fatal)
	}

	cancelled, cancel := context.WithCancel(background)
	cancel()
	if got := classifyExit(cancelled, waitErr, "anything"); !errors.Is(got, domain.ErrCancelled) {
		t.Fatalf("cancelled context = %v, want ErrCancelled", got)
	}
}

func TestConvertRejectsMissingInput(t *testing.T) {
	p := testPackager()
	dir := t.TempDir()

	err := p.Convert(context.Background(), "s", filepath.Join(dir, "missing.mkv"), dir, ports.PackagerEvents{})
	if !errors.Is(err, domain.ErrFileNotReady) {
		t.Fatalf("Convert(missing input) = %v, want ErrFileNotReady", err)
	}
}

func TestConvertRejectsTinyInput(t *testing.T) {
	p := testPackager()
	dir := t.TempDir()
	input := filepath.Join(dir, "tiny.mkv")
	if err := os.WriteFile(input, make([]byte, 1024), 0o644); err != nil {
		t.Fatal(err)
	}

	err := p.Convert(context.Background(), "s", input, dir, ports.PackagerEvents{})
	if !errors.Is(err, domain.ErrFileNotReady) {
		t.Fatalf("Convert(tiny input) = %v, want ErrFileNotReady", err)
	}
}

func TestOutputsExist(t *testing.T) {
	dir := t.TempDir()
	if outputsExist(dir) {
		t.Fatal("empty dir should not count as output")
	}
	if err := os.WriteFile(filepath.Join(dir, "playlist.m3u8"), []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if outputsExist(dir) {
		t.Fatal("playlist without segments should not count")
	}
	if err := os.WriteFile(filepath.Join(dir, "segment000.ts"), []byte{0x47}, 0o644); err != nil {
		t.Fatal(err)
	}
	if !outputsExist(dir) {
		t.Fatal("playlist plus segment should count")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p := testPackager()
	p.Stop("never-started")
	p.Stop("never-started")
	if got := len(p.Active()); got != 0 {
		t.Fatalf("Active() = %d entries, want 0", got)
	}
}
