package acquire

import (
	"io"
	"log/slog"
	"testing"

	"streamgate/internal/domain/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFile struct {
	name       string
	size       int64
	selected   bool
	deselected bool
	raised     bool
}

func (f *fakeFile) Name() string   { return f.name }
func (f *fakeFile) Size() int64    { return f.size }
func (f *fakeFile) Select()        { f.selected = true }
func (f *fakeFile) Deselect()      { f.deselected = true }
func (f *fakeFile) RaisePriority() { f.raised = true }

// minimalFile implements only the required capability surface.
type minimalFile struct {
	name string
	size int64
}

func (f *minimalFile) Name() string { return f.name }
func (f *minimalFile) Size() int64  { return f.size }
func (f *minimalFile) Select()      {}

func wrap(files ...*fakeFile) []ports.TorrentFile {
	out := make([]ports.TorrentFile, len(files))
	for i, f := range files {
		out[i] = f
	}
	return out
}

func TestSelectVideoFile(t *testing.T) {
	const mib = 1 << 20

	cases := []struct {
		name  string
		files []*fakeFile
		want  int
	}{
		{
			name: "largest video wins",
			files: []*fakeFile{
				{name: "movie.720p.mkv", size: 800 * mib},
				{name: "movie.1080p.mkv", size: 1500 * mib},
				{name: "readme.txt", size: 1 * mib},
			},
			want: 1,
		},
		{
			name: "sample excluded even when large",
			files: []*fakeFile{
				{name: "Sample.mp4", size: 40 * mib},
				{name: "movie.mkv", size: 1536 * mib},
			},
			want: 1,
		},
		{
			name: "trailer and bonus material excluded",
			files: []*fakeFile{
				{name: "Trailer.mp4", size: 90 * mib},
				{name: "behind-the-scenes.mkv", size: 200 * mib},
				{name: "feature.avi", size: 120 * mib},
			},
			want: 2,
		},
		{
			name: "small file fallback",
			files: []*fakeFile{
				{name: "short.mp4", size: 9 * mib},
			},
			want: 0,
		},
		{
			name: "prefers ten mib over larger set of small files",
			files: []*fakeFile{
				{name: "clip1.mp4", size: 2 * mib},
				{name: "clip2.mp4", size: 12 * mib},
				{name: "clip3.mp4", size: 5 * mib},
			},
			want: 1,
		},
		{
			name: "extension is case-insensitive",
			files: []*fakeFile{
				{name: "MOVIE.MKV", size: 700 * mib},
			},
			want: 0,
		},
		{
			name: "no media",
			files: []*fakeFile{
				{name: "notes.txt", size: 1 * mib},
				{name: "cover.jpg", size: 2 * mib},
			},
			want: -1,
		},
		{
			name: "only junk",
			files: []*fakeFile{
				{name: "sample.mkv", size: 50 * mib},
			},
			want: -1,
		},
		{
			name:  "empty torrent",
			files: nil,
			want:  -1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectVideoFile(wrap(tc.files...)); got != tc.want {
				t.Fatalf("SelectVideoFile = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestApplySelection(t *testing.T) {
	winner := &fakeFile{name: "movie.mkv", size: 1 << 30}
	loser := &fakeFile{name: "extras.mp4", size: 1 << 20}
	files := wrap(winner, loser)

	applySelection(files, 0, discardLogger())

	if !winner.selected {
		t.Fatal("winner not selected")
	}
	if !winner.raised {
		t.Fatal("winner priority not raised")
	}
	if winner.deselected {
		t.Fatal("winner must not be deselected")
	}
	if !loser.deselected {
		t.Fatal("loser not deselected")
	}
	if loser.selected {
		t.Fatal("loser must not be selected")
	}
}

func TestApplySelectionToleratesMissingCapabilities(t *testing.T) {
	files := []ports.TorrentFile{
		&minimalFile{name: "movie.mkv", size: 1 << 30},
		&minimalFile{name: "extras.mp4", size: 1 << 20},
	}
	// Must not panic when the engine implements neither Deselect nor
	// RaisePriority.
	applySelection(files, 0, discardLogger())
}

func TestIsVideoFile(t *testing.T) {
	yes := []string{"a.mp4", "b.MKV", "dir/c.webm", "d.m2ts"}
	no := []string{"a.srt", "b.nfo", "c", "d.mp3"}
	for _, name := range yes {
		if !IsVideoFile(name) {
			t.Errorf("IsVideoFile(%q) = false, want true", name)
		}
	}
	for _, name := range no {
		if IsVideoFile(name) {
			t.Errorf("IsVideoFile(%q) = true, want false", name)
		}
	}
}
