package tail

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
)

const readBufSize = 64 << 10

// Target is the watched file and how much of it has been consumed.
//
// Offset has a single writer, the goroutine that runs the detector callbacks.
// Nothing else reads it, so it carries no lock.
type Target struct {
	Path   string
	Offset uint64

	// Truncations counts how many times the file was found shorter than Offset.
	Truncations int
}

// NewTarget returns a Target for path positioned at the start of the file.
func NewTarget(path string) *Target {
	return &Target{Path: path}
}

// Reset rewinds the target to the start of the file.
func (t *Target) Reset() {
	t.Offset = 0
}

// Reader reads appended content from a Target's file.
type Reader struct {
	fs afero.Fs
}

// NewReader returns a Reader on fs. A nil fs means the real filesystem.
func NewReader(fs afero.Fs) *Reader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Reader{fs: fs}
}

// ReadNew returns the lines appended since t.Offset and advances t.Offset
// past them. A missing file is returned as an error wrapping fs.ErrNotExist
// and leaves t unchanged.
func (r *Reader) ReadNew(t *Target) ([]string, error) {
	var lines []string
	_, err := r.Stream(t, func(line string) {
		lines = append(lines, line)
	})
	return lines, err
}

// Stream calls fn for each line appended since t.Offset, in file order, and
// returns how many it passed. Lines are read one at a time so memory stays
// bounded by the longest line rather than by how much was appended. A final
// partial line without a newline is passed too. t.Offset advances past every
// byte handed to fn, including on a read error.
func (r *Reader) Stream(t *Target, fn func(line string)) (int, error) {
	f, err := r.fs.Open(t.Path)
	if err != nil {
		return 0, fmt.Errorf("tail: open %q: %w", t.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("tail: stat %q: %w", t.Path, err)
	}
	if uint64(info.Size()) < t.Offset {
		slog.Warn("tail: file shrank below offset, reading from start",
			"path", t.Path, "offset", t.Offset, "size", info.Size())
		t.Offset = 0
		t.Truncations++
	}

	if _, err := f.Seek(int64(t.Offset), io.SeekStart); err != nil {
		return 0, fmt.Errorf("tail: seek %q: %w", t.Path, err)
	}

	br := bufio.NewReaderSize(f, readBufSize)
	n := 0
	for {
		raw, err := br.ReadString('\n')
		if len(raw) > 0 {
			t.Offset += uint64(len(raw))
			fn(cleanLine(raw))
			n++
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("tail: read %q: %w", t.Path, err)
		}
	}
}

// SkipToEnd moves t.Offset to the current end of the file without reading it.
func (r *Reader) SkipToEnd(t *Target) error {
	f, err := r.fs.Open(t.Path)
	if err != nil {
		return fmt.Errorf("tail: open %q: %w", t.Path, err)
	}
	defer f.Close()

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("tail: seek %q: %w", t.Path, err)
	}
	t.Offset = uint64(end)
	return nil
}

// cleanLine strips the line terminator, a carriage return before it, and
// invalid UTF-8 sequences.
func cleanLine(raw string) string {
	raw = strings.TrimSuffix(raw, "\n")
	raw = strings.TrimSuffix(raw, "\r")
	return strings.ToValidUTF8(raw, "")
}
