// Package tail reads only the bytes appended to a file since the last read.
//
// A Target records the watched path and the byte offset already consumed.
// Reader.ReadNew opens the file, seeks to the offset, reads to end-of-file and
// returns the new content split into lines with the newline stripped. A final
// line without a trailing newline is returned too, and the offset moves past
// it, so a later append continues from the byte after it.
//
// The offset only moves forward, with two exceptions: Target.Reset (called by
// the detector when the file is recreated) and truncation in place, where the
// file is found shorter than the offset and reading restarts at zero.
//
// Reader works against an afero.Fs so tests can run on an in-memory
// filesystem; production code uses afero.NewOsFs().
package tail
