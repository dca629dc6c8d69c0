package stream

import (
	"fmt"
	"io"
)

// ZipStream is a seekable cursor over a fixed-size byte source, used to walk
// large attachment exports (zip central directories live at the end of the
// file, so the consumer seeks backwards before reading).
type ZipStream struct {
	r    io.ReaderAt
	size int64
	pos  int64
}

func New(r io.ReaderAt, size int64) *ZipStream {
	return &ZipStream{r: r, size: size}
}

// Seek repositions the cursor with the usual io.SeekStart/SeekCurrent/SeekEnd
// semantics and returns the new absolute offset. Seeking past the end is
// legal; reads there return io.EOF.
func (s *ZipStream) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = s.pos + offset
	case io.SeekEnd:
		next = s.size + offset
	default:
		return 0, fmt.Errorf("invalid seek whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek to negative offset %d", next)
	}
	s.pos = next
	return next, nil
}

// Tell returns the current cursor position.
func (s *ZipStream) Tell() int64 { return s.pos }

// Size returns the total size of the underlying source.
func (s *ZipStream) Size() int64 { return s.size }

// ReadN reads exactly n bytes from the cursor, advancing it. n < 0 reads
// everything from the cursor to the end. Reading at or past the end returns
// io.EOF.
func (s *ZipStream) ReadN(n int64) ([]byte, error) {
	if s.pos >= s.size {
		return nil, io.EOF
	}
	remaining := s.size - s.pos
	if n < 0 || n > remaining {
		n = remaining
	}
	if n == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	read, err := s.r.ReadAt(buf, s.pos)
	s.pos += int64(read)
	if err != nil && err != io.EOF {
		return buf[:read], err
	}
	if int64(read) < n {
		return buf[:read], io.ErrUnexpectedEOF
	}
	return buf, nil
}

// Read implements io.Reader so a ZipStream can feed archive/zip style
// consumers directly.
func (s *ZipStream) Read(p []byte) (int, error) {
	if s.pos >= s.size {
		return 0, io.EOF
	}
	if max := s.size - s.pos; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := s.r.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}
