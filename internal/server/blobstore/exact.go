package blobstore

import (
	"errors"
	"fmt"
	"io"
)

// ErrContentOverrun is reported when a source yields more bytes than declared.
var ErrContentOverrun = errors.New("content longer than declared size")

// ContentReader is a payload source bounded to a declared size. Err returns
// the first failure seen while reading (short read, overrun or an error from
// the underlying reader), or nil.
type ContentReader interface {
	io.Reader
	Err() error
}

// ExactReader bounds r to exactly size bytes. A source that ends early makes
// Read fail with io.ErrUnexpectedEOF; one that keeps going past size fails
// with ErrContentOverrun. When r is an io.ReadSeeker the result is seekable
// too, which lets the S3 client rewind the body to hash it.
func ExactReader(r io.Reader, size int64) ContentReader {
	if rs, ok := r.(io.ReadSeeker); ok {
		return &exactReadSeeker{exactReader: exactReader{r: rs, size: size}, rs: rs}
	}
	return &exactReader{r: r, size: size}
}

type exactReader struct {
	r    io.Reader
	size int64
	pos  int64
	err  error
}

func (e *exactReader) Err() error { return e.err }

func (e *exactReader) fail(err error) error {
	if e.err == nil {
		e.err = err
	}
	return err
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}

	remaining := e.size - e.pos
	if remaining <= 0 {
		// peek one byte to catch sources longer than declared
		var peek [1]byte
		n, err := e.r.Read(peek[:])
		if n > 0 {
			return 0, e.fail(fmt.Errorf("%w: declared %d bytes", ErrContentOverrun, e.size))
		}
		if err == nil || err == io.EOF {
			return 0, io.EOF
		}
		return 0, e.fail(err)
	}

	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := e.r.Read(p)
	e.pos += int64(n)

	switch {
	case err == io.EOF && e.pos < e.size:
		return n, e.fail(io.ErrUnexpectedEOF)
	case err == io.EOF:
		// exact length reached; the next call checks for trailing bytes
		return n, nil
	case err != nil:
		return n, e.fail(err)
	}
	return n, nil
}

type exactReadSeeker struct {
	exactReader
	rs io.ReadSeeker
}

// Seek rewinds or moves within the declared window. io.SeekEnd is relative to
// the declared size, not to the underlying source.
func (e *exactReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = e.pos + offset
	case io.SeekEnd:
		abs = e.size + offset
	default:
		return 0, errors.New("blobstore: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("blobstore: negative position")
	}
	if _, err := e.rs.Seek(abs, io.SeekStart); err != nil {
		return 0, e.fail(err)
	}
	e.pos = abs
	return abs, nil
}
