// Package csvrows decodes exported chat logs into header-keyed rows.
package csvrows

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

var (
	// ErrEmptyInput is returned when the stream has no header row.
	ErrEmptyInput = errors.New("csv input has no header row")
	// ErrMalformedInput is returned when the stream is not valid UTF-8 text.
	ErrMalformedInput = errors.New("csv input is not valid UTF-8")
)

// DecodeError locates a record that could not be decoded.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode csv line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Reader yields one Row per data record, in file order. Records are decoded
// on demand; nothing past the current record is buffered beyond bufio.
type Reader struct {
	csv    *csv.Reader
	header []Column
	err    error
}

// NewReader wraps r. A leading UTF-8 byte order mark is dropped. Input that
// is not UTF-8, UTF-16 included, fails with a DecodeError wrapping
// ErrMalformedInput at the line of the first bad byte.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(newSource(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &Reader{csv: cr}
}

func newSource(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &utf8Source{r: transform.NewReader(br, encoding.UTF8Validator)}
}

// utf8Source passes through valid UTF-8 and counts the newlines it has
// released, so a validation failure can name its line.
type utf8Source struct {
	r     io.Reader
	lines int
}

func (s *utf8Source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.lines += bytes.Count(p[:n], []byte{'\n'})
	if errors.Is(err, encoding.ErrInvalidUTF8) {
		err = &DecodeError{Line: s.lines + 1, Err: ErrMalformedInput}
	}
	return n, err
}

// Header returns the column names, reading the header record if needed.
func (r *Reader) Header() ([]Column, error) {
	if r.header != nil || r.err != nil {
		return r.header, r.err
	}
	record, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		r.err = ErrEmptyInput
		return nil, r.err
	}
	if err != nil {
		r.err = r.decodeError(err)
		return nil, r.err
	}
	r.header = make([]Column, len(record))
	for i, name := range record {
		r.header[i] = Column(name)
	}
	return r.header, nil
}

// Next returns the next data row, or io.EOF after the last one.
func (r *Reader) Next() (Row, error) {
	header, err := r.Header()
	if err != nil {
		return nil, err
	}
	record, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		r.err = r.decodeError(err)
		return nil, r.err
	}

	// Positional zip: missing trailing fields stay absent, extra fields are dropped.
	row := make(Row, len(header))
	for i, col := range header {
		if i >= len(record) {
			break
		}
		row[col] = record[i]
	}
	return row, nil
}

// All ranges over the remaining rows. Iteration stops after the first error,
// which is yielded with a nil Row.
func (r *Reader) All() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			row, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

func (r *Reader) decodeError(err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return de
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &DecodeError{Line: pe.Line, Err: err}
	}
	return fmt.Errorf("read csv: %w", err)
}
