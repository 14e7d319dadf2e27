// Package csv implements the chunked stream reader for delimited source
// extracts. It reads a file in bounded row windows: memory use is one chunk
// regardless of source size. Columns are resolved by header name, never by
// position, so schema drift in the extracts degrades to NULL fields instead
// of failing a load.
package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// Options tunes one streaming read.
type Options struct {
	// ChunkSize is the maximum rows per emitted chunk. <= 0 uses 50000, the
	// window size the extracts are profiled against.
	ChunkSize int
	// Offset skips the first Offset data rows (header excluded); used by
	// partitioned reads.
	Offset int
	// NRows caps the number of data rows read after Offset. 0 = no cap.
	NRows int
	// Comma overrides the field delimiter. Zero value means ','.
	Comma rune
	// OnRowErr receives recoverable per-row parse errors (soft-drop). The
	// line number is 1-based including the header.
	OnRowErr func(line int, err error)
}

// Chunk is one bounded window of raw rows. Col maps canonical header names
// to field positions in Rows; a header missing from the source is simply
// absent from Col.
type Chunk struct {
	Col   map[string]int
	Rows  [][]string
	Start int // absolute index of Rows[0] among the source's data rows
}

// Field returns the trimmed value of the named column in row, or "" when the
// column is absent or the row is short.
func (c *Chunk) Field(row []string, name string) string {
	i, ok := c.Col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// HasColumn reports whether the source carries the named column. Format
// detection for accident sub-layouts keys off this.
func (c *Chunk) HasColumn(name string) bool {
	_, ok := c.Col[name]
	return ok
}

// foldHeader canonicalizes one header cell: diacritics folded away, edges
// trimmed, lowered, inner spaces to underscores.
var foldHeader = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func canonicalHeader(h string) string {
	h = strings.TrimPrefix(strings.TrimSpace(h), utf8BOM)
	if folded, _, err := transform.String(foldHeader, h); err == nil {
		h = folded
	}
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// Stream reads the file at path in chunks and invokes fn for each non-empty
// chunk. The same Chunk value is reused between calls; fn must not retain it.
//
// An unopenable file or an unreadable header row is fatal and returned
// immediately: the shape of the source cannot be validated from partial
// data. Individual malformed rows are reported through opt.OnRowErr and
// skipped. fn returning an error aborts the stream with that error.
func Stream(ctx context.Context, path string, opt Options, fn func(*Chunk) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	chunkSize := opt.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50000
	}
	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(bufio.NewReaderSize(f, 1<<20))
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1 // tolerant: short rows map to NULLs
	cr.LazyQuotes = true

	line := 0
	read := func() ([]string, error) { line++; return cr.Read() }

	hdr, err := read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(hdr))
	for i, h := range hdr {
		if name := canonicalHeader(h); name != "" {
			col[name] = i
		}
	}

	chunk := &Chunk{Col: col, Rows: make([][]string, 0, chunkSize)}
	rowIdx := 0 // absolute data-row index
	emitted := 0

	flush := func() error {
		if len(chunk.Rows) == 0 {
			return nil
		}
		chunk.Start = rowIdx - len(chunk.Rows)
		if err := fn(chunk); err != nil {
			return err
		}
		chunk.Rows = chunk.Rows[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := read()
		if errors.Is(err, io.EOF) {
			return flush()
		}
		if err != nil {
			if opt.OnRowErr != nil {
				opt.OnRowErr(line, err)
			}
			continue
		}

		if rowIdx < opt.Offset {
			rowIdx++
			continue
		}
		if opt.NRows > 0 && emitted >= opt.NRows {
			return flush()
		}

		// ReuseRecord means rec is only valid until the next Read; copy.
		row := make([]string, len(rec))
		copy(row, rec)
		chunk.Rows = append(chunk.Rows, row)
		rowIdx++
		emitted++

		if len(chunk.Rows) >= chunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// CountRows counts the data rows in the file (header excluded). The count
// feeds progress reporting and partition scheduling. Rows are physical
// lines, an upper bound on CSV records when quoted fields embed newlines;
// over-counting only pads the final partition, which reads to EOF anyway.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<24)
	n := 0
	for sc.Scan() {
		n++
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil // exclude header
}
