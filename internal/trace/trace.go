// Package trace reads and writes GPU port traces.
//
// A trace is line-oriented text:
//
//	# comment
//	gp1 08000001
//	gp0 e1000000
//	gp0 02ff0000 00000000 00f000f0
//	read 4
//	frame
//
// Words are hexadecimal with an optional 0x prefix.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSyntax reports a malformed trace line.
var ErrSyntax = errors.New("trace: syntax error")

// Kind identifies a record.
type Kind uint8

const (
	GP0 Kind = iota + 1
	GP1
	Read
	Frame
)

var kindNames = [...]string{GP0: "gp0", GP1: "gp1", Read: "read", Frame: "frame"}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Record is one trace line.
type Record struct {
	Kind  Kind
	Words []uint32 // GP0 and GP1
	Count int      // Read
	Line  int
}

// Reader parses records from a trace.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	return &Reader{sc: sc}
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	for r.sc.Scan() {
		r.line++
		text := r.sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		rec, err := parse(fields)
		if err != nil {
			return Record{}, fmt.Errorf("%w: line %d: %v", ErrSyntax, r.line, err)
		}
		rec.Line = r.line
		return rec, nil
	}
	if err := r.sc.Err(); err != nil {
		return Record{}, fmt.Errorf("trace: line %d: %w", r.line+1, err)
	}
	return Record{}, io.EOF
}

func parse(fields []string) (Record, error) {
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case "gp0":
		if len(args) == 0 {
			return Record{}, errors.New("gp0 needs at least one word")
		}
		words, err := parseWords(args)
		return Record{Kind: GP0, Words: words}, err
	case "gp1":
		if len(args) != 1 {
			return Record{}, errors.New("gp1 takes one word")
		}
		words, err := parseWords(args)
		return Record{Kind: GP1, Words: words}, err
	case "read":
		if len(args) != 1 {
			return Record{}, errors.New("read takes a count")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return Record{}, fmt.Errorf("bad read count %q", args[0])
		}
		return Record{Kind: Read, Count: n}, nil
	case "frame":
		if len(args) != 0 {
			return Record{}, errors.New("frame takes no arguments")
		}
		return Record{Kind: Frame}, nil
	}
	return Record{}, fmt.Errorf("unknown record %q", fields[0])
}

func parseWords(args []string) ([]uint32, error) {
	words := make([]uint32, len(args))
	for i, a := range args {
		a = strings.TrimPrefix(strings.TrimPrefix(a, "0x"), "0X")
		v, err := strconv.ParseUint(a, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("bad word %q", args[i])
		}
		words[i] = uint32(v)
	}
	return words, nil
}

// Writer emits records in trace format.
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a Writer to w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// GP0 writes one gp0 record holding words.
func (w *Writer) GP0(words ...uint32) error {
	if len(words) == 0 {
		return nil
	}
	w.w.WriteString("gp0")
	for _, v := range words {
		fmt.Fprintf(w.w, " %08x", v)
	}
	return w.w.WriteByte('\n')
}

// GP1 writes one gp1 record.
func (w *Writer) GP1(v uint32) error {
	_, err := fmt.Fprintf(w.w, "gp1 %08x\n", v)
	return err
}

// Read writes a read record for n words.
func (w *Writer) Read(n int) error {
	_, err := fmt.Fprintf(w.w, "read %d\n", n)
	return err
}

// Frame writes a frame marker.
func (w *Writer) Frame() error {
	_, err := w.w.WriteString("frame\n")
	return err
}

// Comment writes a comment line.
func (w *Writer) Comment(s string) error {
	_, err := fmt.Fprintf(w.w, "# %s\n", strings.ReplaceAll(s, "\n", " "))
	return err
}

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
