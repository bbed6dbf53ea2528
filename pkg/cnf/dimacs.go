package cnf

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// CommentPrefix marks comment lines in DIMACS text.
	CommentPrefix = 'c'
	// maxLineSize bounds a single clause line. Generated clauses over
	// 20000 variables can exceed a hundred kilobytes.
	maxLineSize = 64 * 1024 * 1024

	maxClauseHint = 1 << 16

	garbageAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxGarbageLen   = 20
)

// ErrMissingHeader is returned by Parse when no problem line precedes
// the clauses.
var ErrMissingHeader = errors.New("missing 'p cnf' problem line")

// Header returns the canonical DIMACS problem line.
func Header(variables, clauses int) string {
	return fmt.Sprintf("p cnf %d %d", variables, clauses)
}

// MalformedHeader returns one of several deliberately corrupted problem
// lines: a wrong problem letter, a wrong format token, transposed
// fields, a duplicated token, or a random alphanumeric string.
func MalformedHeader(rnd *rand.Rand, variables, clauses int) string {
	switch {
	case rnd.Float64() > 0.2:
		return fmt.Sprintf("q cnf %d %d", variables, clauses)
	case rnd.Float64() > 0.3:
		return fmt.Sprintf("p dnf %d %d", variables, clauses)
	case rnd.Float64() > 0.2:
		return fmt.Sprintf("%d %d p cnf", variables, clauses)
	case rnd.Float64() > 0.2:
		return fmt.Sprintf("p p cnf %d %d", variables, clauses)
	default:
		b := make([]byte, rnd.Intn(maxGarbageLen+1))
		for i := range b {
			b[i] = garbageAlphabet[rnd.Intn(len(garbageAlphabet))]
		}
		return string(b)
	}
}

// Encoder writes formulas as DIMACS text. Malformed formulas get a
// freshly randomized header on every call to Encode.
type Encoder struct {
	w   *bufio.Writer
	rnd *rand.Rand
}

func NewEncoder(w io.Writer, rnd *rand.Rand) *Encoder {
	return &Encoder{w: bufio.NewWriter(w), rnd: rnd}
}

func (e *Encoder) Encode(f *Formula) error {
	header := Header(f.variables, len(f.clauses))
	if f.malformed {
		header = MalformedHeader(e.rnd, f.variables, len(f.clauses))
	}
	if _, err := e.w.WriteString(header + "\n"); err != nil {
		return errors.Wrap(err, "writing header")
	}
	var line strings.Builder
	for _, c := range f.clauses {
		line.Reset()
		writeClause(&line, c)
		if _, err := e.w.WriteString(line.String()); err != nil {
			return errors.Wrap(err, "writing clause")
		}
	}
	return errors.Wrap(e.w.Flush(), "flushing formula")
}

// Encode is a convenience wrapper returning the encoded bytes of f.
func Encode(f *Formula, rnd *rand.Rand) []byte {
	var b strings.Builder
	// strings.Builder never returns write errors.
	_ = NewEncoder(&b, rnd).Encode(f)
	return []byte(b.String())
}

// Parse reads a DIMACS CNF formula. Leading comment and blank lines are
// skipped, the problem line supplies the declared counts, and the
// remaining integers are consumed greedily into 0-terminated clauses. A
// trailing clause without its terminator is kept, and a line starting
// with '%' ends the input. If a literal exceeds the declared variable
// count, the variable count is raised to match.
func Parse(r io.Reader) (*Formula, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		seenHeader bool
		variables  int
		declared   int
		clauses    []Clause
		current    Clause
		lineNo     int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == CommentPrefix {
			continue
		}
		if line[0] == '%' {
			break
		}
		if !seenHeader {
			fields := strings.Fields(line)
			if len(fields) != 4 || fields[0] != "p" || fields[1] != "cnf" {
				return nil, errors.Wrapf(ErrMissingHeader, "line %d: got %q", lineNo, line)
			}
			var err error
			if variables, err = strconv.Atoi(fields[2]); err != nil || variables < 0 {
				return nil, errors.Errorf("line %d: invalid variable count %q", lineNo, fields[2])
			}
			if declared, err = strconv.Atoi(fields[3]); err != nil || declared < 0 {
				return nil, errors.Errorf("line %d: invalid clause count %q", lineNo, fields[3])
			}
			// The declared count is untrusted, so it is only a bounded hint.
			clauses = make([]Clause, 0, min(declared, maxClauseHint))
			seenHeader = true
			continue
		}
		for _, tok := range strings.Fields(line) {
			v, err := strconv.Atoi(tok)
			if err != nil {
				return nil, errors.Errorf("line %d: non-integer token %q", lineNo, tok)
			}
			if v == 0 {
				if current == nil {
					current = Clause{}
				}
				clauses = append(clauses, current)
				current = nil
				continue
			}
			l := Literal(v)
			if l.Var() > variables {
				variables = l.Var()
			}
			current = append(current, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading dimacs input")
	}
	if !seenHeader {
		return nil, ErrMissingHeader
	}
	if len(current) > 0 {
		clauses = append(clauses, current)
	}
	return adopt(variables, clauses), nil
}
