package coverage

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseReport extracts per-line execution counts from a gcov report.
// Each report line contributes one entry: the leading token, stripped
// of its trailing ':' and gcov's '*' marker, if it is a decimal count,
// and 0 otherwise ("-", "#####", "=====", blank lines).
func ParseReport(r io.Reader) ([]uint64, error) {
	var counts []uint64
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		counts = append(counts, lineCount(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading coverage report")
	}
	return counts, nil
}

func lineCount(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}
	tok := fields[0]
	if i := strings.IndexByte(tok, ':'); i >= 0 {
		tok = tok[:i]
	}
	tok = strings.TrimSuffix(tok, "*")
	n, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ReadSnapshot parses every report in paths into a Snapshot keyed by
// report path.
func ReadSnapshot(paths []string) (Snapshot, error) {
	s := make(Snapshot, len(paths))
	for _, path := range paths {
		counts, err := readReport(path)
		if err != nil {
			return nil, err
		}
		s[path] = counts
	}
	return s, nil
}

func readReport(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening coverage report %s", path)
	}
	defer f.Close()
	counts, err := ParseReport(f)
	return counts, errors.Wrapf(err, "parsing %s", path)
}
