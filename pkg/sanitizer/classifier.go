package sanitizer

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ==1234==ERROR: AddressSanitizer: heap-buffer-overflow on address 0x602000000014 at pc 0x4f3a2b bp ...
	asanBanner = regexp.MustCompile(`ERROR: AddressSanitizer: ([a-z-]+) on (?:unknown )?address (0x[0-9a-fA-F]+)(?: at pc (0x[0-9a-fA-F]+))?`)
	// #0 0x4f3a2b in parse_clause /src/solver/parse.c:123:5
	asanFrame = regexp.MustCompile(`^\s*#0 0x[0-9a-fA-F]+ in \S+ (\S+)`)
	// /src/solver/parse.c:123:5: runtime error: signed integer overflow: ...
	ubsanLine = regexp.MustCompile(`^\s*(\S+:\d+(?::\d+)?): runtime error: (.+)$`)
)

// maxLogLine bounds how much of a single log line is matched.
const maxLogLine = 64 * 1024

var knownAddressKinds = func() map[Kind]struct{} {
	m := make(map[Kind]struct{}, len(AddressKinds))
	for _, k := range AddressKinds {
		m[k] = struct{}{}
	}
	return m
}()

// Parse extracts findings from a sanitizer log. AddressSanitizer
// findings are located by the source position of the first stack frame
// following the banner, falling back to the faulting pc and then to the
// accessed address. Banners of unsupported kinds are skipped. Lines
// longer than maxLogLine are matched on their prefix only.
func Parse(r io.Reader) (Findings, error) {
	var (
		out     Findings
		pending *Finding
	)
	flush := func() {
		if pending != nil {
			out = append(out, *pending)
			pending = nil
		}
	}

	rd := bufio.NewReaderSize(r, maxLogLine)
	for {
		line, err := readLine(rd)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading sanitizer log")
		}
		if m := asanBanner.FindStringSubmatch(line); m != nil {
			flush()
			kind := Kind(m[1])
			if _, ok := knownAddressKinds[kind]; !ok {
				continue
			}
			location := m[2]
			if m[3] != "" {
				location = m[3]
			}
			pending = &Finding{Kind: kind, Location: location}
			continue
		}
		if pending != nil {
			if m := asanFrame.FindStringSubmatch(line); m != nil {
				pending.Location = m[1]
				flush()
				continue
			}
		}
		if m := ubsanLine.FindStringSubmatch(line); m != nil {
			flush()
			out = append(out, Finding{Kind: UndefinedBehavior(m[2]), Location: m[1]})
		}
	}
	flush()
	return out, nil
}

// readLine returns the next line of rd without its terminator,
// truncated to maxLogLine bytes. The remainder of a longer line is
// discarded.
func readLine(rd *bufio.Reader) (string, error) {
	chunk, more, err := rd.ReadLine()
	if err != nil {
		return "", err
	}
	line := string(chunk)
	for more {
		if _, more, err = rd.ReadLine(); err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
	}
	return line, nil
}

// Crashed reports whether the log contains a sanitizer summary or a
// deadly signal report, even if no finding could be classified.
func Crashed(log string) bool {
	return strings.Contains(log, "SUMMARY: ") || strings.Contains(log, "AddressSanitizer:DEADLYSIGNAL")
}
