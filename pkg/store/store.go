package store

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/otiai10/copy"
	"github.com/pkg/errors"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/sanitizer"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

const (
	interestingDir = "interesting"
	sanitizerDir   = "ub"
	funcDir        = "func"
	violationsDir  = "violations"

	formulaExt  = ".cnf"
	findingsExt = ".findings"
	relationExt = ".txt"
	seedName    = "seed" + formulaExt
)

// Store persists test cases under a root directory:
//
//	interesting/<slot>.cnf
//	ub/<slot>.cnf, ub/<slot>.findings
//	func/<seed>/seed.cnf, func/<seed>/<i>.cnf, func/<seed>/<i>.txt
//	func/<seed>/violations/<i>.cnf
//
// Slots are pool indices, so an evicted entry's files are overwritten
// by its replacement.
type Store struct {
	root string
	rnd  *rand.Rand
}

// New returns a Store rooted at root, creating it if needed. rnd
// randomizes the headers of malformed formulas.
func New(root string, rnd *rand.Rand) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, interestingDir), filepath.Join(root, sanitizerDir), filepath.Join(root, funcDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating %s", dir)
		}
	}
	return &Store{root: root, rnd: rnd}, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) writeFormula(path string, f *cnf.Formula) error {
	return errors.Wrapf(os.WriteFile(path, cnf.Encode(f, s.rnd), 0o644), "writing %s", path)
}

// WriteInteresting persists an interesting-pool entry at slot.
func (s *Store) WriteInteresting(slot int, f *cnf.Formula) (string, error) {
	path := filepath.Join(s.root, interestingDir, fmt.Sprintf("%d%s", slot, formulaExt))
	return path, s.writeFormula(path, f)
}

// WriteSanitizer persists a sanitizer-pool entry and its findings at
// slot.
func (s *Store) WriteSanitizer(slot int, f *cnf.Formula, findings sanitizer.Findings) (string, error) {
	base := filepath.Join(s.root, sanitizerDir, fmt.Sprint(slot))
	if err := s.writeFormula(base+formulaExt, f); err != nil {
		return "", err
	}
	path := base + findingsExt
	if err := os.WriteFile(path, []byte(findings.String()), 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	return base + formulaExt, nil
}

// SeedDir returns the func-mode output directory of a seed file.
func (s *Store) SeedDir(seedPath string) string {
	name := strings.TrimSuffix(filepath.Base(seedPath), filepath.Ext(seedPath))
	return filepath.Join(s.root, funcDir, name)
}

// CopySeed copies the seed file next to its follow-ups.
func (s *Store) CopySeed(seedPath string) error {
	dir := s.SeedDir(seedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	return errors.Wrapf(copy.Copy(seedPath, filepath.Join(dir, seedName)), "copying seed %s", seedPath)
}

// WriteFollowUp persists the i-th follow-up of a seed with its
// predicted relation.
func (s *Store) WriteFollowUp(seedPath string, i int, f *cnf.Formula, rel transform.Relation) error {
	dir := s.SeedDir(seedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	base := filepath.Join(dir, fmt.Sprint(i))
	if err := s.writeFormula(base+formulaExt, f); err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(base+relationExt, []byte(rel.String()), 0o644), "writing relation for %s", base)
}

// WriteViolation persists a follow-up whose verdict contradicted its
// prediction, with a note describing the contradiction.
func (s *Store) WriteViolation(seedPath string, i int, f *cnf.Formula, note string) error {
	dir := filepath.Join(s.SeedDir(seedPath), violationsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	base := filepath.Join(dir, fmt.Sprint(i))
	if err := s.writeFormula(base+formulaExt, f); err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(base+relationExt, []byte(note+"\n"), 0o644), "writing violation note for %s", base)
}

// Seeds lists the DIMACS files of a seed corpus. path may be a single
// file or a directory, which is read non-recursively.
func Seeds(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading seed corpus")
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(err, "listing seed corpus")
	}
	var seeds []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), formulaExt) {
			continue
		}
		seeds = append(seeds, filepath.Join(path, e.Name()))
	}
	sort.Strings(seeds)
	return seeds, nil
}

// ReadFormula parses the DIMACS file at path.
func ReadFormula(path string) (*cnf.Formula, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening formula")
	}
	defer f.Close()
	formula, err := cnf.Parse(f)
	return formula, errors.Wrapf(err, "parsing %s", path)
}
