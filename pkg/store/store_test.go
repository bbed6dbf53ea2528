package store

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/sanitizer"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "out"), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return s
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestNewCreatesLayout(t *testing.T) {
	s := newStore(t)
	for _, dir := range []string{interestingDir, sanitizerDir, funcDir} {
		assert.DirExists(t, filepath.Join(s.Root(), dir))
	}
}

func TestWriteInteresting(t *testing.T) {
	s := newStore(t)
	f := cnf.New(2, []cnf.Clause{{1, -2}})

	path, err := s.WriteInteresting(3, f)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "interesting", "3.cnf"), path)

	got, err := ReadFormula(path)
	require.NoError(t, err)
	assert.True(t, f.Equal(got))

	// a replacement in the same slot overwrites the file
	g := cnf.New(1, []cnf.Clause{{1}})
	_, err = s.WriteInteresting(3, g)
	require.NoError(t, err)
	got, err = ReadFormula(path)
	require.NoError(t, err)
	assert.True(t, g.Equal(got))
}

func TestWriteSanitizer(t *testing.T) {
	s := newStore(t)
	findings := sanitizer.Findings{
		{Kind: sanitizer.HeapBufferOverflow, Location: "parse.c:12:3"},
		{Kind: sanitizer.UndefinedBehavior("signed integer overflow"), Location: "solve.c:40:9"},
	}

	path, err := s.WriteSanitizer(0, cnf.New(1, []cnf.Clause{{1}}), findings)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "ub", "0.cnf"), path)
	assert.FileExists(t, path)
	assert.Equal(t,
		"heap-buffer-overflow at parse.c:12:3\nruntime error: signed integer overflow at solve.c:40:9\n",
		read(t, filepath.Join(s.Root(), "ub", "0.findings")))
}

func TestFollowUps(t *testing.T) {
	s := newStore(t)
	seed := filepath.Join(t.TempDir(), "uf20.cnf")
	require.NoError(t, os.WriteFile(seed, []byte("p cnf 1 1\n1 0\n"), 0o644))

	require.NoError(t, s.CopySeed(seed))
	dir := s.SeedDir(seed)
	assert.Equal(t, filepath.Join(s.Root(), "func", "uf20"), dir)
	assert.Equal(t, "p cnf 1 1\n1 0\n", read(t, filepath.Join(dir, "seed.cnf")))

	rel := transform.Relation{transform.Sat: transform.Sat, transform.Unsat: transform.Unsat, transform.Unknown: transform.Unknown}
	require.NoError(t, s.WriteFollowUp(seed, 0, cnf.New(2, []cnf.Clause{{1, 2}, {-2}}), rel))
	assert.FileExists(t, filepath.Join(dir, "0.cnf"))
	assert.Equal(t, "SAT->SAT\nUNSAT->UNSAT\n", read(t, filepath.Join(dir, "0.txt")))

	require.NoError(t, s.WriteViolation(seed, 0, cnf.New(1, []cnf.Clause{{1}}), "expected SAT, subject said UNSAT"))
	assert.FileExists(t, filepath.Join(dir, "violations", "0.cnf"))
	assert.Equal(t, "expected SAT, subject said UNSAT\n", read(t, filepath.Join(dir, "violations", "0.txt")))
}

func TestSeeds(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.cnf", "a.CNF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.cnf"), 0o755))

	seeds, err := Seeds(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.CNF"), filepath.Join(dir, "b.cnf")}, seeds)

	seeds, err = Seeds(filepath.Join(dir, "b.cnf"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.cnf")}, seeds)

	_, err = Seeds(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestReadFormulaRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cnf")
	require.NoError(t, os.WriteFile(path, []byte("p cnf x y\n"), 0o644))
	_, err := ReadFormula(path)
	assert.Error(t, err)
}
