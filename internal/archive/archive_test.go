package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, content string) string {
	t.Helper()
	f, err := os.CreateTemp(dir, "slot-*.bin")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return f.Name()
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	dir := t.TempDir()

	// Three contributors, three slots each.
	var innerPaths []string
	contents := [][]string{
		{"a0", "a1", "a2"},
		{"b0", "b1", "b2"},
		{"c0", "c1", "c2"},
	}
	for cid, slots := range contents {
		var slotFiles []string
		for _, c := range slots {
			slotFiles = append(slotFiles, writeTempFile(t, dir, c))
		}
		innerPath := filepath.Join(dir, "inner-"+string(rune('a'+cid))+".tar")
		if err := PackInner(innerPath, cid, slotFiles); err != nil {
			t.Fatalf("PackInner: %v", err)
		}
		innerPaths = append(innerPaths, innerPath)
	}

	outerPath := filepath.Join(dir, "outer.tar")
	if err := PackOuter(outerPath, innerPaths); err != nil {
		t.Fatalf("PackOuter: %v", err)
	}

	unpackedInner, err := UnpackOuter(dir, outerPath, 3)
	if err != nil {
		t.Fatalf("UnpackOuter: %v", err)
	}
	if len(unpackedInner) != 3 {
		t.Fatalf("expected 3 inner tars, got %d", len(unpackedInner))
	}

	for i, innerPath := range unpackedInner {
		cid, slotPaths, err := UnpackInner(dir, innerPath, 3)
		if err != nil {
			t.Fatalf("UnpackInner(%d): %v", i, err)
		}
		if cid != i {
			t.Fatalf("inner tar %d: got contributor id %d", i, cid)
		}
		for slot, path := range slotPaths {
			want := contents[i][slot]
			if got := readFile(t, path); got != want {
				t.Fatalf("inner tar %d slot %d: got %q, want %q", i, slot, got, want)
			}
		}
	}
}

func TestUnpackInnerDetectsMissingMember(t *testing.T) {
	dir := t.TempDir()

	f := writeTempFile(t, dir, "x")
	innerPath := filepath.Join(dir, "inner.tar")
	if err := PackInner(innerPath, 0, []string{f}); err != nil {
		t.Fatalf("PackInner: %v", err)
	}

	// A second one-member tar under a different contributor id; it stays a
	// separate file and is not merged into innerPath.
	second := writeTempFile(t, dir, "y")
	tampered := filepath.Join(dir, "tampered.tar")
	if err := PackInner(tampered, 1, []string{second}); err != nil {
		t.Fatalf("PackInner: %v", err)
	}

	// Verify UnpackInner enforces n when the tar has only one member but
	// two are expected.
	if _, _, err := UnpackInner(dir, innerPath, 2); !errors.Is(err, ErrMissingMember) {
		t.Fatalf("expected ErrMissingMember, got %v", err)
	}
}

func TestUnpackOuterDetectsShortArchive(t *testing.T) {
	dir := t.TempDir()
	f := writeTempFile(t, dir, "solo")
	innerPath := filepath.Join(dir, "inner.tar")
	if err := PackInner(innerPath, 0, []string{f}); err != nil {
		t.Fatalf("PackInner: %v", err)
	}
	outerPath := filepath.Join(dir, "outer.tar")
	if err := PackOuter(outerPath, []string{innerPath}); err != nil {
		t.Fatalf("PackOuter: %v", err)
	}

	if _, err := UnpackOuter(dir, outerPath, 2); !errors.Is(err, ErrMissingMember) {
		t.Fatalf("expected ErrMissingMember, got %v", err)
	}
}
