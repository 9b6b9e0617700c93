package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ErrMissingMember is returned when a tar being unpacked has fewer members
// than the caller expected — spec.md §7's "missing expected tar member,
// wrong number of inner files" ArchiveError.
var ErrMissingMember = errors.New("archive: missing expected tar member")

// ErrMixedContributor is returned when an inner tar's members don't all
// carry the same contributor id. Every member of an inner tar originates
// from one contributing node (spec.md §4.5); a mismatch means the tar was
// corrupted or tampered with in transit.
var ErrMixedContributor = errors.New("archive: inner tar has mixed contributor ids")

// outerPlaceholderName is the member name used for every entry in the
// outer tar. spec.md §6: "outer tar member names are unused (any
// placeholder, e.g. \"-1\")".
const outerPlaceholderName = "-1"

// PackInner builds one contributor's inner tar: slotFiles[k] is that
// contributor's contribution for slot k, in slot order. Every member is
// written under the same name, contributorID, matching spec.md §4.5 —
// the member's position in the tar (not its name) identifies the slot.
func PackInner(dest string, contributorID int, slotFiles []string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("archive: create inner tar: %w", err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	name := strconv.Itoa(contributorID)
	for _, path := range slotFiles {
		if err := addFileMember(tw, path, name); err != nil {
			return err
		}
	}
	return tw.Close()
}

// PackOuter builds the outer tar from N per-contributor inner tars, in the
// given order. Member names are placeholders — the reader never relies on
// them (spec.md §4.5 "Tie-break / ordering").
func PackOuter(dest string, innerTarPaths []string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("archive: create outer tar: %w", err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	for _, path := range innerTarPaths {
		if err := addFileMember(tw, path, outerPlaceholderName); err != nil {
			return err
		}
	}
	return tw.Close()
}

func addFileMember(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open member %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive: stat member %q: %w", path, err)
	}
	hdr := &tar.Header{
		Name: name,
		Mode: 0o600,
		Size: info.Size(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("archive: write header for %q: %w", path, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archive: copy member %q: %w", path, err)
	}
	return nil
}

// UnpackOuter spools the outer tar's n members to fresh files under dir, in
// tar order, and returns their paths.
func UnpackOuter(dir, outerTarPath string, n int) ([]string, error) {
	f, err := os.Open(outerTarPath)
	if err != nil {
		return nil, fmt.Errorf("archive: open outer tar: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: outer tar has %d members, want %d", ErrMissingMember, i, n)
		}
		if err != nil {
			return nil, fmt.Errorf("archive: read outer tar: %w", err)
		}
		_ = hdr // outer names are placeholders, intentionally unused
		path, err := spool(dir, "outer-member-*.tar", tr)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// UnpackInner spools an inner tar's n members to fresh files under dir and
// returns the shared contributor id plus the member paths in slot order.
func UnpackInner(dir, innerTarPath string, n int) (contributorID int, slotPaths []string, err error) {
	f, openErr := os.Open(innerTarPath)
	if openErr != nil {
		return 0, nil, fmt.Errorf("archive: open inner tar: %w", openErr)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	paths := make([]string, 0, n)
	id := -1
	for i := 0; i < n; i++ {
		hdr, readErr := tr.Next()
		if readErr == io.EOF {
			return 0, nil, fmt.Errorf("%w: inner tar has %d members, want %d", ErrMissingMember, i, n)
		}
		if readErr != nil {
			return 0, nil, fmt.Errorf("archive: read inner tar: %w", readErr)
		}
		memberID, convErr := strconv.Atoi(hdr.Name)
		if convErr != nil {
			return 0, nil, fmt.Errorf("archive: inner tar member name %q is not an id: %w", hdr.Name, convErr)
		}
		if i == 0 {
			id = memberID
		} else if memberID != id {
			return 0, nil, fmt.Errorf("%w: member %d has id %d, expected %d", ErrMixedContributor, i, memberID, id)
		}
		path, spoolErr := spool(dir, "inner-member-*.bin", tr)
		if spoolErr != nil {
			return 0, nil, spoolErr
		}
		paths = append(paths, path)
	}
	return id, paths, nil
}

func spool(dir, pattern string, r io.Reader) (string, error) {
	out, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("archive: create spool file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("archive: spool member: %w", err)
	}
	return out.Name(), nil
}
