package jail

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// stageSandboxDir creates a fresh sandbox directory with a `tmp/`
// subdirectory, matching the on-disk layout the orchestrator promises:
// the home dir is 0o775 (host-owned, world-readable), tmp/ is 0o777 so a
// lower-privilege sandbox user can write into it.
func stageSandboxDir() (dir, tmpDir string, err error) {
	dir = filepath.Join(os.TempDir(), "codejail-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o775); err != nil {
		return "", "", fmt.Errorf("codejail: create sandbox dir: %w", err)
	}
	if err := os.Chmod(dir, 0o775); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("codejail: chmod sandbox dir: %w", err)
	}
	tmpDir = filepath.Join(dir, "tmp")
	if err := os.Mkdir(tmpDir, 0o777); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("codejail: create sandbox tmp dir: %w", err)
	}
	if err := os.Chmod(tmpDir, 0o777); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("codejail: chmod sandbox tmp dir: %w", err)
	}
	return dir, tmpDir, nil
}

// materialize writes everything a JobRequest needs into the sandbox: copied
// host files (flattened to their basename), extra inline files, and the
// caller's inline code under the fixed name `jailed_code`.
func materialize(dir string, req JobRequest) error {
	for _, src := range req.CopyFiles {
		if err := copyIntoSandbox(src, dir); err != nil {
			return err
		}
	}
	for name, contents := range req.ExtraFiles {
		if strings.ContainsAny(name, "/\\") {
			return &NotConfigured{Reason: fmt.Sprintf("extra file name %q contains a path separator", name)}
		}
		if err := os.WriteFile(filepath.Join(dir, name), contents, 0o644); err != nil {
			return fmt.Errorf("codejail: write extra file %q: %w", name, err)
		}
	}
	if req.Code != nil {
		if err := os.WriteFile(filepath.Join(dir, "jailed_code"), req.Code, 0o644); err != nil {
			return fmt.Errorf("codejail: write jailed_code: %w", err)
		}
	}
	return nil
}

// copyIntoSandbox materializes one host path into destDir under its own
// basename — never its full path, so the sandbox never exposes host
// directory layout. Symlinks are recreated as symlinks, never dereferenced.
func copyIntoSandbox(src, destDir string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("codejail: stat copy file %q: %w", src, err)
	}
	dest := filepath.Join(destDir, filepath.Base(src))

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("codejail: read symlink %q: %w", src, err)
		}
		return os.Symlink(target, dest)
	case info.IsDir():
		return copyDir(src, dest)
	default:
		return copyFile(src, dest, info.Mode())
	}
}

func copyDir(src, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("codejail: mkdir %q: %w", dest, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("codejail: read dir %q: %w", src, err)
	}
	for _, entry := range entries {
		s := filepath.Join(src, entry.Name())
		d := filepath.Join(dest, entry.Name())
		info, err := os.Lstat(s)
		if err != nil {
			return fmt.Errorf("codejail: stat %q: %w", s, err)
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(s)
			if err != nil {
				return fmt.Errorf("codejail: read symlink %q: %w", s, err)
			}
			if err := os.Symlink(target, d); err != nil {
				return fmt.Errorf("codejail: recreate symlink %q: %w", d, err)
			}
		case info.IsDir():
			if err := copyDir(s, d); err != nil {
				return err
			}
		default:
			if err := copyFile(s, d, info.Mode()); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("codejail: open %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("codejail: create %q: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("codejail: copy %q to %q: %w", src, dest, err)
	}
	return nil
}
