package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var (
	namespacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	hashPattern      = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Layout is the on-disk arrangement shared by every worker: one
// subdirectory per namespace under each of the upload, markdown and cache
// roots.
type Layout struct {
	UploadRoot   string
	MarkdownRoot string
	CacheRoot    string
}

// ValidNamespace reports whether ns can be used as a directory name.
func ValidNamespace(ns string) bool {
	return namespacePattern.MatchString(ns) && ns != "." && ns != ".."
}

// ValidHash reports whether h is a lower-case hex SHA-256 digest.
func ValidHash(h string) bool {
	return hashPattern.MatchString(h)
}

func (l Layout) UploadDir(ns string) string   { return filepath.Join(l.UploadRoot, ns) }
func (l Layout) MarkdownDir(ns string) string { return filepath.Join(l.MarkdownRoot, ns) }
func (l Layout) CacheDir(ns string) string    { return filepath.Join(l.CacheRoot, ns) }

// EntryPath is the cache record for (ns, hash).
func (l Layout) EntryPath(ns, hash string) string {
	return filepath.Join(l.CacheDir(ns), hash+".json")
}

// OutputPath is where the Markdown for a document lives. The directory is
// exclusive to the content hash so two uploads with the same file name never
// share an output.
func (l Layout) OutputPath(ns, hash, stem string) string {
	return filepath.Join(l.MarkdownDir(ns), hash[:16], stem+".md")
}

// Ensure creates the namespace's directories.
func (l Layout) Ensure(ns string) error {
	if !ValidNamespace(ns) {
		return fmt.Errorf("invalid namespace %q", ns)
	}
	for _, dir := range []string{l.UploadDir(ns), l.MarkdownDir(ns), l.CacheDir(ns)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
