package tools

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrUnsafePath = errors.New("unsafe path")

// OpResult is the outcome of one file-system operation.
type OpResult struct {
	Success bool
	Message string
}

func succeeded(format string, args ...any) OpResult {
	return OpResult{Success: true, Message: fmt.Sprintf(format, args...)}
}

func failed(format string, args ...any) OpResult {
	return OpResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Entry is one item of a directory listing.
type Entry struct {
	Name     string
	IsDir    bool
	Size     int64
	Language string
}

type Listing struct {
	Path      string
	Items     []Entry
	TotalSize int64
}

// Filesystem manages files under Root. Paths that escape Root are refused.
type Filesystem struct {
	Root string
}

func NewFilesystem(root string) *Filesystem {
	absRoot, _ := filepath.Abs(root)
	return &Filesystem{Root: absRoot}
}

// Resolve maps a user path to an absolute path inside Root.
func (f *Filesystem) Resolve(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(f.Root, p)
	}
	target = filepath.Clean(target)

	// Safety check: ensure target is within f.Root
	rel, err := filepath.Rel(f.Root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, p)
	}
	return target, nil
}

func (f *Filesystem) Create(p, content string) OpResult {
	target, err := f.Resolve(p)
	if err != nil {
		return failed("%v", err)
	}
	if _, err := os.Stat(target); err == nil {
		return failed("%s already exists", p)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return failed("failed to create parent directory: %v", err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return failed("failed to create file: %v", err)
	}
	return succeeded("Created %s", p)
}

func (f *Filesystem) Delete(p string) OpResult {
	target, err := f.Resolve(p)
	if err != nil {
		return failed("%v", err)
	}
	if target == f.Root {
		return failed("refusing to delete the workspace root")
	}
	if err := os.Remove(target); err != nil {
		return failed("failed to delete: %v", err)
	}
	return succeeded("Deleted %s", p)
}

func (f *Filesystem) Move(p, newPath string) OpResult {
	src, err := f.Resolve(p)
	if err != nil {
		return failed("%v", err)
	}
	dst, err := f.Resolve(newPath)
	if err != nil {
		return failed("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return failed("failed to create parent directory: %v", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return failed("failed to move: %v", err)
	}
	return succeeded("Moved %s to %s", p, newPath)
}

func (f *Filesystem) Copy(p, newPath string) OpResult {
	src, err := f.Resolve(p)
	if err != nil {
		return failed("%v", err)
	}
	dst, err := f.Resolve(newPath)
	if err != nil {
		return failed("%v", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return failed("failed to open source: %v", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return failed("failed to create parent directory: %v", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return failed("failed to create destination: %v", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return failed("failed to copy: %v", err)
	}
	if err := out.Close(); err != nil {
		return failed("failed to copy: %v", err)
	}
	return succeeded("Copied %s to %s", p, newPath)
}

// Read returns the file content in Message on success.
func (f *Filesystem) Read(p string) OpResult {
	target, err := f.Resolve(p)
	if err != nil {
		return failed("%v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return failed("failed to read file: %v", err)
	}
	return OpResult{Success: true, Message: string(data)}
}

func (f *Filesystem) Write(p, content string) OpResult {
	target, err := f.Resolve(p)
	if err != nil {
		return failed("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return failed("failed to create parent directory: %v", err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return failed("failed to write file: %v", err)
	}
	return succeeded("Successfully wrote to %s", p)
}

// ReplaceFile swaps the content of an existing file in one rename, so a
// failure leaves either the old or the new content in place.
func ReplaceFile(path string, content []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ListDirectory lists the direct children of p; directory sizes are recursive.
func (f *Filesystem) ListDirectory(p string) (Listing, error) {
	target, err := f.Resolve(p)
	if err != nil {
		return Listing{}, err
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return Listing{}, fmt.Errorf("failed to list directory: %w", err)
	}

	listing := Listing{Path: target}
	for _, entry := range entries {
		item := Entry{Name: entry.Name(), IsDir: entry.IsDir()}
		if entry.IsDir() {
			item.Size = dirSize(filepath.Join(target, entry.Name()))
		} else if info, err := entry.Info(); err == nil {
			item.Size = info.Size()
			if lang, ok := LanguageForPath(entry.Name()); ok {
				item.Language = lang.Name
			}
		}
		listing.TotalSize += item.Size
		listing.Items = append(listing.Items, item)
	}
	sort.SliceStable(listing.Items, func(i, j int) bool {
		if listing.Items[i].IsDir != listing.Items[j].IsDir {
			return listing.Items[i].IsDir
		}
		return listing.Items[i].Name < listing.Items[j].Name
	})
	return listing, nil
}

func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
