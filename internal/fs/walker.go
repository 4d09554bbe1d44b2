package fs

import (
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the gitignore-syntax file honoured in a document root.
const IgnoreFileName = ".clausewiseignore"

// Upload temp files, office lock files and desktop metadata.
var builtinIgnores = []string{
	"*.tmp",
	"*.part",
	"~$*",
	".~lock.*",
	".DS_Store",
	"Thumbs.db",
}

// matcher holds every compiled rule set that applies under one root.
type matcher []*gitignore.GitIgnore

func (m matcher) ignored(rel string, dir bool) bool {
	if dir {
		rel += "/"
	}
	for _, g := range m {
		if g.MatchesPath(rel) {
			return true
		}
	}
	return false
}

// skip records why the walker passed over a file.
type skip int

const (
	keep skip = iota
	skipRule
	skipSize
	skipExt
	skipBinary
)

// FileWalker lists the loadable documents under a root directory.
type FileWalker struct {
	opts  WalkOptions
	rules matcher
	exts  map[string]struct{}
	stats WalkStats
}

// NewFileWalker validates the root and compiles its ignore rules.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	st, err := os.Stat(root)
	switch {
	case err != nil:
		return nil, fmt.Errorf("root path does not exist: %w", err)
	case !st.IsDir():
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}
	opts.Root = root

	w := &FileWalker{opts: opts, exts: map[string]struct{}{}}

	wanted := opts.Extensions
	if len(wanted) == 0 {
		wanted = SupportedExtensions()
	}
	for _, ext := range wanted {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.exts[ext] = struct{}{}
	}

	w.rules = matcher{gitignore.CompileIgnoreLines(append(builtinIgnores, opts.IgnorePatterns...)...)}
	if opts.UseIgnoreFile {
		if g := loadIgnoreFile(filepath.Join(root, IgnoreFileName)); g != nil {
			w.rules = append(w.rules, g)
		}
	}
	return w, nil
}

// loadIgnoreFile returns nil when the file is absent or unreadable.
func loadIgnoreFile(path string) *gitignore.GitIgnore {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	g, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		log.Warn("Failed to parse ignore file", "path", path, "error", err)
		return nil
	}
	return g
}

// Walk calls fn for each document in path order. Unreadable entries are
// skipped; an error from fn stops the walk and is returned.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{}

	return filepath.WalkDir(w.opts.Root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			log.Debug("Skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if path == w.opts.Root {
			return nil
		}
		rel, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			rel = path
		}

		if d.IsDir() {
			if w.opts.Recursive && !w.hidden(d.Name()) && d.Name() != ".git" && !w.rules.ignored(rel, true) {
				return nil
			}
			w.stats.DirsSkipped++
			return filepath.SkipDir
		}

		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		info, reason := w.inspect(path, rel, d)
		if reason != keep {
			w.stats.FilesSkipped++
			if reason == skipSize {
				w.stats.SkippedBytes += info.Size
			}
			return nil
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size
		return fn(info)
	})
}

// inspect applies the filters in order of cost: name rules before stat,
// stat before reading content.
func (w *FileWalker) inspect(path, rel string, d iofs.DirEntry) (FileInfo, skip) {
	if w.hidden(d.Name()) || w.rules.ignored(rel, false) {
		return FileInfo{}, skipRule
	}
	if _, ok := w.exts[strings.ToLower(filepath.Ext(path))]; !ok {
		return FileInfo{}, skipExt
	}
	format, err := DetectFormat(path)
	if err != nil {
		return FileInfo{}, skipExt
	}

	st, err := d.Info()
	if err != nil {
		return FileInfo{}, skipRule
	}
	info := FileInfo{Path: path, RelPath: rel, Size: st.Size(), ModTime: st.ModTime(), Format: format}
	if w.opts.MaxFileSize > 0 && info.Size > w.opts.MaxFileSize {
		return info, skipSize
	}

	if format == FormatText || format == FormatCSV {
		if bin, err := looksBinary(path); err != nil || bin {
			return info, skipBinary
		}
	}

	if info.Hash, err = HashFile(path); err != nil {
		log.Debug("Failed to hash document", "path", path, "error", err)
		return info, skipRule
	}
	return info, keep
}

func (w *FileWalker) hidden(name string) bool {
	return !w.opts.IncludeHidden && strings.HasPrefix(name, ".")
}

// Stats returns counters from the last Walk.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}
