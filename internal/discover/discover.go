package discover

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/text/encoding/japanese"

	"github.com/DeusData/repo-graphrag/internal/lang"
	"github.com/DeusData/repo-graphrag/internal/reconcile"
)

// IgnoreFileName is the per-repository ignore file, in .gitignore syntax.
const IgnoreFileName = ".graphragignore"

// DefaultNoProcess lists directory and file names never read.
var DefaultNoProcess = []string{
	"__pycache__", ".git", ".github", ".venv", "node_modules", ".DS_Store",
	"Thumbs.db", "robots.txt", "bac", "backup", "temp", "tmp",
}

// DefaultDocExtensions are the documentation extensions, without the dot.
var DefaultDocExtensions = []string{"txt", "md", "rst"}

// DefaultSpecialFiles are extension-less documentation file names.
var DefaultSpecialFiles = []string{"readme", "changelog"}

// Kind tells documentation from code.
type Kind int

const (
	KindDoc Kind = iota + 1
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindDoc:
		return "doc"
	case KindCode:
		return "code"
	}
	return "unknown"
}

// FileInfo represents a discovered file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to the read dir, slash separated
	Kind     Kind          // doc or code
	Language lang.Language // set for code
}

// Options configures file discovery. Nil or empty fields select the defaults.
type Options struct {
	NoProcess     []string
	DocExtensions []string
	SpecialFiles  []string
	IgnoreFile    string // defaults to <root>/.graphragignore
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if len(out.NoProcess) == 0 {
		out.NoProcess = DefaultNoProcess
	}
	if len(out.DocExtensions) == 0 {
		out.DocExtensions = DefaultDocExtensions
	}
	if len(out.SpecialFiles) == 0 {
		out.SpecialFiles = DefaultSpecialFiles
	}
	return out
}

// classify returns how a file name should be read, or 0 to skip it.
func classify(name string, o Options) (Kind, lang.Language) {
	ext := filepath.Ext(name)
	if l, ok := lang.LanguageForExtension(ext); ok {
		return KindCode, l
	}
	bare := strings.TrimPrefix(ext, ".")
	if ext != "" && slices.Contains(o.DocExtensions, bare) {
		return KindDoc, ""
	}
	lower := strings.ToLower(name)
	for _, s := range o.SpecialFiles {
		if lower == strings.ToLower(s) {
			return KindDoc, ""
		}
	}
	return 0, ""
}

// Discover walks root and returns the documentation and code files in it,
// sorted by path.
func Discover(ctx context.Context, root string, opts *Options) ([]FileInfo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := opts.withDefaults()

	ignPath := o.IgnoreFile
	if ignPath == "" {
		ignPath = filepath.Join(root, IgnoreFileName)
	}
	var ign *ignore.GitIgnore
	if _, statErr := os.Stat(ignPath); statErr == nil {
		ign, err = ignore.CompileIgnoreFile(ignPath)
		if err != nil {
			slog.Warn("discover.ignore_file", "path", ignPath, "err", err)
		}
	}

	var files []FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if slices.Contains(o.NoProcess, d.Name()) {
			slog.Debug("discover.excluded", "path", path)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ign != nil && ign.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		kind, l := classify(d.Name(), o)
		if kind == 0 {
			return nil
		}
		files = append(files, FileInfo{Path: path, RelPath: rel, Kind: kind, Language: l})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadCorpus reads the discovered files. Documents are decoded as UTF-8,
// falling back to Shift_JIS; undecodable documents are skipped. Code files
// are kept as raw bytes; blank ones are skipped.
func ReadCorpus(ctx context.Context, files []FileInfo) (reconcile.Corpus, error) {
	c := reconcile.Corpus{
		Docs: make(map[string]string),
		Code: make(map[string][]byte),
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return reconcile.Corpus{}, err
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			slog.Warn("discover.read", "path", f.Path, "err", err)
			continue
		}
		switch f.Kind {
		case KindCode:
			if len(bytes.TrimSpace(data)) == 0 {
				slog.Info("discover.skip_empty_code", "path", f.Path)
				continue
			}
			c.Code[f.Path] = data
		case KindDoc:
			text, err := DecodeText(data)
			if err != nil {
				slog.Warn("discover.skip_encoding", "path", f.Path, "err", err)
				continue
			}
			c.Docs[f.Path] = text
		}
	}
	slog.Info("discover.corpus", "docs", len(c.Docs), "code", len(c.Code))
	return c, nil
}

// errUndecodable is returned for text that is neither UTF-8 nor Shift_JIS.
var errUndecodable = errors.New("not UTF-8 or Shift_JIS")

// DecodeText decodes data as UTF-8, or as Shift_JIS when it is not valid UTF-8.
func DecodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := japanese.ShiftJIS.NewDecoder().Bytes(data)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", errUndecodable
	}
	return string(out), nil
}
