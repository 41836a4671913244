package lang

import (
	"sort"
	"strings"
)

// Language represents a supported programming language.
type Language string

const (
	Python     Language = "python"
	CPP        Language = "cpp"
	C          Language = "c"
	Rust       Language = "rust"
	CSharp     Language = "c-sharp"
	Go         Language = "go"
	Ruby       Language = "ruby"
	Java       Language = "java"
	Kotlin     Language = "kotlin"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	HTML       Language = "html"
	CSS        Language = "css"
	PHP        Language = "php"
	Scala      Language = "scala"
	Lua        Language = "lua"
	Bash       Language = "bash"
	Zig        Language = "zig"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{
		Python, CPP, C, Rust, CSharp, Go, Ruby, Java, Kotlin,
		JavaScript, TypeScript, TSX, HTML, CSS, PHP, Scala, Lua, Bash, Zig,
	}
}

// DefinitionSpec maps a definition node kind to the node kind that carries its name,
// e.g. "class_definition" -> "identifier".
type DefinitionSpec map[string]string

// NameKind returns the name-carrying node kind for a definition node kind.
func (d DefinitionSpec) NameKind(kind string) (string, bool) {
	k, ok := d[kind]
	return k, ok
}

// LanguageSpec ties a language to its file extensions and definition nodes.
type LanguageSpec struct {
	Language       Language
	FileExtensions []string
	Definitions    DefinitionSpec
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".go").
// The lookup is case-insensitive.
func ForExtension(ext string) *LanguageSpec {
	return registry[strings.ToLower(ext)]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := ForExtension(ext)
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}

// IsCode reports whether files with this extension are parsed as code.
func IsCode(ext string) bool {
	return ForExtension(ext) != nil
}

// CodeExtensions returns every registered extension, sorted.
func CodeExtensions() []string {
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
