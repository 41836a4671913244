package lang

func init() {
	Register(&LanguageSpec{
		Language:       Zig,
		FileExtensions: []string{".zig"},
		Definitions: DefinitionSpec{
			"function_declaration": "identifier",
		},
	})
}
