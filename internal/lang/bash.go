package lang

func init() {
	Register(&LanguageSpec{
		Language:       Bash,
		FileExtensions: []string{".sh", ".bash"},
		Definitions: DefinitionSpec{
			"function_definition": "word",
		},
	})
}
