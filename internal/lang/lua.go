package lang

func init() {
	Register(&LanguageSpec{
		Language:       Lua,
		FileExtensions: []string{".lua"},
		Definitions: DefinitionSpec{
			"function_declaration": "identifier",
		},
	})
}
