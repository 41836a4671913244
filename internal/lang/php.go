package lang

func init() {
	Register(&LanguageSpec{
		Language:       PHP,
		FileExtensions: []string{".php"},
		Definitions: DefinitionSpec{
			"class_declaration":     "name",
			"interface_declaration": "name",
			"trait_declaration":     "name",
			"function_definition":   "name",
			"method_declaration":    "name",
		},
	})
}
