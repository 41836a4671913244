package lang

func init() {
	Register(&LanguageSpec{
		Language:       Java,
		FileExtensions: []string{".java"},
		Definitions: DefinitionSpec{
			"class_declaration":       "identifier",
			"method_declaration":      "identifier",
			"interface_declaration":   "identifier",
			"constructor_declaration": "identifier",
		},
	})
}
