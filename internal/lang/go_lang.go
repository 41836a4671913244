package lang

func init() {
	Register(&LanguageSpec{
		Language:       Go,
		FileExtensions: []string{".go"},
		Definitions: DefinitionSpec{
			"function_declaration":  "identifier",
			"method_declaration":    "identifier",
			"type_declaration":      "type_identifier",
			"interface_declaration": "type_identifier",
		},
	})
}
