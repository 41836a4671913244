package lang

func init() {
	Register(&LanguageSpec{
		Language:       Kotlin,
		FileExtensions: []string{".kt", ".kts"},
		Definitions: DefinitionSpec{
			"class_declaration":     "identifier",
			"function_declaration":  "identifier",
			"interface_declaration": "identifier",
			"object_declaration":    "identifier",
			"primary_constructor":   "identifier",
			"secondary_constructor": "identifier",
		},
	})
}
