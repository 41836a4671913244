package lang

func init() {
	Register(&LanguageSpec{
		Language:       Scala,
		FileExtensions: []string{".scala"},
		Definitions: DefinitionSpec{
			"class_definition":    "identifier",
			"object_definition":   "identifier",
			"trait_definition":    "identifier",
			"function_definition": "identifier",
		},
	})
}
