package lang

func init() {
	Register(&LanguageSpec{
		Language:       Python,
		FileExtensions: []string{".py"},
		Definitions: DefinitionSpec{
			"class_definition":     "identifier",
			"function_definition":  "identifier",
			"decorated_definition": "identifier",
		},
	})
}
