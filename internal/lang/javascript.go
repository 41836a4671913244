package lang

func init() {
	Register(&LanguageSpec{
		Language:       JavaScript,
		FileExtensions: []string{".js", ".jsx"},
		Definitions:    jsDefinitions(),
	})
}

func jsDefinitions() DefinitionSpec {
	return DefinitionSpec{
		"function_declaration": "identifier",
		"method_definition":    "identifier",
		"class_declaration":    "identifier",
	}
}
