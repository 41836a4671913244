package lang

// Headers are parsed with the C++ grammar.
func init() {
	Register(&LanguageSpec{
		Language:       CPP,
		FileExtensions: []string{".cpp", ".h"},
		Definitions: DefinitionSpec{
			"class_specifier":      "type_identifier",
			"struct_specifier":     "type_identifier",
			"function_declarator":  "identifier",
			"function_definition":  "identifier",
			"namespace_definition": "namespace_identifier",
		},
	})
}
