package lang

func init() {
	Register(&LanguageSpec{
		Language:       C,
		FileExtensions: []string{".c"},
		Definitions: DefinitionSpec{
			"function_declarator": "identifier",
			"function_definition": "identifier",
			"struct_specifier":    "type_identifier",
		},
	})
}
