package lang

func init() {
	Register(&LanguageSpec{
		Language:       Rust,
		FileExtensions: []string{".rs"},
		Definitions: DefinitionSpec{
			"function_item": "identifier",
			"impl_item":     "type_identifier",
			"struct_item":   "type_identifier",
			"trait_item":    "type_identifier",
		},
	})
}
