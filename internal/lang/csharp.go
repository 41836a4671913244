package lang

func init() {
	Register(&LanguageSpec{
		Language:       CSharp,
		FileExtensions: []string{".cs"},
		Definitions: DefinitionSpec{
			"class_declaration":     "identifier",
			"method_declaration":    "identifier",
			"struct_declaration":    "identifier",
			"interface_declaration": "identifier",
		},
	})
}
