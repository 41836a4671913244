package lang

func init() {
	Register(&LanguageSpec{
		Language:       Ruby,
		FileExtensions: []string{".rb"},
		Definitions: DefinitionSpec{
			"class":            "constant",
			"module":           "constant",
			"method":           "identifier",
			"singleton_method": "identifier",
		},
	})
}
