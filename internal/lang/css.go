package lang

func init() {
	Register(&LanguageSpec{
		Language:       CSS,
		FileExtensions: []string{".css"},
		Definitions: DefinitionSpec{
			"rule_set":       "selectors",
			"class_selector": "class_name",
			"id_selector":    "id_name",
		},
	})
}
