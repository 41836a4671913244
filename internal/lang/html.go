package lang

func init() {
	Register(&LanguageSpec{
		Language:       HTML,
		FileExtensions: []string{".html", ".htm"},
		Definitions: DefinitionSpec{
			"style_element":  "tag_name",
			"script_element": "tag_name",
		},
	})
}
