package lang

func init() {
	Register(&LanguageSpec{
		Language:       TypeScript,
		FileExtensions: []string{".ts"},
		Definitions:    tsDefinitions(),
	})
}

// tsDefinitions extends the JavaScript set with interfaces.
func tsDefinitions() DefinitionSpec {
	d := jsDefinitions()
	d["interface_declaration"] = "identifier"
	return d
}
