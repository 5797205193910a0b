package config

// RenameField returns a Migration step that moves a value from oldPath
// to newPath within a section document, both relative to the section
// root. Missing source fields are a no-op.
func RenameField(fromVersion int, oldPath, newPath string) Migration {
	return Migration{
		FromVersion: fromVersion,
		Apply: func(doc map[string]any) map[string]any {
			v, ok := getPath(doc, splitDotted(oldPath))
			if !ok {
				return doc
			}
			setPath(doc, splitDotted(newPath), v)
			return doc
		},
	}
}

// SetDefault returns a Migration step that fills in path with value only
// if the field is absent, used when a new field is introduced mid-series.
func SetDefault(fromVersion int, path string, value any) Migration {
	return Migration{
		FromVersion: fromVersion,
		Apply: func(doc map[string]any) map[string]any {
			if _, ok := getPath(doc, splitDotted(path)); ok {
				return doc
			}
			setPath(doc, splitDotted(path), value)
			return doc
		},
	}
}
