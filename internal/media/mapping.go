package media

import "strings"

// PathMapper rewrites a path from the media server's filesystem view to the
// local one. Only a leading From prefix is replaced; the result is not checked
// for existence.
type PathMapper struct {
	Enabled bool
	From    string
	To      string
}

// Map returns path with the From prefix swapped for To when mapping applies.
func (m PathMapper) Map(path string) string {
	if !m.Enabled || m.From == "" || !strings.HasPrefix(path, m.From) {
		return path
	}
	return m.To + strings.TrimPrefix(path, m.From)
}
