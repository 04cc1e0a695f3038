package config

import (
	"path/filepath"
	"strings"
)

// Expand substitutes path placeholders in an argument template:
//
//	??  literal question mark
//	?p  relative path
//	?w  path without its extension
//	?e  extension (with leading dot)
//	?d  directory part (empty for files in the base directory)
//	?b  basename
//
// Unknown sequences pass through unchanged.
func Expand(template, path string) string {
	ext := filepath.Ext(path)
	dir, base := filepath.Split(path)
	dir = strings.TrimSuffix(dir, string(filepath.Separator))

	var b strings.Builder
	for i := 0; i < len(template); i++ {
		if template[i] != '?' || i+1 >= len(template) {
			b.WriteByte(template[i])
			continue
		}
		switch template[i+1] {
		case '?':
			b.WriteByte('?')
		case 'p':
			b.WriteString(path)
		case 'w':
			b.WriteString(strings.TrimSuffix(path, ext))
		case 'e':
			b.WriteString(ext)
		case 'd':
			b.WriteString(dir)
		case 'b':
			b.WriteString(base)
		default:
			b.WriteByte(template[i])
			b.WriteByte(template[i+1])
		}
		i++
	}
	return b.String()
}

// ExpandArgs applies Expand to every value of an argument template map.
func ExpandArgs(args map[string]string, path string) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = Expand(v, path)
	}
	return out
}
