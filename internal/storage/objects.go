package storage

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

const maxObjectFileName = 120

// ObjectName builds the key an upload is stored under: <ownerID>/<uploadID>/<fileName>.
// The file name is reduced to a safe base name.
func ObjectName(ownerID, uploadID uuid.UUID, fileName string) string {
	return ownerID.String() + "/" + uploadID.String() + "/" + SanitizeFileName(fileName)
}

func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	if len(out) > maxObjectFileName {
		ext := path.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:maxObjectFileName-len(ext)] + ext
	}
	return out
}
