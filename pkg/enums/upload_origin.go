package enums

import "fmt"

// UploadOrigin records which surface an upload arrived through. Moderation
// depends on it: editor uploads are auto-approved, visitor uploads never are.
type UploadOrigin string

const (
	UploadOriginEditor  UploadOrigin = "editor"
	UploadOriginVisitor UploadOrigin = "visitor"
	UploadOriginSystem  UploadOrigin = "system"
)

var validUploadOrigins = []UploadOrigin{
	UploadOriginEditor,
	UploadOriginVisitor,
	UploadOriginSystem,
}

// IsValid reports whether the origin is known.
func (o UploadOrigin) IsValid() bool {
	for _, candidate := range validUploadOrigins {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseUploadOrigin converts raw input into an UploadOrigin.
func ParseUploadOrigin(value string) (UploadOrigin, error) {
	for _, candidate := range validUploadOrigins {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upload origin %q", value)
}
