package enums

import "fmt"

// MediaRole tags assets that are addressed through the Art Key's fields rather
// than through gallery or video listings.
type MediaRole string

const (
	MediaRoleNone           MediaRole = ""
	MediaRoleWatchVideo     MediaRole = "watch_video"
	MediaRoleMessages1      MediaRole = "messages_1"
	MediaRoleMessages2      MediaRole = "messages_2"
	MediaRolePrintComposite MediaRole = "print_composite"
)

var validMediaRoles = []MediaRole{
	MediaRoleNone,
	MediaRoleWatchVideo,
	MediaRoleMessages1,
	MediaRoleMessages2,
	MediaRolePrintComposite,
}

// IsValid reports whether the role is known. The empty role is valid.
func (r MediaRole) IsValid() bool {
	for _, candidate := range validMediaRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTagged reports whether the asset must be excluded from listing queries.
func (r MediaRole) IsTagged() bool {
	return r != MediaRoleNone
}

// ParseMediaRole converts raw input into a MediaRole.
func ParseMediaRole(value string) (MediaRole, error) {
	for _, candidate := range validMediaRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid media role %q", value)
}
