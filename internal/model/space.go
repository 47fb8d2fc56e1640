package model

import "unicode/utf8"

// Space is a tenant boundary scoping applications and keys.
type Space struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Application is a named resource owned by exactly one space.
type Application struct {
	ID      string `json:"id" yaml:"id"`
	SpaceID string `json:"space_id" yaml:"space_id"`
	Name    string `json:"name" yaml:"name"`
}

// Principal field limits, matching the owner/creator/updater columns.
const (
	MaxPrincipalIDLength   = 64
	MaxPrincipalNameLength = 255
)

// Principal is the user on whose behalf an operation runs.
// It is injected into the request context by the principal middleware.
type Principal struct {
	ID   string
	Name string
}

// IsZero reports whether the principal carries no identity.
func (p Principal) IsZero() bool {
	return p.ID == ""
}

// Fits reports whether the id and name are within the stored field limits.
func (p Principal) Fits() bool {
	return utf8.RuneCountInString(p.ID) <= MaxPrincipalIDLength &&
		utf8.RuneCountInString(p.Name) <= MaxPrincipalNameLength
}
