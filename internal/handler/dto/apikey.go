// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/keydesk/keydesk/internal/auth"
	"github.com/keydesk/keydesk/internal/clock"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/validity"
)

// Presentation constants.
const (
	AllApplications  = "All applications"
	PermanentDisplay = "Permanent"
	maxSummaryNames  = 3
)

// CreateKeyRequest represents the request body for creating a key.
type CreateKeyRequest struct {
	Name          string        `json:"name"`
	AuthMode      string        `json:"auth_mode,omitempty"` // "all" or "custom"
	AppIDs        []string      `json:"app_ids,omitempty"`
	ExpiryMode    string        `json:"expiry_mode,omitempty"` // "permanent" or "specified"
	ExpiresOn     string        `json:"expires_on,omitempty"`  // YYYY-MM-DD
	ExpiresInDays int           `json:"expires_in_days,omitempty"`
	Scopes        []model.Scope `json:"scopes,omitempty"`
	Owner         *OwnerRequest `json:"owner,omitempty"`
	PrefixTag     string        `json:"prefix_tag,omitempty"`
}

// OwnerRequest names an explicit key owner.
type OwnerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UpdateKeyRequest represents the request body for editing a key.
// Absent fields keep their current value.
type UpdateKeyRequest struct {
	Name          *string  `json:"name,omitempty"`
	AuthMode      string   `json:"auth_mode,omitempty"`
	AppIDs        []string `json:"app_ids,omitempty"`
	ExpiryMode    string   `json:"expiry_mode,omitempty"`
	ExpiresOn     string   `json:"expires_on,omitempty"`
	ExpiresInDays int      `json:"expires_in_days,omitempty"`
}

// ValidityResponse is the derived validity of a key at response time.
type ValidityResponse struct {
	State         string `json:"state"`
	Label         string `json:"label"`
	RemainingDays *int   `json:"remaining_days,omitempty"`
	Editable      bool   `json:"editable"`
}

// PersonResponse identifies an owner, creator or updater.
type PersonResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// KeyResponse represents a key in API responses. It never carries the secret.
type KeyResponse struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	SpaceID              string           `json:"space_id"`
	MaskedPrefix         string           `json:"masked_prefix"`
	Status               model.KeyStatus  `json:"status"`
	Validity             ValidityResponse `json:"validity"`
	Scopes               []model.Scope    `json:"scopes"`
	AuthorizedAppIDs     []string         `json:"authorized_app_ids"`
	AuthorizationSummary string           `json:"authorization_summary"`
	Owner                PersonResponse   `json:"owner"`
	Creator              PersonResponse   `json:"creator"`
	Updater              PersonResponse   `json:"updater"`
	CreatedAt            time.Time        `json:"created_at"`
	CreatedDisplay       string           `json:"created_display"`
	UpdatedAt            time.Time        `json:"updated_at"`
	UpdatedDisplay       string           `json:"updated_display"`
	ExpiresAt            *time.Time       `json:"expires_at,omitempty"`
	ExpiresDisplay       string           `json:"expires_display"`
	LastUsedAt           *time.Time       `json:"last_used_at,omitempty"`
	LastUsedDisplay      string           `json:"last_used_display"`
	UsageCount           int64            `json:"usage_count"`
}

// CreateKeyResponse is returned once, on creation. Secret is never shown again.
type CreateKeyResponse struct {
	KeyResponse
	Secret  string `json:"secret"`
	Warning string `json:"warning"`
}

// SecretWarning accompanies every create response.
const SecretWarning = "Store this key securely. It will not be shown again."

// KeyListResponse is the filtered key table of a space.
type KeyListResponse struct {
	Data       []KeyResponse `json:"data"`
	Total      int           `json:"total"`
	IsFiltered bool          `json:"is_filtered"`
}

// SpaceResponse represents a space.
type SpaceResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ApplicationResponse represents an application of a space.
type ApplicationResponse struct {
	ID      string `json:"id"`
	SpaceID string `json:"space_id"`
	Name    string `json:"name"`
}

// AdviceRequest asks for a security recommendation for a key being configured.
type AdviceRequest struct {
	Name        string        `json:"name"`
	Scopes      []model.Scope `json:"scopes"`
	Environment string        `json:"environment,omitempty"`
}

// AdviceResponse carries a recommendation of at most 40 words.
type AdviceResponse struct {
	Advice   string `json:"advice"`
	Provider string `json:"provider"`
}

// VerifyResponse describes a key that authenticated successfully.
type VerifyResponse struct {
	Valid            bool          `json:"valid"`
	KeyID            string        `json:"key_id"`
	SpaceID          string        `json:"space_id"`
	Name             string        `json:"name"`
	Scopes           []model.Scope `json:"scopes"`
	AuthorizedAppIDs []string      `json:"authorized_app_ids"`
	ExpiresAt        *time.Time    `json:"expires_at,omitempty"`
	UsageCount       int64         `json:"usage_count"`
}

// ToKeyResponse renders key as seen at now in loc. appNames resolves
// authorized application ids for the authorization summary.
func ToKeyResponse(key *model.APIKey, now time.Time, loc *time.Location, appNames map[string]string) KeyResponse {
	v := validity.Classify(key, now)

	vr := ValidityResponse{
		State:    string(v.State),
		Label:    v.Label,
		Editable: v.Editable,
	}
	if v.State == validity.StateActive {
		days := v.RemainingDays
		vr.RemainingDays = &days
	}

	expires := PermanentDisplay
	if key.ExpiresAt != nil {
		expires = clock.FormatDisplay(*key.ExpiresAt, loc)
	}

	appIDs := key.AuthorizedAppIDs
	if appIDs == nil {
		appIDs = []string{}
	}
	scopes := key.Scopes
	if scopes == nil {
		scopes = []model.Scope{}
	}

	return KeyResponse{
		ID:                   key.ID,
		Name:                 key.Name,
		SpaceID:              key.SpaceID,
		MaskedPrefix:         auth.MaskPrefix(key.Prefix),
		Status:               v.DisplayStatus(),
		Validity:             vr,
		Scopes:               scopes,
		AuthorizedAppIDs:     appIDs,
		AuthorizationSummary: ScopeSummary(key.AuthorizedAppIDs, appNames),
		Owner:                PersonResponse{ID: key.OwnerID, Name: key.OwnerName},
		Creator:              PersonResponse{ID: key.CreatorID, Name: key.CreatorName},
		Updater:              PersonResponse{ID: key.UpdaterID, Name: key.UpdaterName},
		CreatedAt:            key.CreatedAt,
		CreatedDisplay:       clock.FormatDisplay(key.CreatedAt, loc),
		UpdatedAt:            key.UpdatedAt,
		UpdatedDisplay:       clock.FormatDisplay(key.UpdatedAt, loc),
		ExpiresAt:            key.ExpiresAt,
		ExpiresDisplay:       expires,
		LastUsedAt:           key.LastUsedAt,
		LastUsedDisplay:      clock.Relative(key.LastUsedAt, now),
		UsageCount:           key.UsageCount,
	}
}

// ToKeyListResponse renders a filtered key list.
func ToKeyListResponse(keys []*model.APIKey, isFiltered bool, now time.Time, loc *time.Location, appNames map[string]string) KeyListResponse {
	data := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		data = append(data, ToKeyResponse(k, now, loc, appNames))
	}
	return KeyListResponse{Data: data, Total: len(data), IsFiltered: isFiltered}
}

// ToVerifyResponse renders a verified key.
func ToVerifyResponse(key *model.APIKey) VerifyResponse {
	return VerifyResponse{
		Valid:            true,
		KeyID:            key.ID,
		SpaceID:          key.SpaceID,
		Name:             key.Name,
		Scopes:           key.Scopes,
		AuthorizedAppIDs: key.AuthorizedAppIDs,
		ExpiresAt:        key.ExpiresAt,
		UsageCount:       key.UsageCount,
	}
}

// ScopeSummary describes which applications a key is authorized for.
// An empty list means every application. Up to three names are listed;
// longer lists show the first three and the total count.
// Unknown ids are shown as-is.
func ScopeSummary(appIDs []string, appNames map[string]string) string {
	if len(appIDs) == 0 {
		return AllApplications
	}

	names := make([]string, 0, min(len(appIDs), maxSummaryNames))
	for _, id := range appIDs[:min(len(appIDs), maxSummaryNames)] {
		if name, ok := appNames[id]; ok && name != "" {
			names = append(names, name)
		} else {
			names = append(names, id)
		}
	}

	if len(appIDs) <= maxSummaryNames {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s and %d applications", strings.Join(names, ", "), len(appIDs))
}

// ToSpaceResponses renders spaces.
func ToSpaceResponses(spaces []model.Space) []SpaceResponse {
	out := make([]SpaceResponse, 0, len(spaces))
	for _, s := range spaces {
		out = append(out, SpaceResponse{ID: s.ID, Name: s.Name})
	}
	return out
}

// ToApplicationResponses renders applications.
func ToApplicationResponses(apps []model.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, ApplicationResponse{ID: a.ID, SpaceID: a.SpaceID, Name: a.Name})
	}
	return out
}
