package core

import "strings"

// RequestNormalizer trims and lower-cases identity fields and strips fields
// an update may not set directly. It never fails.
type RequestNormalizer struct {
	config Config
}

func NewRequestNormalizer(config Config) RequestNormalizer {
	return RequestNormalizer{config: config}
}

func (n RequestNormalizer) NormalizeCreate(req CreateUserRequest) CreateUserRequest {
	out := req
	out.Name = strings.TrimSpace(req.Name)
	out.Username = n.identity("username", req.Username)
	out.LoginID = n.identity("login_id", req.LoginID)
	out.Email = n.identity("email", req.Email)
	out.Phone = trimmedOrNil(req.Phone)
	out.RecoveryEmail = n.identity("recovery_email", req.RecoveryEmail)
	out.RecoveryPhone = trimmedOrNil(req.RecoveryPhone)
	out.Channel = trimmedOrNil(req.Channel)
	out.OrganisationID = trimmedOrNil(req.OrganisationID)
	out.OrgExternalID = trimmedOrNil(req.OrgExternalID)
	out.RootOrgID = trimmedOrNil(req.RootOrgID)
	out.UserType = lowerOrNil(req.UserType)
	out.LocationCodes = trimAll(req.LocationCodes)
	out.ExternalIDs = normalizeExternalIDs(req.ExternalIDs)
	out.Framework = normalizeFramework(req.Framework)
	return out
}

func (n RequestNormalizer) NormalizeUpdate(req UpdateUserRequest) UpdateUserRequest {
	out := req
	out.UserID = strings.TrimSpace(req.UserID)
	out.Name = trimmedOrNil(req.Name)
	out.Email = n.identity("email", req.Email)
	out.Phone = trimmedOrNil(req.Phone)
	out.RecoveryEmail = n.clearable("recovery_email", req.RecoveryEmail)
	out.RecoveryPhone = n.clearable("recovery_phone", req.RecoveryPhone)
	out.UserType = lowerOrNil(req.UserType)
	out.LocationCodes = trimAll(req.LocationCodes)
	out.ExternalIDs = normalizeExternalIDs(req.ExternalIDs)
	out.Framework = normalizeFramework(req.Framework)
	if req.Organisations != nil {
		organisations := make([]MembershipRequest, 0, len(req.Organisations))
		for _, membership := range req.Organisations {
			organisations = append(organisations, MembershipRequest{
				OrganisationID: strings.TrimSpace(membership.OrganisationID),
				Roles:          trimAll(membership.Roles),
				HashTagID:      strings.TrimSpace(membership.HashTagID),
			})
		}
		out.Organisations = organisations
	}

	// server-managed
	out.Status = nil
	out.Provider = nil
	out.Username = nil
	out.RootOrgID = nil
	out.LoginID = nil
	out.Roles = nil
	out.Channel = nil
	return out
}

func (n RequestNormalizer) identity(field string, value *string) *string {
	trimmed := trimmedOrNil(value)
	if trimmed == nil || !n.config.lowercases(field) {
		return trimmed
	}
	lowered := strings.ToLower(*trimmed)
	return &lowered
}

// clearable keeps a blank value as an explicit empty string so the update
// clears the stored field.
func (n RequestNormalizer) clearable(field string, value *string) *string {
	if value == nil {
		return nil
	}
	if strings.TrimSpace(*value) == "" {
		empty := ""
		return &empty
	}
	return n.identity(field, value)
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func lowerOrNil(value *string) *string {
	trimmed := trimmedOrNil(value)
	if trimmed == nil {
		return nil
	}
	lowered := strings.ToLower(*trimmed)
	return &lowered
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeExternalIDs(in []ExternalID) []ExternalID {
	if in == nil {
		return nil
	}
	out := make([]ExternalID, 0, len(in))
	for _, externalID := range in {
		out = append(out, ExternalID{
			ID:       strings.TrimSpace(externalID.ID),
			IDType:   strings.ToLower(strings.TrimSpace(externalID.IDType)),
			Provider: strings.ToLower(strings.TrimSpace(externalID.Provider)),
		})
	}
	return out
}

func normalizeFramework(in *FrameworkSelection) *FrameworkSelection {
	if in == nil {
		return nil
	}
	out := &FrameworkSelection{IDs: trimAll(in.IDs)}
	if len(in.Categories) > 0 {
		out.Categories = make(map[string][]string, len(in.Categories))
		for category, values := range in.Categories {
			out.Categories[strings.TrimSpace(category)] = trimAll(values)
		}
	}
	return out
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
