package core

import (
	"strings"
	"time"
)

const (
	UserTypeTeacher = "teacher"
	UserTypeOther   = "other"

	RolePublic = "PUBLIC"

	APIVersionV1 = "v1"
	APIVersionV2 = "v2"

	OperationCreate = "create"
	OperationUpdate = "update"

	ResponseSuccess = "SUCCESS"
)

type ExternalID struct {
	ID       string `json:"id" validate:"required"`
	IDType   string `json:"id_type" validate:"required"`
	Provider string `json:"provider" validate:"required"`
}

type FrameworkSelection struct {
	IDs        []string            `json:"id"`
	Categories map[string][]string `json:"categories,omitempty"`
}

// PrimaryID returns the first non-blank framework id.
func (f FrameworkSelection) PrimaryID() string {
	for _, id := range f.IDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type MembershipRequest struct {
	OrganisationID string   `json:"organisation_id" validate:"required"`
	Roles          []string `json:"roles,omitempty"`
	HashTagID      string   `json:"hash_tag_id,omitempty"`
}

type CreateUserRequest struct {
	Name           string              `json:"name" validate:"required"`
	Username       *string             `json:"username,omitempty" validate:"omitempty,min=1"`
	LoginID        *string             `json:"login_id,omitempty"`
	Email          *string             `json:"email,omitempty" validate:"omitempty,email"`
	Phone          *string             `json:"phone,omitempty" validate:"omitempty,phone"`
	RecoveryEmail  *string             `json:"recovery_email,omitempty" validate:"omitempty,email"`
	RecoveryPhone  *string             `json:"recovery_phone,omitempty" validate:"omitempty,phone"`
	Channel        *string             `json:"channel,omitempty"`
	OrganisationID *string             `json:"organisation_id,omitempty"`
	OrgExternalID  *string             `json:"org_external_id,omitempty"`
	RootOrgID      *string             `json:"root_org_id,omitempty"`
	UserType       *string             `json:"user_type,omitempty"`
	Framework      *FrameworkSelection `json:"framework,omitempty"`
	LocationCodes  []string            `json:"location_codes,omitempty"`
	ExternalIDs    []ExternalID        `json:"external_ids,omitempty" validate:"omitempty,dive"`
	EmailVerified  *bool               `json:"email_verified,omitempty"`
	PhoneVerified  *bool               `json:"phone_verified,omitempty"`
	TncAcceptedOn  *time.Time          `json:"tnc_accepted_on,omitempty"`
	Attributes     map[string]any      `json:"attributes,omitempty"`
}

type UpdateUserRequest struct {
	UserID        string              `json:"user_id" validate:"required"`
	Name          *string             `json:"name,omitempty" validate:"omitempty,min=1"`
	Username      *string             `json:"username,omitempty"`
	LoginID       *string             `json:"login_id,omitempty"`
	Email         *string             `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string             `json:"phone,omitempty" validate:"omitempty,phone"`
	RecoveryEmail *string             `json:"recovery_email,omitempty" validate:"omitempty,email"`
	RecoveryPhone *string             `json:"recovery_phone,omitempty" validate:"omitempty,phone"`
	Channel       *string             `json:"channel,omitempty"`
	RootOrgID     *string             `json:"root_org_id,omitempty"`
	UserType      *string             `json:"user_type,omitempty"`
	Status        *string             `json:"status,omitempty"`
	Provider      *string             `json:"provider,omitempty"`
	Roles         []string            `json:"roles,omitempty"`
	Framework     *FrameworkSelection `json:"framework,omitempty"`
	Organisations []MembershipRequest `json:"organisations,omitempty" validate:"omitempty,dive"`
	LocationCodes []string            `json:"location_codes,omitempty"`
	ExternalIDs   []ExternalID        `json:"external_ids,omitempty" validate:"omitempty,dive"`
	EmailVerified *bool               `json:"email_verified,omitempty"`
	PhoneVerified *bool               `json:"phone_verified,omitempty"`
	TncAcceptedOn *time.Time          `json:"tnc_accepted_on,omitempty"`
	Attributes    map[string]any      `json:"attributes,omitempty"`
}

// HasOrganisations reports whether the organisations field was supplied.
// A nil slice means absent; an empty non-nil slice is an explicit empty list.
func (r UpdateUserRequest) HasOrganisations() bool {
	return r.Organisations != nil
}

type RequestContext struct {
	CallerID      string
	Version       string
	SignupType    string
	RequestSource string
	RequestedBy   string
	RootOrgID     string
	Private       bool
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type CreateUserResult struct {
	UserID string       `json:"user_id"`
	Errors []FieldError `json:"errors,omitempty"`
}

type UpdateUserResult struct {
	UserID   string       `json:"user_id"`
	Response string       `json:"response"`
	Errors   []FieldError `json:"errors,omitempty"`
}

type UserAccount struct {
	ID                       string
	Name                     string
	Username                 string
	LoginID                  string
	EncryptedEmail           string
	EncryptedPhone           string
	EncryptedRecoveryEmail   string
	EncryptedRecoveryPhone   string
	EmailFingerprint         string
	PhoneFingerprint         string
	RecoveryEmailFingerprint string
	RecoveryPhoneFingerprint string
	MaskedEmail              string
	MaskedPhone              string
	Channel                  string
	OrganisationID           string
	RootOrgID                string
	UserType                 string
	Framework                map[string][]string
	LocationIDs              []string
	ExternalIDs              []ExternalID
	Flags                    int
	EmailVerified            *bool
	PhoneVerified            *bool
	StateValidated           *bool
	TncAcceptedOn            *time.Time
	Status                   int
	IsDeleted                bool
	CreatedBy                string
	UpdatedBy                string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// HasEmail reports whether the account has a stored primary email.
func (u UserAccount) HasEmail() bool {
	return strings.TrimSpace(u.EncryptedEmail) != ""
}

// HasPhone reports whether the account has a stored primary phone.
func (u UserAccount) HasPhone() bool {
	return strings.TrimSpace(u.EncryptedPhone) != ""
}

type OrganizationMembership struct {
	ID             string
	UserID         string
	OrganisationID string
	HashTagID      string
	Roles          []string
	JoinedAt       *time.Time
	LeftAt         *time.Time
	Deleted        bool
	AddedBy        string
	UpdatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Organization struct {
	ID         string
	IsRootOrg  bool
	RootOrgID  string
	Channel    string
	HashTagID  string
	ExternalID string
	Provider   string
}

// EffectiveRootID returns the organization's own id for root orgs and its parent otherwise.
func (o Organization) EffectiveRootID() string {
	if o.IsRootOrg {
		return strings.TrimSpace(o.ID)
	}
	return strings.TrimSpace(o.RootOrgID)
}

type CategoryTerm struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FrameworkTaxonomy maps category codes to the allowed terms of one framework.
type FrameworkTaxonomy struct {
	FrameworkID string                    `json:"framework_id"`
	Categories  map[string][]CategoryTerm `json:"categories"`
}

// AllowsTerm reports whether value is a known term name for category.
func (t FrameworkTaxonomy) AllowsTerm(category string, value string) bool {
	terms, ok := t.Categories[category]
	if !ok {
		return false
	}
	for _, term := range terms {
		if strings.EqualFold(strings.TrimSpace(term.Name), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

type CustodianOrg struct {
	Channel   string
	RootOrgID string
}

type AttributeSaveResult struct {
	Errors []FieldError
}

type LifecycleEvent struct {
	ID         string
	Name       string
	UserID     string
	ActorID    string
	Action     string
	Source     string
	OccurredAt time.Time
	Payload    map[string]any
	Metadata   map[string]any
}

type ActivityStatus string

const (
	ActivityStatusOK    ActivityStatus = "ok"
	ActivityStatusWarn  ActivityStatus = "warn"
	ActivityStatusError ActivityStatus = "error"
)

type ActivityEntry struct {
	ID        string
	Actor     string
	Action    string
	Object    string
	Channel   string
	Status    ActivityStatus
	Metadata  map[string]any
	CreatedAt time.Time
}

type ActivityFilter struct {
	UserID  string
	Actor   string
	Action  string
	Page    int
	PerPage int
}

type ActivityPage struct {
	Items   []ActivityEntry
	Page    int
	PerPage int
	Total   int
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

type IndexDocument struct {
	UserID        string              `json:"user_id"`
	Name          string              `json:"name"`
	Username      string              `json:"username,omitempty"`
	MaskedEmail   string              `json:"masked_email,omitempty"`
	MaskedPhone   string              `json:"masked_phone,omitempty"`
	Channel       string              `json:"channel"`
	RootOrgID     string              `json:"root_org_id"`
	UserType      string              `json:"user_type"`
	Framework     map[string][]string `json:"framework,omitempty"`
	LocationIDs   []string            `json:"location_ids,omitempty"`
	Organisations []string            `json:"organisations,omitempty"`
	Flags         int                 `json:"flags"`
	Status        int                 `json:"status"`
	IsDeleted     bool                `json:"is_deleted"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type NotificationRequest struct {
	Template string
	UserID   string
	Email    string
	Phone    string
	Name     string
	Metadata map[string]any
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}
