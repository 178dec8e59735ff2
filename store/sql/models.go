package sqlstore

import (
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/uptrace/bun"
)

type userRecord struct {
	bun.BaseModel `bun:"table:accounts_users,alias:au"`

	ID                       string              `bun:"id,pk"`
	Name                     string              `bun:"name,notnull"`
	Username                 string              `bun:"username,notnull"`
	LoginID                  string              `bun:"login_id,notnull"`
	EncryptedEmail           string              `bun:"encrypted_email,notnull"`
	EncryptedPhone           string              `bun:"encrypted_phone,notnull"`
	EncryptedRecoveryEmail   string              `bun:"encrypted_recovery_email,notnull"`
	EncryptedRecoveryPhone   string              `bun:"encrypted_recovery_phone,notnull"`
	EmailFingerprint         string              `bun:"email_fingerprint,notnull"`
	PhoneFingerprint         string              `bun:"phone_fingerprint,notnull"`
	RecoveryEmailFingerprint string              `bun:"recovery_email_fingerprint,notnull"`
	RecoveryPhoneFingerprint string              `bun:"recovery_phone_fingerprint,notnull"`
	MaskedEmail              string              `bun:"masked_email,notnull"`
	MaskedPhone              string              `bun:"masked_phone,notnull"`
	Channel                  string              `bun:"channel,notnull"`
	OrganisationID           string              `bun:"organisation_id,notnull"`
	RootOrgID                string              `bun:"root_org_id,notnull"`
	UserType                 string              `bun:"user_type,notnull"`
	Framework                map[string][]string `bun:"framework,type:jsonb,notnull"`
	LocationIDs              []string            `bun:"location_ids,type:jsonb,notnull"`
	ExternalIDs              []core.ExternalID   `bun:"external_ids,type:jsonb,notnull"`
	Flags                    int                 `bun:"flags,notnull"`
	EmailVerified            *bool               `bun:"email_verified"`
	PhoneVerified            *bool               `bun:"phone_verified"`
	StateValidated           *bool               `bun:"state_validated"`
	TncAcceptedOn            *time.Time          `bun:"tnc_accepted_on,nullzero"`
	Status                   int                 `bun:"status,notnull"`
	IsDeleted                bool                `bun:"is_deleted,notnull"`
	CreatedBy                string              `bun:"created_by,notnull"`
	UpdatedBy                string              `bun:"updated_by,notnull"`
	CreatedAt                time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt                time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type membershipRecord struct {
	bun.BaseModel `bun:"table:accounts_organisation_memberships,alias:aom"`

	ID             string     `bun:"id,pk"`
	UserID         string     `bun:"user_id,notnull"`
	OrganisationID string     `bun:"organisation_id,notnull"`
	HashTagID      string     `bun:"hash_tag_id,notnull"`
	Roles          []string   `bun:"roles,type:jsonb,notnull"`
	JoinedAt       *time.Time `bun:"joined_at,nullzero"`
	LeftAt         *time.Time `bun:"left_at,nullzero"`
	IsDeleted      bool       `bun:"is_deleted,notnull"`
	AddedBy        string     `bun:"added_by,notnull"`
	UpdatedBy      string     `bun:"updated_by,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type userAttributesRecord struct {
	bun.BaseModel `bun:"table:accounts_user_attributes,alias:aua"`

	UserID     string         `bun:"user_id,pk"`
	Attributes map[string]any `bun:"attributes,type:jsonb,notnull"`
	Operation  string         `bun:"last_operation,notnull"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type organisationRecord struct {
	bun.BaseModel `bun:"table:accounts_organisations,alias:ao"`

	ID         string    `bun:"id,pk"`
	IsRootOrg  bool      `bun:"is_root_org,notnull"`
	RootOrgID  string    `bun:"root_org_id,notnull"`
	Channel    string    `bun:"channel,notnull"`
	HashTagID  string    `bun:"hash_tag_id,notnull"`
	ExternalID string    `bun:"external_id,notnull"`
	Provider   string    `bun:"provider,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type frameworkRecord struct {
	bun.BaseModel `bun:"table:accounts_frameworks,alias:af"`

	ID         string                         `bun:"id,pk"`
	Categories map[string][]core.CategoryTerm `bun:"categories,type:jsonb,notnull"`
	CreatedAt  time.Time                      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type hashTagFrameworkRecord struct {
	bun.BaseModel `bun:"table:accounts_hash_tag_frameworks,alias:ahf"`

	HashTagID   string `bun:"hash_tag_id,pk"`
	FrameworkID string `bun:"framework_id,pk"`
}

type locationRecord struct {
	bun.BaseModel `bun:"table:accounts_locations,alias:al"`

	ID   string `bun:"id,pk"`
	Code string `bun:"code,notnull"`
	Type string `bun:"type,notnull"`
}

type roleRecord struct {
	bun.BaseModel `bun:"table:accounts_roles,alias:ar"`

	ID     string `bun:"id,pk"`
	Active bool   `bun:"active,notnull"`
}

type activityEntryRecord struct {
	bun.BaseModel `bun:"table:accounts_activity_entries,alias:aae"`

	ID         string         `bun:"id,pk"`
	UserID     string         `bun:"user_id,notnull"`
	Channel    string         `bun:"channel,notnull"`
	Action     string         `bun:"action,notnull"`
	ObjectType string         `bun:"object_type,notnull"`
	ObjectID   string         `bun:"object_id,notnull"`
	Actor      string         `bun:"actor,notnull"`
	Status     string         `bun:"status,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type lifecycleOutboxRecord struct {
	bun.BaseModel `bun:"table:accounts_lifecycle_outbox,alias:alo"`

	ID          string         `bun:"id,pk"`
	EventID     string         `bun:"event_id,notnull"`
	EventName   string         `bun:"event_name,notnull"`
	UserID      string         `bun:"user_id,notnull"`
	ActorID     string         `bun:"actor_id,notnull"`
	Action      string         `bun:"action,notnull"`
	Source      string         `bun:"source,notnull"`
	Payload     map[string]any `bun:"payload,type:jsonb,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	Status      string         `bun:"status,notnull"`
	Attempts    int            `bun:"attempts,notnull"`
	NextAttempt *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError   string         `bun:"last_error,notnull"`
	OccurredAt  time.Time      `bun:"occurred_at,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
