package sqlstore

import (
	"time"

	"github.com/goliatone/go-accounts/core"
)

func newUserRecord(user core.UserAccount) *userRecord {
	return &userRecord{
		ID:                       user.ID,
		Name:                     user.Name,
		Username:                 user.Username,
		LoginID:                  user.LoginID,
		EncryptedEmail:           user.EncryptedEmail,
		EncryptedPhone:           user.EncryptedPhone,
		EncryptedRecoveryEmail:   user.EncryptedRecoveryEmail,
		EncryptedRecoveryPhone:   user.EncryptedRecoveryPhone,
		EmailFingerprint:         user.EmailFingerprint,
		PhoneFingerprint:         user.PhoneFingerprint,
		RecoveryEmailFingerprint: user.RecoveryEmailFingerprint,
		RecoveryPhoneFingerprint: user.RecoveryPhoneFingerprint,
		MaskedEmail:              user.MaskedEmail,
		MaskedPhone:              user.MaskedPhone,
		Channel:                  user.Channel,
		OrganisationID:           user.OrganisationID,
		RootOrgID:                user.RootOrgID,
		UserType:                 user.UserType,
		Framework:                copyFramework(user.Framework),
		LocationIDs:              copyStrings(user.LocationIDs),
		ExternalIDs:              append([]core.ExternalID{}, user.ExternalIDs...),
		Flags:                    user.Flags,
		EmailVerified:            copyBool(user.EmailVerified),
		PhoneVerified:            copyBool(user.PhoneVerified),
		StateValidated:           copyBool(user.StateValidated),
		TncAcceptedOn:            copyTime(user.TncAcceptedOn),
		Status:                   user.Status,
		IsDeleted:                user.IsDeleted,
		CreatedBy:                user.CreatedBy,
		UpdatedBy:                user.UpdatedBy,
		CreatedAt:                user.CreatedAt,
		UpdatedAt:                user.UpdatedAt,
	}
}

func (r *userRecord) toDomain() core.UserAccount {
	if r == nil {
		return core.UserAccount{}
	}
	return core.UserAccount{
		ID:                       r.ID,
		Name:                     r.Name,
		Username:                 r.Username,
		LoginID:                  r.LoginID,
		EncryptedEmail:           r.EncryptedEmail,
		EncryptedPhone:           r.EncryptedPhone,
		EncryptedRecoveryEmail:   r.EncryptedRecoveryEmail,
		EncryptedRecoveryPhone:   r.EncryptedRecoveryPhone,
		EmailFingerprint:         r.EmailFingerprint,
		PhoneFingerprint:         r.PhoneFingerprint,
		RecoveryEmailFingerprint: r.RecoveryEmailFingerprint,
		RecoveryPhoneFingerprint: r.RecoveryPhoneFingerprint,
		MaskedEmail:              r.MaskedEmail,
		MaskedPhone:              r.MaskedPhone,
		Channel:                  r.Channel,
		OrganisationID:           r.OrganisationID,
		RootOrgID:                r.RootOrgID,
		UserType:                 r.UserType,
		Framework:                copyFramework(r.Framework),
		LocationIDs:              copyStrings(r.LocationIDs),
		ExternalIDs:              append([]core.ExternalID(nil), r.ExternalIDs...),
		Flags:                    r.Flags,
		EmailVerified:            copyBool(r.EmailVerified),
		PhoneVerified:            copyBool(r.PhoneVerified),
		StateValidated:           copyBool(r.StateValidated),
		TncAcceptedOn:            copyTime(r.TncAcceptedOn),
		Status:                   r.Status,
		IsDeleted:                r.IsDeleted,
		CreatedBy:                r.CreatedBy,
		UpdatedBy:                r.UpdatedBy,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

func newMembershipRecord(membership core.OrganizationMembership) *membershipRecord {
	return &membershipRecord{
		ID:             membership.ID,
		UserID:         membership.UserID,
		OrganisationID: membership.OrganisationID,
		HashTagID:      membership.HashTagID,
		Roles:          copyStrings(membership.Roles),
		JoinedAt:       copyTime(membership.JoinedAt),
		LeftAt:         copyTime(membership.LeftAt),
		IsDeleted:      membership.Deleted,
		AddedBy:        membership.AddedBy,
		UpdatedBy:      membership.UpdatedBy,
		CreatedAt:      membership.CreatedAt,
		UpdatedAt:      membership.UpdatedAt,
	}
}

func (r *membershipRecord) toDomain() core.OrganizationMembership {
	if r == nil {
		return core.OrganizationMembership{}
	}
	return core.OrganizationMembership{
		ID:             r.ID,
		UserID:         r.UserID,
		OrganisationID: r.OrganisationID,
		HashTagID:      r.HashTagID,
		Roles:          copyStrings(r.Roles),
		JoinedAt:       copyTime(r.JoinedAt),
		LeftAt:         copyTime(r.LeftAt),
		Deleted:        r.IsDeleted,
		AddedBy:        r.AddedBy,
		UpdatedBy:      r.UpdatedBy,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r *organisationRecord) toDomain() core.Organization {
	if r == nil {
		return core.Organization{}
	}
	return core.Organization{
		ID:         r.ID,
		IsRootOrg:  r.IsRootOrg,
		RootOrgID:  r.RootOrgID,
		Channel:    r.Channel,
		HashTagID:  r.HashTagID,
		ExternalID: r.ExternalID,
		Provider:   r.Provider,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyFramework(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for key, values := range in {
		out[key] = copyStrings(values)
	}
	return out
}

// copyStrings never returns nil so jsonb columns store [] rather than null.
func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyBool(in *bool) *bool {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

func copyTime(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}
