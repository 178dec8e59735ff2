package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type sealedContact struct {
	encrypted   string
	fingerprint string
	masked      string
}

// persistOutcome reports how far a write got. written is true once the
// primary record is stored, even if a later step failed.
type persistOutcome struct {
	account UserAccount
	errors  []FieldError
	written bool
}

// PersistenceCoordinator writes the account record and triggers downstream
// propagation.
type PersistenceCoordinator struct {
	users         UserStore
	memberships   MembershipStore
	sync          *OrgMembershipSynchronizer
	attributes    AttributeStore
	cipher        ContactCipher
	userIDs       IDGenerator
	membershipIDs IDGenerator
	index         IndexSyncTrigger
	publisher     EventPublisher
	logger        Logger
	now           func() time.Time
}

func (p *PersistenceCoordinator) Create(
	ctx context.Context,
	req CreateUserRequest,
	state *validationState,
	flags VerificationFlags,
	actor string,
) (persistOutcome, error) {
	now := p.now()
	userID := p.userIDs.NewID()
	if strings.TrimSpace(actor) == "" {
		actor = userID
	}
	account := UserAccount{
		ID:             userID,
		Name:           req.Name,
		Username:       stringValue(req.Username),
		LoginID:        stringValue(req.LoginID),
		Channel:        state.channel,
		OrganisationID: state.organisationID,
		RootOrgID:      state.rootOrgID,
		UserType:       state.userType,
		Framework:      state.framework,
		LocationIDs:    state.locationIDs,
		ExternalIDs:    append([]ExternalID(nil), req.ExternalIDs...),
		Flags:          EncodeFlags(flags),
		EmailVerified:  boolPtr(flags.EmailVerified),
		PhoneVerified:  boolPtr(flags.PhoneVerified),
		StateValidated: boolPtr(flags.StateValidated),
		TncAcceptedOn:  req.TncAcceptedOn,
		CreatedBy:      actor,
		UpdatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.sealContacts(ctx, &account, req.Email, req.Phone, req.RecoveryEmail, req.RecoveryPhone); err != nil {
		return persistOutcome{}, err
	}

	stored, err := p.users.Insert(ctx, account)
	if err != nil {
		return persistOutcome{}, newUpstreamUnavailable(err, "store user failed")
	}
	if strings.TrimSpace(stored.ID) == "" {
		stored = account
	}
	outcome := persistOutcome{account: stored, written: true}

	if err := p.addRootMembership(ctx, stored, actor, now); err != nil {
		p.warn(ctx, "root organisation membership failed", map[string]any{"user_id": stored.ID, "error": err.Error()})
		outcome.errors = append(outcome.errors, FieldError{Field: "organisation_id", Message: err.Error()})
	}
	outcome.errors = append(outcome.errors, p.saveAttributes(ctx, stored.ID, req.Attributes, OperationCreate)...)
	p.triggerIndex(ctx, stored.ID)
	return outcome, nil
}

func (p *PersistenceCoordinator) Update(
	ctx context.Context,
	req UpdateUserRequest,
	state *validationState,
	flags VerificationFlags,
	actor string,
) (persistOutcome, error) {
	now := p.now()
	account := state.stored
	if req.Name != nil {
		account.Name = *req.Name
	}
	if req.UserType != nil {
		account.UserType = state.userType
	}
	if state.framework != nil {
		account.Framework = state.framework
	}
	if state.locationIDs != nil {
		account.LocationIDs = state.locationIDs
	}
	if req.ExternalIDs != nil {
		account.ExternalIDs = append([]ExternalID(nil), req.ExternalIDs...)
	}
	if req.TncAcceptedOn != nil {
		account.TncAcceptedOn = req.TncAcceptedOn
	}
	if err := p.sealContacts(ctx, &account, req.Email, req.Phone, req.RecoveryEmail, req.RecoveryPhone); err != nil {
		return persistOutcome{}, err
	}
	account.Flags = EncodeFlags(flags)
	account.EmailVerified = boolPtr(flags.EmailVerified)
	account.PhoneVerified = boolPtr(flags.PhoneVerified)
	account.StateValidated = boolPtr(flags.StateValidated)
	account.UpdatedBy = actor
	account.UpdatedAt = now

	stored, err := p.users.Update(ctx, account)
	if err != nil {
		return persistOutcome{}, newUpstreamUnavailable(err, "update user failed")
	}
	if strings.TrimSpace(stored.ID) == "" {
		stored = account
	}
	outcome := persistOutcome{account: stored, written: true}

	if state.reqCtx.Private && req.HasOrganisations() {
		if _, err := p.sync.Sync(ctx, stored.ID, stored.RootOrgID, req.Organisations, state.resolvedOrgs, actor); err != nil {
			return outcome, err
		}
	}
	outcome.errors = append(outcome.errors, p.saveAttributes(ctx, stored.ID, req.Attributes, OperationUpdate)...)
	p.triggerIndex(ctx, stored.ID)
	return outcome, nil
}

// sealContacts encrypts, fingerprints and masks the supplied contacts onto
// account. Nil values leave the stored contact untouched; a blank recovery
// value clears it.
func (p *PersistenceCoordinator) sealContacts(
	ctx context.Context,
	account *UserAccount,
	email, phone, recoveryEmail, recoveryPhone *string,
) error {
	if email != nil {
		sealed, err := p.seal(ctx, strings.ToLower(strings.TrimSpace(*email)), maskEmail)
		if err != nil {
			return err
		}
		account.EncryptedEmail = sealed.encrypted
		account.EmailFingerprint = sealed.fingerprint
		account.MaskedEmail = sealed.masked
	}
	if phone != nil {
		sealed, err := p.seal(ctx, normalizePhone(*phone), maskPhone)
		if err != nil {
			return err
		}
		account.EncryptedPhone = sealed.encrypted
		account.PhoneFingerprint = sealed.fingerprint
		account.MaskedPhone = sealed.masked
	}
	if recoveryEmail != nil {
		sealed, err := p.seal(ctx, strings.ToLower(strings.TrimSpace(*recoveryEmail)), nil)
		if err != nil {
			return err
		}
		account.EncryptedRecoveryEmail = sealed.encrypted
		account.RecoveryEmailFingerprint = sealed.fingerprint
	}
	if recoveryPhone != nil {
		sealed, err := p.seal(ctx, normalizePhone(*recoveryPhone), nil)
		if err != nil {
			return err
		}
		account.EncryptedRecoveryPhone = sealed.encrypted
		account.RecoveryPhoneFingerprint = sealed.fingerprint
	}
	return nil
}

func (p *PersistenceCoordinator) seal(ctx context.Context, value string, mask func(string) string) (sealedContact, error) {
	if value == "" {
		return sealedContact{}, nil
	}
	if p.cipher == nil {
		return sealedContact{}, newInternal(fmt.Errorf("core: contact cipher is not configured"), "encrypt contact failed")
	}
	encrypted, err := p.cipher.Encrypt(ctx, value)
	if err != nil {
		return sealedContact{}, newInternal(err, "encrypt contact failed")
	}
	sealed := sealedContact{
		encrypted:   encrypted,
		fingerprint: p.cipher.Fingerprint(value),
	}
	if mask != nil {
		sealed.masked = mask(value)
	}
	return sealed, nil
}

func (p *PersistenceCoordinator) addRootMembership(ctx context.Context, account UserAccount, actor string, now time.Time) error {
	orgID := strings.TrimSpace(account.OrganisationID)
	if orgID == "" {
		orgID = strings.TrimSpace(account.RootOrgID)
	}
	if orgID == "" || p.memberships == nil {
		return nil
	}
	joined := now
	_, err := p.memberships.Create(ctx, OrganizationMembership{
		ID:             p.membershipIDs.NewID(),
		UserID:         account.ID,
		OrganisationID: orgID,
		Roles:          []string{RolePublic},
		JoinedAt:       &joined,
		AddedBy:        actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return newUpstreamUnavailable(err, "create membership failed")
	}
	return nil
}

// saveAttributes forwards extended attributes. Failures never abort the
// request; they are returned as field errors.
func (p *PersistenceCoordinator) saveAttributes(ctx context.Context, userID string, attributes map[string]any, operation string) []FieldError {
	if len(attributes) == 0 || p.attributes == nil {
		return nil
	}
	result, err := p.attributes.Save(ctx, userID, copyMap(attributes), operation)
	if err != nil {
		p.warn(ctx, "attribute store save failed", map[string]any{
			"user_id":   userID,
			"operation": operation,
			"error":     err.Error(),
		})
		return append(result.Errors, FieldError{Field: "attributes", Message: err.Error()})
	}
	return result.Errors
}

func (p *PersistenceCoordinator) triggerIndex(ctx context.Context, userID string) {
	if p.index == nil {
		return
	}
	if err := p.index.TriggerSync(ctx, userID); err != nil {
		p.warn(ctx, "index sync trigger failed", map[string]any{"user_id": userID, "error": err.Error()})
	}
}

// NotifyOnboarding enqueues the onboarding notification for accounts created
// on behalf of someone else.
func (p *PersistenceCoordinator) NotifyOnboarding(ctx context.Context, account UserAccount, reqCtx RequestContext) {
	if p.publisher == nil || strings.TrimSpace(reqCtx.CallerID) == "" {
		return
	}
	err := p.publisher.Publish(ctx, LifecycleEvent{
		Name:    EventOnboardingNotification,
		UserID:  account.ID,
		ActorID: reqCtx.CallerID,
		Action:  OperationCreate,
		Payload: map[string]any{
			"user_id":    account.ID,
			"name":       account.Name,
			"channel":    account.Channel,
			"has_email":  account.HasEmail(),
			"has_phone":  account.HasPhone(),
			"created_by": reqCtx.CallerID,
		},
	})
	if err != nil {
		p.warn(ctx, "onboarding notification enqueue failed", map[string]any{"user_id": account.ID, "error": err.Error()})
	}
}

func (p *PersistenceCoordinator) warn(ctx context.Context, message string, fields map[string]any) {
	logWithLevel(ctx, p.logger, "warn", message, fields)
}

func maskEmail(value string) string {
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return strings.Repeat("*", len(value))
	}
	local, domain := value[:at], value[at:]
	visible := 2
	if len(local) <= visible {
		visible = 1
	}
	return local[:visible] + strings.Repeat("*", len(local)-visible) + domain
}

func maskPhone(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
