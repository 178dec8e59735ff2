package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const custodianCacheKey = "custodian"

type validationState struct {
	operation string
	reqCtx    RequestContext
	create    *CreateUserRequest
	update    *UpdateUserRequest
	stored    UserAccount

	custodian      CustodianOrg
	isCustodian    bool
	organisationID string
	rootOrgID      string
	channel        string
	userType       string
	framework      map[string][]string
	locationIDs    []string
	resolvedOrgs   map[string]Organization
}

type validationStep struct {
	name string
	run  func(ctx context.Context, state *validationState) error
}

// ValidationPipeline runs its steps in order and stops at the first failure.
type ValidationPipeline struct {
	steps []validationStep
}

func (p ValidationPipeline) Run(ctx context.Context, state *validationState) error {
	for _, step := range p.steps {
		if err := step.run(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

func (p ValidationPipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		names = append(names, step.name)
	}
	return names
}

type requestValidator struct {
	config     Config
	schema     *schemaValidator
	orgs       OrganizationResolver
	custodian  *custodianLookup
	frameworks *frameworkLookup
	locations  LocationResolver
	roles      RoleValidator
	users      UserStore
	cipher     ContactCipher
	sync       *OrgMembershipSynchronizer
}

func (v *requestValidator) createPipeline() ValidationPipeline {
	return ValidationPipeline{steps: []validationStep{
		{name: "schema", run: v.checkCreateSchema},
		{name: "organisation_channel", run: v.checkCreateOrganisation},
		{name: "external_ids", run: v.checkExternalIDs},
		{name: "contacts", run: v.checkCreateContacts},
		{name: "framework", run: v.checkFramework},
		{name: "user_type", run: v.checkUserType},
		{name: "locations", run: v.checkLocations},
	}}
}

func (v *requestValidator) updatePipeline() ValidationPipeline {
	return ValidationPipeline{steps: []validationStep{
		{name: "schema", run: v.checkUpdateSchema},
		{name: "organisation_channel", run: v.checkUpdateOrganisations},
		{name: "external_ids", run: v.checkExternalIDs},
		{name: "contacts", run: v.checkUpdateContacts},
		{name: "framework", run: v.checkFramework},
		{name: "user_type", run: v.checkUserType},
		{name: "locations", run: v.checkLocations},
	}}
}

func (v *requestValidator) checkCreateSchema(_ context.Context, state *validationState) error {
	req := state.create
	if err := v.schema.check(req); err != nil {
		return err
	}
	switch strings.TrimSpace(state.reqCtx.Version) {
	case APIVersionV1:
		if req.Username == nil {
			return newInvalidRequestData("username is required", schemaField("username", "required"))
		}
	default:
		if req.Email == nil && req.Phone == nil {
			return newInvalidRequestData("email or phone is required", schemaField("email", "required_without phone"))
		}
	}
	if req.OrgExternalID != nil && req.Channel == nil {
		return newInvalidRequestData("channel is required with org_external_id", schemaField("channel", "required_with org_external_id"))
	}
	return nil
}

func (v *requestValidator) checkUpdateSchema(ctx context.Context, state *validationState) error {
	payload := *state.update
	if payload.RecoveryEmail != nil && *payload.RecoveryEmail == "" {
		payload.RecoveryEmail = nil
	}
	if payload.RecoveryPhone != nil && *payload.RecoveryPhone == "" {
		payload.RecoveryPhone = nil
	}
	if err := v.schema.check(payload); err != nil {
		return err
	}
	stored, err := v.users.Get(ctx, state.update.UserID)
	if err != nil {
		if isNotFound(err) {
			return accountErrorMapper(fmt.Errorf("%w: %s", ErrUserNotFound, state.update.UserID))
		}
		return newUpstreamUnavailable(err, "load user failed")
	}
	if stored.IsDeleted {
		return newInvalidParameterValue("user is not active", map[string]any{"user_id": stored.ID})
	}
	state.stored = stored
	state.rootOrgID = stored.RootOrgID
	state.channel = stored.Channel
	state.organisationID = stored.OrganisationID
	return nil
}

func (v *requestValidator) checkCreateOrganisation(ctx context.Context, state *validationState) error {
	req := state.create
	channel := stringValue(req.Channel)
	organisationID := stringValue(req.OrganisationID)

	if req.OrgExternalID != nil {
		resolvedID, found, err := v.orgs.GetIDByExternalID(ctx, *req.OrgExternalID, channel)
		if err != nil {
			return newUpstreamUnavailable(err, "resolve organisation by external id failed")
		}
		if !found {
			return newInvalidParameterValue("organisation external id does not resolve", map[string]any{
				"org_external_id": *req.OrgExternalID,
				"channel":         channel,
			})
		}
		if organisationID != "" && organisationID != resolvedID {
			return newParameterMismatch("organisationId", "orgExternalId", map[string]any{
				"organisation_id": organisationID,
				"org_external_id": *req.OrgExternalID,
			})
		}
		organisationID = resolvedID
	}

	switch {
	case organisationID != "":
		org, found, err := v.orgs.GetByID(ctx, organisationID)
		if err != nil {
			return newUpstreamUnavailable(err, "resolve organisation failed")
		}
		if !found {
			return newInvalidParameterValue("organisation does not exist", map[string]any{"organisation_id": organisationID})
		}
		rootChannel := org.Channel
		if !org.IsRootOrg {
			root, rootFound, rootErr := v.orgs.GetByID(ctx, org.EffectiveRootID())
			if rootErr != nil {
				return newUpstreamUnavailable(rootErr, "resolve root organisation failed")
			}
			if !rootFound {
				return newInvalidParameterValue("root organisation does not exist", map[string]any{"root_org_id": org.EffectiveRootID()})
			}
			rootChannel = root.Channel
		}
		if channel != "" && !strings.EqualFold(channel, rootChannel) {
			return newParameterMismatch("channel", "organisationId", map[string]any{
				"channel":         channel,
				"organisation_id": organisationID,
			})
		}
		state.organisationID = organisationID
		state.rootOrgID = org.EffectiveRootID()
		state.channel = rootChannel
	case channel != "":
		rootOrgID, found, err := v.orgs.GetRootOrgIDByChannel(ctx, channel)
		if err != nil {
			return newUpstreamUnavailable(err, "resolve channel failed")
		}
		if !found {
			return newInvalidParameterValue("channel does not resolve to a root organisation", map[string]any{"channel": channel})
		}
		state.rootOrgID = rootOrgID
		state.channel = channel
	case req.RootOrgID != nil:
		// an explicit root org suppresses the custodian fallback
		org, found, err := v.orgs.GetByID(ctx, *req.RootOrgID)
		if err != nil {
			return newUpstreamUnavailable(err, "resolve root organisation failed")
		}
		if !found || !org.IsRootOrg {
			return newInvalidParameterValue("root organisation does not exist", map[string]any{"root_org_id": *req.RootOrgID})
		}
		state.rootOrgID = org.EffectiveRootID()
		state.channel = org.Channel
	case strings.TrimSpace(state.reqCtx.CallerID) != "" && strings.TrimSpace(state.reqCtx.RootOrgID) != "":
		org, found, err := v.orgs.GetByID(ctx, state.reqCtx.RootOrgID)
		if err != nil {
			return newUpstreamUnavailable(err, "resolve caller root organisation failed")
		}
		if !found {
			return newInvalidParameterValue("root organisation does not exist", map[string]any{"root_org_id": state.reqCtx.RootOrgID})
		}
		state.rootOrgID = org.EffectiveRootID()
		state.channel = org.Channel
	default:
		custodian, err := v.custodian.Get(ctx)
		if err != nil {
			return err
		}
		state.rootOrgID = custodian.RootOrgID
		state.channel = custodian.Channel
		state.isCustodian = true
	}
	if state.organisationID == "" {
		state.organisationID = state.rootOrgID
	}
	return nil
}

func (v *requestValidator) checkUpdateOrganisations(ctx context.Context, state *validationState) error {
	req := state.update
	if !state.reqCtx.Private || !req.HasOrganisations() {
		return nil
	}
	resolved, err := v.sync.Resolve(ctx, req.Organisations)
	if err != nil {
		return err
	}
	if v.roles != nil {
		for _, membership := range req.Organisations {
			if len(membership.Roles) == 0 {
				continue
			}
			if err := v.roles.ValidateRoles(ctx, membership.Roles); err != nil {
				return newInvalidParameterValue("invalid roles: "+err.Error(), map[string]any{
					"organisation_id": membership.OrganisationID,
					"roles":           membership.Roles,
				})
			}
		}
	}
	state.resolvedOrgs = resolved
	return nil
}

func (v *requestValidator) checkExternalIDs(_ context.Context, state *validationState) error {
	var externalIDs []ExternalID
	if state.create != nil {
		externalIDs = state.create.ExternalIDs
	} else if state.update != nil {
		externalIDs = state.update.ExternalIDs
	}
	seen := make(map[string]struct{}, len(externalIDs))
	for i, externalID := range externalIDs {
		if externalID.ID == "" || externalID.IDType == "" || externalID.Provider == "" {
			return newInvalidRequestData("external id requires id, id_type and provider",
				schemaField(fmt.Sprintf("external_ids[%d]", i), "required"))
		}
		key := externalID.Provider + "|" + externalID.IDType
		if _, ok := seen[key]; ok {
			return newInvalidRequestData("duplicate external id for provider and id type",
				schemaField(fmt.Sprintf("external_ids[%d]", i), "unique provider,id_type"))
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (v *requestValidator) checkCreateContacts(ctx context.Context, state *validationState) error {
	req := state.create
	if err := checkContactPair("email", "recoveryEmail", req.Email, req.RecoveryEmail, v.emailPrint); err != nil {
		return err
	}
	if err := checkContactPair("phone", "recoveryPhone", req.Phone, req.RecoveryPhone, v.phonePrint); err != nil {
		return err
	}
	return v.checkUniqueness(ctx, "", req.Email, req.Phone, req.Username)
}

func (v *requestValidator) checkUpdateContacts(ctx context.Context, state *validationState) error {
	req := state.update
	stored := state.stored
	if req.Email != nil || req.RecoveryEmail != nil {
		primary := effectivePrint(req.Email, stored.EmailFingerprint, v.emailPrint)
		recovery := effectivePrint(req.RecoveryEmail, stored.RecoveryEmailFingerprint, v.emailPrint)
		if primary != "" && primary == recovery {
			return newRecoveryParamsMatch("email", "recoveryEmail")
		}
	}
	if req.Phone != nil || req.RecoveryPhone != nil {
		primary := effectivePrint(req.Phone, stored.PhoneFingerprint, v.phonePrint)
		recovery := effectivePrint(req.RecoveryPhone, stored.RecoveryPhoneFingerprint, v.phonePrint)
		if primary != "" && primary == recovery {
			return newRecoveryParamsMatch("phone", "recoveryPhone")
		}
	}
	var email, phone *string
	if req.Email != nil && v.emailPrint(*req.Email) != stored.EmailFingerprint {
		email = req.Email
	}
	if req.Phone != nil && v.phonePrint(*req.Phone) != stored.PhoneFingerprint {
		phone = req.Phone
	}
	return v.checkUniqueness(ctx, stored.ID, email, phone, nil)
}

func (v *requestValidator) checkUniqueness(ctx context.Context, selfID string, email, phone, username *string) error {
	checks := []struct {
		field string
		key   IdentityKey
		value string
	}{}
	if email != nil {
		checks = append(checks, struct {
			field string
			key   IdentityKey
			value string
		}{field: "email", key: IdentityEmail, value: v.emailPrint(*email)})
	}
	if phone != nil {
		checks = append(checks, struct {
			field string
			key   IdentityKey
			value string
		}{field: "phone", key: IdentityPhone, value: v.phonePrint(*phone)})
	}
	if username != nil {
		checks = append(checks, struct {
			field string
			key   IdentityKey
			value string
		}{field: "username", key: IdentityUsername, value: *username})
	}
	for _, check := range checks {
		ids, err := v.users.LookupIDs(ctx, check.key, check.value)
		if err != nil {
			return newUpstreamUnavailable(err, "lookup "+check.field+" failed")
		}
		for _, id := range ids {
			if id != selfID {
				return newConflict(check.field, check.field+" already in use")
			}
		}
	}
	return nil
}

func (v *requestValidator) checkFramework(ctx context.Context, state *validationState) error {
	var selection *FrameworkSelection
	if state.create != nil {
		selection = state.create.Framework
	} else if state.update != nil {
		selection = state.update.Framework
	}
	if selection == nil {
		return nil
	}
	framework, err := v.frameworks.Validate(ctx, *selection, state.rootOrgID)
	if err != nil {
		return err
	}
	state.framework = framework
	return nil
}

func (v *requestValidator) checkUserType(ctx context.Context, state *validationState) error {
	var requested *string
	if state.create != nil {
		requested = state.create.UserType
	} else if state.update != nil {
		requested = state.update.UserType
		if requested == nil {
			state.userType = state.stored.UserType
			return nil
		}
	}
	if requested == nil || *requested != UserTypeTeacher {
		state.userType = UserTypeOther
		return nil
	}
	if state.isCustodian {
		return newTeacherCustodianPolicyError(state.rootOrgID)
	}
	custodian, err := v.custodian.Get(ctx)
	if err != nil {
		return err
	}
	if custodian.RootOrgID != "" && custodian.RootOrgID == state.rootOrgID {
		return newTeacherCustodianPolicyError(state.rootOrgID)
	}
	state.userType = UserTypeTeacher
	return nil
}

func (v *requestValidator) checkLocations(ctx context.Context, state *validationState) error {
	var codes []string
	if state.create != nil {
		codes = state.create.LocationCodes
	} else if state.update != nil {
		codes = state.update.LocationCodes
	}
	if len(codes) == 0 {
		return nil
	}
	if v.locations == nil {
		return newInvalidParameterValue("location codes cannot be resolved", map[string]any{"location_codes": codes})
	}
	ids, err := v.locations.Resolve(ctx, codes)
	if err != nil {
		return newUpstreamUnavailable(err, "resolve location codes failed")
	}
	ids = sortedUnique(ids)
	if len(ids) == 0 {
		return newInvalidParameterValue("location codes do not resolve", map[string]any{"location_codes": codes})
	}
	state.locationIDs = ids
	return nil
}

func (v *requestValidator) emailPrint(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	return v.cipher.Fingerprint(value)
}

func (v *requestValidator) phonePrint(value string) string {
	value = normalizePhone(value)
	if value == "" {
		return ""
	}
	return v.cipher.Fingerprint(value)
}

func checkContactPair(primaryName, recoveryName string, primary, recovery *string, print func(string) string) error {
	if primary == nil || recovery == nil {
		return nil
	}
	left := print(*primary)
	if left != "" && left == print(*recovery) {
		return newRecoveryParamsMatch(primaryName, recoveryName)
	}
	return nil
}

// effectivePrint prefers the request value; a cleared value counts as absent.
func effectivePrint(requested *string, stored string, print func(string) string) string {
	if requested != nil {
		return print(*requested)
	}
	return stored
}

func schemaField(field string, rule string) goerrors.FieldError {
	return goerrors.FieldError{Field: field, Message: "failed \"" + rule + "\" validation"}
}

func isNotFound(err error) bool {
	if errors.Is(err, ErrUserNotFound) {
		return true
	}
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryNotFound
}

type custodianLookup struct {
	provider CustodianChannelProvider
	cache    ReadThroughCache[CustodianOrg]
	orgs     OrganizationResolver
	fallback CustodianConfig
}

// Get resolves the custodian root organisation once and serves it from cache.
func (l *custodianLookup) Get(ctx context.Context) (CustodianOrg, error) {
	if l == nil {
		return CustodianOrg{}, nil
	}
	custodian, _, err := readThrough(ctx, l.cache, custodianCacheKey, func(ctx context.Context) (CustodianOrg, bool, error) {
		resolved := CustodianOrg{
			Channel:   strings.TrimSpace(l.fallback.Channel),
			RootOrgID: strings.TrimSpace(l.fallback.RootOrgID),
		}
		if l.provider != nil {
			fromProvider, err := l.provider.CustodianOrg(ctx)
			if err != nil {
				return CustodianOrg{}, false, newUpstreamUnavailable(err, "resolve custodian organisation failed")
			}
			if strings.TrimSpace(fromProvider.Channel) != "" {
				resolved.Channel = strings.TrimSpace(fromProvider.Channel)
			}
			if strings.TrimSpace(fromProvider.RootOrgID) != "" {
				resolved.RootOrgID = strings.TrimSpace(fromProvider.RootOrgID)
			}
		}
		if resolved.RootOrgID == "" && resolved.Channel != "" && l.orgs != nil {
			rootOrgID, found, err := l.orgs.GetRootOrgIDByChannel(ctx, resolved.Channel)
			if err != nil {
				return CustodianOrg{}, false, newUpstreamUnavailable(err, "resolve custodian channel failed")
			}
			if found {
				resolved.RootOrgID = rootOrgID
			}
		}
		return resolved, resolved.RootOrgID != "" || resolved.Channel != "", nil
	})
	if err != nil {
		return CustodianOrg{}, err
	}
	return custodian, nil
}

type frameworkLookup struct {
	config    FrameworkConfig
	reader    FrameworkReader
	orgs      OrganizationResolver
	sets      ReadThroughCache[[]string]
	taxonomy  ReadThroughCache[FrameworkTaxonomy]
	hashTagOf func(ctx context.Context, rootOrgID string) (string, error)
}

// Validate checks a framework selection against the taxonomy for the user's
// root organisation and returns the stored framework map.
func (f *frameworkLookup) Validate(ctx context.Context, selection FrameworkSelection, rootOrgID string) (map[string][]string, error) {
	for _, field := range f.config.MandatoryFields {
		if field == "id" {
			if selection.PrimaryID() == "" {
				return nil, newInvalidRequestData("framework id is required", schemaField("framework.id", "required"))
			}
			continue
		}
		if len(selection.Categories[field]) == 0 {
			return nil, newInvalidRequestData("framework field is required", schemaField("framework."+field, "required"))
		}
	}
	ids := sortedUnique(selection.IDs)
	if len(ids) > 1 {
		return nil, newInvalidParameterValue("only one framework id is allowed", map[string]any{"framework_ids": ids})
	}
	frameworkID := selection.PrimaryID()
	for category := range selection.Categories {
		if category == "id" || !slices.Contains(f.config.Fields, category) {
			return nil, newInvalidParameterValue("unsupported framework field", map[string]any{"field": "framework." + category})
		}
	}
	if f.reader == nil {
		return nil, newUpstreamUnavailable(fmt.Errorf("core: framework reader is not configured"), "framework metadata unavailable")
	}

	hashTagID, err := f.hashTag(ctx, rootOrgID)
	if err != nil {
		return nil, err
	}
	allowed, err := f.frameworkSet(ctx, hashTagID, frameworkID)
	if err != nil {
		return nil, err
	}
	if len(allowed) > 0 && !slices.Contains(allowed, frameworkID) {
		return nil, newInvalidParameterValue("framework is not associated with the organisation", map[string]any{
			"framework_id": frameworkID,
			"hash_tag_id":  hashTagID,
		})
	}

	taxonomy, found, err := readThrough(ctx, f.taxonomy, frameworkID, func(ctx context.Context) (FrameworkTaxonomy, bool, error) {
		taxonomy, found, readErr := f.reader.ReadFramework(ctx, frameworkID)
		if readErr != nil {
			return FrameworkTaxonomy{}, false, newUpstreamUnavailable(readErr, "read framework failed")
		}
		return filterTaxonomy(taxonomy, f.config.Fields), found, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newInvalidParameterValue("framework not found", map[string]any{"framework_id": frameworkID})
	}

	out := map[string][]string{"id": {frameworkID}}
	for category, values := range selection.Categories {
		if len(values) == 0 {
			continue
		}
		if _, ok := taxonomy.Categories[category]; !ok {
			return nil, newInvalidParameterValue("framework has no such category", map[string]any{
				"framework_id": frameworkID,
				"field":        "framework." + category,
			})
		}
		for _, value := range values {
			if !taxonomy.AllowsTerm(category, value) {
				return nil, newInvalidParameterValue("invalid framework term", map[string]any{
					"framework_id": frameworkID,
					"field":        "framework." + category,
					"value":        value,
				})
			}
		}
		out[category] = append([]string(nil), values...)
	}
	return out, nil
}

func (f *frameworkLookup) hashTag(ctx context.Context, rootOrgID string) (string, error) {
	if f.hashTagOf != nil {
		return f.hashTagOf(ctx, rootOrgID)
	}
	if f.orgs == nil || strings.TrimSpace(rootOrgID) == "" {
		return strings.TrimSpace(rootOrgID), nil
	}
	org, found, err := f.orgs.GetByID(ctx, rootOrgID)
	if err != nil {
		return "", newUpstreamUnavailable(err, "resolve root organisation failed")
	}
	if !found || strings.TrimSpace(org.HashTagID) == "" {
		return strings.TrimSpace(rootOrgID), nil
	}
	return strings.TrimSpace(org.HashTagID), nil
}

// frameworkSet returns the hash-tag's framework ids. A cached set missing
// frameworkID is refreshed from the source once before it is trusted.
func (f *frameworkLookup) frameworkSet(ctx context.Context, hashTagID string, frameworkID string) ([]string, error) {
	if hashTagID == "" {
		return nil, nil
	}
	if f.sets != nil {
		cached, hit, err := f.sets.Get(ctx, hashTagID)
		if err != nil {
			return nil, err
		}
		if hit && slices.Contains(cached, frameworkID) {
			return cached, nil
		}
	}
	fetched, err := f.reader.ListHashTagFrameworks(ctx, hashTagID)
	if err != nil {
		return nil, newUpstreamUnavailable(err, "list organisation frameworks failed")
	}
	fetched = sortedUnique(fetched)
	if len(fetched) > 0 && f.sets != nil {
		if err := f.sets.Populate(ctx, hashTagID, fetched); err != nil {
			return nil, err
		}
	}
	return fetched, nil
}

func filterTaxonomy(taxonomy FrameworkTaxonomy, fields []string) FrameworkTaxonomy {
	out := FrameworkTaxonomy{
		FrameworkID: taxonomy.FrameworkID,
		Categories:  make(map[string][]CategoryTerm, len(taxonomy.Categories)),
	}
	for category, terms := range taxonomy.Categories {
		if len(fields) > 0 && !slices.Contains(fields, category) {
			continue
		}
		out.Categories[category] = append([]CategoryTerm(nil), terms...)
	}
	return out
}
