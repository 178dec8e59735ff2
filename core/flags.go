package core

import "strings"

type Flag string

const (
	FlagStateValidated Flag = "state_validated"
	FlagEmailVerified  Flag = "email_verified"
	FlagPhoneVerified  Flag = "phone_verified"
)

// flagBits is the stored bit layout. Positions are persisted; append only.
var flagBits = []struct {
	flag Flag
	bit  uint
}{
	{flag: FlagStateValidated, bit: 0},
	{flag: FlagEmailVerified, bit: 1},
	{flag: FlagPhoneVerified, bit: 2},
}

type VerificationFlags struct {
	StateValidated bool
	EmailVerified  bool
	PhoneVerified  bool
}

func (f VerificationFlags) value(flag Flag) bool {
	switch flag {
	case FlagStateValidated:
		return f.StateValidated
	case FlagEmailVerified:
		return f.EmailVerified
	case FlagPhoneVerified:
		return f.PhoneVerified
	}
	return false
}

func (f *VerificationFlags) set(flag Flag, on bool) {
	switch flag {
	case FlagStateValidated:
		f.StateValidated = on
	case FlagEmailVerified:
		f.EmailVerified = on
	case FlagPhoneVerified:
		f.PhoneVerified = on
	}
}

// EncodeFlags packs flags into the stored bitmask.
func EncodeFlags(flags VerificationFlags) int {
	mask := 0
	for _, entry := range flagBits {
		if flags.value(entry.flag) {
			mask |= 1 << entry.bit
		}
	}
	return mask
}

// DecodeFlags unpacks a stored bitmask. Unknown bits are ignored.
func DecodeFlags(mask int) VerificationFlags {
	var flags VerificationFlags
	for _, entry := range flagBits {
		flags.set(entry.flag, mask&(1<<entry.bit) != 0)
	}
	return flags
}

// KnownFlagMask covers every assigned bit.
func KnownFlagMask() int {
	mask := 0
	for _, entry := range flagBits {
		mask |= 1 << entry.bit
	}
	return mask
}

type FlagEncoder struct{}

// ForCreate derives flags for a new account.
func (FlagEncoder) ForCreate(req CreateUserRequest, rootOrgID string, custodian CustodianOrg) VerificationFlags {
	return VerificationFlags{
		StateValidated: stateValidated(rootOrgID, custodian),
		EmailVerified:  boolValue(req.EmailVerified),
		PhoneVerified:  boolValue(req.PhoneVerified),
	}
}

// ForUpdate derives flags from the stored record. A stored contact value with
// no explicit verified=false counts as verified; explicit request values win.
func (FlagEncoder) ForUpdate(req UpdateUserRequest, stored UserAccount, custodian CustodianOrg) VerificationFlags {
	flags := VerificationFlags{
		EmailVerified: storedVerified(stored.HasEmail(), stored.EmailVerified),
		PhoneVerified: storedVerified(stored.HasPhone(), stored.PhoneVerified),
	}
	if stored.StateValidated != nil {
		flags.StateValidated = *stored.StateValidated
	} else {
		flags.StateValidated = stateValidated(stored.RootOrgID, custodian)
	}
	if req.EmailVerified != nil {
		flags.EmailVerified = *req.EmailVerified
	}
	if req.PhoneVerified != nil {
		flags.PhoneVerified = *req.PhoneVerified
	}
	return flags
}

func storedVerified(hasValue bool, verified *bool) bool {
	if !hasValue {
		return false
	}
	if verified == nil {
		return true
	}
	return *verified
}

func stateValidated(rootOrgID string, custodian CustodianOrg) bool {
	return strings.TrimSpace(rootOrgID) != strings.TrimSpace(custodian.RootOrgID)
}

func boolValue(value *bool) bool {
	return value != nil && *value
}

func boolPtr(value bool) *bool {
	return &value
}
