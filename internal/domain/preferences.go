package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// PreferenceFlag names one notification setting. The set of flags is
// closed; anything outside AllPreferenceFlags is rejected on write.
type PreferenceFlag string

const (
	PushPromotions       PreferenceFlag = "pushPromotions"
	PushProductUpdates   PreferenceFlag = "pushProductUpdates"
	PushAccountActivity  PreferenceFlag = "pushAccountActivity"
	EmailPromotions      PreferenceFlag = "emailPromotions"
	EmailProductUpdates  PreferenceFlag = "emailProductUpdates"
	EmailNewsletters     PreferenceFlag = "emailNewsletters"
	EmailAccountActivity PreferenceFlag = "emailAccountActivity"
	SMSAccountActivity   PreferenceFlag = "smsAccountActivity"
	WhatsappPromotions   PreferenceFlag = "whatsappPromotions"
)

// AllPreferenceFlags lists every known flag in display order.
var AllPreferenceFlags = []PreferenceFlag{
	PushPromotions,
	PushProductUpdates,
	PushAccountActivity,
	EmailPromotions,
	EmailProductUpdates,
	EmailNewsletters,
	EmailAccountActivity,
	SMSAccountActivity,
	WhatsappPromotions,
}

// Known reports whether f is one of AllPreferenceFlags.
func (f PreferenceFlag) Known() bool {
	for _, k := range AllPreferenceFlags {
		if f == k {
			return true
		}
	}
	return false
}

// PreferenceSet maps flags to their on/off state.
type PreferenceSet map[PreferenceFlag]bool

// DefaultPreferences returns a fresh set with every flag enabled.
func DefaultPreferences() PreferenceSet {
	out := make(PreferenceSet, len(AllPreferenceFlags))
	for _, f := range AllPreferenceFlags {
		out[f] = true
	}
	return out
}

// Clone returns an independent copy of s.
func (s PreferenceSet) Clone() PreferenceSet {
	out := make(PreferenceSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Errors returned by ParsePreferenceSet.
var (
	ErrUnknownFlag  = errors.New("unknown preference")
	ErrNonBoolValue = errors.New("preference must be a boolean")
)

// FlagError names the key a preference write was rejected for.
type FlagError struct {
	Key string
	Err error
}

func (e *FlagError) Error() string { return fmt.Sprintf("%v: %q", e.Err, e.Key) }

func (e *FlagError) Unwrap() error { return e.Err }

// ParsePreferenceSet validates a raw JSON object of flags. Unknown keys
// wrap ErrUnknownFlag and non-boolean values wrap ErrNonBoolValue, both as
// a *FlagError naming the offending key.
func ParsePreferenceSet(raw map[string]json.RawMessage) (PreferenceSet, error) {
	out := make(PreferenceSet, len(raw))
	for k, v := range raw {
		f := PreferenceFlag(k)
		if !f.Known() {
			return nil, &FlagError{Key: k, Err: ErrUnknownFlag}
		}
		var b bool
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) || json.Unmarshal(v, &b) != nil {
			return nil, &FlagError{Key: k, Err: ErrNonBoolValue}
		}
		out[f] = b
	}
	return out, nil
}
