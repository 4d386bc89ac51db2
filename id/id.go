// Package id defines the TypeID-backed identifiers used by every Tally record.
//
// An ID renders as "prefix_suffix", where the prefix names the record kind
// (invoice, payment, reward, ...) and the suffix is a UUIDv7, so IDs sort by
// creation time and are safe to put in URLs.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the record kind encoded in an ID.
type Prefix string

// Record kinds.
const (
	PrefixInvoice      Prefix = "inv"
	PrefixPayment      Prefix = "pay"
	PrefixScore        Prefix = "scr"
	PrefixReward       Prefix = "rwd"
	PrefixRedemption   Prefix = "rdm"
	PrefixNotification Prefix = "ntf"
	PrefixMember       Prefix = "mbr"
)

// ID is a prefix-qualified identifier. The zero value is Nil.
//
//nolint:recvcheck // value receivers for reads, pointer receivers for decoding.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero ID.
var Nil ID

// New returns a fresh ID for prefix. An invalid prefix is a programming
// error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse decodes any well-formed TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix decodes s and rejects it unless its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Per-record aliases
// ──────────────────────────────────────────────────

type (
	// InvoiceID identifies an invoice ("inv").
	InvoiceID = ID
	// PaymentID identifies a payment recorded against an invoice ("pay").
	PaymentID = ID
	// ScoreID identifies a score ledger entry ("scr").
	ScoreID = ID
	// RewardID identifies a catalogue reward ("rwd").
	RewardID = ID
	// RedemptionID identifies a reward redemption request ("rdm").
	RedemptionID = ID
	// NotificationID identifies an in-app notification ("ntf").
	NotificationID = ID
	// MemberID identifies a tenant member ("mbr").
	MemberID = ID
)

func NewInvoiceID() ID      { return New(PrefixInvoice) }
func NewPaymentID() ID      { return New(PrefixPayment) }
func NewScoreID() ID        { return New(PrefixScore) }
func NewRewardID() ID       { return New(PrefixReward) }
func NewRedemptionID() ID   { return New(PrefixRedemption) }
func NewNotificationID() ID { return New(PrefixNotification) }
func NewMemberID() ID       { return New(PrefixMember) }

func ParseInvoiceID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixInvoice) }
func ParsePaymentID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixPayment) }
func ParseScoreID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixScore) }
func ParseRewardID(s string) (ID, error)       { return ParseWithPrefix(s, PrefixReward) }
func ParseRedemptionID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixRedemption) }
func ParseNotificationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixNotification) }
func ParseMemberID(s string) (ID, error)       { return ParseWithPrefix(s, PrefixMember) }

// ──────────────────────────────────────────────────
// Encoding
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the record kind, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
