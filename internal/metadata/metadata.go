package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEmptyRecord     = errors.New("metadata: record has no variant set")
	ErrAmbiguousRecord = errors.New("metadata: record has more than one variant set")
)

// Kind identifies which variant of a Metadata record is populated.
type Kind string

const (
	KindEpochEndingBackup   Kind = "EpochEndingBackup"
	KindStateSnapshotBackup Kind = "StateSnapshotBackup"
	KindTransactionBackup   Kind = "TransactionBackup"
	KindIdentity            Kind = "Identity"
	KindUnknown             Kind = ""
)

// ParseKind resolves a user supplied kind name. It accepts the variant names
// as well as their snake_case forms ("epoch_ending", "state_snapshot", ...).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "epochendingbackup", "epoch_ending", "epoch_ending_backup":
		return KindEpochEndingBackup, nil
	case "statesnapshotbackup", "state_snapshot", "state_snapshot_backup":
		return KindStateSnapshotBackup, nil
	case "transactionbackup", "transaction", "transaction_backup":
		return KindTransactionBackup, nil
	case "identity":
		return KindIdentity, nil
	}
	return KindUnknown, fmt.Errorf("metadata: unknown kind %q", s)
}

type EpochEndingBackupMeta struct {
	FirstEpoch   uint64 `json:"first_epoch" yaml:"first_epoch"`
	LastEpoch    uint64 `json:"last_epoch" yaml:"last_epoch"`
	FirstVersion uint64 `json:"first_version" yaml:"first_version"`
	LastVersion  uint64 `json:"last_version" yaml:"last_version"`
	Manifest     string `json:"manifest" yaml:"manifest"`
}

type StateSnapshotBackupMeta struct {
	Epoch    uint64 `json:"epoch" yaml:"epoch"`
	Version  uint64 `json:"version" yaml:"version"`
	Manifest string `json:"manifest" yaml:"manifest"`
}

type TransactionBackupMeta struct {
	FirstVersion uint64 `json:"first_version" yaml:"first_version"`
	LastVersion  uint64 `json:"last_version" yaml:"last_version"`
	Manifest     string `json:"manifest" yaml:"manifest"`
}

// IdentityMeta marks a backup storage as initialized. It carries no backup
// data, only a random id that distinguishes one storage from another.
type IdentityMeta struct {
	ID uuid.UUID `json:"id" yaml:"id"`
}

// Metadata describes one backup artifact. Exactly one of the variant fields
// is set; the JSON form is externally tagged, e.g.
//
//	{"TransactionBackup":{"first_version":0,"last_version":99,"manifest":"..."}}
type Metadata struct {
	EpochEndingBackup   *EpochEndingBackupMeta   `json:"EpochEndingBackup,omitempty" yaml:"epoch_ending_backup,omitempty"`
	StateSnapshotBackup *StateSnapshotBackupMeta `json:"StateSnapshotBackup,omitempty" yaml:"state_snapshot_backup,omitempty"`
	TransactionBackup   *TransactionBackupMeta   `json:"TransactionBackup,omitempty" yaml:"transaction_backup,omitempty"`
	Identity            *IdentityMeta            `json:"Identity,omitempty" yaml:"identity,omitempty"`
}

func NewEpochEndingBackup(firstEpoch, lastEpoch, firstVersion, lastVersion uint64, manifest string) Metadata {
	return Metadata{EpochEndingBackup: &EpochEndingBackupMeta{
		FirstEpoch:   firstEpoch,
		LastEpoch:    lastEpoch,
		FirstVersion: firstVersion,
		LastVersion:  lastVersion,
		Manifest:     manifest,
	}}
}

func NewStateSnapshotBackup(epoch, version uint64, manifest string) Metadata {
	return Metadata{StateSnapshotBackup: &StateSnapshotBackupMeta{
		Epoch:    epoch,
		Version:  version,
		Manifest: manifest,
	}}
}

func NewTransactionBackup(firstVersion, lastVersion uint64, manifest string) Metadata {
	return Metadata{TransactionBackup: &TransactionBackupMeta{
		FirstVersion: firstVersion,
		LastVersion:  lastVersion,
		Manifest:     manifest,
	}}
}

// NewRandomIdentity returns an identity record with a fresh random id.
func NewRandomIdentity() Metadata {
	return Metadata{Identity: &IdentityMeta{ID: uuid.New()}}
}

// Kind reports the populated variant, or KindUnknown when none or several are set.
func (m Metadata) Kind() Kind {
	if m.variants() != 1 {
		return KindUnknown
	}
	switch {
	case m.EpochEndingBackup != nil:
		return KindEpochEndingBackup
	case m.StateSnapshotBackup != nil:
		return KindStateSnapshotBackup
	case m.TransactionBackup != nil:
		return KindTransactionBackup
	default:
		return KindIdentity
	}
}

// Name is the file name under which the record is saved in backup storage.
func (m Metadata) Name() string {
	switch m.Kind() {
	case KindEpochEndingBackup:
		return fmt.Sprintf("epoch_ending_%d-%d", m.EpochEndingBackup.FirstEpoch, m.EpochEndingBackup.LastEpoch)
	case KindStateSnapshotBackup:
		return fmt.Sprintf("state_snapshot_ver_%d", m.StateSnapshotBackup.Version)
	case KindTransactionBackup:
		return fmt.Sprintf("transaction_%d-%d", m.TransactionBackup.FirstVersion, m.TransactionBackup.LastVersion)
	case KindIdentity:
		return "identity_" + m.Identity.ID.String()
	}
	return ""
}

// Validate checks that exactly one variant is set.
func (m Metadata) Validate() error {
	switch n := m.variants(); {
	case n == 0:
		return ErrEmptyRecord
	case n > 1:
		return ErrAmbiguousRecord
	}
	return nil
}

func (m Metadata) variants() int {
	n := 0
	if m.EpochEndingBackup != nil {
		n++
	}
	if m.StateSnapshotBackup != nil {
		n++
	}
	if m.TransactionBackup != nil {
		n++
	}
	if m.Identity != nil {
		n++
	}
	return n
}

func (m Metadata) String() string {
	switch m.Kind() {
	case KindEpochEndingBackup:
		e := m.EpochEndingBackup
		return fmt.Sprintf("EpochEndingBackup(epochs %d-%d, versions %d-%d)", e.FirstEpoch, e.LastEpoch, e.FirstVersion, e.LastVersion)
	case KindStateSnapshotBackup:
		s := m.StateSnapshotBackup
		return fmt.Sprintf("StateSnapshotBackup(epoch %d, version %d)", s.Epoch, s.Version)
	case KindTransactionBackup:
		t := m.TransactionBackup
		return fmt.Sprintf("TransactionBackup(versions %d-%d)", t.FirstVersion, t.LastVersion)
	case KindIdentity:
		return fmt.Sprintf("Identity(%s)", m.Identity.ID)
	}
	return "Metadata(invalid)"
}
