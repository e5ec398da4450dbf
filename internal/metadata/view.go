package metadata

import (
	"cmp"
	"fmt"
	"slices"
)

// View is the aggregated set of records produced by one cache sync. Records
// keep the order they were loaded in; within one cache file that is line
// order, across files there is no guaranteed order.
//
// A View is never modified after construction. Accessors return copies.
type View struct {
	records []Metadata
}

func NewView(records []Metadata) *View {
	return &View{records: slices.Clone(records)}
}

func (v *View) Len() int {
	return len(v.records)
}

// Records returns all records in load order.
func (v *View) Records() []Metadata {
	return slices.Clone(v.records)
}

// ByKind returns the records of one kind in load order.
func (v *View) ByKind(kind Kind) []Metadata {
	var out []Metadata
	for _, m := range v.records {
		if m.Kind() == kind {
			out = append(out, m)
		}
	}
	return out
}

func (v *View) Identities() []IdentityMeta {
	var out []IdentityMeta
	for _, m := range v.records {
		if m.Identity != nil {
			out = append(out, *m.Identity)
		}
	}
	return out
}

// EpochEndingBackups returns the epoch ending backups sorted by first epoch,
// with duplicates removed.
func (v *View) EpochEndingBackups() []EpochEndingBackupMeta {
	var out []EpochEndingBackupMeta
	for _, m := range v.records {
		if m.EpochEndingBackup != nil {
			out = append(out, *m.EpochEndingBackup)
		}
	}
	slices.SortFunc(out, func(a, b EpochEndingBackupMeta) int {
		return cmp.Or(
			cmp.Compare(a.FirstEpoch, b.FirstEpoch),
			cmp.Compare(a.LastEpoch, b.LastEpoch),
			cmp.Compare(a.FirstVersion, b.FirstVersion),
			cmp.Compare(a.LastVersion, b.LastVersion),
			cmp.Compare(a.Manifest, b.Manifest),
		)
	})
	return slices.Compact(out)
}

// StateSnapshotBackups returns the state snapshots sorted by version, with
// duplicates removed.
func (v *View) StateSnapshotBackups() []StateSnapshotBackupMeta {
	var out []StateSnapshotBackupMeta
	for _, m := range v.records {
		if m.StateSnapshotBackup != nil {
			out = append(out, *m.StateSnapshotBackup)
		}
	}
	slices.SortFunc(out, func(a, b StateSnapshotBackupMeta) int {
		return cmp.Or(
			cmp.Compare(a.Version, b.Version),
			cmp.Compare(a.Epoch, b.Epoch),
			cmp.Compare(a.Manifest, b.Manifest),
		)
	})
	return slices.Compact(out)
}

// TransactionBackups returns the transaction backups sorted by first version,
// with duplicates removed.
func (v *View) TransactionBackups() []TransactionBackupMeta {
	var out []TransactionBackupMeta
	for _, m := range v.records {
		if m.TransactionBackup != nil {
			out = append(out, *m.TransactionBackup)
		}
	}
	slices.SortFunc(out, func(a, b TransactionBackupMeta) int {
		return cmp.Or(
			cmp.Compare(a.FirstVersion, b.FirstVersion),
			cmp.Compare(a.LastVersion, b.LastVersion),
			cmp.Compare(a.Manifest, b.Manifest),
		)
	})
	return slices.Compact(out)
}

// StorageState summarizes how far the backups in a view reach. Nil fields
// mean no backup of that kind exists.
type StorageState struct {
	LatestEpochEndingEpoch   *uint64 `json:"latest_epoch_ending_epoch" yaml:"latest_epoch_ending_epoch"`
	LatestStateSnapshotEpoch *uint64 `json:"latest_state_snapshot_epoch" yaml:"latest_state_snapshot_epoch"`
	LatestStateSnapshotVer   *uint64 `json:"latest_state_snapshot_version" yaml:"latest_state_snapshot_version"`
	LatestTransactionVersion *uint64 `json:"latest_transaction_version" yaml:"latest_transaction_version"`
}

func (s StorageState) String() string {
	return fmt.Sprintf("latest_epoch_ending_epoch: %s, latest_state_snapshot_epoch: %s, latest_state_snapshot_version: %s, latest_transaction_version: %s",
		optString(s.LatestEpochEndingEpoch),
		optString(s.LatestStateSnapshotEpoch),
		optString(s.LatestStateSnapshotVer),
		optString(s.LatestTransactionVersion),
	)
}

func (v *View) StorageState() StorageState {
	var state StorageState

	if eps := v.EpochEndingBackups(); len(eps) > 0 {
		latest := eps[0].LastEpoch
		for _, e := range eps[1:] {
			latest = max(latest, e.LastEpoch)
		}
		state.LatestEpochEndingEpoch = &latest
	}

	if snaps := v.StateSnapshotBackups(); len(snaps) > 0 {
		last := snaps[len(snaps)-1]
		state.LatestStateSnapshotEpoch = &last.Epoch
		state.LatestStateSnapshotVer = &last.Version
	}

	if txns := v.TransactionBackups(); len(txns) > 0 {
		latest := txns[0].LastVersion
		for _, t := range txns[1:] {
			latest = max(latest, t.LastVersion)
		}
		state.LatestTransactionVersion = &latest
	}

	return state
}

// SelectStateSnapshot returns the latest state snapshot at or below
// targetVersion, or nil if there is none.
func (v *View) SelectStateSnapshot(targetVersion uint64) *StateSnapshotBackupMeta {
	snaps := v.StateSnapshotBackups()
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].Version <= targetVersion {
			s := snaps[i]
			return &s
		}
	}
	return nil
}

// SelectTransactionBackups walks the transaction backups from version 0 and
// returns those needed to replay [startVersion, targetVersion]. The walk
// requires the ranges to be continuous up to the backup covering targetVersion.
func (v *View) SelectTransactionBackups(startVersion, targetVersion uint64) ([]TransactionBackupMeta, error) {
	if startVersion > targetVersion {
		return nil, fmt.Errorf("metadata: start version %d is after target version %d", startVersion, targetVersion)
	}

	var selected []TransactionBackupMeta
	var next uint64
	for _, b := range v.TransactionBackups() {
		if b.FirstVersion > targetVersion {
			break
		}
		if b.FirstVersion != next {
			return nil, fmt.Errorf("metadata: transaction backup ranges not continuous, expecting version %d, got %d", next, b.FirstVersion)
		}
		if b.LastVersion >= startVersion {
			selected = append(selected, b)
		}
		next = b.LastVersion + 1
	}
	return selected, nil
}

// SelectEpochEndingBackups returns the continuous run of epoch ending backups
// starting at epoch 0 whose first version is at or below targetVersion.
func (v *View) SelectEpochEndingBackups(targetVersion uint64) ([]EpochEndingBackupMeta, error) {
	var selected []EpochEndingBackupMeta
	var next uint64
	for _, b := range v.EpochEndingBackups() {
		if b.FirstVersion > targetVersion {
			break
		}
		if b.FirstEpoch != next {
			return nil, fmt.Errorf("metadata: epoch ending backup ranges not continuous, expecting epoch %d, got %d", next, b.FirstEpoch)
		}
		selected = append(selected, b)
		next = b.LastEpoch + 1
	}
	return selected, nil
}

func optString(v *uint64) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *v)
}
