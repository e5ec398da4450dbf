package metadata

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextLine_RoundTrip(t *testing.T) {
	records := []Metadata{
		NewEpochEndingBackup(0, 9, 0, 999, "epoch_ending_0-9.manifest"),
		NewStateSnapshotBackup(10, 1000, "state_ver_1000.manifest"),
		NewTransactionBackup(0, 999, "transaction_0-999.manifest"),
		NewRandomIdentity(),
	}

	for _, m := range records {
		t.Run(string(m.Kind()), func(t *testing.T) {
			line, err := m.TextLine()
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(line, "\n"))
			assert.Equal(t, 1, strings.Count(line, "\n"), "record must fit on one line")

			parsed, err := ParseLine([]byte(line))
			require.NoError(t, err)
			assert.Equal(t, m, parsed)
		})
	}
}

func TestTextLine_ExternallyTagged(t *testing.T) {
	line, err := NewTransactionBackup(5, 7, "m").TextLine()
	require.NoError(t, err)
	assert.JSONEq(t, `{"TransactionBackup":{"first_version":5,"last_version":7,"manifest":"m"}}`, line)
}

func TestTextLine_InvalidRecord(t *testing.T) {
	_, err := Metadata{}.TextLine()
	assert.ErrorIs(t, err, ErrEmptyRecord)

	both := Metadata{
		TransactionBackup: &TransactionBackupMeta{},
		Identity:          &IdentityMeta{},
	}
	_, err = both.TextLine()
	assert.ErrorIs(t, err, ErrAmbiguousRecord)
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"not json", "hello", nil},
		{"unknown variant", `{"CompactionTimestamps":{}}`, ErrEmptyRecord},
		{"empty object", `{}`, ErrEmptyRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine([]byte(tt.line))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestDecodeLines(t *testing.T) {
	a, _ := NewTransactionBackup(0, 9, "a").TextLine()
	b, _ := NewTransactionBackup(10, 19, "b").TextLine()

	records, err := DecodeLines([]byte(a + "\n" + b))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].TransactionBackup.Manifest)
	assert.Equal(t, "b", records[1].TransactionBackup.Manifest)

	records, err = DecodeLines(nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecodeLines_ReportsLineNumber(t *testing.T) {
	a, _ := NewTransactionBackup(0, 9, "a").TextLine()

	_, err := DecodeLines([]byte(a + "{broken\n"))
	require.Error(t, err)

	var lineErr *LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 2, lineErr.Line)
}

func TestName(t *testing.T) {
	id := uuid.MustParse("9b2f5a62-5a4e-4c55-9a7f-5d0b3c2f2a11")

	assert.Equal(t, "epoch_ending_3-7", NewEpochEndingBackup(3, 7, 0, 0, "").Name())
	assert.Equal(t, "state_snapshot_ver_42", NewStateSnapshotBackup(1, 42, "").Name())
	assert.Equal(t, "transaction_0-99", NewTransactionBackup(0, 99, "").Name())
	assert.Equal(t, "identity_"+id.String(), Metadata{Identity: &IdentityMeta{ID: id}}.Name())
	assert.Equal(t, "", Metadata{}.Name())
}

func TestNewRandomIdentity_Unique(t *testing.T) {
	a := NewRandomIdentity()
	b := NewRandomIdentity()
	assert.Equal(t, KindIdentity, a.Kind())
	assert.NotEqual(t, a.Identity.ID, b.Identity.ID)
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"identity":            KindIdentity,
		"epoch-ending":        KindEpochEndingBackup,
		"StateSnapshotBackup": KindStateSnapshotBackup,
		"transaction":         KindTransactionBackup,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("chunk")
	assert.Error(t, err)
}
