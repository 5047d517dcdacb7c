package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-03-09", "2024-03-09", false},
		{"09-03-2024", "2024-03-09", false},
		{"2024/03/09", "2024-03-09", false},
		{"09/03/2024", "2024-03-09", false},
		{"2024-03-09T22:15:00Z", "2024-03-09", false},
		{"2024-03-09 22:15:00", "2024-03-09", false},
		{"", "", false},
		{"March 9", "", true},
		{"2024-13-01", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeDate(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLeadRecord(t *testing.T) {
	base := LeadInput{
		ApplicationID:     " APP-1 ",
		Bank:              "Acme",
		CardName:          "Gold",
		ApplicationDate:   "15-01-2024",
		StageCode:         "Z",
		Quality:           "good",
		TotalCommission:   decimal.RequireFromString("120.50"),
		RejectionCategory: "Credit",
		RejectionReason:   "Score",
	}

	t.Run("normalizes", func(t *testing.T) {
		rec, err := NewLeadRecord(base)
		require.NoError(t, err)
		assert.Equal(t, "APP-1", rec.ApplicationID)
		assert.Equal(t, "2024-01-15", rec.ApplicationDate)
		assert.Equal(t, "2024-01", rec.ApplicationMonth)
		assert.Equal(t, "z", rec.StageCode)
		assert.Equal(t, QualityGood, rec.Quality)
		assert.Equal(t, OpsPending, rec.OpsStatus)
		assert.Equal(t, BucketApproved, rec.Bucket())
		assert.Empty(t, rec.RejectionCategory, "rejection details only survive on rejected codes")
		assert.Empty(t, rec.RejectionReason)
	})

	t.Run("keeps rejection details on rejected codes", func(t *testing.T) {
		in := base
		in.StageCode = "r2"
		rec, err := NewLeadRecord(in)
		require.NoError(t, err)
		assert.Equal(t, "Credit", rec.RejectionCategory)
		assert.Equal(t, "Score", rec.RejectionReason)
	})

	t.Run("month without date", func(t *testing.T) {
		in := base
		in.ApplicationDate = ""
		in.ApplicationMonth = "2024-02"
		rec, err := NewLeadRecord(in)
		require.NoError(t, err)
		assert.Equal(t, "2024-02", rec.ApplicationMonth)
		assert.Empty(t, rec.ApplicationDate)
	})

	invalid := []struct {
		name   string
		mutate func(*LeadInput)
	}{
		{"empty id", func(in *LeadInput) { in.ApplicationID = "  " }},
		{"no month or date", func(in *LeadInput) { in.ApplicationDate = ""; in.ApplicationMonth = "" }},
		{"month mismatch", func(in *LeadInput) { in.ApplicationMonth = "2024-02" }},
		{"bad month", func(in *LeadInput) { in.ApplicationDate = ""; in.ApplicationMonth = "01-2024" }},
		{"bad quality", func(in *LeadInput) { in.Quality = "excellent" }},
		{"bad ops status", func(in *LeadInput) { in.OpsStatus = "lost" }},
		{"negative commission", func(in *LeadInput) { in.TotalCommission = decimal.NewFromInt(-1) }},
		{"bad decision date", func(in *LeadInput) { in.DecisionDate = "tomorrow" }},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := NewLeadRecord(in)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestDaysBetween(t *testing.T) {
	d, err := DaysBetween("2024-02-27", "2024-03-02")
	require.NoError(t, err)
	assert.Equal(t, 4, d)

	d, err = DaysBetween("2024-03-02", "2024-02-27")
	require.NoError(t, err)
	assert.Equal(t, -4, d)
}

func TestStageUpdateApply(t *testing.T) {
	rec := LeadRecord{ApplicationID: "A", StageCode: "c", OpsStatus: OpsPending}

	t.Run("advances", func(t *testing.T) {
		out, applied, err := StageUpdate{ApplicationID: "A", StageCode: "R", DecisionDate: "02-03-2024",
			RejectionCategory: "Fraud", RejectionReason: "Mismatch"}.Apply(rec)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, "r", out.StageCode)
		assert.Equal(t, "2024-03-02", out.DecisionDate)
		assert.Equal(t, "Fraud", out.RejectionCategory)
		assert.Equal(t, "Mismatch", out.RejectionReason)
	})

	t.Run("ignores regression", func(t *testing.T) {
		out, applied, err := StageUpdate{ApplicationID: "A", StageCode: "a"}.Apply(rec)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, rec, out)
	})

	t.Run("terminal is final", func(t *testing.T) {
		done := rec
		done.StageCode = "z"
		_, applied, err := StageUpdate{ApplicationID: "A", StageCode: "r"}.Apply(done)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("status only", func(t *testing.T) {
		done := rec
		done.StageCode = "z"
		out, applied, err := StageUpdate{ApplicationID: "A", OpsStatus: "paid"}.Apply(done)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, OpsPaid, out.OpsStatus)
	})

	t.Run("bad status", func(t *testing.T) {
		_, _, err := StageUpdate{ApplicationID: "A", OpsStatus: "lost"}.Apply(rec)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("decision before application rejected", func(t *testing.T) {
		dated := rec
		dated.ApplicationDate = "2024-03-10"
		out, applied, err := StageUpdate{ApplicationID: "A", StageCode: "z", DecisionDate: "2024-03-09"}.Apply(dated)
		assert.ErrorIs(t, err, ErrInvalidRecord)
		assert.False(t, applied)
		assert.Equal(t, dated, out)

		out, applied, err = StageUpdate{ApplicationID: "A", StageCode: "z", DecisionDate: "10-03-2024"}.Apply(dated)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, "2024-03-10", out.DecisionDate)
	})

	t.Run("unknown stage is not overwritten", func(t *testing.T) {
		odd := rec
		odd.StageCode = "q"
		out, applied, err := StageUpdate{ApplicationID: "A", StageCode: "z"}.Apply(odd)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, "q", out.StageCode)
	})
}

func TestSortForListing(t *testing.T) {
	recs := []LeadRecord{
		{ApplicationID: "b", ApplicationDate: "2024-01-02"},
		{ApplicationID: "c", ApplicationDate: ""},
		{ApplicationID: "a", ApplicationDate: "2024-01-02"},
		{ApplicationID: "d", ApplicationDate: "2024-01-05"},
	}
	SortForListing(recs)
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ApplicationID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}
