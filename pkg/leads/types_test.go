package leads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rderrors "github.com/redoraai/redora-cli/pkg/errors"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{input: "NEW", want: StatusNew},
		{input: "completed", want: StatusCompleted},
		{input: " done ", want: StatusCompleted},
		{input: "NOT_RELEVANT", want: StatusNotRelevant},
		{input: "discard", want: StatusNotRelevant},
		{input: "lead", want: StatusLead},
		{input: "archived", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, rderrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategoryStatusBijection(t *testing.T) {
	for _, c := range Categories {
		got, ok := CategoryFor(c.Status())
		require.True(t, ok)
		assert.Equal(t, c, got)

		parsed, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, ok := CategoryFor(Status("ARCHIVED"))
	assert.False(t, ok)
	assert.False(t, Status("ARCHIVED").IsValid())
	assert.Equal(t, "category(9)", Category(9).String())

	_, err := ParseCategory("inbox")
	assert.True(t, rderrors.IsValidation(err))
}

func TestFilterValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{name: "default", filter: Filter{RelevancyScore: 70}},
		{name: "bounds", filter: Filter{RelevancyScore: 100, Subreddit: "golang"}},
		{name: "negative score", filter: Filter{RelevancyScore: -1}, wantErr: true},
		{name: "score over 100", filter: Filter{RelevancyScore: 101}, wantErr: true},
		{name: "ordered range", filter: Filter{From: now.Add(-time.Hour), To: now}},
		{name: "open range", filter: Filter{From: now}},
		{name: "inverted range", filter: Filter{From: now, To: now.Add(-time.Hour)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				assert.True(t, rderrors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLeadCloneCopiesMetadata(t *testing.T) {
	l := Lead{ID: "a", Metadata: map[string]any{"k": 1}}
	c := l.clone()
	c.Metadata["k"] = 2
	assert.Equal(t, 1, l.Metadata["k"])
}

func TestSnapshotHelpers(t *testing.T) {
	s := Snapshot{
		New:       []Lead{{ID: "a"}, {ID: "b"}},
		Completed: []Lead{{ID: "c"}},
		Selected:  "b",
	}

	lead, ok := s.SelectedLead()
	require.True(t, ok)
	assert.Equal(t, "b", lead.ID)
	assert.Equal(t, 1, s.SelectedIndex())

	cat, ok := s.Locate("c")
	require.True(t, ok)
	assert.Equal(t, CategoryCompleted, cat)
	_, ok = s.Locate("zzz")
	assert.False(t, ok)

	assert.Equal(t, 2, s.Counts()[CategoryNew])
	assert.Equal(t, 0, s.Counts()[CategoryLeads])
}
