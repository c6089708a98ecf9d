package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/cmsconsole/pkg/errors"
)

func TestPaginationResolve(t *testing.T) {
	limits := DefaultPageLimits()

	tests := []struct {
		name string
		in   Pagination
		want Pagination
	}{
		{name: "defaults", in: Pagination{}, want: Pagination{Page: 1, Limit: DefaultPageSize}},
		{name: "explicit", in: Pagination{Page: 3, Limit: 10}, want: Pagination{Page: 3, Limit: 10}},
		{name: "capped", in: Pagination{Page: 1, Limit: 5000}, want: Pagination{Page: 1, Limit: MaxPageSize}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.in.Resolve(limits)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestPaginationResolveRejectsNegative(t *testing.T) {
	_, err := Pagination{Page: -1}.Resolve(DefaultPageLimits())
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = Pagination{Limit: -5}.Resolve(DefaultPageLimits())
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPageLimitsNormalise(t *testing.T) {
	limits := PageLimits{Default: 500, Max: 50}.normalise()
	require.Equal(t, 50, limits.Default)

	limits = PageLimits{}.normalise()
	require.Equal(t, DefaultPageLimits(), limits)
}

func TestFilterValidation(t *testing.T) {
	from := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	require.ErrorIs(t, NotificationFilter{}.Validate(), apperrors.ErrValidation)
	require.ErrorIs(t, NotificationFilter{RecipientID: "u1", Type: "marketing"}.Validate(), apperrors.ErrValidation)
	require.ErrorIs(t, NotificationFilter{RecipientID: "u1", Dates: DateRange{From: &from, To: &to}}.Validate(), apperrors.ErrValidation)
	require.NoError(t, NotificationFilter{RecipientID: "u1", Type: "security"}.Validate())

	require.ErrorIs(t, AuditFilter{Status: "pending"}.Validate(), apperrors.ErrValidation)
	require.ErrorIs(t, AuditFilter{Dates: DateRange{From: &from, To: &to}}.Validate(), apperrors.ErrValidation)
	require.NoError(t, AuditFilter{Status: "failed", Dates: DateRange{From: &to, To: &from}}.Validate())
}

func TestChunkIDs(t *testing.T) {
	ids := []uint64{1, 2, 3, 4, 5}
	require.Equal(t, [][]uint64{{1, 2}, {3, 4}, {5}}, chunkIDs(ids, 2))
	require.Nil(t, chunkIDs(nil, 2))
	require.Equal(t, [][]uint64{{1, 2, 3, 4, 5}}, chunkIDs(ids, 0))
}
