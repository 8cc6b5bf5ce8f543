package factors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

func TestBuiltin(t *testing.T) {
	defs, err := Builtin()
	require.NoError(t, err)

	perCategory := map[domain.Category]int{}
	for _, d := range defs {
		perCategory[d.Category]++

		assert.NotEmpty(t, d.Title)
		assert.NotEmpty(t, d.Description)
	}

	for _, c := range domain.FactorCategories() {
		assert.Equal(t, 5, perCategory[c], "category %s", c)
	}

	assert.Equal(t, domain.CategoryBusinessAndMoat, defs[0].Category)
	assert.Equal(t, "moat_strength", defs[0].Key)
	assert.Equal(t, 0, defs[0].SortOrder)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr error
	}{
		{
			name: "valid",
			raw:  "categories:\n  FairValue:\n    - key: pe\n    - key: fcf\n      title: FCF yield\n",
			want: 2,
		},
		{
			name:    "unknown category",
			raw:     "categories:\n  Vibes:\n    - key: x\n",
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "category without factors",
			raw:     "categories:\n  Competition:\n    - key: x\n",
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "duplicate key",
			raw:     "categories:\n  FairValue:\n    - key: pe\n    - key: pe\n",
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "missing key",
			raw:     "categories:\n  FairValue:\n    - title: nameless\n",
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "not yaml",
			raw:     "categories: [",
			wantErr: apperrors.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defs, err := Parse([]byte(tt.raw))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Len(t, defs, tt.want)
		})
	}
}

func TestParse_DefaultsTitleToKey(t *testing.T) {
	defs, err := Parse([]byte("categories:\n  FairValue:\n    - key: pe\n"))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	assert.Equal(t, "pe", defs[0].Title)
}
