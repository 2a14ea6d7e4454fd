package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{100, 30, 4},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.total, tt.size), "TotalPages(%d, %d)", tt.total, tt.size)
	}
}

func TestParamsNormalize(t *testing.T) {
	got := Params{}.Normalize(0)
	assert.Equal(t, NewParams(), got)

	got = Params{PageNumber: 3, PageSize: 500}.Normalize(20)
	assert.Equal(t, Params{PageNumber: 3, PageSize: 20}, got)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, NewParams().Validate())
	assert.ErrorIs(t, Params{PageNumber: 0, PageSize: 10}.Validate(), ErrInvalidPage)
	assert.ErrorIs(t, Params{PageNumber: -2, PageSize: 10}.Validate(), ErrInvalidPage)
	assert.ErrorIs(t, Params{PageNumber: 1, PageSize: 0}.Validate(), ErrInvalidPageSize)
}

func TestParamsOffset(t *testing.T) {
	assert.Equal(t, 0, Params{PageNumber: 1, PageSize: 10}.Offset())
	assert.Equal(t, 20, Params{PageNumber: 3, PageSize: 10}.Offset())
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OverflowClamp, p)

	p, err = ParseOverflowPolicy("empty")
	require.NoError(t, err)
	assert.Equal(t, OverflowEmpty, p)

	_, err = ParseOverflowPolicy("wrap")
	assert.ErrorIs(t, err, ErrUnknownOverflow)
}

func TestOverflowResolve(t *testing.T) {
	tests := []struct {
		name      string
		policy    OverflowPolicy
		params    Params
		total     int
		wantPage  int
		wantFetch bool
	}{
		{"within range", OverflowClamp, Params{2, 10}, 25, 2, true},
		{"last page", OverflowEmpty, Params{3, 10}, 25, 3, true},
		{"clamp past end", OverflowClamp, Params{9, 10}, 25, 3, true},
		{"empty past end", OverflowEmpty, Params{9, 10}, 25, 9, false},
		{"no items clamp", OverflowClamp, Params{4, 10}, 0, 1, false},
		{"no items empty", OverflowEmpty, Params{4, 10}, 0, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fetch := tt.policy.Resolve(tt.params, tt.total)
			assert.Equal(t, tt.wantPage, got.PageNumber)
			assert.Equal(t, tt.params.PageSize, got.PageSize)
			assert.Equal(t, tt.wantFetch, fetch)
		})
	}
}

func TestNewMetadata(t *testing.T) {
	m := NewMetadata(Params{PageNumber: 2, PageSize: 10}, 25)
	assert.Equal(t, Metadata{CurrentPage: 2, ItemsPerPage: 10, TotalItems: 25, TotalPages: 3}, m)
	assert.True(t, m.HasNext())

	m = NewMetadata(Params{PageNumber: 3, PageSize: 10}, 25)
	assert.False(t, m.HasNext())
}
