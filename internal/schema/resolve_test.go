package schema

import (
	"context"
	"math/rand"
	"testing"

	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTaskSpace(t *testing.T) *Space {
	t.Helper()
	ctx := context.Background()
	s := newTestSchema(t)

	task, err := s.CreateSpace(ctx, "task", types.Fields{
		types.F("id", types.TypeUnsigned),
		types.F("year", types.TypeUnsigned),
		types.F("month", types.TypeUnsigned),
		types.F("day", types.TypeUnsigned),
		types.F("sector", types.TypeUnsigned),
	})
	require.NoError(t, err)
	require.NoError(t, task.AddIndex(ctx, "id"))
	require.NoError(t, task.AddIndex(ctx, "year", "month", "day"))
	require.NoError(t, task.AddIndex(ctx, "sector", "year", "month", "day"))
	return task
}

func TestCastIndex_PrefixCover(t *testing.T) {
	task := newTaskSpace(t)

	lookup, err := task.CastIndex(types.Eq("year", 2017).And("month", 1))
	require.NoError(t, err)
	assert.Equal(t, "year_month_day", lookup.Index.Name)
	assert.Equal(t, []any{uint64(2017), uint64(1)}, lookup.Values)
	assert.False(t, lookup.Full())
	assert.False(t, lookup.Point())

	lookup, err = task.CastIndex(types.Eq("month", "1").And("year", "2017"))
	require.NoError(t, err)
	assert.Equal(t, "year_month_day", lookup.Index.Name)
	assert.Equal(t, []any{uint64(2017), uint64(1)}, lookup.Values)

	lookup, err = task.CastIndex(types.Eq("day", 3).And("sector", 7).And("year", 2017).And("month", 1))
	require.NoError(t, err)
	assert.Equal(t, "sector_year_month_day", lookup.Index.Name)
	assert.Equal(t, []any{uint64(7), uint64(2017), uint64(1), uint64(3)}, lookup.Values)
	assert.True(t, lookup.Point())

	lookup, err = task.CastIndex(types.Eq("id", "42"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), lookup.Index.IID)
	assert.Equal(t, []any{uint64(42)}, lookup.Values)
}

func TestCastIndex_NoIndexMessage(t *testing.T) {
	task := newTaskSpace(t)

	_, err := task.CastIndex(types.Eq("day", 1))
	require.ErrorIs(t, err, apperrors.ErrNoMatchingIndex)
	assert.Equal(t, "No index on task for [day]", apperrors.Message(err))
	assert.Equal(t, []string{"day"}, apperrors.UnmatchedFields(err))

	_, err = task.CastIndex(types.Eq("month", 1).And("day", 2))
	require.Error(t, err)
	assert.Equal(t, "No index on task for [month, day]", apperrors.Message(err))
}

func TestCastIndex_MessageKeepsArgumentOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	task, err := s.CreateSpace(ctx, "task", types.Fields{
		types.F("id", types.TypeUnsigned),
		types.F("year", types.TypeUnsigned),
		types.F("month", types.TypeUnsigned),
	})
	require.NoError(t, err)
	require.NoError(t, task.AddIndex(ctx, "id"))

	_, err = task.CastIndex(types.Eq("year", 2017).And("month", 1))
	require.Error(t, err)
	assert.Equal(t, "No index on task for [year, month]", apperrors.Message(err))
	assert.Contains(t, err.Error(), "No index on task for [year, month]")
}

func TestCastIndex_FullKeyBeatsPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	space, err := s.CreateSpace(ctx, "pairs", types.Fields{
		types.F("a", types.TypeUnsigned),
		types.F("b", types.TypeUnsigned),
		types.F("c", types.TypeUnsigned),
	})
	require.NoError(t, err)
	require.NoError(t, space.AddIndex(ctx, "a", "b"))
	require.NoError(t, space.AddIndex(ctx, "a", "c"))

	lookup, err := space.CastIndex(types.Eq("a", 1))
	require.NoError(t, err)
	assert.Equal(t, "a_b", lookup.Index.Name, "lowest iid wins among prefix matches")

	_, err = space.CreateIndex(ctx, On("a").NonUnique())
	require.NoError(t, err)
	lookup, err = space.CastIndex(types.Eq("a", 1))
	require.NoError(t, err)
	assert.Equal(t, "a", lookup.Index.Name, "full key wins over a prefix")
	assert.True(t, lookup.Full())
	assert.False(t, lookup.Point())
}

func TestCastIndex_HashNeedsFullKey(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	space, err := s.CreateSpace(ctx, "person", types.Fields{
		types.F("name", types.TypeString),
		types.F("birthday", types.TypeUnsigned),
	})
	require.NoError(t, err)
	_, err = space.CreateIndex(ctx, On("name", "birthday").Hash())
	require.NoError(t, err)

	_, err = space.CastIndex(types.Eq("name", "Vasiliy"))
	assert.ErrorIs(t, err, apperrors.ErrNoMatchingIndex)

	lookup, err := space.CastIndex(types.Eq("birthday", "19840127").And("name", "Vasiliy"))
	require.NoError(t, err)
	assert.Equal(t, []any{"Vasiliy", uint64(19840127)}, lookup.Values)
}

func TestCastIndex_Errors(t *testing.T) {
	task := newTaskSpace(t)

	_, err := task.CastIndex(types.Eq("year", "abc"))
	require.ErrorIs(t, err, apperrors.ErrCastFailed)
	assert.Equal(t, []string{"year"}, err.(*apperrors.Error).Fields)

	require.NoError(t, task.SetPropertyNullable(context.Background(), "id", false))
	_, err = task.CastIndex(types.Eq("id", nil))
	assert.ErrorIs(t, err, apperrors.ErrCastFailed)

	_, err = task.CastIndex(types.Eq("year", 1).And("year", 2))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = task.CastIndex(types.Eq("unknown", 1))
	assert.ErrorIs(t, err, apperrors.ErrNoMatchingIndex)
}

func TestCastIndex_EmptyFilter(t *testing.T) {
	task := newTaskSpace(t)
	lookup, err := task.CastIndex(nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), lookup.Index.IID)
	assert.Empty(t, lookup.Values)

	empty, err := newTestSchema(t).CreateSpace(context.Background(), "bare", nil)
	require.NoError(t, err)
	_, err = empty.CastIndex(nil)
	assert.ErrorIs(t, err, apperrors.ErrNoMatchingIndex)
}

func TestCastIndex_NullableValue(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	space, err := s.CreateSpace(ctx, "person", types.Fields{types.F("email", types.TypeString)})
	require.NoError(t, err)
	_, err = space.CreateIndex(ctx, On("email").NonUnique())
	require.NoError(t, err)

	lookup, err := space.CastIndex(types.Eq("email", nil))
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, lookup.Values)
}

func TestMatchIndexAndBind(t *testing.T) {
	task := newTaskSpace(t)
	filter := types.Eq("month", 1).And("year", 2017)

	idx, err := task.MatchIndex(filter)
	require.NoError(t, err)
	lookup, err := task.Bind(idx, filter)
	require.NoError(t, err)
	assert.Equal(t, []any{uint64(2017), uint64(1)}, lookup.Values)

	primary, err := task.GetIndex("id")
	require.NoError(t, err)
	_, err = task.Bind(primary, filter)
	assert.ErrorIs(t, err, apperrors.ErrNoMatchingIndex)
}

func TestProperty_ResolutionIgnoresFilterOrder(t *testing.T) {
	task := newTaskSpace(t)
	fields := []string{"sector", "year", "month", "day"}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("any permutation of a covered field set picks the same index and key", prop.ForAll(
		func(seed int64, size int, sector, year, month, day uint32) bool {
			values := map[string]any{"sector": sector, "year": year, "month": month, "day": day}
			// year, month, day prefixes belong to year_month_day; adding sector selects the longer index
			chosen := fields
			if size < 4 {
				chosen = fields[1 : 1+size]
			}

			ordered := make(types.Filter, 0, len(chosen))
			for _, f := range chosen {
				ordered = append(ordered, types.Term{Field: f, Value: values[f]})
			}
			shuffled := append(types.Filter(nil), ordered...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			a, err := task.CastIndex(ordered)
			if err != nil {
				return false
			}
			b, err := task.CastIndex(shuffled)
			if err != nil {
				return false
			}
			if a.Index != b.Index || len(a.Values) != len(b.Values) {
				return false
			}
			for i := range a.Values {
				if a.Values[i] != b.Values[i] {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 4),
		gen.UInt32(),
		gen.UInt32(),
		gen.UInt32(),
		gen.UInt32(),
	))

	properties.TestingRun(t)
}
