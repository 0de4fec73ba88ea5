package schema

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createSpaceMigration struct {
	name  string
	calls int
}

func (m *createSpaceMigration) Apply(ctx context.Context, s *Schema) error {
	m.calls++
	_, err := s.CreateSpace(ctx, m.name, types.Fields{types.F("id", types.TypeUnsigned)})
	return err
}

func TestOnce_RunsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)
	s := New(c)

	m := &createSpaceMigration{name: "tester"}
	ran, err := s.Once(ctx, "insert", m)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = s.Once(ctx, "insert", m)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, m.calls)

	// the ledger lives in the _schema area under once<name>
	_, err = c.GetKey(ctx, "onceinsert")
	require.NoError(t, err)

	keys, err := s.OnceKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"insert"}, keys)

	record, err := s.OnceRecordOf(ctx, "insert")
	require.NoError(t, err)
	assert.Equal(t, s.Instance(), record.Instance)
	assert.NotEmpty(t, record.RunID)

	// another Schema on the same catalog sees the ledger
	ran, err = New(c).Once(ctx, "insert", m)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestOnce_ForgetAllowsRerun(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)

	calls := 0
	m := MigrationFunc(func(ctx context.Context, s *Schema) error {
		calls++
		return nil
	})

	_, err := s.Once(ctx, "seed", m)
	require.NoError(t, err)

	existed, err := s.ForgetOnce(ctx, "seed")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.ForgetOnce(ctx, "seed")
	require.NoError(t, err)
	assert.False(t, existed)

	ran, err := s.Once(ctx, "seed", m)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, calls)
}

func TestOnce_FailureIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)

	boom := errors.New("boom")
	ran, err := s.Once(ctx, "broken", MigrationFunc(func(context.Context, *Schema) error {
		return boom
	}))
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)

	keys, err := s.OnceKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = s.OnceRecordOf(ctx, "broken")
	assert.True(t, apperrors.IsNotFound(err))

	ran, err = s.Once(ctx, "broken", MigrationFunc(func(context.Context, *Schema) error { return nil }))
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestOnce_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)

	_, err := s.Once(ctx, "", MigrationFunc(func(context.Context, *Schema) error { return nil }))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = s.Once(ctx, "nil", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = s.ForgetOnce(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
