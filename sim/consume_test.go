package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func targetAt(t *testing.T, st *State, loc Location) *Target {
	t.Helper()
	target, ok := st.CellOccupant(loc).(*Target)
	require.True(t, ok, "expected target at %s", loc)
	return target
}

func TestRemoveConsume_TakesPersonOut(t *testing.T) {
	st := testWorld(t, nil, nil, ".T")
	p := placeWalker(t, st, Location{0, 0}, Location{0, 1}, Location{0, 0}, 0)
	env := testEnv(st)

	require.NoError(t, RemoveConsumeStrategy{}.ReachedTarget(targetAt(t, st, Location{0, 1}), p, env))

	assert.Equal(t, 0, st.ObjectTypeCount(TypePerson))
	assert.Error(t, RemoveConsumeStrategy{}.ReachedTarget(targetAt(t, st, Location{0, 1}), p, env))
}

func TestReviveConsume_MovesPersonBackToSource(t *testing.T) {
	// GIVEN a person next to a reviving target
	revive := &TargetDescriptor{Consume: "revive"}
	st := testWorld(t, fixedSource(10, 1, ""), revive,
		"S..",
		"...",
		"..T",
	)
	src := initSource(t, st, 1)
	target := targetAt(t, st, Location{2, 2})
	target.Config().Consume.Init(st, rand.New(rand.NewSource(2)))
	p := placeWalker(t, st, src.Location(), Location{2, 2}, Location{2, 1}, 0)
	env := testEnv(st)

	// WHEN it reaches the target
	require.NoError(t, target.Config().Consume.ReachedTarget(target, p, env))

	// THEN it stands next to the source again, still heading for the only target
	assert.Equal(t, 1, st.ObjectTypeCount(TypePerson))
	assert.LessOrEqual(t, Distance(p.Location(), src.Location()), 1.5)
	assert.Same(t, p, st.PersonAt(p.Location()))
	assert.Equal(t, Location{2, 2}, p.Target())
	assert.Equal(t, 1, env.Scheduler.Len(), "next move is scheduled")
}

func TestReviveConsume_BlockedSource_RetriesLater(t *testing.T) {
	revive := &TargetDescriptor{Consume: "revive"}
	st := testWorld(t, fixedSource(10, 1, ""), revive,
		"S#T",
		"##.",
	)
	initSource(t, st, 1)
	target := targetAt(t, st, Location{0, 2})
	target.Config().Consume.Init(st, rand.New(rand.NewSource(2)))
	p := placeWalker(t, st, Location{0, 0}, Location{0, 2}, Location{1, 2}, 0)
	env := testEnv(st)

	require.NoError(t, target.Config().Consume.ReachedTarget(target, p, env))

	assert.Equal(t, Location{1, 2}, p.Location())
	assert.Equal(t, 1, env.Scheduler.Len())
}

func TestReviveConsume_NoSource_FallsBackToRemove(t *testing.T) {
	revive := &TargetDescriptor{Consume: "revive"}
	st := testWorld(t, nil, revive, ".T")
	target := targetAt(t, st, Location{0, 1})
	target.Config().Consume.Init(st, rand.New(rand.NewSource(2)))
	p := placeWalker(t, st, Location{0, 0}, Location{0, 1}, Location{0, 0}, 0)

	require.NoError(t, target.Config().Consume.ReachedTarget(target, p, testEnv(st)))

	assert.Equal(t, 0, st.ObjectTypeCount(TypePerson))
}
