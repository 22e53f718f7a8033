package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/lightstage/internal/scene"
)

func sceneWithExposure(v float64) *scene.Scene {
	s := scene.Default()
	s.SetExposure(v)
	return s
}

// TestControlEditCopyOnWrite тестирует, что правка не трогает старый снимок
func TestControlEditCopyOnWrite(t *testing.T) {
	cs := NewControlStore(nil, nil)
	before := cs.Draft()

	after, err := cs.Edit(func(s *scene.Scene) error {
		s.AddLayerAt(1, 2)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, before.Len())
	assert.Equal(t, 1, after.Len())
	assert.Same(t, after, cs.Draft())

	boom := errors.New("boom")
	got, err := cs.Edit(func(s *scene.Scene) error {
		s.ClearLayers()
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Same(t, after, got)
	assert.Equal(t, 1, cs.Draft().Len())
}

// TestResolveChain тестирует override[target] -> override[all] -> default
func TestResolveChain(t *testing.T) {
	cs := NewControlStore(nil, []string{"2"})
	assert.Equal(t, scene.Default(), cs.Resolve("2"))

	all := sceneWithExposure(2)
	cs.Record(TargetAll, all)
	assert.Same(t, all, cs.Resolve("9"))
	// известная цель тоже получила широковещательный снимок
	assert.Same(t, all, cs.Resolve("2"))

	own := sceneWithExposure(3)
	cs.Record("2", own)
	assert.Same(t, own, cs.Resolve("2"))
	assert.Same(t, all, cs.Resolve("3"))
	assert.Equal(t, []string{"2"}, cs.Targets())
}

func TestSelectTargetLoadsResolved(t *testing.T) {
	cs := NewControlStore(nil, nil)
	assert.Equal(t, TargetAll, cs.ActiveTarget())

	own := sceneWithExposure(4)
	cs.Record("lobby", own)

	draft := cs.SelectTarget("lobby")
	assert.Equal(t, "lobby", cs.ActiveTarget())
	assert.Same(t, own, draft)

	cs.SelectTarget("")
	assert.Equal(t, TargetAll, cs.ActiveTarget())
	assert.Equal(t, scene.Default(), cs.Draft())
	assert.Equal(t, []string{"lobby"}, cs.Targets())
}

// TestReplaceAllCommit тестирует, что без commit карта не меняется
func TestReplaceAllCommit(t *testing.T) {
	cs := NewControlStore(nil, []string{"a", "b"})
	old := sceneWithExposure(2)
	cs.Record("a", old)

	snap := sceneWithExposure(3)
	commit := cs.ReplaceAll(snap)
	assert.Same(t, old, cs.Resolve("a"))
	assert.NotSame(t, snap, cs.Draft())

	commit()
	for _, target := range []string{TargetAll, "a", "b", "unknown"} {
		assert.Same(t, snap, cs.Resolve(target), target)
	}
	assert.Same(t, snap, cs.Draft())
	assert.Len(t, cs.Overrides(), 3)
}

// TestDivergedTargets тестирует выбор целей, чьё переопределение отличается от all
func TestDivergedTargets(t *testing.T) {
	cs := NewControlStore(nil, []string{"a", "b", "c"})
	assert.Empty(t, cs.Diverged())

	cs.Record("b", sceneWithExposure(2))
	assert.Equal(t, []string{"b"}, cs.Diverged(), "all ещё не отправлялся")

	all := sceneWithExposure(3)
	cs.Record(TargetAll, all)
	assert.Empty(t, cs.Diverged())

	cs.Record("c", sceneWithExposure(4))
	cs.Record("a", sceneWithExposure(5))
	assert.Equal(t, []string{"a", "c"}, cs.Diverged())
}

func TestObserveIgnoresAllAndEmpty(t *testing.T) {
	cs := NewControlStore(nil, []string{"", TargetAll, "x"})
	cs.Observe("y")
	assert.Equal(t, []string{"x", "y"}, cs.Targets())
}

// TestDisplayAccepts тестирует адресацию: "2" принимает, "3" игнорирует
func TestDisplayAccepts(t *testing.T) {
	ds := NewDisplayStore("2")
	assert.True(t, ds.Accepts("2"))
	assert.True(t, ds.Accepts(TargetAll))
	assert.False(t, ds.Accepts("3"))
	assert.Equal(t, "2", ds.RequestTarget())

	anon := NewDisplayStore("")
	assert.True(t, anon.Accepts(TargetAll))
	assert.False(t, anon.Accepts("2"))
	assert.False(t, anon.Accepts(""))
	assert.Equal(t, TargetAll, anon.RequestTarget())
}

func TestDisplayAdoptFencesStaleSeq(t *testing.T) {
	ds := NewDisplayStore("2")
	assert.False(t, ds.Adopted())
	assert.Equal(t, scene.Default(), ds.Rendered())

	s5, s3, s1 := sceneWithExposure(1.5), sceneWithExposure(3), sceneWithExposure(1)
	require.True(t, ds.Adopt("ctl-a", 5, s5))
	assert.True(t, ds.Adopted())

	assert.False(t, ds.Adopt("ctl-a", 3, s3))
	assert.False(t, ds.Adopt("ctl-a", 5, s3))
	assert.Same(t, s5, ds.Rendered())

	// новая сессия управляющего экземпляра сбрасывает счётчик
	require.True(t, ds.Adopt("ctl-b", 1, s1))
	assert.Same(t, s1, ds.Rendered())

	// без нумерации принимается всегда
	require.True(t, ds.Adopt("ctl-b", 0, s3))
	assert.False(t, ds.Adopt("ctl-b", 0, nil))
}
