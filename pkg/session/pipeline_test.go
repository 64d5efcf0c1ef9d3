package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/knurl/pkg/config"
	"github.com/chazu/knurl/pkg/engine"
	"github.com/chazu/knurl/pkg/logging"
	"github.com/chazu/knurl/pkg/scheduler"
	"github.com/chazu/knurl/pkg/session"
	"github.com/chazu/knurl/pkg/tessellate"
)

const vase = `
(def diameter (slider :label "diameter" :min 80 :max 250 :value 120))
(def height (slider :label "height" :min 50 :max 300 :value 150))
(def taper (slider :label "taper" :min 0.5 :max 1.5 :value 0.8))

(def vase-body (prism :label "body" :sides 12 :diameter diameter
                 :top-diameter (* diameter taper) :height height))
(def toolpath (spiral :label "path" :sides 16 :diameter diameter
                  :top-diameter (* diameter taper) :height height :layer 5))

(show vase-body toolpath)
(text-output :label "gcode" (gcode toolpath :feed 1200))
`

func TestPipelineWithEngine(t *testing.T) {
	cfg := config.Default()
	clock := scheduler.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	s, err := session.New(engine.NewEngine(engine.WithLogger(logging.Discard())), cfg.Specs(),
		session.WithRules(cfg.Rules()),
		session.WithLogger(logging.Discard()),
		session.WithArtifactLabel(cfg.Artifact.Label),
		session.WithSchedulerOptions(scheduler.WithClock(clock), scheduler.WithDebounce(cfg.Debounce)),
	)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Load(context.Background(), vase))
	assert.Empty(t, s.Unresolved())
	assert.Equal(t, config.PixelDensity, session.PixelDensityParam)

	prims := s.Primitives()
	require.Len(t, prims, 2)
	assert.Equal(t, tessellate.KindMesh, prims[0].Kind)
	assert.Equal(t, tessellate.KindCurve, prims[1].Kind)
	first, ok := s.Artifact()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(first, "; knurl toolpath"))

	_, err = s.Set("diameter", 200)
	require.NoError(t, err)
	clock.Advance(cfg.Debounce)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx))

	second, _ := s.Artifact()
	assert.NotEqual(t, first, second)
	assert.Equal(t, scheduler.Stats{Evaluations: 1}, s.Stats())

	_, max, ok := tessellate.Bounds(s.Primitives())
	require.True(t, ok)
	assert.InDelta(t, 100, max[0], 1e-3, "bottom radius follows the new diameter")
}
