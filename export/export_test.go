package export_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	statechart "github.com/statecraft/go-statechart"
	"github.com/statecraft/go-statechart/export"
)

type ctx struct{ Retries int }

func fixture(t *testing.T) *statechart.Machine {
	t.Helper()
	m, err := statechart.Define("player",
		statechart.State("stopped",
			statechart.On("PLAY", statechart.Target("playing"),
				statechart.Do(statechart.Effect[ctx](func(ctx, statechart.Event) {}, "spinUp")),
			),
		),
		statechart.State("playing",
			statechart.Initial("loading"),
			statechart.Entry(statechart.Effect[ctx](func(ctx, statechart.Event) {}, "light")),
			statechart.State("loading",
				statechart.Invoke[ctx]("fetchTrack",
					func(context.Context, ctx, statechart.Event) (any, error) { return nil, nil },
					statechart.OnDone(statechart.Target("buffered")),
					statechart.OnError(statechart.Target("/stopped")),
				),
				statechart.After(500*time.Millisecond, statechart.Target("buffered")),
			),
			statechart.State("buffered",
				statechart.On("STOP", statechart.Target("/stopped"),
					statechart.Guard[ctx](func(c ctx, _ statechart.Event) bool { return c.Retries < 3 }, "fewRetries"),
				),
			),
		),
	)
	require.NoError(t, err)
	return m
}

func TestPlantUML(t *testing.T) {
	out := export.PlantUML(fixture(t))

	assert.Contains(t, out, "@startuml")
	assert.Contains(t, out, "title player")
	assert.Contains(t, out, "[*] --> stopped")
	assert.Contains(t, out, "state playing {")
	assert.Contains(t, out, "state playing : entry / light")
	assert.Contains(t, out, "state playing_loading : invoke / fetchTrack")
	assert.Contains(t, out, "stopped --> playing : PLAY / spinUp")
	assert.Contains(t, out, "after 500ms")
	assert.Contains(t, out, "[fewRetries]")
	assert.Contains(t, out, "@enduml")
}

func TestPlantUMLParallelRegions(t *testing.T) {
	m := statechart.MustDefine("app",
		statechart.Parallel("modes",
			statechart.State("network",
				statechart.State("offline"),
				statechart.State("online"),
			),
			statechart.State("theme",
				statechart.State("light"),
				statechart.State("dark"),
			),
		),
	)

	out := export.PlantUML(m)
	assert.Contains(t, out, "--\n")
	assert.Contains(t, out, "state modes_network {")
	assert.Contains(t, out, "state modes_theme {")
}

func TestXState(t *testing.T) {
	got := export.XState(fixture(t))

	require.Equal(t, "player", got.ID)
	require.Equal(t, "stopped", got.Initial)
	require.Len(t, got.States, 2)

	stopped := got.States["stopped"]
	require.Len(t, stopped.On["PLAY"], 1)
	play := stopped.On["PLAY"][0]
	assert.Equal(t, "playing", play.Target)
	assert.Equal(t, []string{"spinUp"}, play.Actions)

	playing := got.States["playing"]
	assert.Equal(t, "loading", playing.Initial)
	assert.Equal(t, []string{"light"}, playing.Entry)

	loading := playing.States["loading"]
	require.Len(t, loading.Invoke, 1)
	inv := loading.Invoke[0]
	assert.Equal(t, "fetchTrack", inv.Src)
	require.Len(t, inv.OnDone, 1)
	assert.Equal(t, "buffered", inv.OnDone[0].Target)
	require.Len(t, inv.OnError, 1)
	assert.Equal(t, "/stopped", inv.OnError[0].Target)
	require.Len(t, loading.After["500"], 1)
	assert.Equal(t, "buffered", loading.After["500"][0].Target)
	assert.Empty(t, loading.On)

	buffered := playing.States["buffered"]
	require.Len(t, buffered.On["STOP"], 1)
	assert.Equal(t, "fewRetries", buffered.On["STOP"][0].Guard)

	assert.Empty(t, got.States["stopped"].States)
}

func TestXStateParallelAndFinal(t *testing.T) {
	m := statechart.MustDefine("job",
		statechart.State("running"),
		statechart.Final("done"),
		statechart.Parallel("aux",
			statechart.State("left", statechart.State("a")),
			statechart.State("right", statechart.State("b")),
		),
	)

	got := export.XState(m)
	assert.Equal(t, "final", got.States["done"].Type)
	assert.Equal(t, "parallel", got.States["aux"].Type)
	assert.Empty(t, got.States["aux"].Initial)
}

func TestXStateJSONRoundTrips(t *testing.T) {
	raw, err := export.XStateJSON(fixture(t))
	require.NoError(t, err)

	var decoded export.Machine
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "player", decoded.ID)
	assert.Contains(t, string(raw), `"initial": "stopped"`)
}
