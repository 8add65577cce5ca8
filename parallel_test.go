package statechart_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	statechart "github.com/statecraft/go-statechart"
)

func modesMachine() *statechart.Machine {
	return statechart.MustDefine("app",
		statechart.Parallel("modes",
			statechart.State("network",
				statechart.State("offline",
					statechart.On("CONNECT", statechart.Target("online")),
				),
				statechart.State("online",
					statechart.On("DISCONNECT", statechart.Target("offline")),
				),
			),
			statechart.State("theme",
				statechart.Initial("dark"),
				statechart.State("light",
					statechart.On("TOGGLE_THEME", statechart.Target("dark")),
				),
				statechart.State("dark",
					statechart.On("TOGGLE_THEME", statechart.Target("light")),
				),
			),
		),
	)
}

func TestParallelRegionsAreIndependent(t *testing.T) {
	itp, err := statechart.New(modesMachine(), struct{}{})
	require.NoError(t, err)
	require.NoError(t, itp.Start())

	assert.Equal(t,
		map[string]any{"network": "offline", "theme": "dark"},
		itp.GetSnapshot().Value)

	send(t, itp, "CONNECT")
	assert.Equal(t,
		map[string]any{"network": "online", "theme": "dark"},
		itp.GetSnapshot().Value)

	send(t, itp, "TOGGLE_THEME")
	assert.Equal(t,
		map[string]any{"network": "online", "theme": "light"},
		itp.GetSnapshot().Value)

	snap := itp.GetSnapshot()
	assert.True(t, snap.Matches("online"))
	assert.True(t, snap.Matches("light"))
	itp.Stop()
}

func TestParallelOneEventSeveralRegions(t *testing.T) {
	var order []string
	record := func(label string) *statechart.Action {
		return statechart.Effect(func(struct{}, statechart.Event) {
			order = append(order, label)
		}, label)
	}

	m := statechart.MustDefine("m",
		statechart.Parallel("p",
			statechart.State("left",
				statechart.State("l1",
					statechart.On("GO", statechart.Target("l2"), statechart.Do(record("left"))),
				),
				statechart.State("l2"),
			),
			statechart.State("right",
				statechart.State("r1",
					statechart.On("GO", statechart.Target("r2"), statechart.Do(record("right"))),
				),
				statechart.State("r2"),
			),
		),
	)
	itp, err := statechart.New(m, struct{}{})
	require.NoError(t, err)
	require.NoError(t, itp.Start())

	// one step moves both regions; regions fire in document order
	send(t, itp, "GO")
	assert.Equal(t, []string{"left", "right"}, order)
	assert.Equal(t,
		map[string]any{"left": "l2", "right": "r2"},
		itp.GetSnapshot().Value)
}

func TestParallelAncestorHandlesForBothRegions(t *testing.T) {
	m := statechart.MustDefine("m",
		statechart.State("work",
			statechart.On("ABORT", statechart.Target("aborted")),
			statechart.Parallel("p",
				statechart.State("left", statechart.State("l1")),
				statechart.State("right", statechart.State("r1")),
			),
		),
		statechart.State("aborted"),
	)
	itp, err := statechart.New(m, struct{}{})
	require.NoError(t, err)
	require.NoError(t, itp.Start())

	// both leaves reach the same ancestor transition; it runs once
	send(t, itp, "ABORT")
	assert.True(t, itp.GetSnapshot().Matches("aborted"))
}

func TestCrossRegionTransitionKeepsSiblingRegions(t *testing.T) {
	m := statechart.MustDefine("m",
		statechart.Parallel("p",
			statechart.State("a",
				statechart.State("a1",
					statechart.On("X", statechart.Target("/p/b/b2")),
				),
				statechart.State("a2"),
			),
			statechart.State("b",
				statechart.State("b1"),
				statechart.State("b2"),
			),
		),
	)
	itp, err := statechart.New(m, struct{}{})
	require.NoError(t, err)
	require.NoError(t, itp.Start())

	// the parallel state is exited and re-entered whole, so region a
	// stays in the configuration at its default
	send(t, itp, "X")
	snap := itp.GetSnapshot()
	assert.Equal(t, map[string]any{"a": "a1", "b": "b2"}, snap.Value)
	assert.True(t, snap.Matches("/p/a/a1"))
	assert.True(t, snap.Matches("/p/b/b2"))
}

func TestCrossRegionTransitionReentersWhole(t *testing.T) {
	var trace []string
	record := func(label string) *statechart.Action {
		return statechart.Effect(func(struct{}, statechart.Event) {
			trace = append(trace, label)
		}, label)
	}

	m := statechart.MustDefine("m",
		statechart.Parallel("p",
			statechart.Entry(record("enter p")),
			statechart.Exit(record("exit p")),
			statechart.State("a",
				statechart.State("a1",
					statechart.On("X", statechart.Target("/p/b/b2")),
				),
			),
			statechart.State("b",
				statechart.State("b1"),
				statechart.State("b2"),
			),
		),
	)
	itp, err := statechart.New(m, struct{}{})
	require.NoError(t, err)
	require.NoError(t, itp.Start())

	trace = nil
	send(t, itp, "X")
	assert.Equal(t, []string{"exit p", "enter p"}, trace)
}

func TestParallelCompletion(t *testing.T) {
	m := statechart.MustDefine("job",
		statechart.Parallel("phases",
			statechart.State("upload",
				statechart.State("sending",
					statechart.On("UPLOADED", statechart.Target("sent")),
				),
				statechart.Final("sent"),
			),
			statechart.State("transcode",
				statechart.State("converting",
					statechart.On("CONVERTED", statechart.Target("converted")),
				),
				statechart.Final("converted"),
			),
		),
	)
	itp, err := statechart.New(m, struct{}{})
	require.NoError(t, err)
	require.NoError(t, itp.Start())

	send(t, itp, "UPLOADED")
	assert.Equal(t, statechart.StatusRunning, itp.Status())

	// done only once every region reached its final state
	send(t, itp, "CONVERTED")
	assert.Equal(t, statechart.StatusDone, itp.Status())
}

func TestEnteringParallelDirectly(t *testing.T) {
	m := statechart.MustDefine("m",
		statechart.State("off",
			statechart.On("START", statechart.Target("/run/right/r2")),
		),
		statechart.Parallel("run",
			statechart.State("left",
				statechart.State("l1"),
				statechart.State("l2"),
			),
			statechart.State("right",
				statechart.State("r1"),
				statechart.State("r2"),
			),
		),
	)
	itp, err := statechart.New(m, struct{}{})
	require.NoError(t, err)
	require.NoError(t, itp.Start())

	// targeting inside one region still enters the other region's default
	send(t, itp, "START")
	snap := itp.GetSnapshot()
	assert.True(t, snap.Matches("/run/right/r2"))
	assert.True(t, snap.Matches("/run/left/l1"))
}
