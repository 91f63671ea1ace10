package keywatch

import (
	"bytes"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestModel_StopKeys(t *testing.T) {
	tests := []struct {
		name     string
		key      tea.KeyPressMsg
		wantStop bool
	}{
		{name: "q", key: tea.KeyPressMsg{Code: 'q', Text: "q"}, wantStop: true},
		{name: "escape", key: tea.KeyPressMsg{Code: tea.KeyEscape}, wantStop: true},
		{name: "ctrl+c", key: tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl}, wantStop: true},
		{name: "other letter", key: tea.KeyPressMsg{Code: 'x', Text: "x"}, wantStop: false},
		{name: "enter", key: tea.KeyPressMsg{Code: tea.KeyEnter}, wantStop: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			m := newModel(func() { calls++ })

			next, cmd := m.Update(tt.key)
			assert.Nil(t, cmd, "a stop key never quits the display by itself")

			got := next.(model)
			assert.Equal(t, tt.wantStop, got.stopping)
			if tt.wantStop {
				assert.Equal(t, 1, calls)
			} else {
				assert.Zero(t, calls)
			}
		})
	}
}

func TestModel_StopKeyTriggersOnce(t *testing.T) {
	var calls int
	var m tea.Model = newModel(func() { calls++ })

	m, _ = m.Update(tea.KeyPressMsg{Code: 'q', Text: "q"})
	m, _ = m.Update(tea.KeyPressMsg{Code: tea.KeyEscape})

	assert.Equal(t, 1, calls)
	assert.Contains(t, m.(model).renderContent(), "then stopping")
}

func TestModel_Progress(t *testing.T) {
	var m tea.Model = newModel(func() {})
	m, _ = m.Update(startedMsg{total: 3})
	m, _ = m.Update(FileDone{Name: "a.mep", Mismatches: 1})
	m, _ = m.Update(FileDone{Name: "b.mep", Failed: true})

	got := m.(model)
	assert.Equal(t, 3, got.total)
	assert.Equal(t, 2, got.done)
	assert.Equal(t, 1, got.failed)

	view := got.renderContent()
	assert.Contains(t, view, "2/3 files")
	assert.Contains(t, view, "(1 failed)")
	assert.Contains(t, view, "last: b.mep")
	assert.Contains(t, view, "Press q or Esc")
}

func TestModel_StopMsgQuits(t *testing.T) {
	m, cmd := newModel(func() {}).Update(stopMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.(model).renderContent())
}

func TestMonitor_Lifecycle(t *testing.T) {
	var cancelled atomic.Int32
	mon := Start(func() { cancelled.Add(1) }, quietLogger(),
		tea.WithInput(nil), tea.WithOutput(&bytes.Buffer{}))

	mon.Started(2)
	mon.FileDone(FileDone{Name: "a.mep"})
	assert.False(t, mon.Triggered())

	mon.program.Send(tea.KeyPressMsg{Code: 'q', Text: "q"})
	mon.program.Send(tea.KeyPressMsg{Code: tea.KeyEscape})
	assert.Eventually(t, mon.Triggered, time.Second, 10*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- mon.Stop() }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, int32(1), cancelled.Load())
	assert.NoError(t, mon.Stop(), "Stop is idempotent")
}

func TestMonitor_StopWithoutKeys(t *testing.T) {
	var cancelled atomic.Int32
	mon := Start(func() { cancelled.Add(1) }, nil,
		tea.WithInput(nil), tea.WithOutput(&bytes.Buffer{}))

	require.NoError(t, mon.Stop())
	assert.False(t, mon.Triggered())
	assert.Zero(t, cancelled.Load())
}
