package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExpandStateUnityMute(t *testing.T) {
	e := NewExpandState(7)
	assert.Equal(t, int32(unityMuteQ14), e.MuteFactorQ14)
}

func TestGenerateWithoutHistoryFillsNoise(t *testing.T) {
	e := NewExpandState(1)
	out, useBGN := e.Generate(160, 0)
	require.Len(t, out, 160)
	assert.False(t, useBGN)
}

func TestGenerateWithHistoryRepeatsPitchPeriod(t *testing.T) {
	e := NewExpandState(1)
	hist := make([]int16, 240)
	for i := range hist {
		hist[i] = int16(i % 40)
	}
	e.FeedHistory(hist)

	out, _ := e.Generate(80, 40)
	require.Len(t, out, 80)
	assert.Equal(t, 40, e.LagSamples)
}

func TestGenerateMuteFactorDecaysEachCall(t *testing.T) {
	e := NewExpandState(1)
	e.FeedHistory(make([]int16, 240))
	before := e.MuteFactorQ14
	e.Generate(80, 40)
	assert.Less(t, e.MuteFactorQ14, before)
}

func TestGenerateCrossesBGNThreshold(t *testing.T) {
	e := NewExpandState(1)
	e.FeedHistory(make([]int16, 240))
	var lastBGN bool
	for i := 0; i < 10; i++ {
		_, lastBGN = e.Generate(160, 40)
	}
	assert.True(t, lastBGN, "after >=800 samples of continuous expand, output should fall back to BGN-only")
}

func TestResetClearsMuteAndRunLength(t *testing.T) {
	e := NewExpandState(1)
	e.FeedHistory(make([]int16, 240))
	e.Generate(900, 40)
	e.Reset()
	assert.Equal(t, int32(unityMuteQ14), e.MuteFactorQ14)
	_, useBGN := e.Generate(10, 40)
	assert.False(t, useBGN)
}

func TestFeedHistoryCapsLength(t *testing.T) {
	e := NewExpandState(1)
	e.FeedHistory(make([]int16, 1000))
	assert.LessOrEqual(t, len(e.history), 480)
}
