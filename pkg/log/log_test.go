// Copyright 2020-2022 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package log

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	logger := NewLogger(wg)
	logger.Start(ctx)

	return logger, func() {
		cancel()
		wg.Wait()
	}
}

func TestLogger(t *testing.T) {
	logger, cancel := newTestLogger(t)
	defer cancel()

	feed, cancel2 := logger.Subscribe()
	defer cancel2()

	testCases := []struct {
		name  string
		event func() *Event
		level Level
	}{
		{"error", logger.Error, LevelError},
		{"warn", logger.Warn, LevelWarning},
		{"info", logger.Info, LevelInfo},
		{"debug", logger.Debug, LevelDebug},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			go tc.event().Src("mp4").Msgf("%v %d", "a", 1)
			log := <-feed
			require.Equal(t, tc.level, log.Level)
			require.Equal(t, "mp4", log.Src)
			require.Equal(t, "a 1", log.Msg)
			require.False(t, log.Time.IsZero())
		})
	}
}

func TestLogToWriter(t *testing.T) {
	logger, cancel := newTestLogger(t)
	defer cancel()

	var buf bytes.Buffer
	ctx, cancel2 := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		logger.LogToWriter(ctx, &buf, LevelInfo, ready)
		close(done)
	}()
	<-ready

	logger.Info().Src("boxtool").Msg("shown")
	logger.Debug().Msg("hidden")
	logger.Error().Msg("last")
	cancel2()
	<-done

	out := buf.String()
	require.Contains(t, out, "shown")
	require.Contains(t, out, "src=boxtool")
	require.Contains(t, out, "last")
	require.NotContains(t, out, "hidden")
	require.Less(t, strings.Index(out, "shown"), strings.Index(out, "last"))
}

func TestParseLevel(t *testing.T) {
	testCases := map[string]Level{
		"error":   LevelError,
		"warning": LevelWarning,
		"WARN":    LevelWarning,
		"info":    LevelInfo,
		"debug":   LevelDebug,
	}
	for s, want := range testCases {
		got, err := ParseLevel(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseLevel("verbose")
	require.ErrorIs(t, err, ErrUnknownLevel)
}
