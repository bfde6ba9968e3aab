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

// Package log is a leveled event logger with subscribable feeds.
package log

// API inspired by zerolog https://github.com/rs/zerolog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level defines log level.
type Level uint8

// Logging constants, matching ffmpeg.
const (
	LevelError   Level = 16
	LevelWarning Level = 24
	LevelInfo    Level = 32
	LevelDebug   Level = 48
)

// ErrUnknownLevel unknown level.
var ErrUnknownLevel = errors.New("unknown log level")

// ParseLevel parses "error", "warning", "info" or "debug".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "error":
		return LevelError, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelInfo:
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}

// Event defines log event.
type Event struct {
	level Level
	time  time.Time
	src   string // Source.

	logger *Logger
}

// Log defines log entry.
type Log struct {
	Level Level
	Time  time.Time
	Msg   string
	Src   string // Source.
}

// Src sets event source.
func (e *Event) Src(source string) *Event {
	e.src = source
	return e
}

// Msg sends the *Event with msg added as the message field.
func (e *Event) Msg(msg string) {
	e.logger.feed <- Log{
		Level: e.level,
		Time:  e.time,
		Msg:   msg,
		Src:   e.src,
	}
}

// Msgf sends the event with formatted msg added as the message field.
func (e *Event) Msgf(format string, v ...interface{}) {
	e.Msg(fmt.Sprintf(format, v...))
}

type logFeed chan Log

// Logger logs.
type Logger struct {
	feed  logFeed      // feed of logs.
	sub   chan logFeed // subscribe requests.
	unsub chan logFeed // unsubscribe requests.
	done  chan struct{}

	wg *sync.WaitGroup
}

// NewLogger returns a Logger, call Start before logging.
func NewLogger(wg *sync.WaitGroup) *Logger {
	return &Logger{
		feed:  make(logFeed),
		sub:   make(chan logFeed),
		unsub: make(chan logFeed),
		done:  make(chan struct{}),
		wg:    wg,
	}
}

// Start logger.
func (l *Logger) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer close(l.done)
		subs := map[logFeed]struct{}{}
		for {
			select {
			case <-ctx.Done():
				return

			case ch := <-l.sub:
				subs[ch] = struct{}{}

			case ch := <-l.unsub:
				close(ch)
				delete(subs, ch)

			case msg := <-l.feed:
				for ch := range subs {
					ch <- msg
				}
			}
		}
	}()
}

// CancelFunc cancels log feed subsciption.
type CancelFunc func()

// Subscribe returns a new chan with log feed and a CancelFunc.
func (l *Logger) Subscribe() (<-chan Log, CancelFunc) {
	feed := make(logFeed)
	l.sub <- feed

	cancel := func() {
		l.unSubscribe(feed, nil)
	}
	return feed, cancel
}

// unSubscribe reads the feed until the unsub request is accepted
// and passes the logs that were still in flight to onLog.
func (l *Logger) unSubscribe(feed logFeed, onLog func(Log)) {
	for {
		select {
		case l.unsub <- feed:
			return
		case log := <-feed:
			if onLog != nil {
				onLog(log)
			}
		case <-l.done:
			return
		}
	}
}

// LogToWriter writes logs at or above minLevel to out until ctx is canceled.
// ready is closed once the subscription is active.
func (l *Logger) LogToWriter(ctx context.Context, out io.Writer, minLevel Level, ready chan<- struct{}) {
	feed := make(logFeed)
	l.sub <- feed
	close(ready)

	zl := zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	})
	write := func(log Log) {
		if log.Level <= minLevel {
			printLog(zl, log)
		}
	}
	for {
		select {
		case log := <-feed:
			write(log)
		case <-ctx.Done():
			l.unSubscribe(feed, write)
			return
		}
	}
}

func printLog(zl zerolog.Logger, log Log) {
	e := zl.WithLevel(log.Level.zerolog()).Time(zerolog.TimestampFieldName, log.Time)
	if log.Src != "" {
		e = e.Str("src", log.Src)
	}
	e.Msg(log.Msg)
}

func (l *Logger) newEvent(level Level) *Event {
	return &Event{
		level:  level,
		time:   time.Now(),
		logger: l,
	}
}

// Error starts a new message with error level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Error() *Event {
	return l.newEvent(LevelError)
}

// Warn starts a new message with warn level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Warn() *Event {
	return l.newEvent(LevelWarning)
}

// Info starts a new message with info level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Info() *Event {
	return l.newEvent(LevelInfo)
}

// Debug starts a new message with debug level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Debug() *Event {
	return l.newEvent(LevelDebug)
}
