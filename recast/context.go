package recast

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// / Recast log categories.
type RcLogCategory int

const (
	RC_LOG_PROGRESS RcLogCategory = iota + 1 ///< A progress log entry.
	RC_LOG_WARNING                           ///< A warning log entry.
	RC_LOG_ERROR                             ///< An error log entry.
)

func (c RcLogCategory) String() string {
	switch c {
	case RC_LOG_PROGRESS:
		return "progress"
	case RC_LOG_WARNING:
		return "warning"
	case RC_LOG_ERROR:
		return "error"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// / Recast performance timer categories.
type RcTimerLabel int

const (
	RC_TIMER_TOTAL RcTimerLabel = iota
	RC_TIMER_RASTERIZE_TRIANGLES
	RC_TIMER_FILTER_LOW_OBSTACLES
	RC_TIMER_FILTER_BORDER
	RC_TIMER_FILTER_WALKABLE
	RC_TIMER_FILL_NULL_SPANS
	RC_TIMER_BUILD_COMPACTHEIGHTFIELD
	RC_TIMER_ERODE_AREA
	RC_TIMER_CLOSED_SPACE
	RC_TIMER_FILL_WATER
	RC_TIMER_EXPORT
	RC_MAX_TIMERS
)

var timerNames = [RC_MAX_TIMERS]string{
	"total", "rasterize", "filter_low_obstacles", "filter_border", "filter_walkable",
	"fill_null_spans", "build_compact", "erode", "closed_space", "fill_water", "export",
}

func (l RcTimerLabel) String() string {
	if l < 0 || l >= RC_MAX_TIMERS {
		return fmt.Sprintf("timer(%d)", int(l))
	}
	return timerNames[l]
}

// LogMessage is one entry of the severity tagged log channel.
type LogMessage struct {
	Category RcLogCategory
	Text     string
}

// BuildContext carries the severity tagged log channel and the stage timers
// of one build. Logging is safe from several goroutines, timers are not.
type BuildContext struct {
	log *zap.Logger

	mu       sync.Mutex
	messages []LogMessage

	start [RC_MAX_TIMERS]time.Time
	accum [RC_MAX_TIMERS]time.Duration
}

func NewBuildContext(log *zap.Logger) *BuildContext {
	if log == nil {
		log = zap.NewNop()
	}
	return &BuildContext{log: log}
}

func (ctx *BuildContext) Logger() *zap.Logger {
	return ctx.log
}

func (ctx *BuildContext) Log(category RcLogCategory, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	ctx.mu.Lock()
	ctx.messages = append(ctx.messages, LogMessage{Category: category, Text: msg})
	ctx.mu.Unlock()
	switch category {
	case RC_LOG_WARNING:
		ctx.log.Warn(msg)
	case RC_LOG_ERROR:
		ctx.log.Error(msg)
	default:
		ctx.log.Info(msg)
	}
}

func (ctx *BuildContext) Progressf(format string, args ...any) {
	ctx.Log(RC_LOG_PROGRESS, format, args...)
}

func (ctx *BuildContext) Warnf(format string, args ...any) {
	ctx.Log(RC_LOG_WARNING, format, args...)
}

func (ctx *BuildContext) Errorf(format string, args ...any) {
	ctx.Log(RC_LOG_ERROR, format, args...)
}

// Messages returns a copy of every entry logged so far.
func (ctx *BuildContext) Messages() []LogMessage {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return append([]LogMessage(nil), ctx.messages...)
}

// Count returns how many entries of the category were logged.
func (ctx *BuildContext) Count(category RcLogCategory) int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	n := 0
	for _, m := range ctx.messages {
		if m.Category == category {
			n++
		}
	}
	return n
}

func (ctx *BuildContext) ResetLog() {
	ctx.mu.Lock()
	ctx.messages = nil
	ctx.mu.Unlock()
}

func (ctx *BuildContext) StartTimer(label RcTimerLabel) {
	ctx.start[label] = time.Now()
}

func (ctx *BuildContext) StopTimer(label RcTimerLabel) {
	if ctx.start[label].IsZero() {
		return
	}
	ctx.accum[label] += time.Since(ctx.start[label])
	ctx.start[label] = time.Time{}
}

func (ctx *BuildContext) ResetTimers() {
	ctx.start = [RC_MAX_TIMERS]time.Time{}
	ctx.accum = [RC_MAX_TIMERS]time.Duration{}
}

func (ctx *BuildContext) AccumulatedTime(label RcTimerLabel) time.Duration {
	return ctx.accum[label]
}

// TimerFields renders every non-zero timer as zap fields.
func (ctx *BuildContext) TimerFields() []zap.Field {
	var fields []zap.Field
	for l := RcTimerLabel(0); l < RC_MAX_TIMERS; l++ {
		if ctx.accum[l] > 0 {
			fields = append(fields, zap.Duration(l.String(), ctx.accum[l]))
		}
	}
	return fields
}
