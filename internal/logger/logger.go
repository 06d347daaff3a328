package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps LOG_LEVEL values to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes category-tagged lines such as
// "2026-10-19 10:00:00 [INFO] [PAYMENT] message".
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
	exit  func(int)

	debugColor   *color.Color
	infoColor    *color.Color
	warnColor    *color.Color
	errorColor   *color.Color
	processColor *color.Color
	dbColor      *color.Color
	kafkaColor   *color.Color
	apiColor     *color.Color
	secColor     *color.Color
	payColor     *color.Color
	domainColor  *color.Color
}

func NewLogger() *Logger {
	return New(os.Stdout, ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_COLOR") != "false")
}

func New(out io.Writer, level Level, colored bool) *Logger {
	l := &Logger{
		out:          out,
		level:        level,
		exit:         os.Exit,
		debugColor:   color.New(color.FgHiBlack),
		infoColor:    color.New(color.FgGreen),
		warnColor:    color.New(color.FgYellow),
		errorColor:   color.New(color.FgRed, color.Bold),
		processColor: color.New(color.FgCyan),
		dbColor:      color.New(color.FgBlue),
		kafkaColor:   color.New(color.FgMagenta),
		apiColor:     color.New(color.FgHiCyan),
		secColor:     color.New(color.FgHiRed),
		payColor:     color.New(color.FgHiGreen),
		domainColor:  color.New(color.FgHiBlue),
	}
	for _, c := range []*color.Color{l.debugColor, l.infoColor, l.warnColor, l.errorColor, l.processColor,
		l.dbColor, l.kafkaColor, l.apiColor, l.secColor, l.payColor, l.domainColor} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return l
}

// NewDiscard returns a logger that drops everything, for tests.
func NewDiscard() *Logger {
	return New(io.Discard, LevelError+1, false)
}

func (l *Logger) write(level Level, c *color.Color, tag, category, message string) {
	if level < l.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	line := c.Sprintf("[%s] [%s]", tag, category)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s %s\n", ts, line, message)
}

func (l *Logger) Debug(category, message string) {
	l.write(LevelDebug, l.debugColor, "DEBUG", category, message)
}

func (l *Logger) Info(category, message string) {
	l.write(LevelInfo, l.infoColor, "INFO", category, message)
}

func (l *Logger) Warn(category, message string) {
	l.write(LevelWarn, l.warnColor, "WARN", category, message)
}

func (l *Logger) Error(category, message string) {
	l.write(LevelError, l.errorColor, "ERROR", category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.write(LevelError, l.errorColor, "FATAL", category, message)
	l.exit(1)
}

func (l *Logger) LogProcess(category, message string) {
	l.write(LevelInfo, l.processColor, "PROCESS", category, message)
}

func (l *Logger) LogDatabase(operation, database, message string) {
	l.write(LevelDebug, l.dbColor, "DB", operation, database+": "+message)
}

func (l *Logger) LogKafka(operation, topic, message string) {
	l.write(LevelInfo, l.kafkaColor, "KAFKA", operation, topic+": "+message)
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.write(LevelInfo, l.apiColor, "API", method, fmt.Sprintf("%s %s (%s)", path, status, duration))
}

func (l *Logger) LogSecurity(event, message string) {
	l.write(LevelWarn, l.secColor, "SECURITY", event, message)
}

func (l *Logger) LogPayment(operation, paymentID, message string) {
	l.write(LevelInfo, l.payColor, "PAYMENT", operation, paymentID+": "+message)
}

func (l *Logger) LogSession(operation, sessionID, message string) {
	l.write(LevelInfo, l.domainColor, "SESSION", operation, sessionID+": "+message)
}

func (l *Logger) LogOrder(operation, orderID, message string) {
	l.write(LevelInfo, l.domainColor, "ORDER", operation, orderID+": "+message)
}

func (l *Logger) LogSync(job, message string) {
	l.write(LevelInfo, l.processColor, "SYNC", job, message)
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.out.(*os.File); ok {
		_ = f.Sync()
	}
}
