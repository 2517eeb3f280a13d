package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI color codes
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	// Standard colors
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	Gray    = "\033[90m"

	// Bright colors
	BrightRed     = "\033[91m"
	BrightGreen   = "\033[92m"
	BrightYellow  = "\033[93m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"
	BrightWhite   = "\033[97m"
)

// ColoredLogger wraps zap.Logger with colored output
type ColoredLogger struct {
	*zap.Logger
	enableColors bool
}

// Component represents different parts of the system for color coding
type Component string

const (
	ComponentNode      Component = "NODE"
	ComponentLibP2P    Component = "LIBP2P"
	ComponentDiscovery Component = "DISCOVERY"
	ComponentChain     Component = "CHAIN"
	ComponentAnnounce  Component = "ANNOUNCE"
	ComponentCache     Component = "CACHE"
	ComponentGateway   Component = "GATEWAY"
	ComponentAnyone    Component = "ANYONE"
	ComponentGeneral   Component = "GENERAL"
)

// getComponentColor returns the color for a specific component
func getComponentColor(component Component) string {
	switch component {
	case ComponentNode:
		return BrightBlue
	case ComponentLibP2P:
		return BrightCyan
	case ComponentDiscovery:
		return BrightMagenta
	case ComponentChain:
		return BrightYellow
	case ComponentAnnounce:
		return Green
	case ComponentCache:
		return Blue
	case ComponentGateway:
		return BrightGreen
	case ComponentAnyone:
		return Cyan
	case ComponentGeneral:
		return Yellow
	default:
		return White
	}
}

// getLevelColor returns the color for a log level
func getLevelColor(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return Gray
	case zapcore.InfoLevel:
		return BrightWhite
	case zapcore.WarnLevel:
		return BrightYellow
	case zapcore.ErrorLevel:
		return BrightRed
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return Red
	default:
		return White
	}
}

// coloredConsoleEncoder creates a custom encoder with colors
func coloredConsoleEncoder(enableColors bool) zapcore.Encoder {
	config := zap.NewDevelopmentEncoderConfig()

	// Ultra-short timestamp: HH:MM:SS (no milliseconds, no date, no timezone)
	config.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		timeStr := t.Format("15:04:05")
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%s", Dim, timeStr, Reset))
		} else {
			enc.AppendString(timeStr)
		}
	}

	// Single letter level: D, I, W, E
	config.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		levelMap := map[zapcore.Level]string{
			zapcore.DebugLevel: "D",
			zapcore.InfoLevel:  "I",
			zapcore.WarnLevel:  "W",
			zapcore.ErrorLevel: "E",
		}
		levelStr := levelMap[level]
		if levelStr == "" {
			levelStr = "?"
		}
		if enableColors {
			color := getLevelColor(level)
			enc.AppendString(fmt.Sprintf("%s%s%s%s", color, Bold, levelStr, Reset))
		} else {
			enc.AppendString(levelStr)
		}
	}

	// Just filename, no line number for cleaner output
	config.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		file := caller.File
		// Extract just the filename from the path
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			file = file[idx+1:]
		}
		// Remove .go extension for even more compact format
		if strings.HasSuffix(file, ".go") {
			file = file[:len(file)-3]
		}
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%s", Dim, file, Reset))
		} else {
			enc.AppendString(file)
		}
	}

	return zapcore.NewConsoleEncoder(config)
}

// NewColoredLogger creates a new colored logger
func NewColoredLogger(component Component, enableColors bool) (*ColoredLogger, error) {
	return NewColoredLoggerWithLevel(component, enableColors, zapcore.DebugLevel)
}

// NewColoredLoggerWithLevel creates a colored logger that drops entries below level
func NewColoredLoggerWithLevel(component Component, enableColors bool, level zapcore.Level) (*ColoredLogger, error) {
	// Create encoder
	encoder := coloredConsoleEncoder(enableColors)

	// Create core
	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stdout),
		level,
	)

	// Create logger with caller information
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &ColoredLogger{
		Logger:       logger,
		enableColors: enableColors,
	}, nil
}

// ParseLevel maps a configured level name to a zap level. An empty name
// means info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Options carry the logging config section into logger construction.
type Options struct {
	Level      string // debug, info, warn, error; empty means info
	Format     string // console or json; empty means console
	OutputFile string // empty writes to stdout
	Colors     bool
}

// NewLogger builds a component logger from configured options. Colors are
// dropped for json output and when writing to a file.
func NewLogger(component Component, opts Options) (*ColoredLogger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	colors := opts.Colors && opts.Format != "json" && opts.OutputFile == ""

	var encoder zapcore.Encoder
	if opts.Format == "json" {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = coloredConsoleEncoder(colors)
	}

	sink := zapcore.AddSync(os.Stdout)
	if opts.OutputFile != "" {
		file, err := os.OpenFile(opts.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", opts.OutputFile, err)
		}
		sink = zapcore.AddSync(file)
	}

	logger := zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller(), zap.AddCallerSkip(1))
	return &ColoredLogger{
		Logger:       logger,
		enableColors: colors,
	}, nil
}

// Wrap adapts an existing zap logger, for tests and custom cores
func Wrap(logger *zap.Logger, enableColors bool) *ColoredLogger {
	return &ColoredLogger{
		Logger:       logger,
		enableColors: enableColors,
	}
}

// Component-specific logging methods
func (l *ColoredLogger) ComponentInfo(component Component, msg string, fields ...zap.Field) {
	if l.enableColors {
		color := getComponentColor(component)
		msg = fmt.Sprintf("%s[%s]%s %s", color, component, Reset, msg)
	} else {
		msg = fmt.Sprintf("[%s] %s", component, msg)
	}
	l.Info(msg, fields...)
}

func (l *ColoredLogger) ComponentWarn(component Component, msg string, fields ...zap.Field) {
	if l.enableColors {
		color := getComponentColor(component)
		msg = fmt.Sprintf("%s[%s]%s %s", color, component, Reset, msg)
	} else {
		msg = fmt.Sprintf("[%s] %s", component, msg)
	}
	l.Warn(msg, fields...)
}

func (l *ColoredLogger) ComponentError(component Component, msg string, fields ...zap.Field) {
	if l.enableColors {
		color := getComponentColor(component)
		msg = fmt.Sprintf("%s[%s]%s %s", color, component, Reset, msg)
	} else {
		msg = fmt.Sprintf("[%s] %s", component, msg)
	}
	l.Error(msg, fields...)
}

func (l *ColoredLogger) ComponentDebug(component Component, msg string, fields ...zap.Field) {
	if l.enableColors {
		color := getComponentColor(component)
		msg = fmt.Sprintf("%s[%s]%s %s", color, component, Reset, msg)
	} else {
		msg = fmt.Sprintf("[%s] %s", component, msg)
	}
	l.Debug(msg, fields...)
}

// ComponentLogger is a ColoredLogger pinned to one component so call sites
// don't repeat the component on every line.
type ComponentLogger struct {
	zl           *zap.Logger
	component    Component
	enableColors bool
}

// ForComponent returns a logger scoped to the given component.
func (l *ColoredLogger) ForComponent(component Component) *ComponentLogger {
	return &ComponentLogger{
		zl:           l.Logger,
		component:    component,
		enableColors: l.enableColors,
	}
}

func (c *ComponentLogger) prefix(msg string) string {
	if c.enableColors {
		return fmt.Sprintf("%s[%s]%s %s", getComponentColor(c.component), c.component, Reset, msg)
	}
	return fmt.Sprintf("[%s] %s", c.component, msg)
}

func (c *ComponentLogger) Info(msg string, fields ...zap.Field) {
	c.zl.Info(c.prefix(msg), fields...)
}

func (c *ComponentLogger) Warn(msg string, fields ...zap.Field) {
	c.zl.Warn(c.prefix(msg), fields...)
}

func (c *ComponentLogger) Error(msg string, fields ...zap.Field) {
	c.zl.Error(c.prefix(msg), fields...)
}

func (c *ComponentLogger) Debug(msg string, fields ...zap.Field) {
	c.zl.Debug(c.prefix(msg), fields...)
}

// Trace logs at debug level; zap has no level below debug.
func (c *ComponentLogger) Trace(msg string, fields ...zap.Field) {
	c.zl.Debug(c.prefix(msg), fields...)
}
