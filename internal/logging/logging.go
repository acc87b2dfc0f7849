// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLevel is the environment variable read for the default log level.
const EnvLevel = "KUBEAGENT_LOG_LEVEL"

// InitLogging installs a text handler on stderr at the level taken from
// KUBEAGENT_LOG_LEVEL or a -log-level / --log-level argument (the argument
// wins). It returns args with the flag removed so cobra never sees it.
func InitLogging(args []string) []string {
	level, remaining := ParseLevel(os.Getenv(EnvLevel), args)
	Install(os.Stderr, level)
	return remaining
}

// Install makes a text handler writing to w the default logger.
func Install(w io.Writer, level slog.Level) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// ParseLevel resolves the effective level from envValue and args and strips
// the level flag from args.
func ParseLevel(envValue string, args []string) (slog.Level, []string) {
	levelStr := envValue
	if levelStr == "" {
		levelStr = "info"
	}

	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if v, ok := cutFlag(arg); ok {
			levelStr = v
			continue
		}
		if arg == "-log-level" || arg == "--log-level" {
			if i+1 < len(args) {
				levelStr = args[i+1]
				i++
			}
			continue
		}

		remaining = append(remaining, arg)
	}

	return levelFor(levelStr), remaining
}

func cutFlag(arg string) (string, bool) {
	for _, prefix := range []string{"--log-level=", "-log-level="} {
		if v, ok := strings.CutPrefix(arg, prefix); ok {
			return v, true
		}
	}
	return "", false
}

func levelFor(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate shortens s to at most n runes for log output.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
