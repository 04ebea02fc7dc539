// Package logging wires slog (console, file and the OTel bridge) and the
// zerolog adapters used by the dispatcher, database and influx managers.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

const sessionStamp = "20060102_150405"

// LogFilePath returns the log file of a session: <dir>/<app>.<stamp>.log.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return SessionFilePath(logsDir, appName, sessionStart, ".log")
}

// SessionFilePath returns <dir>/<name>.<stamp><ext>, the naming shared by
// the log file and the influx backup file of a session.
func SessionFilePath(dir, name string, sessionStart time.Time, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s%s", name, sessionStart.Format(sessionStamp), ext))
}
