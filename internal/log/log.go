// Package log emits structured logfmt records to stderr. Loggers are cached
// per part number so every record for a chunk carries its part context
// without re-threading it through call sites.
package log

import (
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

var loggerCache *cache.Cache

const defaultLoggerCacheExpiry = 6 * time.Hour

func init() {
	loggerCache = cache.New(defaultLoggerCacheExpiry, 10*time.Minute)
}

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stderr
)

// SetOutput redirects all future records to w and drops cached loggers.
// Used by tests to capture output.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
	loggerCache.Flush()
}

// AddContext permanently attaches keyvals to the part's logger. Any future
// logging for this part will include them. Set rather than Add: getLogger
// caches the bare part logger on first use, and that entry must be replaced.
func AddContext(part int, keyvals ...interface{}) {
	loggerCache.Set(cacheKey(part), kitlog.With(getLogger(part), keyvals...), defaultLoggerCacheExpiry)
}

// Log writes one record tagged with the part it concerns.
func Log(part int, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(part), "msg", message).Log(keyvals...)
}

// LogNoPart writes one record for run-level events that belong to no chunk.
func LogNoPart(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(keyvals...)
}

// LogError writes one record carrying err.
func LogError(part int, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(part), "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(keyvals...)
}

func cacheKey(part int) string {
	return strconv.Itoa(part)
}

func getLogger(part int) kitlog.Logger {
	logger, found := loggerCache.Get(cacheKey(part))
	if found {
		return logger.(kitlog.Logger)
	}

	partLogger := kitlog.With(newLogger(), "part", part)
	err := loggerCache.Add(cacheKey(part), partLogger, defaultLoggerCacheExpiry)
	if err != nil {
		_ = partLogger.Log("msg", "error adding logger to cache", "part", part)
	}
	return partLogger
}

func newLogger() kitlog.Logger {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()

	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
}
