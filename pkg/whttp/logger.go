package whttp

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

var _ retryablehttp.LeveledLogger = LogrusLogger{}

// LogrusLogger adapts a logrus logger to retryablehttp's leveled logger.
// Retry chatter is demoted to debug.
type LogrusLogger struct {
	L *logrus.Logger
}

func (l LogrusLogger) Error(msg string, kv ...interface{}) { l.entry(kv).Debug(msg) }
func (l LogrusLogger) Warn(msg string, kv ...interface{})  { l.entry(kv).Debug(msg) }
func (l LogrusLogger) Info(msg string, kv ...interface{})  { l.entry(kv).Debug(msg) }
func (l LogrusLogger) Debug(msg string, kv ...interface{}) { l.entry(kv).Debug(msg) }

func (l LogrusLogger) entry(kv []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[strings.TrimSpace(fmt.Sprint(kv[i]))] = kv[i+1]
	}
	return l.L.WithFields(fields)
}
