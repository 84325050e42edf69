package logging

import (
	"os"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/varunkm/corda/config"
)

var (
	mu       sync.Mutex
	managers = make(map[string]*LogManager)

	NodeComponent = "node"
	FlowComponent = "flows"
	APIComponent  = "api"

	// Messages may carry simple color markup (e.g. "<green>"),
	// which is stripped before the record is emitted.
	tag_regex = regexp.MustCompile(`<[^>]*?>`)
)

type LogManager struct {
	contexts map[string]*LogContext
	logger   *logrus.Logger
}

// A LogContext is a logger scoped to one component of the node.
type LogContext struct {
	entry *logrus.Entry
}

func (self *LogContext) Debug(format string, args ...interface{}) {
	self.entry.Debugf(clean(format), args...)
}

func (self *LogContext) Info(format string, args ...interface{}) {
	self.entry.Infof(clean(format), args...)
}

func (self *LogContext) Warn(format string, args ...interface{}) {
	self.entry.Warnf(clean(format), args...)
}

func (self *LogContext) Error(format string, args ...interface{}) {
	self.entry.Errorf(clean(format), args...)
}

func clean(format string) string {
	return tag_regex.ReplaceAllString(format, "")
}

// GetLogger returns the cached logger for the component. Loggers are
// keyed by the node's party name so tests can run several nodes in
// one process without mixing up their output.
func GetLogger(config_obj *config.Config, component *string) *LogContext {
	mu.Lock()
	defer mu.Unlock()

	manager, pres := managers[config_obj.PartyName]
	if !pres {
		manager = makeLogManager(config_obj)
		managers[config_obj.PartyName] = manager
	}

	context, pres := manager.contexts[*component]
	if !pres {
		context = &LogContext{
			entry: manager.logger.WithFields(logrus.Fields{
				"component": *component,
				"node":      config_obj.PartyName,
			}),
		}
		manager.contexts[*component] = context
	}

	return context
}

func makeLogManager(config_obj *config.Config) *LogManager {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})

	logger.Out = os.Stderr
	if config_obj.Logging != nil {
		if config_obj.Logging.File != "" {
			fd, err := os.OpenFile(config_obj.Logging.File,
				os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
			if err == nil {
				logger.Out = fd
			}
		}

		if config_obj.Logging.Verbose {
			logger.SetLevel(logrus.DebugLevel)
		}
	}

	return &LogManager{
		contexts: make(map[string]*LogContext),
		logger:   logger,
	}
}
