package logs

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/btcsuite/btclog"
)

// 子系统标签
const (
	SubsystemNode       = "NODE"
	SubsystemSigner     = "FRST"
	SubsystemAggregator = "AGGR"
	SubsystemSession    = "SESS"
	SubsystemNetwork    = "NETW"
	SubsystemHasher     = "HASH"
)

var (
	backend = btclog.NewBackend(os.Stdout)

	mu         sync.RWMutex
	logLevel   = btclog.LevelInfo // 全局日志级别
	subsystems = make(map[string]btclog.Logger)

	// 包级别默认 Logger
	logger = NewSubsystem(SubsystemNode)
)

// NewSubsystem 返回某个子系统的 Logger，同一标签复用同一实例
func NewSubsystem(tag string) btclog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := subsystems[tag]; ok {
		return l
	}
	l := backend.Logger(tag)
	l.SetLevel(logLevel)
	subsystems[tag] = l
	return l
}

// SetLevel 设置所有子系统的级别：trace|debug|info|warn|error|critical|off
func SetLevel(level string) error {
	lvl, ok := btclog.LevelFromString(strings.ToLower(strings.TrimSpace(level)))
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	mu.Lock()
	defer mu.Unlock()
	logLevel = lvl
	for _, l := range subsystems {
		l.SetLevel(lvl)
	}
	return nil
}

// Level 当前全局级别
func Level() string {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel.String()
}

// 包级别的日志方法
func Trace(format string, v ...interface{}) {
	logger.Tracef(format, v...)
}

func Debug(format string, v ...interface{}) {
	logger.Debugf(format, v...)
}

func Info(format string, v ...interface{}) {
	logger.Infof(format, v...)
}

func Warn(format string, v ...interface{}) {
	logger.Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	logger.Errorf(format, v...)
}
