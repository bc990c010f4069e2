package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// LibraryLogger receives paho's internal diagnostics.
type LibraryLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// pahoLogger adapts a leveled log function to paho's Println/Printf logger.
type pahoLogger struct {
	log func(msg string, args ...any)
}

func (p pahoLogger) Println(v ...interface{}) {
	p.log(strings.TrimSpace(fmt.Sprintln(v...)), "source", "paho")
}

func (p pahoLogger) Printf(format string, v ...interface{}) {
	p.log(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "paho")
}

// BridgeLibraryLogs routes paho's package-level loggers into logger.
//
// paho's loggers are process-wide, so this affects every client.
// Debug output is only wired when debug is true; it is very chatty.
func BridgeLibraryLogs(logger LibraryLogger, debug bool) {
	pahomqtt.ERROR = pahoLogger{log: logger.Error}
	pahomqtt.CRITICAL = pahoLogger{log: logger.Error}
	pahomqtt.WARN = pahoLogger{log: logger.Warn}
	if debug {
		pahomqtt.DEBUG = pahoLogger{log: logger.Debug}
	} else {
		pahomqtt.DEBUG = pahomqtt.NOOPLogger{}
	}
}
