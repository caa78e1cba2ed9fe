package mqtt

import (
	"fmt"
	"strings"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
)

// pahoLogger adapts the bridge logger to paho's Println/Printf logger.
type pahoLogger struct {
	l     log.Logger
	error bool
}

func (p pahoLogger) Println(v ...any) {
	p.emit(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p pahoLogger) Printf(format string, v ...any) {
	p.emit(fmt.Sprintf(format, v...))
}

func (p pahoLogger) emit(msg string) {
	if p.error {
		p.l.Warn(msg)
		return
	}
	p.l.Debug(msg)
}
