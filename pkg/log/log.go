// Package log provides leveled logging for mailpipe.
//
// Time/date are not logged by default because systemd adds them for us
// (override with SetLogDate). Uses syslog-style priority prefixes:
// https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]    "
	InfoPrefix  string = "<6>[INFO]     "
	WarnPrefix  string = "<4>[WARNING]  "
	ErrPrefix   string = "<3>[ERROR]    "
)

var (
	DebugLog *log.Logger = log.New(DebugWriter, DebugPrefix, 0)
	InfoLog  *log.Logger = log.New(InfoWriter, InfoPrefix, 0)
	WarnLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	ErrLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.Llongfile)

	DebugTimeLog *log.Logger = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	InfoTimeLog  *log.Logger = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	WarnTimeLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.LstdFlags|log.Lshortfile)
	ErrTimeLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Llongfile)
)

var logDateTime bool

// SetLogDate toggles whether timestamps are included in log lines.
func SetLogDate(withDate bool) {
	logDateTime = withDate
}

func Debug(v ...any) {
	if logDateTime {
		DebugTimeLog.Println(v...)
		return
	}
	DebugLog.Println(v...)
}

func Debugf(format string, v ...any) {
	if logDateTime {
		DebugTimeLog.Printf(format, v...)
		return
	}
	DebugLog.Printf(format, v...)
}

func Info(v ...any) {
	if logDateTime {
		InfoTimeLog.Println(v...)
		return
	}
	InfoLog.Println(v...)
}

func Infof(format string, v ...any) {
	if logDateTime {
		InfoTimeLog.Printf(format, v...)
		return
	}
	InfoLog.Printf(format, v...)
}

func Warn(v ...any) {
	if logDateTime {
		WarnTimeLog.Println(v...)
		return
	}
	WarnLog.Println(v...)
}

func Warnf(format string, v ...any) {
	if logDateTime {
		WarnTimeLog.Printf(format, v...)
		return
	}
	WarnLog.Printf(format, v...)
}

func Error(v ...any) {
	if logDateTime {
		ErrTimeLog.Println(v...)
		return
	}
	ErrLog.Println(v...)
}

func Errorf(format string, v ...any) {
	if logDateTime {
		ErrTimeLog.Printf(format, v...)
		return
	}
	ErrLog.Printf(format, v...)
}

// Abortf logs a critical error and exits the process. Used for fatal
// configuration errors at startup (missing model host, bad credentials).
func Abortf(format string, v ...any) {
	ErrLog.Printf(format, v...)
	os.Exit(1)
}

// Fatal logs and exits. Kept for call sites that only have an error value.
func Fatal(v ...any) {
	ErrLog.Println(v...)
	os.Exit(1)
}

func Print(v ...any) {
	fmt.Fprintln(InfoWriter, v...)
}
