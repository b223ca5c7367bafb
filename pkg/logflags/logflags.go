package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

var evaluator = false
var memory = false
var symbols = false
var session = false
var target = false

var logOut io.WriteCloser

// Evaluator returns true if the expression evaluator should log.
func Evaluator() bool {
	return evaluator
}

// EvaluatorLogger returns a logger for the expression evaluator.
func EvaluatorLogger() Logger {
	return makeLogger(evaluator, Fields{"layer": "eval"})
}

// Memory returns true if the memory view should log cache and fault events.
func Memory() bool {
	return memory
}

// MemoryLogger returns a logger for the memory view.
func MemoryLogger() Logger {
	return makeLogger(memory, Fields{"layer": "memory"})
}

// Symbols returns true if the symbol resolver should log.
func Symbols() bool {
	return symbols
}

// SymbolsLogger returns a logger for the symbol resolver.
func SymbolsLogger() Logger {
	return makeLogger(symbols, Fields{"layer": "symbols"})
}

// Session returns true if evaluation sessions should log state transitions.
func Session() bool {
	return session
}

// SessionLogger returns a logger for evaluation sessions.
func SessionLogger() Logger {
	return makeLogger(session, Fields{"layer": "session"})
}

// Target returns true if target level events (resume, step, writes) should be logged.
func Target() bool {
	return target
}

// TargetLogger returns a logger for target level events.
func TargetLogger() Logger {
	return makeLogger(target, Fields{"layer": "target"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets debugger flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		out, err := openDest(logDest)
		if err != nil {
			// Keep logging to stderr, the destination is not essential.
			fmt.Fprintf(os.Stderr, "could not open log destination %q: %v\n", logDest, err)
		} else {
			logOut = out
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if logOut != nil {
		log.SetOutput(logOut)
	}
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "eval"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "eval", "evaluator":
			evaluator = true
		case "memory":
			memory = true
		case "symbols":
			symbols = true
		case "session":
			session = true
		case "target":
			target = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'dlveval help log' for usage.\n", logcmd)
		}
	}
	return nil
}

// openDest opens a log destination given either as the number of an
// inherited file descriptor or as a file path.
func openDest(logDest string) (io.WriteCloser, error) {
	if fd, err := strconv.Atoi(logDest); err == nil {
		if fd < 0 {
			return nil, fmt.Errorf("invalid file descriptor %d", fd)
		}
		f := os.NewFile(uintptr(fd), "log-dest-fd-"+logDest)
		if f == nil {
			return nil, fmt.Errorf("invalid file descriptor %d", fd)
		}
		return f, nil
	}
	return os.Create(logDest)
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
		logOut = nil
	}
}
