// Command weave rewrites the intercepted methods of an il module.
//
//	weave <source> <destination>
//
// Configuration is read from $WEAVE_CONFIG or weave.toml next to the source
// module. On failure nothing is written at the destination.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/weave/weaver"
)

const usage = "Usage: weave <source> <destination>"

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	src, dst := args[0], args[1]

	fc, err := weaver.LoadConfig(filepath.Dir(src))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log := newLogger(fc, stderr)
	defer log.Sync()

	cfg := fc.Config()
	cfg.Logger = log
	report, err := weaver.ProcessFile(src, dst, cfg)
	if err != nil {
		log.Error("weave failed", zap.String("source", src), zap.Error(err))
		return 1
	}
	log.Info("wrote module",
		zap.String("destination", dst),
		zap.Int("methods", len(report.Methods)),
		zap.Stringer("mvid", report.MVID))
	return 0
}

// newLogger builds the command logger. The auto format uses the console
// encoder when w is a terminal and JSON otherwise.
func newLogger(fc *weaver.FileConfig, w io.Writer) *zap.Logger {
	format := fc.Log.Format
	if format == "" || format == weaver.LogFormatAuto {
		format = weaver.LogFormatJSON
		if f, ok := w.(interface{ Fd() uintptr }); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			format = weaver.LogFormatConsole
		}
	}

	var enc zapcore.Encoder
	if format == weaver.LogFormatConsole {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	} else {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), fc.Level()))
}
