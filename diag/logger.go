package diag

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures NewLogger.
type Options struct {
	// Verbose lowers the console level to debug.
	Verbose bool
	// Dir holds error_log.txt. Empty disables the file core.
	Dir string
	// MaxBytes is the rotation threshold; <= 0 selects DefaultMaxLogBytes.
	MaxBytes int64
	// Console receives human-readable output; nil selects os.Stderr.
	Console io.Writer
}

// NewLogger builds a console core tee'd with a JSON core that writes
// warnings and errors to the rotating error log. The returned file is nil
// when Dir is empty.
func NewLogger(opts Options) (*zap.Logger, *RotatingFile) {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(console), level),
	}

	var file *RotatingFile
	if opts.Dir != "" {
		file = NewRotatingFile(opts.Dir, opts.MaxBytes)
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), file, zapcore.WarnLevel))
	}

	return zap.New(zapcore.NewTee(cores...)), file
}
