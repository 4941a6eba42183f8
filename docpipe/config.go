package docpipe

import (
	"log/slog"
	"os"
	"time"
)

// Config configures the document pipeline.
type Config struct {
	// MaxFileSize is the maximum file size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// ConverterPath is the LibreOffice binary used for .doc conversion
	// (default: "libreoffice").
	ConverterPath string `json:"converter_path" yaml:"converter_path"`

	// ConvertTimeout bounds one .doc conversion (default: 60s).
	ConvertTimeout time.Duration `json:"convert_timeout" yaml:"convert_timeout"`

	// TempDir receives converted files (default: os.TempDir()).
	TempDir string `json:"temp_dir" yaml:"temp_dir"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.ConverterPath == "" {
		c.ConverterPath = "libreoffice"
	}
	if c.ConvertTimeout <= 0 {
		c.ConvertTimeout = 60 * time.Second
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
