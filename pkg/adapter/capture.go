package adapter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/sightline/pkg/model"
)

// Source produces screen captures. Actual screen grabbing is a platform
// concern handled outside this module; the CLI ships a file-backed source
// and tests use static ones.
type Source interface {
	Capture(ctx context.Context) (*model.Capture, error)
}

// FileSource reads a prepared screenshot from disk on every capture.
type FileSource struct {
	path   string
	window model.WindowContext
}

// NewFileSource creates a source that returns the image at path together
// with the given window context.
func NewFileSource(path string, window model.WindowContext) *FileSource {
	return &FileSource{path: path, window: window}
}

func (x *FileSource) Capture(ctx context.Context) (*model.Capture, error) {
	if x.path == "" {
		return nil, goerr.New("no screenshot path configured")
	}

	data, err := os.ReadFile(x.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read screenshot", goerr.V("path", x.path))
	}

	return &model.Capture{
		Image:    data,
		MIMEType: mimeTypeByExt(x.path),
		Window:   x.window,
	}, nil
}

func mimeTypeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// StaticSource returns a fixed capture. It exists for tests and for callers
// that already hold an image in memory.
type StaticSource struct {
	Capt *model.Capture
}

func (x *StaticSource) Capture(ctx context.Context) (*model.Capture, error) {
	if x.Capt == nil {
		return nil, goerr.New("no capture available")
	}
	return x.Capt, nil
}
