package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"digestbot/pkg/logger"

	"go.uber.org/zap"
)

// ErrEngineNotFound means the transcoding binary is not installed.
var ErrEngineNotFound = errors.New("transcoding engine not found")

// Format is a target audio container
type Format struct {
	Name     string
	Ext      string
	MIMEType string
	args     []string
}

var (
	FormatMP3 = Format{Name: "mp3", Ext: ".mp3", MIMEType: "audio/mpeg", args: []string{"-vn", "-c:a", "libmp3lame", "-q:a", "4"}}
	FormatWAV = Format{Name: "wav", Ext: ".wav", MIMEType: "audio/wav", args: []string{"-vn", "-c:a", "pcm_s16le"}}
	FormatOGG = Format{Name: "ogg", Ext: ".ogg", MIMEType: "audio/ogg", args: []string{"-vn", "-c:a", "libopus", "-b:a", "48k"}}
	FormatM4A = Format{Name: "m4a", Ext: ".m4a", MIMEType: "audio/mp4", args: []string{"-vn", "-c:a", "aac", "-b:a", "128k"}}
)

var formats = map[string]Format{
	FormatMP3.Name: FormatMP3,
	FormatWAV.Name: FormatWAV,
	FormatOGG.Name: FormatOGG,
	FormatM4A.Name: FormatM4A,
}

// ParseFormat resolves a format by name, case-insensitively
func ParseFormat(name string) (Format, error) {
	f, ok := formats[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Format{}, fmt.Errorf("unsupported target format %q", name)
	}
	return f, nil
}

// FFmpeg converts audio files by shelling out to the ffmpeg binary
type FFmpeg struct {
	binary   string
	lookPath func(string) (string, error)
}

func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		binary:   binary,
		lookPath: exec.LookPath,
	}
}

// Available reports whether the binary can be found
func (f *FFmpeg) Available() bool {
	_, err := f.lookPath(f.binary)
	return err == nil
}

// Convert writes src re-encoded as target next to src and returns the new
// path. On failure nothing is left behind at the output path.
func (f *FFmpeg) Convert(ctx context.Context, src string, target Format) (string, error) {
	bin, err := f.lookPath(f.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrEngineNotFound, f.binary, err)
	}

	dst := OutputPath(src, target)

	args := []string{"-y", "-loglevel", "error", "-i", src}
	args = append(args, target.args...)
	args = append(args, dst)

	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("Failed to remove partial transcoder output",
				zap.String("path", dst),
				zap.Error(rmErr))
		}
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			return "", fmt.Errorf("ffmpeg convert failed: %w", err)
		}
		return "", fmt.Errorf("ffmpeg convert failed: %w: %s", err, detail)
	}

	logger.Debug("Audio converted",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("format", target.Name))

	return dst, nil
}

// OutputPath derives the converted file's path from the source path
func OutputPath(src string, target Format) string {
	base := strings.TrimSuffix(src, filepath.Ext(src))
	return base + ".converted" + target.Ext
}
