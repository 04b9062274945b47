package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"curator/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"`
	Duration  string            `json:"duration"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Channels  int               `json:"channels"`
	Tags      map[string]string `json:"tags"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Prober inspects media files.
type Prober interface {
	Probe(ctx context.Context, path string) (Result, error)
}

// Command runs the ffprobe binary.
type Command struct {
	Binary string
}

// Probe executes ffprobe against path.
func (c Command) Probe(ctx context.Context, path string) (Result, error) {
	return Inspect(ctx, c.Binary, path)
}

// Available reports whether the configured binary can be found on PATH.
func (c Command) Available() error {
	binary := strings.TrimSpace(c.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return services.Wrap(services.ErrConfiguration, "ffprobe", "lookup", binary+" not found", err)
	}
	return nil
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "inspect", detail, err)
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStream returns the first video stream, skipping attached cover art.
func (r Result) VideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") && !isCoverArt(stream) {
			return stream, true
		}
	}
	return Stream{}, false
}

// AudioCodecs returns the distinct audio codec names in stream order.
func (r Result) AudioCodecs() []string {
	seen := make(map[string]bool)
	var codecs []string
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") || stream.CodecName == "" {
			continue
		}
		if seen[stream.CodecName] {
			continue
		}
		seen[stream.CodecName] = true
		codecs = append(codecs, stream.CodecName)
	}
	return codecs
}

// SubtitleLanguages returns the sorted language tags of embedded subtitle streams.
func (r Result) SubtitleLanguages() []string {
	seen := make(map[string]bool)
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "subtitle") {
			continue
		}
		if lang := strings.TrimSpace(stream.Tags["language"]); lang != "" {
			seen[strings.ToLower(lang)] = true
		}
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Container returns the primary container name reported by ffprobe.
func (r Result) Container() string {
	name, _, _ := strings.Cut(r.Format.FormatName, ",")
	return name
}

// DurationSeconds returns the container duration in seconds, falling back to
// the video stream. It returns 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	if stream, ok := r.VideoStream(); ok {
		if d := parseFloat(stream.Duration); d > 0 {
			return d
		}
	}
	return 0
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if size <= 0 {
		return 0
	}
	return int64(size)
}

func isCoverArt(stream Stream) bool {
	switch strings.ToLower(stream.CodecName) {
	case "mjpeg", "png", "bmp":
		return true
	}
	return false
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}
