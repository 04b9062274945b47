// Package mediainfo implements the mediafile-scan stage, which probes video
// files with ffprobe and stores their technical description.
package mediainfo

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/media/ffprobe"
	"curator/internal/stage"
)

// Scanner probes media files.
type Scanner struct {
	store  *library.Store
	prober ffprobe.Prober
	logger *slog.Logger
}

// NewScanner constructs a Scanner using the ffprobe binary on PATH.
func NewScanner(store *library.Store, binary string, logger *slog.Logger) *Scanner {
	return NewScannerWithProber(store, ffprobe.Command{Binary: binary}, logger)
}

// NewScannerWithProber allows injecting a custom prober (used in tests).
func NewScannerWithProber(store *library.Store, prober ffprobe.Prober, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		store:  store,
		prober: prober,
		logger: logging.NewComponentLogger(logger, "mediainfo"),
	}
}

// Handler returns the mediafile-scan handler.
func (s *Scanner) Handler() stage.Handler {
	return library.NewTaskHandler(s.store, stage.MediaFileScan, s.scan, s.logger).WithHealth(s.health)
}

func (s *Scanner) scan(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	id, err := library.ParseRefOf(item.Ref, library.RefMedia)
	if err != nil {
		return "", err
	}
	media, err := s.store.GetMedia(ctx, id)
	if err != nil {
		return "", err
	}
	if media == nil {
		return library.StatusMissing, nil
	}
	if _, err := os.Stat(media.Path); os.IsNotExist(err) {
		return library.StatusMissing, nil
	}

	result, err := s.prober.Probe(ctx, media.Path)
	if err != nil {
		return "", err
	}
	probedAt := time.Now().UTC()
	info := library.MediaInfo{
		DurationSeconds: result.DurationSeconds(),
		AudioCodecs:     strings.Join(result.AudioCodecs(), ","),
		Container:       result.Container(),
		SizeBytes:       result.SizeBytes(),
		ProbedAt:        &probedAt,
	}
	if video, ok := result.VideoStream(); ok {
		info.Width = video.Width
		info.Height = video.Height
		info.VideoCodec = video.CodecName
	}
	if err := s.store.UpdateMediaInfo(ctx, media.ID, info); err != nil {
		return "", err
	}

	logging.WithContext(ctx, s.logger).Debug("media probed",
		logging.Int64("media_id", media.ID),
		logging.String("video_codec", info.VideoCodec),
		logging.Int("height", info.Height),
		logging.Any("embedded_subtitles", result.SubtitleLanguages()),
	)
	return library.StatusDone, nil
}

func (s *Scanner) health(context.Context) stage.Health {
	name := string(stage.MediaFileScan)
	checker, ok := s.prober.(interface{ Available() error })
	if !ok {
		return stage.Healthy(name)
	}
	if err := checker.Available(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
