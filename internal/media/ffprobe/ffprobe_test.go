package ffprobe

import (
	"reflect"
	"testing"
)

const sampleOutput = `{
  "streams": [
    {"index": 0, "codec_name": "hevc", "codec_type": "video", "width": 3840, "height": 2160},
    {"index": 1, "codec_name": "eac3", "codec_type": "audio", "channels": 6},
    {"index": 2, "codec_name": "aac", "codec_type": "audio", "channels": 2},
    {"index": 3, "codec_name": "eac3", "codec_type": "audio", "channels": 6},
    {"index": 4, "codec_name": "subrip", "codec_type": "subtitle", "tags": {"language": "ENG"}},
    {"index": 5, "codec_name": "subrip", "codec_type": "subtitle", "tags": {"language": "fre"}},
    {"index": 6, "codec_name": "mjpeg", "codec_type": "video", "width": 600, "height": 900}
  ],
  "format": {"format_name": "matroska,webm", "duration": "7265.120000", "size": "4096"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleOutput))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	video, ok := result.VideoStream()
	if !ok || video.CodecName != "hevc" || video.Width != 3840 {
		t.Fatalf("unexpected video stream: %+v", video)
	}
	if got := result.AudioCodecs(); !reflect.DeepEqual(got, []string{"eac3", "aac"}) {
		t.Fatalf("unexpected audio codecs: %v", got)
	}
	if got := result.SubtitleLanguages(); !reflect.DeepEqual(got, []string{"eng", "fre"}) {
		t.Fatalf("unexpected subtitle languages: %v", got)
	}
	if result.Container() != "matroska" {
		t.Fatalf("unexpected container %q", result.Container())
	}
	if result.DurationSeconds() != 7265.12 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 4096 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", CodecName: "h264", Duration: "12.5"}},
		Format:  Format{Duration: "bad", Size: "-1"},
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("expected stream duration fallback, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
