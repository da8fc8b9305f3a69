package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "tags": {"language": "eng"}},
    {"index": 2, "codec_name": "subrip", "codec_type": "subtitle", "tags": {"language": "eng", "title": "English"}},
    {"index": 3, "codec_name": "hdmv_pgs_subtitle", "codec_type": "subtitle", "tags": {"LANGUAGE": "ger"}},
    {"index": 4, "codec_name": "subrip", "codec_type": "subtitle"}
  ]
}`

func TestParseJSON(t *testing.T) {
	streams, err := ParseJSON([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(streams) != 5 {
		t.Fatalf("expected 5 streams, got %d", len(streams))
	}
	if streams[2].Type != TypeSubtitle || streams[2].Language != "eng" || streams[2].Codec != "subrip" {
		t.Fatalf("stream 2 = %+v", streams[2])
	}
	if streams[3].Language != "ger" {
		t.Fatalf("upper-case tag key should be read, got %+v", streams[3])
	}
	if streams[4].Language != "" {
		t.Fatalf("untagged stream should have empty language, got %q", streams[4].Language)
	}
}

func TestParseJSON_Invalid(t *testing.T) {
	if _, err := ParseJSON([]byte("not json")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestProber_StreamsUsesRunner(t *testing.T) {
	var gotName string
	var gotArgs []string
	p := New("/opt/ffprobe").WithCommandOutput(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return []byte(sampleJSON), nil
	})
	streams, err := p.Streams(context.Background(), "/media/a.mkv")
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	if len(streams) != 5 {
		t.Fatalf("expected 5 streams, got %d", len(streams))
	}
	if gotName != "/opt/ffprobe" {
		t.Fatalf("binary = %q", gotName)
	}
	if gotArgs[len(gotArgs)-1] != "/media/a.mkv" || gotArgs[len(gotArgs)-2] != "--" {
		t.Fatalf("path should follow --, args = %v", gotArgs)
	}
}

func TestProber_StreamsErrors(t *testing.T) {
	p := New("").WithCommandOutput(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1: Invalid data found")
	})
	if _, err := p.Streams(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	_, err := p.Streams(context.Background(), "/media/broken.mkv")
	if err == nil || !strings.Contains(err.Error(), "broken.mkv") {
		t.Fatalf("expected wrapped error naming the file, got %v", err)
	}
}
