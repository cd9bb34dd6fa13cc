package mux

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/ytget/ytfetch/errs"
	"github.com/ytget/ytfetch/internal/logger"
)

type fakeRunner struct {
	code  int
	err   error
	name  string
	args  []string
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) (int, error) {
	f.calls++
	f.name = name
	f.args = args
	_, _ = io.WriteString(stderr, "frame=1\nInvalid data found when processing input\n")
	return f.code, f.err
}

func TestArgs(t *testing.T) {
	got := Args("v.mp4", "a.mp4", "out/Title.mp4")
	want := []string{"-i", "v.mp4", "-i", "a.mp4", "-c:v", "copy", "-c:a", "aac", "-strict", "experimental", "out/Title.mp4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestMux_Success(t *testing.T) {
	r := &fakeRunner{}
	m := &Muxer{Command: "ffmpeg", Runner: r, Log: logger.Discard(logger.ComponentMux)}

	res, err := m.Mux(context.Background(), "v.mp4", "a.mp4", "o.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 || res.Output != "o.mp4" {
		t.Fatalf("unexpected result %+v", res)
	}
	if r.name != "ffmpeg" || r.calls != 1 {
		t.Fatalf("runner called with %q (%d calls)", r.name, r.calls)
	}
}

func TestMux_FailureIsWarningByDefault(t *testing.T) {
	r := &fakeRunner{code: 1, err: errors.New("exit status 1")}
	m := &Muxer{Runner: r, Log: logger.Discard(logger.ComponentMux)}

	res, err := m.Mux(context.Background(), "v.mp4", "a.mp4", "o.mp4")
	if err != nil {
		t.Fatalf("non-strict mux must not fail, got %v", err)
	}
	if res.ExitCode != 1 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
	if r.name != DefaultCommand {
		t.Fatalf("default command not used: %q", r.name)
	}
}

func TestMux_StrictFails(t *testing.T) {
	r := &fakeRunner{code: 1, err: errors.New("exit status 1")}
	m := &Muxer{Command: "ffmpeg", Strict: true, Runner: r, Log: logger.Discard(logger.ComponentMux)}

	_, err := m.Mux(context.Background(), "v.mp4", "a.mp4", "o.mp4")
	if !errors.Is(err, errs.ErrMuxFailed) {
		t.Fatalf("want ErrMuxFailed, got %v", err)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	code, err := ExecRunner{}.Run(context.Background(), "ytfetch-no-such-muxer", nil, io.Discard, io.Discard)
	if err == nil || code != -1 {
		t.Fatalf("want start failure, got code=%d err=%v", code, err)
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine([]byte("a\nb\nlast line\n")); got != "last line" {
		t.Fatalf("got %q", got)
	}
	if got := lastLine(nil); got != "" {
		t.Fatalf("got %q", got)
	}
}
