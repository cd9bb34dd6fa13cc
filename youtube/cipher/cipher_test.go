package cipher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ytget/ytfetch/errs"
)

const (
	playerURL = "https://www.youtube.com/s/player/abc/base.js"

	// Minified-style player: helper object, signature function, n function
	// reached through an array, and a caller wiring n into the URL.
	extractablePlayer = `var Xy={rv:function(a){a.reverse()},sp:function(a,b){a.splice(0,b)},sw:function(a,b){var c=a[0];a[0]=a[b%a.length];a[b%a.length]=c}};
var other=1;Zz=function(a){a=a.split("");Xy.rv(a,1);Xy.sp(a,2);Xy.sw(a,3);return a.join("")};
var Nq=[Mn];Mn=function(a){var b=a.split("");b.reverse();return b.join("")+"_"+"}"};
function use(a,c){var b;(c=a.get("n"))&&(b=Nq[0](c),a.set("n",b));}`

	// Player exposing plain global functions only.
	globalPlayer = `function decipher(a){return a.split("").reverse().join("")}
function ncode(n){return n+"!"}`
)

type fakeGetter struct {
	bodies map[string]string
	calls  map[string]int
}

func newFakeGetter(bodies map[string]string) *fakeGetter {
	return &fakeGetter{bodies: bodies, calls: make(map[string]int)}
}

func (f *fakeGetter) GetBody(ctx context.Context, rawURL string) ([]byte, error) {
	f.calls[rawURL]++
	b, ok := f.bodies[rawURL]
	if !ok {
		return nil, fmt.Errorf("GET %s: HTTP status 404", rawURL)
	}
	return []byte(b), nil
}

func TestDecipher_ExtractedFunctions(t *testing.T) {
	g := newFakeGetter(map[string]string{playerURL: extractablePlayer})
	r := New(g)

	got, err := r.Decipher(context.Background(), playerURL, "abcdefgh")
	if err != nil {
		t.Fatalf("Decipher: %v", err)
	}
	// reverse -> hgfedcba, splice(0,2) -> fedcba, swap(0,3) -> cedfba
	if got != "cedfba" {
		t.Errorf("Decipher = %q, want %q", got, "cedfba")
	}

	n, err := r.DecipherN(context.Background(), playerURL, "xyz")
	if err != nil {
		t.Fatalf("DecipherN: %v", err)
	}
	if n != "zyx_}" {
		t.Errorf("DecipherN = %q, want %q", n, "zyx_}")
	}
	if g.calls[playerURL] != 1 {
		t.Errorf("player fetched %d times, want 1", g.calls[playerURL])
	}
}

func TestDecipher_GlobalFallback(t *testing.T) {
	r := New(newFakeGetter(map[string]string{playerURL: globalPlayer}))

	got, err := r.Decipher(context.Background(), playerURL, "abc")
	if err != nil {
		t.Fatalf("Decipher: %v", err)
	}
	if got != "cba" {
		t.Errorf("Decipher = %q", got)
	}
	n, err := r.DecipherN(context.Background(), playerURL, "q")
	if err != nil || n != "q!" {
		t.Errorf("DecipherN = %q, %v", n, err)
	}
}

func TestDecipher_NoFunctions(t *testing.T) {
	r := New(newFakeGetter(map[string]string{playerURL: `var nothing = 1;`}))

	_, err := r.Decipher(context.Background(), playerURL, "abc")
	if !IsNotFound(err) {
		t.Errorf("Decipher err = %v, want not found", err)
	}
	if !errors.Is(err, errs.ErrCipherFailed) {
		t.Errorf("cipher errors should match errs.ErrCipherFailed")
	}
	n, err := r.DecipherN(context.Background(), playerURL, "keep")
	if err != nil || n != "keep" {
		t.Errorf("DecipherN = %q, %v; want unchanged", n, err)
	}
}

func TestDecipher_PlayerDownloadFails(t *testing.T) {
	r := New(newFakeGetter(nil))
	_, err := r.Decipher(context.Background(), playerURL, "abc")
	if !hasCode(err, ErrCodePlayerJSDownload) {
		t.Errorf("err = %v, want download failure", err)
	}
	if _, err := r.Decipher(context.Background(), "", "abc"); !IsNotFound(err) {
		t.Errorf("empty player url err = %v", err)
	}
}

func TestPlayerJS_TTL(t *testing.T) {
	g := newFakeGetter(map[string]string{playerURL: globalPlayer})
	r := New(g)
	r.TTL = time.Nanosecond

	if _, err := r.PlayerJS(context.Background(), playerURL); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, err := r.PlayerJS(context.Background(), playerURL); err != nil {
		t.Fatal(err)
	}
	if g.calls[playerURL] != 2 {
		t.Errorf("expired entry should be refetched, calls = %d", g.calls[playerURL])
	}
}

func TestWatchPage(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"escaped relative jsUrl", `{"jsUrl":"\/s\/player\/abc\/player_ias.vflset\/en_US\/base.js"}`, "https://www.youtube.com/s/player/abc/player_ias.vflset/en_US/base.js"},
		{"PLAYER_JS_URL", `"PLAYER_JS_URL":"/s/player/def/base.js"`, "https://www.youtube.com/s/player/def/base.js"},
		{"script tag", `<script src="//www.youtube.com/s/player/ghi/base.js" nonce="x">`, "https://www.youtube.com/s/player/ghi/base.js"},
		{"missing", `<html></html>`, ""},
		{"absolute", `"jsUrl":"https://cdn.example.com/s/player/jkl/base.js"`, "https://cdn.example.com/s/player/jkl/base.js"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const watch = "https://www.youtube.com/watch?v=abc"
			r := New(newFakeGetter(map[string]string{watch: tt.html}))
			page, err := r.WatchPage(context.Background(), watch)
			if tt.want == "" {
				if !IsNotFound(err) {
					t.Fatalf("err = %v, want not found", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("WatchPage: %v", err)
			}
			if page.PlayerURL != tt.want {
				t.Errorf("PlayerURL = %q, want %q", page.PlayerURL, tt.want)
			}
			if page.HTML != tt.html {
				t.Errorf("HTML not retained")
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", NewError(ErrCodeJSExecutionFailed, "run", cause))
	if !IsJSError(err) || IsNotFound(err) || IsInvalid(err) {
		t.Errorf("classification wrong for %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable")
	}
	if got := NewError(ErrCodeSignatureInvalid, "bad", nil).Error(); got != "SIGNATURE_INVALID: bad" {
		t.Errorf("Error() = %q", got)
	}
	if IsJSError(errors.New("plain")) {
		t.Error("plain errors are not cipher errors")
	}
}
