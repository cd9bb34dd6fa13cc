package botguard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Off, false},
		{"off", Off, false},
		{"AUTO", Auto, false},
		{" force ", Force, false},
		{"sometimes", Off, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) err = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache()
	key := "ua|WEB|1.2.3|visitor"
	out := Output{Token: "abc", ExpiresAt: time.Now().Add(time.Minute)}

	if _, ok := c.Get(key); ok {
		t.Fatalf("expected empty cache miss")
	}
	c.Set(key, out)
	got, ok := c.Get(key)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.Token != out.Token {
		t.Fatalf("token mismatch: got %q want %q", got.Token, out.Token)
	}
}

func TestFileCache_SetGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bg")
	fc, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	key := "ua|WEB|1.2.3|visitor"
	out := Output{Token: "xyz", ExpiresAt: time.Now().Add(time.Minute)}

	if _, ok := fc.Get(key); ok {
		t.Fatalf("expected empty cache miss")
	}
	fc.Set(key, out)
	got, ok := fc.Get(key)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.Token != out.Token {
		t.Fatalf("token mismatch: got %q want %q", got.Token, out.Token)
	}
}

func TestFileCache_Expire(t *testing.T) {
	fc, _ := NewFileCache(t.TempDir())
	key := "ua|WEB|1.2.3|visitor"
	fc.Set(key, Output{Token: "will-expire", ExpiresAt: time.Now().Add(10 * time.Millisecond)})
	time.Sleep(20 * time.Millisecond)
	if _, ok := fc.Get(key); ok {
		t.Fatalf("expected expired entry to be a miss")
	}
}

func TestNewFileCache_RequiresDir(t *testing.T) {
	if _, err := NewFileCache(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

type countingSolver struct {
	calls int
	out   Output
	err   error
}

func (s *countingSolver) Attest(ctx context.Context, in Input) (Output, error) {
	s.calls++
	return s.out, s.err
}

func TestAttestor_CachesAndAppliesTTL(t *testing.T) {
	solver := &countingSolver{out: Output{Token: "tok"}}
	cache := NewMemoryCache()
	a := NewAttestor(solver, Auto, cache, time.Minute)
	in := Input{UserAgent: "ua", ClientName: "WEB", ClientVersion: "2.0"}

	for i := 0; i < 2; i++ {
		tok, err := a.Token(context.Background(), in)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok" {
			t.Errorf("token = %q", tok)
		}
	}
	if solver.calls != 1 {
		t.Errorf("solver calls = %d, want 1", solver.calls)
	}
	cached, ok := cache.Get(KeyFromInput(in))
	if !ok || cached.ExpiresAt.IsZero() {
		t.Errorf("expected cached output with TTL applied, got %+v", cached)
	}
}

func TestAttestor_Errors(t *testing.T) {
	var nilAttestor *Attestor
	if _, err := nilAttestor.Token(context.Background(), Input{}); !errors.Is(err, ErrNoSolver) {
		t.Errorf("nil attestor err = %v", err)
	}
	if nilAttestor.Enabled() {
		t.Error("nil attestor should be disabled")
	}

	boom := errors.New("boom")
	a := NewAttestor(&countingSolver{err: boom}, Force, nil, 0)
	if _, err := a.Token(context.Background(), Input{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if NewAttestor(&countingSolver{}, Off, nil, 0).Enabled() {
		t.Error("Off mode should be disabled")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bg.js")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestScriptSolver(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		wantToken string
		wantTTL   bool
		wantErr   bool
	}{
		{
			name:      "string result",
			script:    `function bgAttest(input) { return "tok-" + input.clientName; }`,
			wantToken: "tok-WEB",
		},
		{
			name:      "object result with ttl",
			script:    `function bgAttest(input) { return { token: input.visitorId, ttlSeconds: 60 }; }`,
			wantToken: "visitor",
			wantTTL:   true,
		},
		{
			name:    "missing function",
			script:  `var x = 1;`,
			wantErr: true,
		},
		{
			name:    "null result",
			script:  `function bgAttest() { return null; }`,
			wantErr: true,
		},
		{
			name:    "script throws",
			script:  `function bgAttest() { throw new Error("nope"); }`,
			wantErr: true,
		},
	}
	in := Input{UserAgent: "ua", ClientName: "WEB", VisitorID: "visitor"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScriptSolver(writeScript(t, tt.script))
			out, err := s.Attest(context.Background(), in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("Attest: %v", err)
			}
			if out.Token != tt.wantToken {
				t.Errorf("token = %q, want %q", out.Token, tt.wantToken)
			}
			if tt.wantTTL == out.ExpiresAt.IsZero() {
				t.Errorf("ExpiresAt = %v, wantTTL %v", out.ExpiresAt, tt.wantTTL)
			}
		})
	}
}

func TestScriptSolver_MissingScript(t *testing.T) {
	if _, err := NewScriptSolver("").Attest(context.Background(), Input{}); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := NewScriptSolver(filepath.Join(t.TempDir(), "none.js")).Attest(context.Background(), Input{}); err == nil {
		t.Error("expected error for missing file")
	}
}
