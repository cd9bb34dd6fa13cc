package cipher

import (
	"strings"
	"testing"
)

func TestBalanced(t *testing.T) {
	tests := []struct {
		name    string
		js      string
		want    string
		wantErr bool
	}{
		{"simple", `{a{b}c} tail`, `{a{b}c}`, false},
		{"brace in string", `{x="}";y='{'} tail`, `{x="}";y='{'}`, false},
		{"escaped quote", `{x="\"}"} tail`, `{x="\"}"}`, false},
		{"template", "{x=`}`} tail", "{x=`}`}", false},
		{"unbalanced", `{a{b}`, "", true},
		{"not a brace", `abc`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end, err := balanced(tt.js, 0)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := tt.js[:end]; got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSignatureProgram(t *testing.T) {
	prog, err := signatureProgram(extractablePlayer)
	if err != nil {
		t.Fatalf("signatureProgram: %v", err)
	}
	if !strings.HasPrefix(prog, "var Xy={rv:") {
		t.Errorf("helper object missing: %q", prog)
	}
	if !strings.Contains(prog, `var __sig=function(a){a=a.split("");`) {
		t.Errorf("signature function missing: %q", prog)
	}
	if strings.Contains(prog, "Mn") {
		t.Errorf("n function leaked into signature program")
	}

	if _, err := signatureProgram(globalPlayer); !IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestNProgram(t *testing.T) {
	prog, err := nProgram(extractablePlayer)
	if err != nil {
		t.Fatalf("nProgram: %v", err)
	}
	want := `var __n=function(a){var b=a.split("");b.reverse();return b.join("")+"_"+"}"};`
	if strings.TrimSpace(prog) != want {
		t.Errorf("nProgram = %q, want %q", prog, want)
	}

	direct := `Pq=function(a){return a};x.get("n"))&&(b=Pq(c)`
	prog, err = nProgram(direct)
	if err != nil || !strings.Contains(prog, "var __n=function(a){return a}") {
		t.Errorf("direct nProgram = %q, %v", prog, err)
	}

	if _, err := nProgram(`a.get("n"))&&(b=Zq[0](c)`); !IsJSError(err) {
		t.Errorf("missing array err = %v", err)
	}
}
