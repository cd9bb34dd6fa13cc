package botguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
)

// ScriptSolver runs a user-provided JavaScript file to produce tokens.
// The script must define a global function `bgAttest(input)` returning either
// a string token or an object { token: string, ttlSeconds?: number }.
type ScriptSolver struct {
	scriptPath string
}

// NewScriptSolver returns a solver backed by the script at scriptPath.
func NewScriptSolver(scriptPath string) *ScriptSolver {
	return &ScriptSolver{scriptPath: scriptPath}
}

func (s *ScriptSolver) Attest(ctx context.Context, input Input) (Output, error) {
	if s == nil || s.scriptPath == "" {
		return Output{}, errors.New("botguard: script path not set")
	}
	script, err := os.ReadFile(s.scriptPath)
	if err != nil {
		return Output{}, fmt.Errorf("read script: %w", err)
	}

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	_ = vm.Set("console", map[string]any{"log": func(...any) {}})

	inJSON, err := json.Marshal(input)
	if err != nil {
		return Output{}, err
	}
	var inObj map[string]any
	if err := json.Unmarshal(inJSON, &inObj); err != nil {
		return Output{}, err
	}

	if _, err := vm.RunScript(s.scriptPath, string(script)); err != nil {
		return Output{}, fmt.Errorf("run script: %w", err)
	}
	fn, ok := goja.AssertFunction(vm.Get("bgAttest"))
	if !ok {
		return Output{}, errors.New("bgAttest function not found in script")
	}
	res, err := fn(goja.Undefined(), vm.ToValue(inObj))
	if err != nil {
		return Output{}, fmt.Errorf("bgAttest error: %w", err)
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return Output{}, errors.New("bgAttest returned undefined/null")
	}

	var out Output
	if str, ok := res.Export().(string); ok {
		out.Token = str
		return out, nil
	}
	obj := res.ToObject(vm)
	if v := obj.Get("token"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		out.Token = v.String()
	}
	if v := obj.Get("ttlSeconds"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		if n := v.ToInteger(); n > 0 {
			out.ExpiresAt = time.Now().Add(time.Duration(n) * time.Second)
		}
	}
	if out.Token == "" {
		return Output{}, errors.New("bgAttest returned no token")
	}
	return out, nil
}
