// Package botguard obtains attestation tokens for InnerTube requests that the
// platform rejects with 403, using a pluggable Solver and an optional Cache.
package botguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ytget/ytfetch/internal/logger"
)

// Mode defines how Botguard solving is used.
type Mode int

const (
	// Off disables Botguard usage entirely.
	Off Mode = iota
	// Auto attests after a 403 and retries the request once.
	Auto
	// Force attests before every InnerTube call.
	Force
)

// HeaderName is the request header carrying the attestation token.
const HeaderName = "x-goog-ext-123-botguard"

// String returns the flag spelling of the mode.
func (m Mode) String() string {
	switch m {
	case Auto:
		return "auto"
	case Force:
		return "force"
	default:
		return "off"
	}
}

// ParseMode parses "off", "auto" or "force" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return Off, nil
	case "auto":
		return Auto, nil
	case "force":
		return Force, nil
	}
	return Off, fmt.Errorf("unknown botguard mode %q (want off, auto or force)", s)
}

// Input carries the parameters required to perform Botguard attestation.
type Input struct {
	UserAgent        string            `json:"userAgent"`
	PageURL          string            `json:"pageUrl"`
	ClientName       string            `json:"clientName"`
	ClientVersion    string            `json:"clientVersion"`
	VisitorID        string            `json:"visitorId"`
	AdditionalParams map[string]string `json:"additionalParams,omitempty"`
}

// Output contains attestation result to be applied to InnerTube requests.
type Output struct {
	Token     string
	ExpiresAt time.Time
	Metadata  map[string]string
}

// Expired reports whether the output carries an expiry that has passed.
func (o Output) Expired() bool {
	return !o.ExpiresAt.IsZero() && time.Until(o.ExpiresAt) <= 0
}

// Solver is an interface for Botguard attestation providers.
type Solver interface {
	Attest(ctx context.Context, input Input) (Output, error)
}

// Cache stores Botguard outputs keyed by input characteristics.
type Cache interface {
	Get(key string) (Output, bool)
	Set(key string, value Output)
}

// KeyFromInput derives a cache key from Input fields that influence the attestation result.
func KeyFromInput(in Input) string {
	return in.UserAgent + "|" + in.ClientName + "|" + in.ClientVersion + "|" + in.VisitorID
}

// ErrNoSolver is returned by Attestor.Token when no solver is configured.
var ErrNoSolver = errors.New("botguard: no solver configured")

// Attestor combines a Solver with a Cache and a default token lifetime.
type Attestor struct {
	Solver Solver
	Mode   Mode
	Cache  Cache
	TTL    time.Duration

	log *logger.ComponentLogger
}

// NewAttestor returns an Attestor. A nil cache disables caching.
func NewAttestor(solver Solver, mode Mode, cache Cache, ttl time.Duration) *Attestor {
	return &Attestor{
		Solver: solver,
		Mode:   mode,
		Cache:  cache,
		TTL:    ttl,
		log:    logger.WithComponent(logger.ComponentBotguard),
	}
}

// Enabled reports whether attestation may run at all.
func (a *Attestor) Enabled() bool {
	return a != nil && a.Solver != nil && a.Mode != Off
}

// Token returns a cached, unexpired token for in or asks the solver for a new one.
func (a *Attestor) Token(ctx context.Context, in Input) (string, error) {
	if a == nil || a.Solver == nil {
		return "", ErrNoSolver
	}
	log := a.log
	if log == nil {
		log = logger.WithComponent(logger.ComponentBotguard)
	}

	key := KeyFromInput(in)
	if a.Cache != nil {
		if out, ok := a.Cache.Get(key); ok && !out.Expired() {
			log.Debug("cache hit")
			return out.Token, nil
		}
	}

	out, err := a.Solver.Attest(ctx, in)
	if err != nil {
		log.Warn("attestation failed", map[string]interface{}{"error": err.Error()})
		return "", err
	}
	if out.ExpiresAt.IsZero() && a.TTL > 0 {
		out.ExpiresAt = time.Now().Add(a.TTL)
	}
	if a.Cache != nil {
		a.Cache.Set(key, out)
	}
	log.Debug("token obtained", map[string]interface{}{"expires": out.ExpiresAt})
	return out.Token, nil
}
