package cipher

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/robertkrimen/otto"

	"github.com/ytget/ytfetch/internal/logger"
)

const (
	// DefaultBaseURL prefixes relative player script paths.
	DefaultBaseURL = "https://www.youtube.com"
	// DefaultTTL bounds how long a downloaded player script is reused.
	DefaultTTL = 10 * time.Minute

	decipherFuncName = "decipher"
	ncodeFuncName    = "ncode"
)

var playerJSURLRes = []*regexp.Regexp{
	regexp.MustCompile(`"jsUrl":"([^"]+)"`),
	regexp.MustCompile(`"PLAYER_JS_URL":"([^"]+)"`),
	regexp.MustCompile(`<script\s+src="([^"]+/base\.js)"`),
}

// Getter fetches a URL body.
type Getter interface {
	GetBody(ctx context.Context, rawURL string) ([]byte, error)
}

// Page is a fetched watch page.
type Page struct {
	HTML      string
	PlayerURL string
}

type player struct {
	js      string
	fetched time.Time

	mu       sync.Mutex
	prepared bool
	sigVM    *otto.Otto
	nVM      *otto.Otto
	fullVM   *otto.Otto
	fullErr  error
	fullDone bool
}

// Resolver deciphers signatures and n parameters using the player script.
type Resolver struct {
	BaseURL string
	TTL     time.Duration

	get     Getter
	mu      sync.Mutex
	players map[string]*player
	log     *logger.ComponentLogger
}

// New returns a Resolver fetching through g.
func New(g Getter) *Resolver {
	return &Resolver{
		BaseURL: DefaultBaseURL,
		TTL:     DefaultTTL,
		get:     g,
		players: make(map[string]*player),
		log:     logger.WithComponent(logger.ComponentCipher),
	}
}

// WatchPage fetches watchURL and locates the player script URL in it.
func (r *Resolver) WatchPage(ctx context.Context, watchURL string) (*Page, error) {
	body, err := r.get.GetBody(ctx, watchURL)
	if err != nil {
		return nil, NewError(ErrCodePlayerJSDownload, "watch page", err)
	}
	page := &Page{HTML: string(body)}
	for _, re := range playerJSURLRes {
		if m := re.FindSubmatch(body); len(m) == 2 && len(m[1]) > 0 {
			page.PlayerURL = r.absolute(strings.ReplaceAll(string(m[1]), `\/`, `/`))
			return page, nil
		}
	}
	return page, NewError(ErrCodePlayerJSNotFound, "could not find player js url in video page", nil)
}

func (r *Resolver) absolute(u string) string {
	switch {
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return u
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	}
	base := r.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
}

func (r *Resolver) player(ctx context.Context, playerURL string) (*player, error) {
	if playerURL == "" {
		return nil, NewError(ErrCodePlayerJSNotFound, "player url is empty", nil)
	}
	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	r.mu.Lock()
	p, ok := r.players[playerURL]
	r.mu.Unlock()
	if ok && time.Since(p.fetched) < ttl {
		return p, nil
	}

	body, err := r.get.GetBody(ctx, playerURL)
	if err != nil {
		return nil, NewError(ErrCodePlayerJSDownload, "player js", err)
	}
	p = &player{js: string(body), fetched: time.Now()}
	r.mu.Lock()
	r.players[playerURL] = p
	r.mu.Unlock()
	r.logger().Debug("player js fetched", map[string]interface{}{"url": playerURL, "bytes": len(body)})
	return p, nil
}

// PlayerJS returns the (cached) player script source.
func (r *Resolver) PlayerJS(ctx context.Context, playerURL string) (string, error) {
	p, err := r.player(ctx, playerURL)
	if err != nil {
		return "", err
	}
	return p.js, nil
}

// prepare compiles the extracted functions once per player. Must hold p.mu.
func (r *Resolver) prepare(p *player) {
	if p.prepared {
		return
	}
	p.prepared = true
	if prog, err := signatureProgram(p.js); err == nil {
		vm := otto.New()
		if _, err := vm.Run(prog); err == nil {
			p.sigVM = vm
		} else {
			r.logger().Debug("signature program failed", map[string]interface{}{"error": err.Error()})
		}
	} else {
		r.logger().Debug("signature extraction failed", map[string]interface{}{"error": err.Error()})
	}
	if prog, err := nProgram(p.js); err == nil {
		vm := otto.New()
		if _, err := vm.Run(prog); err == nil {
			p.nVM = vm
		} else {
			r.logger().Debug("n program failed", map[string]interface{}{"error": err.Error()})
		}
	} else {
		r.logger().Debug("n extraction failed", map[string]interface{}{"error": err.Error()})
	}
}

// full runs the whole player script. Must hold p.mu.
func (p *player) full() (*otto.Otto, error) {
	if !p.fullDone {
		p.fullDone = true
		vm := otto.New()
		if _, err := vm.Run(p.js); err != nil {
			p.fullErr = NewError(ErrCodeJSExecutionFailed, "failed to run player.js", err)
		} else {
			p.fullVM = vm
		}
	}
	return p.fullVM, p.fullErr
}

func call(vm *otto.Otto, fn, arg string) (string, error) {
	v, err := vm.Call(fn, nil, arg)
	if err != nil {
		return "", NewError(ErrCodeJSExecutionFailed, "call "+fn, err)
	}
	s, err := v.ToString()
	if err != nil {
		return "", NewError(ErrCodeJSExecutionFailed, fn+" did not return a string", err)
	}
	return s, nil
}

// Decipher transforms an encrypted signature with the player's signature function.
func (r *Resolver) Decipher(ctx context.Context, playerURL, signature string) (string, error) {
	p, err := r.player(ctx, playerURL)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r.prepare(p)
	if p.sigVM != nil {
		return call(p.sigVM, "__sig", signature)
	}

	vm, err := p.full()
	if err != nil {
		return "", err
	}
	if fn, err := vm.Get(decipherFuncName); err != nil || !fn.IsFunction() {
		return "", NewError(ErrCodeSignatureNotFound, "no signature function in player", nil)
	}
	return call(vm, decipherFuncName, signature)
}

// DecipherN rewrites the n throttling parameter. When the player has no
// recognizable n function the value is returned unchanged.
func (r *Resolver) DecipherN(ctx context.Context, playerURL, n string) (string, error) {
	p, err := r.player(ctx, playerURL)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r.prepare(p)
	if p.nVM != nil {
		return call(p.nVM, "__n", n)
	}

	vm, err := p.full()
	if err != nil {
		return n, nil
	}
	if fn, err := vm.Get(ncodeFuncName); err != nil || !fn.IsFunction() {
		return n, nil
	}
	return call(vm, ncodeFuncName, n)
}

func (r *Resolver) logger() *logger.ComponentLogger {
	if r.log == nil {
		r.log = logger.WithComponent(logger.ComponentCipher)
	}
	return r.log
}
