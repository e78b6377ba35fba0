// Package enginetest provides a deterministic in-memory engine for testing
// code that depends on the engine contract.
package enginetest

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
)

// Special token ids in every vocabulary produced by this package.
const (
	TokenPad engine.Token = iota
	TokenBOS
	TokenEOS
	TokenNewline
	TokenUnknown
	firstWord
)

// NextFunc selects the token the next logits vector favours. The history is
// the engine's positional cache at the time Logits is called.
type NextFunc func(history []engine.Token) engine.Token

// Sequence returns a NextFunc that favours the given tokens in order and
// then favours EOS forever.
func Sequence(tokens ...engine.Token) NextFunc {
	var mu sync.Mutex
	var i int

	return func(history []engine.Token) engine.Token {
		mu.Lock()
		defer mu.Unlock()

		if i >= len(tokens) {
			return TokenEOS
		}

		tok := tokens[i]
		i++
		return tok
	}
}

// Repeat returns a NextFunc that always favours the same token.
func Repeat(tok engine.Token) NextFunc {
	return func(history []engine.Token) engine.Token {
		return tok
	}
}

// =============================================================================

// Engine implements engine.Loader with a word based tokenizer. Every word in
// Words becomes one token, unknown words map to TokenUnknown.
type Engine struct {
	Words       []string
	Capacity    int
	Next        NextFunc
	LoadErr     error
	TokenizeErr error
	NegativeN   int
	EvalErr     error
	EvalDelay   time.Duration
	OnEvaluate  func(tokens []engine.Token, pos int)

	mu       sync.Mutex
	models   []*Model
	contexts []*Context
}

// New constructs an engine with the given vocabulary words and context
// capacity.
func New(capacity int, words ...string) *Engine {
	return &Engine{
		Words:    words,
		Capacity: capacity,
		Next:     Repeat(TokenEOS),
	}
}

// Token returns the token id for the specified word.
func (e *Engine) Token(word string) engine.Token {
	for i, w := range e.Words {
		if w == word {
			return firstWord + engine.Token(i)
		}
	}

	return TokenUnknown
}

// Contexts returns every context created so far.
func (e *Engine) Contexts() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*Context(nil), e.contexts...)
}

// Models returns every model loaded so far.
func (e *Engine) Models() []*Model {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*Model(nil), e.models...)
}

// LoadModel implements engine.Loader.
func (e *Engine) LoadModel(cfg engine.ModelConfig) (engine.Model, error) {
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}

	m := Model{
		eng:  e,
		file: cfg.ModelFile,
	}

	e.mu.Lock()
	e.models = append(e.models, &m)
	e.mu.Unlock()

	return &m, nil
}

// =============================================================================

// Model implements engine.Model.
type Model struct {
	eng   *Engine
	file  string
	freed atomic.Bool
}

// NewContext implements engine.Model.
func (m *Model) NewContext(cfg engine.ContextConfig) (engine.Context, error) {
	if m.freed.Load() {
		return nil, errors.New("new-context: model freed")
	}

	capacity := cfg.Size
	if capacity <= 0 {
		capacity = m.eng.Capacity
	}

	c := Context{
		eng:      m.eng,
		capacity: capacity,
	}

	m.eng.mu.Lock()
	m.eng.contexts = append(m.eng.contexts, &c)
	m.eng.mu.Unlock()

	return &c, nil
}

// Description implements engine.Model.
func (m *Model) Description() string {
	return "enginetest " + m.file
}

// Free implements engine.Model.
func (m *Model) Free() error {
	m.freed.Store(true)
	return nil
}

// Freed reports whether Free was called.
func (m *Model) Freed() bool {
	return m.freed.Load()
}

// =============================================================================

// Context implements engine.Context.
type Context struct {
	eng      *Engine
	capacity int
	freed    atomic.Bool
	evals    atomic.Int64

	mu     sync.Mutex
	cache  []engine.Token
	active atomic.Int32
	maxAct atomic.Int32
}

// Tokenize implements engine.Context.
func (c *Context) Tokenize(text string, addBOS bool) ([]engine.Token, error) {
	if c.eng.TokenizeErr != nil {
		return nil, c.eng.TokenizeErr
	}

	if c.eng.NegativeN > 0 {
		return nil, &engine.TokenCountError{Required: c.eng.NegativeN}
	}

	var tokens []engine.Token
	if addBOS {
		tokens = append(tokens, TokenBOS)
	}

	for _, w := range strings.Fields(text) {
		tokens = append(tokens, c.eng.Token(w))
	}

	return tokens, nil
}

// Evaluate implements engine.Context.
func (c *Context) Evaluate(tokens []engine.Token, pos int) error {
	n := c.active.Add(1)
	defer c.active.Add(-1)

	for {
		mx := c.maxAct.Load()
		if n <= mx || c.maxAct.CompareAndSwap(mx, n) {
			break
		}
	}

	if c.eng.OnEvaluate != nil {
		c.eng.OnEvaluate(tokens, pos)
	}

	if c.eng.EvalDelay > 0 {
		time.Sleep(c.eng.EvalDelay)
	}

	if c.eng.EvalErr != nil {
		return c.eng.EvalErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pos < 0 || pos > len(c.cache) {
		return errors.New("evaluate: position out of range")
	}

	if pos+len(tokens) > c.capacity {
		return errors.New("evaluate: context capacity exceeded")
	}

	c.cache = append(c.cache[:pos], tokens...)
	c.evals.Add(int64(len(tokens)))

	return nil
}

// Logits implements engine.Context.
func (c *Context) Logits() []float32 {
	c.mu.Lock()
	history := append([]engine.Token(nil), c.cache...)
	c.mu.Unlock()

	logits := make([]float32, c.VocabSize())
	for i := range logits {
		logits[i] = -10
	}

	next := c.eng.Next
	if next == nil {
		next = Repeat(TokenEOS)
	}

	if tok := next(history); int(tok) < len(logits) {
		logits[tok] = 10
	}

	return logits
}

// VocabSize implements engine.Context.
func (c *Context) VocabSize() int {
	return int(firstWord) + len(c.eng.Words)
}

// Capacity implements engine.Context.
func (c *Context) Capacity() int {
	return c.capacity
}

// TokenToText implements engine.Context.
func (c *Context) TokenToText(tok engine.Token) string {
	switch tok {
	case TokenPad, TokenBOS, TokenEOS:
		return ""
	case TokenNewline:
		return "\n"
	case TokenUnknown:
		return " <unk>"
	}

	i := int(tok - firstWord)
	if i < 0 || i >= len(c.eng.Words) {
		return ""
	}

	return " " + c.eng.Words[i]
}

// EOS implements engine.Context.
func (c *Context) EOS() engine.Token {
	return TokenEOS
}

// Newline implements engine.Context.
func (c *Context) Newline() engine.Token {
	return TokenNewline
}

// Free implements engine.Context.
func (c *Context) Free() error {
	c.freed.Store(true)
	return nil
}

// =============================================================================

// Freed reports whether Free was called.
func (c *Context) Freed() bool {
	return c.freed.Load()
}

// Evaluated returns the total number of tokens passed to Evaluate.
func (c *Context) Evaluated() int {
	return int(c.evals.Load())
}

// Cache returns a copy of the positional cache.
func (c *Context) Cache() []engine.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]engine.Token(nil), c.cache...)
}

// MaxConcurrent returns the highest number of Evaluate calls observed
// running at the same time.
func (c *Context) MaxConcurrent() int {
	return int(c.maxAct.Load())
}
