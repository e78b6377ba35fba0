package llamacpp

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
	"github.com/hybridgroup/yzma/pkg/llama"
)

// seqID is the only sequence a context uses.
const seqID llama.SeqId = 0

// Context implements engine.Context over a llama.cpp context. It is not
// safe for concurrent use, the caller serializes access.
type Context struct {
	lctx   llama.Context
	mem    llama.Memory
	vocab  llama.Vocab
	nCtx   int
	nVocab int
	nBatch int
	batch  llama.Batch
	buf    []byte
	once   sync.Once
}

// Tokenize implements engine.Context.
func (c *Context) Tokenize(text string, addBOS bool) ([]engine.Token, error) {
	ltoks := llama.Tokenize(c.vocab, text, addBOS, true)

	if len(ltoks) == 0 && text != "" && !addBOS {
		return nil, fmt.Errorf("tokenize: no tokens produced for %d bytes of text", len(text))
	}

	tokens := make([]engine.Token, len(ltoks))
	for i, t := range ltoks {
		tokens[i] = engine.Token(t)
	}

	return tokens, nil
}

// Evaluate implements engine.Context. Everything cached at or after pos is
// dropped before the tokens are decoded.
func (c *Context) Evaluate(tokens []engine.Token, pos int) error {
	if pos < 0 || pos+len(tokens) > c.nCtx {
		return fmt.Errorf("evaluate: positions %d-%d outside context of %d", pos, pos+len(tokens), c.nCtx)
	}

	llama.MemorySeqRm(c.mem, seqID, llama.Pos(pos), -1)

	for start := 0; start < len(tokens); start += c.nBatch {
		end := min(start+c.nBatch, len(tokens))

		batchClear(&c.batch)
		for i := start; i < end; i++ {
			last := i == len(tokens)-1
			batchAdd(&c.batch, llama.Token(tokens[i]), llama.Pos(pos+i), []llama.SeqId{seqID}, last)
		}

		ret, err := llama.Decode(c.lctx, c.batch)
		if err != nil {
			return fmt.Errorf("evaluate: decode: %w", err)
		}

		if ret != 0 {
			return fmt.Errorf("evaluate: decode returned %d", ret)
		}
	}

	return nil
}

// Logits implements engine.Context.
func (c *Context) Logits() []float32 {
	logits, err := llama.GetLogitsIth(c.lctx, -1, c.nVocab)
	if err != nil {
		return make([]float32, c.nVocab)
	}

	// The slice is backed by llama.cpp memory that the next decode reuses.
	out := make([]float32, len(logits))
	copy(out, logits)

	return out
}

// VocabSize implements engine.Context.
func (c *Context) VocabSize() int {
	return c.nVocab
}

// Capacity implements engine.Context.
func (c *Context) Capacity() int {
	return c.nCtx
}

// TokenToText implements engine.Context.
func (c *Context) TokenToText(tok engine.Token) string {
	l := llama.TokenToPiece(c.vocab, llama.Token(tok), c.buf, 0, false)
	if l < 0 {
		c.buf = make([]byte, -l)
		l = llama.TokenToPiece(c.vocab, llama.Token(tok), c.buf, 0, false)
	}

	if l <= 0 {
		return ""
	}

	return string(c.buf[:l])
}

// EOS implements engine.Context.
func (c *Context) EOS() engine.Token {
	return engine.Token(llama.VocabEOS(c.vocab))
}

// Newline implements engine.Context.
func (c *Context) Newline() engine.Token {
	return engine.Token(llama.VocabNL(c.vocab))
}

// Free implements engine.Context.
func (c *Context) Free() error {
	c.once.Do(func() {
		llama.Synchronize(c.lctx)
		llama.BatchFree(c.batch)
		llama.Free(c.lctx)
	})

	return nil
}
