// Package llamacpp implements the engine contract on top of llama.cpp via
// yzma.
package llamacpp

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
	"github.com/hybridgroup/yzma/pkg/llama"
)

// Loader loads models with llama.cpp. The llama.cpp libraries must be loaded
// before it is used.
type Loader struct{}

// LoadModel implements engine.Loader.
func (Loader) LoadModel(cfg engine.ModelConfig) (engine.Model, error) {
	mparams := llama.ModelDefaultParams()
	if cfg.Device != "" {
		dev := llama.GGMLBackendDeviceByName(cfg.Device)
		if dev == 0 {
			return nil, fmt.Errorf("load-model: unknown device: %s", cfg.Device)
		}
		mparams.SetDevices([]llama.GGMLBackendDevice{dev})
	}

	mdl, err := llama.ModelLoadFromFile(cfg.ModelFile, mparams)
	if err != nil {
		return nil, fmt.Errorf("load-model: unable to load model: %w", err)
	}

	m := Model{
		model: mdl,
		vocab: llama.ModelGetVocab(mdl),
	}

	return &m, nil
}

// =============================================================================

// Model implements engine.Model.
type Model struct {
	model llama.Model
	vocab llama.Vocab
	once  sync.Once
}

// NewContext implements engine.Model.
func (m *Model) NewContext(cfg engine.ContextConfig) (engine.Context, error) {
	ctxParams := llama.ContextDefaultParams()

	if cfg.Size > 0 {
		ctxParams.NCtx = uint32(cfg.Size)
	}

	if cfg.BatchSize > 0 {
		ctxParams.NBatch = uint32(cfg.BatchSize)
		ctxParams.NUbatch = uint32(cfg.BatchSize)
	}

	if cfg.Threads > 0 {
		ctxParams.NThreads = int32(cfg.Threads)
		ctxParams.NThreadsBatch = int32(cfg.Threads)
	}

	lctx, err := llama.InitFromModel(m.model, ctxParams)
	if err != nil {
		return nil, fmt.Errorf("new-context: unable to init context: %w", err)
	}

	mem, err := llama.GetMemory(lctx)
	if err != nil {
		llama.Free(lctx)
		return nil, fmt.Errorf("new-context: unable to get memory: %w", err)
	}

	nCtx := int(llama.NCtx(lctx))
	nBatch := min(max(cfg.BatchSize, 1), nCtx)

	c := Context{
		lctx:   lctx,
		mem:    mem,
		vocab:  m.vocab,
		nCtx:   nCtx,
		nVocab: int(llama.VocabNTokens(m.vocab)),
		nBatch: nBatch,
		batch:  llama.BatchInit(int32(nBatch), 0, 1),
		buf:    make([]byte, 256),
	}

	return &c, nil
}

// Description implements engine.Model.
func (m *Model) Description() string {
	return llama.ModelDesc(m.model)
}

// Free implements engine.Model.
func (m *Model) Free() error {
	m.once.Do(func() {
		llama.ModelFree(m.model)
	})

	return nil
}
