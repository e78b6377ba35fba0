// Package run provides the run command code.
package run

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/llamactx/foundation/logger"
	"github.com/ardanlabs/llamactx/sdk/llamactx"
	"github.com/ardanlabs/llamactx/sdk/llamactx/engine/llamacpp"
	"github.com/ardanlabs/llamactx/sdk/llamactx/model"
	"github.com/ardanlabs/llamactx/sdk/tools/defaults"
	"github.com/ardanlabs/llamactx/sdk/tools/presets"
)

// ErrHelpWanted is returned when the user asked for the usage information.
var ErrHelpWanted = conf.ErrHelpWanted

// Config represents the settings of the run command.
type Config struct {
	conf.Version
	Model struct {
		File          string `conf:"required"`
		Device        string
		ContextWindow int `conf:"default:4096"`
		BatchSize     int `conf:"default:512"`
		Threads       int
	}
	Preset struct {
		Name string `conf:"default:default"`
		Dir  string
	}
	MaxTokens int
	LibPath   string
	LogLevel  string `conf:"default:warn"`
	LlamaLog  int    `conf:"default:1"`
}

// Run parses the configuration and starts the conversation.
func Run(build string) error {
	cfg := Config{
		Version: conf.Version{
			Build: build,
			Desc:  "llamactx",
		},
	}

	const prefix = "LLAMACTX"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
		}
		return fmt.Errorf("run: parsing config: %w", err)
	}

	log := logger.New(os.Stderr, logger.ParseLevel(cfg.LogLevel), "LLAMACTX", nil)

	ctx := context.Background()

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("run: generating config for output: %w", err)
	}
	log.Debug(ctx, "startup", "config", out)

	return run(ctx, log, cfg)
}

func run(ctx context.Context, log *logger.Logger, cfg Config) error {
	preset, err := presets.Find(cfg.Preset.Name, defaults.PresetsDir(cfg.Preset.Dir))
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if cfg.MaxTokens > 0 {
		preset.MaxTokens = cfg.MaxTokens
	}

	if err := llamactx.Init(llamactx.WithLibPath(cfg.LibPath), llamactx.WithLogLevel(llamactx.LogLevel(cfg.LlamaLog))); err != nil {
		return fmt.Errorf("run: unable to init llama.cpp, use 'llamactx libs' first: %w", err)
	}

	reg := llamactx.New(llamacpp.Loader{}, llamactx.WithLogger(log.Info))

	mdl, err := reg.Load(ctx, model.Config{
		ModelFile:     cfg.Model.File,
		Device:        cfg.Model.Device,
		ContextWindow: cfg.Model.ContextWindow,
		NBatch:        cfg.Model.BatchSize,
		NThreads:      cfg.Model.Threads,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	defer func() {
		fmt.Println("\nUnloading Model")
		if err := reg.Unload(context.Background()); err != nil {
			fmt.Printf("run: failed to unload model: %v\n", err)
		}
	}()

	c, err := reg.NewContext(ctx, model.WithPrefix(preset.Prefix), model.WithSuffix(preset.Suffix))
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	fmt.Println("- model        :", mdl.Description())
	fmt.Println("- contextWindow:", c.Capacity())
	fmt.Println("- preset       :", preset.Name)
	fmt.Println("- maxTokens    :", preset.MaxTokens)

	// -------------------------------------------------------------------------
	// Ctrl-C stops the answer in progress. When no answer is running it ends
	// the program.

	var answering atomic.Bool

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	go func() {
		for range sig {
			if answering.Load() {
				c.Cancel()
				continue
			}

			fmt.Println("\nUnloading Model")
			reg.Unload(context.Background())
			os.Exit(0)
		}
	}()

	// -------------------------------------------------------------------------

	reader := bufio.NewReader(os.Stdin)

	for {
		prompt, err := userInput(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("run: user input: %w", err)
		}

		switch prompt {
		case "":
			continue

		case "/reset":
			if err := c.Reset(ctx); err != nil {
				return fmt.Errorf("run: %w", err)
			}
			fmt.Println("history cleared")
			continue
		}

		answering.Store(true)
		err = answer(ctx, reg, c, prompt, preset)
		answering.Store(false)

		if err != nil {
			if errors.Is(err, model.ErrPromptTooLong) || errors.Is(err, model.ErrAnswerTooLong) {
				fmt.Println("\nERROR:", err)
				continue
			}
			return err
		}
	}
}

func userInput(reader *bufio.Reader) (string, error) {
	fmt.Print("\nUSER> ")

	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("unable to read user input: %w", err)
	}

	input = strings.TrimSpace(input)
	if input == "quit" {
		return "", io.EOF
	}

	return input, nil
}

func answer(ctx context.Context, reg *llamactx.Registry, c *model.Context, prompt string, preset presets.Preset) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	ch, err := reg.AnswerStream(ctx, c, prompt, preset.MaxTokens, preset.Sampling)
	if err != nil {
		return fmt.Errorf("run: unable to answer: %w", err)
	}

	fmt.Print("\nMODEL> ")

	var last model.AnswerResponse
	for resp := range ch {
		last = resp

		if resp.FinishReason == "" {
			fmt.Print(resp.Delta)
		}
	}

	if last.Err != nil {
		return fmt.Errorf("run: %w", last.Err)
	}

	if last.FinishReason == model.FinishReasonCancelled {
		fmt.Print("\u001b[91m [stopped]\u001b[0m")
	}

	u := last.Usage
	percentage := (float64(u.ContextTokens) / float64(c.Capacity())) * 100

	fmt.Printf("\n\n\u001b[90mPrompt: %d  Output: %d  Evicted: %d  Context: %d (%.0f%% of %d)  TPS: %.2f\u001b[0m\n",
		u.PromptTokens, u.OutputTokens, u.EvictedTokens, u.ContextTokens, percentage, c.Capacity(), u.TokensPerSecond)

	return nil
}
