package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/llamactx/cmd/llamactx/libs"
	"github.com/ardanlabs/llamactx/cmd/llamactx/presets"
	"github.com/ardanlabs/llamactx/cmd/llamactx/pull"
	"github.com/ardanlabs/llamactx/cmd/llamactx/run"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "llamactx",
	Short: "Hold conversations with a local llama.cpp model",
	Long:  "Hold conversations with a local llama.cpp model. The conversation history is kept in a bounded context and the oldest turns are evicted when a new prompt or answer needs room.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(version + "\n")

	libsCmd.Flags().String("processor", "", "Options: cpu, cuda, metal, vulkan")
	libsCmd.Flags().Bool("upgrade", true, "Upgrade the libraries when a newer version exists")

	rootCmd.AddCommand(libsCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(runCmd)
}

var libsCmd = &cobra.Command{
	Use:   "libs",
	Short: "Install or upgrade llama.cpp libraries",
	Long: `Install or upgrade llama.cpp libraries

Environment Variables:
      LLAMACTX_LIB_PATH   (default: $HOME/.llamactx/libraries)  The path to the libraries directory
      LLAMACTX_PROCESSOR  (default: cpu)                        Options: cpu, cuda, metal, vulkan`,
	Run: runLibs,
}

var pullCmd = &cobra.Command{
	Use:   "pull <MODEL_URL>",
	Short: "Download a gguf model file",
	Long: `Download a gguf model file

Environment Variables:
      LLAMACTX_MODELS  (default: $HOME/.llamactx/models)  The path to the models directory`,
	Args: cobra.ExactArgs(1),
	Run:  runPull,
}

var presetsCmd = &cobra.Command{
	Use:   "presets [PRESET_NAME]",
	Short: "List the sampling presets or show one of them",
	Long: `List the sampling presets or show one of them

Environment Variables:
      LLAMACTX_BASE_PATH  (default: $HOME/.llamactx)  Preset files are read from the presets folder`,
	Args: cobra.MaximumNArgs(1),
	Run:  runPresets,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive conversation with a model",
	Long: `Start an interactive conversation with a model

Ctrl-C stops the answer in progress, quit ends the conversation and
/reset clears the history.

Environment Variables:
      LLAMACTX_MODEL_FILE            (required)                   The path to the gguf model file
      LLAMACTX_MODEL_DEVICE          (default: autodetection)     Device to use for inference
      LLAMACTX_MODEL_CONTEXT_WINDOW  (default: 4096)              Number of tokens the conversation can hold
      LLAMACTX_MODEL_BATCH_SIZE      (default: 512)               Maximum tokens evaluated in one call
      LLAMACTX_MODEL_THREADS         (default: llama.cpp)         Number of threads to use for evaluation
      LLAMACTX_PRESET_NAME           (default: default)           Sampling preset to use
      LLAMACTX_PRESET_DIR            (default: $HOME/.llamactx/presets)
      LLAMACTX_MAX_TOKENS            (default: preset)            Maximum tokens per answer
      LLAMACTX_LIB_PATH              (default: $HOME/.llamactx/libraries)
      LLAMACTX_LOG_LEVEL             (default: warn)              Options: debug, info, warn, error`,
	DisableFlagParsing: true,
	Run:                runRun,
}

func runLibs(cmd *cobra.Command, args []string) {
	processor, _ := cmd.Flags().GetString("processor")
	upgrade, _ := cmd.Flags().GetBool("upgrade")

	if err := libs.Run(processor, upgrade); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}

func runPull(cmd *cobra.Command, args []string) {
	if err := pull.Run(args); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}

func runPresets(cmd *cobra.Command, args []string) {
	if err := presets.Run(args); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}

func runRun(cmd *cobra.Command, args []string) {
	if err := run.Run(version); err != nil {
		if errors.Is(err, run.ErrHelpWanted) {
			return
		}

		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}
