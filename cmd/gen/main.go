package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agentrt/core/internal/client"
	"github.com/agentrt/core/internal/config"
	contextmgr "github.com/agentrt/core/internal/context"
	"github.com/agentrt/core/internal/core"
	"github.com/agentrt/core/internal/hooks"
	"github.com/agentrt/core/internal/image"
	"github.com/agentrt/core/internal/log"
	"github.com/agentrt/core/internal/message"
	"github.com/agentrt/core/internal/permission"
	"github.com/agentrt/core/internal/provider"
	"github.com/agentrt/core/internal/session"
	"github.com/agentrt/core/internal/system"
	"github.com/agentrt/core/internal/tool"

	// Import providers for registration
	_ "github.com/agentrt/core/internal/provider/anthropic"
	_ "github.com/agentrt/core/internal/provider/google"
	_ "github.com/agentrt/core/internal/provider/openai"
)

var (
	version = "0.1.0"
)

func init() {
	// Load .env file if it exists (silent fail if not found)
	_ = godotenv.Load()

	// Initialize logging (enabled via GEN_DEBUG=1)
	_ = log.Init()
}

func main() {
	defer log.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gen [message]",
	Short: "Gen - AI coding assistant for the terminal",
	Long: `Gen is an open-source AI assistant for the terminal.
Extensible tools, customizable prompts, multi-provider support.

Non-interactive mode:
  gen "your message"       Send a message directly
  echo "message" | gen     Send a message via stdin
  gen -p "prompt"          Use a custom prompt`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// Check for non-interactive input
		message := getInputMessage(args)

		if message != "" {
			// Non-interactive mode
			if err := runNonInteractive(message); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		// Interactive mode: a plain stdin/stdout REPL over the agent loop.
		if err := runInteractive(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// promptFlag is the custom prompt flag
var promptFlag string

// modeFlag selects the interactive REPL's starting permission.Engine.Mode
// overlay (default, auto-edit, plan, yolo). Also switchable at runtime via
// the /mode REPL command.
var modeFlag string

func init() {
	rootCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Custom prompt to send")
	rootCmd.Flags().StringVarP(&modeFlag, "mode", "m", "default", "Permission mode: default, auto-edit, plan, yolo")
}

// parsePermissionMode maps a CLI/REPL mode name to permission.Mode. Unknown
// names fall back to ModeDefault along with a reporting bool so callers can
// warn the user rather than silently ignoring a typo.
func parsePermissionMode(name string) (permission.Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return permission.ModeDefault, true
	case "auto-edit", "autoedit", "accept-edits", "acceptedits":
		return permission.ModeAutoEdit, true
	case "plan":
		return permission.ModePlan, true
	case "yolo":
		return permission.ModeYolo, true
	default:
		return permission.ModeDefault, false
	}
}

// permissionModeName returns the REPL-facing name for a permission.Mode, the
// inverse of parsePermissionMode, used to report the active mode back to the user.
func permissionModeName(m permission.Mode) string {
	switch m {
	case permission.ModeAutoEdit:
		return "auto-edit"
	case permission.ModePlan:
		return "plan"
	case permission.ModeYolo:
		return "yolo"
	default:
		return "default"
	}
}

// getInputMessage gets input from args, flags, or stdin
func getInputMessage(args []string) string {
	// Check for -p/--prompt flag
	if promptFlag != "" {
		return promptFlag
	}

	// Check for positional arguments
	if len(args) > 0 {
		return strings.Join(args, " ")
	}

	// Check if stdin has data (non-interactive pipe)
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		// Data is being piped in
		reader := bufio.NewReader(os.Stdin)
		data, err := io.ReadAll(reader)
		if err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// resolveProvider connects to the user's configured provider, falling back
// to the first available connection. Shared by the non-interactive and
// interactive entry points.
func resolveProvider(ctx context.Context) (provider.LLMProvider, string, error) {
	store, err := provider.NewStore()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load store: %w", err)
	}

	if current := store.GetCurrentModel(); current != nil {
		p, err := provider.GetProvider(ctx, current.Provider, current.AuthMethod)
		if err != nil {
			return nil, "", fmt.Errorf("provider %s (%s) not available: %w. Run 'gen' and use /provider to connect",
				current.Provider, current.AuthMethod, err)
		}
		return p, current.ModelID, nil
	}

	for providerName, conn := range store.GetConnections() {
		p, err := provider.GetProvider(ctx, provider.Provider(providerName), conn.AuthMethod)
		if err == nil {
			return p, getDefaultModel(providerName, conn.AuthMethod), nil
		}
	}

	return nil, "", fmt.Errorf("no provider connected. Run 'gen' and use /provider to connect")
}

// runNonInteractive runs in non-interactive mode
func runNonInteractive(msg string) error {
	ctx := context.Background()

	llmProvider, model, err := resolveProvider(ctx)
	if err != nil {
		return err
	}

	// Send message
	opts := provider.CompletionOptions{
		Model:        model,
		MaxTokens:    8192,
		SystemPrompt: "You are a helpful AI coding assistant.",
		Messages: []provider.Message{
			{Role: "user", Content: msg},
		},
		Tools: tool.GetToolSchemas(),
	}

	// Stream response
	streamChan := llmProvider.Stream(ctx, opts)

	for chunk := range streamChan {
		switch chunk.Type {
		case provider.ChunkTypeText:
			fmt.Print(chunk.Text)
		case provider.ChunkTypeError:
			return chunk.Error
		case provider.ChunkTypeDone:
			fmt.Println() // Final newline
		}
	}

	return nil
}

// runInteractive drives a plain line-oriented REPL over internal/core.Loop:
// read a line from stdin, run one full turn (including any tool calls),
// print the assistant's reply, and persist the transcript as it grows.
func runInteractive() error {
	ctx := context.Background()

	llmProvider, model, err := resolveProvider(ctx)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	settings, err := config.Load()
	if err != nil {
		settings = config.Default()
	}

	c := &client.Client{Provider: llmProvider, Model: model}

	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	meta := session.SessionMetadata{
		Title:    "gen interactive session",
		Provider: llmProvider.Name(),
		Model:    model,
		Cwd:      cwd,
	}
	ctxMgr := contextmgr.New(c, store, meta)

	hookEngine := hooks.NewEngine(settings, "", cwd, "")
	ctxMgr.SetHooks(hookEngine)

	startMode, ok := parsePermissionMode(modeFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown --mode %q, defaulting to 'default'\n", modeFlag)
	}
	permEngine := &permission.Engine{
		Settings: settings,
		Session:  config.NewSessionPermissions(),
		Tools:    toolKindLookup,
		Mode:     startMode,
	}

	loop := &core.Loop{
		System:     &system.System{Client: c, Cwd: cwd},
		Client:     c,
		Tool:       &tool.Set{},
		Permission: permEngine,
		Hooks:      hookEngine,
		Context:    ctxMgr,
		Confirm:    confirmOnStdin,
	}

	fmt.Println("Gen interactive mode. Type your message and press Enter; Ctrl+D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}
		if rest, ok := strings.CutPrefix(line, "/mode"); ok {
			name := strings.TrimSpace(rest)
			if name == "" {
				fmt.Printf("current mode: %s\n", permissionModeName(permEngine.Mode))
				continue
			}
			mode, ok := parsePermissionMode(name)
			if !ok {
				fmt.Fprintf(os.Stderr, "unknown mode %q (want: default, auto-edit, plan, yolo)\n", name)
				continue
			}
			permEngine.Mode = mode
			fmt.Printf("mode set to %s\n", permissionModeName(mode))
			continue
		}

		var images []message.ImageData
		if rest, ok := strings.CutPrefix(line, "/image "); ok {
			path := strings.TrimSpace(rest)
			info, err := image.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "image: %v\n", err)
				continue
			}
			images = append(images, info.ToProviderData())
			line = fmt.Sprintf("[attached image: %s]", info.FileName)
		}

		loop.AddUser(line, images)
		result, err := loop.Run(ctx, core.RunOptions{
			OnToolStart: func(tc message.ToolCall) bool {
				fmt.Printf("[tool] %s\n", tc.Name)
				return true
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Println(result.Content)
	}
}

// toolKindLookup adapts the package-level default tool registry to
// permission.ToolKindLookup for the permission engine's mode overlays.
func toolKindLookup(name string) (tool.ToolKind, bool) {
	t, ok := tool.Get(name)
	if !ok {
		return tool.ReadOnly, false
	}
	return t.Kind(), true
}

// confirmOnStdin prompts the user on stdin/stdout for an ASK-decision tool
// call, the interactive REPL's confirmation stage (§4.2 stage 4).
func confirmOnStdin(ctx context.Context, tc message.ToolCall, params map[string]any, reason string) bool {
	fmt.Printf("Allow %s? %s [y/N] ", tc.Name, reason)
	reader := bufio.NewReader(os.Stdin)
	resp, _ := reader.ReadString('\n')
	resp = strings.ToLower(strings.TrimSpace(resp))
	return resp == "y" || resp == "yes"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gen version %s\n", version)
	},
}

var helpCmd = &cobra.Command{
	Use:   "help",
	Short: "Show help information",
	Long:  "Display help information about Gen and its commands.",
	Run: func(cmd *cobra.Command, args []string) {
		printHelp()
	},
}

func printHelp() {
	help := `
Gen - AI coding assistant for the terminal

Usage:
  gen [message]              Non-interactive mode with message
  gen                        Start interactive chat mode
  gen [command]              Run a command

Non-interactive Mode:
  gen "your message"         Send a message directly
  echo "message" | gen       Send a message via stdin
  gen -p "prompt"            Use a custom prompt
  gen -m plan                Start interactive mode in plan mode

Commands:
  version      Print the version number
  help         Show this help message

Interactive Mode:
  Type a message and press Enter to send it.
  /image <path>  attach an image to the next message
  /mode [name]   show or switch permission mode (default, auto-edit, plan, yolo)
  /exit or /quit quits the session.

Examples:
  gen                        Start interactive chat
  gen "Explain this code"    Quick question
  cat file.go | gen "Review" Review file via pipe
  gen version                Show version

For more information, visit: https://github.com/agentrt/core
`
	fmt.Println(help)
}

// getDefaultModel returns the default model for a provider and auth method
func getDefaultModel(providerName string, authMethod provider.AuthMethod) string {
	switch providerName {
	case "anthropic":
		if authMethod == provider.AuthVertex {
			return "claude-sonnet-4-5@20250929" // Vertex AI format
		}
		return "claude-sonnet-4-20250514" // API key format
	case "openai":
		return "gpt-4o"
	case "google":
		return "gemini-2.0-flash"
	default:
		return "claude-sonnet-4-20250514"
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(helpCmd)
	rootCmd.SetHelpCommand(helpCmd)
}
