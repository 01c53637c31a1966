package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/hookserver"
	"github.com/mattjoyce/hookserver/internal/config"
	"github.com/mattjoyce/hookserver/internal/signature"
)

const version = hookserver.Version

// configEnvVar names the config path used when --config is not given.
const configEnvVar = "HOOKSERVER_CONFIG"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "config":
		os.Exit(runConfigNoun(args))
	case "allowlist":
		os.Exit(runAllowlistNoun(args))

	// --- VERBS ---
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			os.Exit(0)
		}
		os.Exit(runStart(args))
	case "sign":
		if hasHelpFlag(args) {
			printSignHelp()
			os.Exit(0)
		}
		os.Exit(runSign(args))
	case "send":
		if hasHelpFlag(args) {
			printSendHelp()
			os.Exit(0)
		}
		os.Exit(runSend(args))
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			os.Exit(0)
		}
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("hookserver version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`hookserver - Webhook receiver with provider allowlist and signature checks

Usage:
  hookserver <command> [flags]
  hookserver <noun> <action> [flags]

Commands:
  start              Run the receiver in the foreground
  sign [FILE]        Print the signature header value for a payload
  send [FILE]        POST a signed test delivery to a receiver
  watch              Live dashboard of a running receiver

Config Commands:
  config check       Validate configuration and integrity
  config lock        Write the BLAKE3 integrity manifest (.checksums)

Allowlist Commands:
  allowlist fetch    Fetch and print the provider's address ranges
  allowlist show     Print the stored allowlist snapshot

General:
  version            Show version information
  help               Show this help message

The config path defaults to $HOOKSERVER_CONFIG, then ./config.yaml.
`)
}

// --- NOUN DISPATCHERS ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runAllowlistNoun(args []string) int {
	if len(args) < 1 {
		printAllowlistNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printAllowlistNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "fetch":
		if hasHelpFlag(actionArgs) {
			printAllowlistFetchHelp()
			return 0
		}
		return runAllowlistFetch(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printAllowlistShowHelp()
			return 0
		}
		return runAllowlistShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown allowlist action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookserver config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printAllowlistNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookserver allowlist <action> [flags]")
	fmt.Fprintln(w, "Actions: fetch, show")
}

func printStartHelp() {
	fmt.Println("Usage: hookserver start [--config PATH]")
	fmt.Println("Run the webhook receiver in the foreground until SIGINT or SIGTERM.")
}

func printSignHelp() {
	fmt.Println("Usage: hookserver sign [--config PATH | --key KEY | --key-env VAR] [--algorithm sha256] [FILE]")
	fmt.Println("Flags must precede FILE.")
	fmt.Println("Print the signature header value for FILE (or stdin).")
}

func printSendHelp() {
	fmt.Println("Usage: hookserver send --url URL --event NAME [--delivery ID] [--algorithm sha1] [--retries N]")
	fmt.Println("                       [--config PATH | --key KEY | --key-env VAR] [FILE]")
	fmt.Println("POST FILE (or stdin) as a signed delivery. The delivery id defaults to a random UUID.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: hookserver config check [--config PATH] [--json]")
	fmt.Println("Validate configuration syntax, policy, and integrity.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: hookserver config lock [--config PATH]")
	fmt.Println("Authorize the current configuration by writing its BLAKE3 hash to .checksums.")
}

func printAllowlistFetchHelp() {
	fmt.Println("Usage: hookserver allowlist fetch [--config PATH] [--url URL] [--key KEY] [--json]")
	fmt.Println("Fetch the provider metadata document and print the address ranges under KEY.")
}

func printAllowlistShowHelp() {
	fmt.Println("Usage: hookserver allowlist show [--config PATH] [--json]")
	fmt.Println("Print the allowlist snapshot stored at allowlist.snapshot_path.")
}

// --- ACTION IMPLEMENTATIONS ---

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnvVar); env != "" {
		return env
	}
	return config.ConfigFileName
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path := resolveConfigPath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		if *jsonOut {
			printJSON(map[string]any{"valid": false, "error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Configuration check FAILED: %v\n", err)
		}
		return 1
	}

	warnings := configWarnings(cfg)
	if *jsonOut {
		printJSON(map[string]any{
			"valid":      true,
			"path":       cfg.SourcePath,
			"listen":     cfg.Server.Listen,
			"path_hook":  cfg.Server.Path,
			"algorithms": cfg.Security.Algorithms,
			"warnings":   warnings,
		})
		return 0
	}

	fmt.Printf("Config: %s\n", cfg.SourcePath)
	fmt.Printf("Listen: %s%s\n", cfg.Server.Listen, cfg.Server.Path)
	fmt.Printf("Algorithms: %s\n", strings.Join(cfg.Security.Algorithms, ", "))
	for _, w := range warnings {
		fmt.Printf("WARNING: %s\n", w)
	}
	fmt.Println("Status: Configuration check PASSED.")
	return 0
}

func configWarnings(cfg *config.Config) []string {
	var out []string
	if cfg.Security.InsecureSkipOrigin {
		out = append(out, "security.insecure_skip_origin is set: provider address check disabled")
	}
	if cfg.Security.AllowUnsigned {
		out = append(out, "security.allow_unsigned is set: signatures are not verified")
	}
	if cfg.Allowlist.SnapshotPath == "" && !cfg.Security.InsecureSkipOrigin {
		out = append(out, "allowlist.snapshot_path is empty: no fallback if the provider is unreachable at startup")
	}
	manifest, err := config.LoadChecksums(filepath.Dir(cfg.SourcePath))
	if err == nil && manifest == nil {
		out = append(out, "configuration is not locked (run 'hookserver config lock')")
	}
	return out
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	abs, err := config.ResolvePath(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}
	// Refuse to lock a config that does not load.
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid configuration: %v\n", err)
		return 1
	}

	manifest, err := config.Lock(abs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s\n", manifest)
	return 0
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

// resolveSigningKey picks the key from --key, then --key-env, then the config file.
func resolveSigningKey(key, keyEnv, configPath string) ([]byte, error) {
	if key != "" {
		return []byte(key), nil
	}
	if keyEnv != "" {
		v := os.Getenv(keyEnv)
		if v == "" {
			return nil, fmt.Errorf("environment variable %s is empty", keyEnv)
		}
		return []byte(v), nil
	}
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("no --key given and config could not be loaded: %w", err)
	}
	if cfg.Security.SigningKey == "" {
		return nil, fmt.Errorf("configuration has no signing key")
	}
	return signature.Key(cfg.Security.SigningKey), nil
}
