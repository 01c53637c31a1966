package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/hookserver/internal/config"
	"github.com/mattjoyce/hookserver/internal/tui/watch"
)

const adminTokenEnvVar = "HOOKSERVER_ADMIN_TOKEN"

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	baseURL := fs.String("url", "", "Receiver base URL (default: derived from server.listen)")
	token := fs.String("token", os.Getenv(adminTokenEnvVar), "Admin bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *baseURL == "" || *token == "" {
		cfg, err := config.Load(resolveConfigPath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			fmt.Fprintln(os.Stderr, "Pass --url and --token to watch without a config file.")
			return 1
		}
		if *baseURL == "" {
			*baseURL = listenURL(cfg.Server.Listen)
		}
		if *token == "" {
			*token = cfg.Server.AdminToken
		}
	}
	if *token == "" {
		fmt.Fprintf(os.Stderr, "Error: admin token required. Set server.admin_token, use --token or %s.\n", adminTokenEnvVar)
		return 1
	}

	p := tea.NewProgram(watch.New(strings.TrimRight(*baseURL, "/"), *token))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// listenURL turns a listen address into a URL a local client can dial.
// Wildcard hosts are replaced with loopback.
func listenURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func printWatchHelp() {
	fmt.Println("Usage: hookserver watch [--config PATH] [--url URL] [--token TOKEN]")
	fmt.Println()
	fmt.Println("Live dashboard of a running receiver: health, allowlist state,")
	fmt.Println("per-event delivery counts and the audit stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --url URL        Receiver base URL (default: from server.listen)")
	fmt.Printf("  --token TOKEN    Admin bearer token (or %s, or server.admin_token)\n", adminTokenEnvVar)
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Move through the delivery table")
}
