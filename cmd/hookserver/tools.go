package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mattjoyce/hookserver/internal/allowlist"
	"github.com/mattjoyce/hookserver/internal/config"
	"github.com/mattjoyce/hookserver/internal/signature"
	"github.com/mattjoyce/hookserver/internal/storage"
)

// readPayload reads the named file, or stdin for "" and "-".
func readPayload(name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration (for the signing key)")
	key := fs.String("key", "", "Signing key")
	keyEnv := fs.String("key-env", "", "Environment variable holding the signing key")
	algorithm := fs.String("algorithm", "sha256", "Signature algorithm: "+strings.Join(signature.Builtin(), ", "))
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	file := fs.Arg(0)

	secret, err := resolveSigningKey(*key, *keyEnv, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	body, err := readPayload(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 1
	}

	header, err := signature.Sign(secret, *algorithm, body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(header)
	return 0
}

func runSend(args []string) int {
	defaults := config.Defaults()

	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration (for the signing key)")
	key := fs.String("key", "", "Signing key")
	keyEnv := fs.String("key-env", "", "Environment variable holding the signing key")
	target := fs.String("url", "", "Receiver URL, e.g. http://127.0.0.1:8081/hooks")
	event := fs.String("event", "ping", "Event name")
	delivery := fs.String("delivery", "", "Delivery id (default: random UUID)")
	algorithm := fs.String("algorithm", "sha1", "Signature algorithm")
	unsigned := fs.Bool("unsigned", false, "Send without a signature header")
	retries := fs.Uint64("retries", 3, "Retries on connection errors and 502/503/504")
	timeout := fs.Duration("timeout", 10*time.Second, "Per-attempt timeout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	file := fs.Arg(0)
	if *target == "" {
		fmt.Fprintln(os.Stderr, "Usage: hookserver send --url URL --event NAME [FILE]")
		return 1
	}

	body, err := readPayload(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 1
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("User-Agent", "hookserver/"+version)
	headers.Set(defaults.Provider.EventHeader, *event)
	id := *delivery
	if id == "" {
		id = uuid.NewString()
	}
	headers.Set(defaults.Provider.DeliveryHeader, id)

	if !*unsigned {
		secret, err := resolveSigningKey(*key, *keyEnv, *configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		sig, err := signature.Sign(secret, *algorithm, body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		headers.Set(defaults.Provider.SignatureHeader, sig)
	}

	client := &http.Client{Timeout: *timeout}
	status, respBody, err := postWithRetry(context.Background(), client, *target, headers, body, *retries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		return 1
	}

	fmt.Printf("Delivery %s -> %d %s\n", id, status, http.StatusText(status))
	if len(respBody) > 0 {
		fmt.Println(string(respBody))
	}
	if status < 200 || status > 299 {
		return 1
	}
	return 0
}

func postWithRetry(ctx context.Context, client *http.Client, url string, headers http.Header, body []byte, retries uint64) (int, []byte, error) {
	var status int
	var respBody []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header = headers.Clone()

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		status = resp.StatusCode

		switch status {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("receiver returned %d", status)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)

	if err := backoff.Retry(op, policy); err != nil && status == 0 {
		return 0, nil, err
	}
	return status, respBody, nil
}

func runAllowlistFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	metaURL := fs.String("url", "", "Metadata URL (overrides provider.meta_url)")
	metaKey := fs.String("key", "", "Metadata key (overrides provider.meta_key)")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	provider := config.Defaults().Provider
	timeout := config.DefaultFetchTimeout
	if *configPath != "" || *metaURL == "" {
		cfg, err := config.Load(resolveConfigPath(*configPath))
		switch {
		case err == nil:
			provider = cfg.Provider
			timeout = cfg.Allowlist.FetchTimeout
		case *configPath != "":
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
	}
	if *metaURL != "" {
		provider.MetaURL = *metaURL
	}
	if *metaKey != "" {
		provider.MetaKey = *metaKey
	}

	fetcher := allowlist.NewHTTPFetcher(provider.MetaURL, provider.MetaKey, timeout)
	fetcher.UserAgent = "hookserver/" + version
	list, err := fetcher.Fetch(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		return 1
	}
	printAllowlist(list, provider.MetaURL, *jsonOut)
	return 0
}

func runAllowlistShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if cfg.Allowlist.SnapshotPath == "" {
		fmt.Fprintln(os.Stderr, "allowlist.snapshot_path is not configured")
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Allowlist.SnapshotPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	list, err := storage.NewAllowlistStore(db).LoadAllowlist(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No snapshot: %v\n", err)
		return 1
	}
	printAllowlist(list, cfg.Allowlist.SnapshotPath, *jsonOut)
	return 0
}

func printAllowlist(list *allowlist.Allowlist, source string, jsonOut bool) {
	if jsonOut {
		printJSON(map[string]any{
			"source":     source,
			"origin":     list.Origin(),
			"fetched_at": list.FetchedAt(),
			"blocks":     list.Strings(),
		})
		return
	}
	fmt.Printf("# %d blocks from %s (fetched %s)\n", list.Len(), source, list.FetchedAt().Format(time.RFC3339))
	for _, b := range list.Strings() {
		fmt.Println(b)
	}
}
