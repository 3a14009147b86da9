package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"lookupbot/internal/config"
)

var testBinaryPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "lookupbot-e2e-bin-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "e2e setup failed: %v\n", err)
		os.Exit(1)
	}

	binName := "lookupbot"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	testBinaryPath = filepath.Join(tmpDir, binName)

	buildCmd := exec.Command("go", "build", "-o", testBinaryPath, "./cmd/lookupbot")
	buildCmd.Dir = repoRoot()
	buildCmd.Env = os.Environ()
	if out, err := buildCmd.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "e2e binary build failed: %v\n%s\n", err, string(out))
		_ = os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()
	_ = os.RemoveAll(tmpDir)
	os.Exit(code)
}

type serverHandle struct {
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	done      chan error
	baseURL   string
	cfgPath   string
	entryPath string
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
}

func TestE2E_EntriesThroughCLI(t *testing.T) {
	dir := t.TempDir()
	port, err := freePort()
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	h, err := startServer(dir, port, "fever,temperature||Give antipyretic.\n")
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer func() { _ = stopServer(h, 5*time.Second) }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	cli := func(args ...string) map[string]any {
		t.Helper()
		base := []string{"--base-url", h.baseURL, "--config", h.cfgPath, "--json"}
		out, stderr, err := runCLIJSON(ctx, append(base, args...)...)
		if err != nil {
			t.Fatalf("lookupbot %v: %v stderr=%s", args, err, stderr)
		}
		return out
	}

	added := cli("entries", "add", "Cough,Kashel", "Give", "syrup.")
	if got := nestedString(added, "entry", "text"); got != "Give syrup." {
		t.Fatalf("unexpected add output: %v", added)
	}

	match := cli("entries", "match", "fever", "and", "cough")
	texts := nestedSlice(match, "texts")
	if len(texts) != 2 || texts[0] != "Give antipyretic." || texts[1] != "Give syrup." {
		t.Fatalf("unexpected match output: %v", match)
	}

	deleted := cli("entries", "delete", "temperature,flu")
	if d := nestedSlice(deleted, "result", "deleted"); len(d) != 1 || d[0] != "temperature" {
		t.Fatalf("unexpected delete output: %v", deleted)
	}
	if nf := nestedSlice(deleted, "result", "not_found"); len(nf) != 1 || nf[0] != "flu" {
		t.Fatalf("unexpected delete output: %v", deleted)
	}

	listed := cli("entries", "list")
	if entries := nestedSlice(listed, "entries"); len(entries) != 1 {
		t.Fatalf("expected one entry left, got %v", listed)
	}

	b, err := os.ReadFile(h.entryPath)
	if err != nil {
		t.Fatalf("read entries file: %v", err)
	}
	if string(b) != "cough,kashel||Give syrup.\n" {
		t.Fatalf("unexpected persisted file: %q", b)
	}
}

func TestE2E_ServerTeardown_IsClean(t *testing.T) {
	dir := t.TempDir()
	port, err := freePort()
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	h, err := startServer(dir, port, "")
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	if err := stopServer(h, 6*time.Second); err != nil {
		t.Fatalf("stop server: %v stderr=%s", err, h.stderr.String())
	}
	if !waitForHealthDown(h.baseURL, 4*time.Second) {
		t.Fatal("health endpoint still reachable after teardown")
	}
}

func startServer(dir string, port int, seed string) (*serverHandle, error) {
	entryPath := filepath.Join(dir, "entries.txt")
	if seed != "" {
		if err := os.WriteFile(entryPath, []byte(seed), 0o644); err != nil {
			return nil, fmt.Errorf("seed entries: %w", err)
		}
	}
	cfgPath, err := writeIsolatedConfig(dir, port, entryPath)
	if err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, testBinaryPath, "--config", cfgPath, "serve", "--no-bot")
	cmd.Env = isolatedEnv()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start server: %w", err)
	}

	h := &serverHandle{
		cmd:       cmd,
		cancel:    cancel,
		done:      make(chan error, 1),
		baseURL:   fmt.Sprintf("http://127.0.0.1:%d", port),
		cfgPath:   cfgPath,
		entryPath: entryPath,
		stdout:    stdout,
		stderr:    stderr,
	}
	go func() {
		h.done <- cmd.Wait()
	}()

	if err := waitForReady(h, 20*time.Second); err != nil {
		_ = stopServer(h, 3*time.Second)
		return nil, err
	}
	return h, nil
}

func stopServer(h *serverHandle, timeout time.Duration) error {
	if h == nil {
		return nil
	}
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Signal(os.Interrupt)
	}
	select {
	case err := <-h.done:
		h.cancel()
		return exitClean(err)
	case <-time.After(timeout):
		h.cancel()
		select {
		case err := <-h.done:
			return exitClean(err)
		case <-time.After(2 * time.Second):
			return errors.New("server did not exit after kill")
		}
	}
}

func exitClean(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "killed") || strings.Contains(msg, "signal") || strings.Contains(msg, "interrupted") || strings.Contains(msg, "exit status") {
		return nil
	}
	return err
}

func waitForReady(h *serverHandle, timeout time.Duration) error {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case err := <-h.done:
			return fmt.Errorf("server exited early: %v stderr=%s stdout=%s", err, h.stderr.String(), h.stdout.String())
		default:
		}
		resp, err := client.Get(h.baseURL + "/healthz")
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("health status %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for readiness: %v stderr=%s", lastErr, h.stderr.String())
}

func runCLI(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, testBinaryPath, args...)
	cmd.Env = isolatedEnv()
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), err
}

func runCLIJSON(ctx context.Context, args ...string) (map[string]any, string, error) {
	stdout, stderr, err := runCLI(ctx, args...)
	if err != nil {
		return nil, stderr, err
	}
	var out map[string]any
	if uErr := json.Unmarshal([]byte(stdout), &out); uErr != nil {
		return nil, stderr, fmt.Errorf("decode json output: %w stdout=%s", uErr, stdout)
	}
	return out, stderr, nil
}

// isolatedEnv drops variables that would override the test config.
func isolatedEnv() []string {
	out := make([]string, 0, len(os.Environ()))
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "LOOKUPBOT_") || strings.HasPrefix(kv, "BOT_TOKEN=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func writeIsolatedConfig(dir string, port int, entryPath string) (string, error) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port
	cfg.Telegram.Enabled = false
	cfg.Storage.Backend = config.BackendFile
	cfg.Storage.File.Path = entryPath
	cfg.Backup.Dir = filepath.Join(dir, "backups")
	cfg.Logging.File = filepath.Join(dir, "lookupbot.log")
	b, err := config.Marshal(cfg)
	if err != nil {
		return "", err
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, b, 0o600); err != nil {
		return "", err
	}
	return cfgPath, nil
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return 0, errors.New("unexpected listener addr type")
	}
	return addr.Port, nil
}

func waitForHealthDown(baseURL string, timeout time.Duration) bool {
	client := &http.Client{Timeout: 350 * time.Millisecond}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/healthz")
		if err != nil {
			return true
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		time.Sleep(120 * time.Millisecond)
	}
	return false
}

func nestedString(m map[string]any, path ...string) string {
	v, _ := nested(m, path...).(string)
	return v
}

func nestedSlice(m map[string]any, path ...string) []any {
	v, _ := nested(m, path...).([]any)
	return v
}

func nested(m map[string]any, path ...string) any {
	var current any = m
	for _, p := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[p]
	}
	return current
}

func repoRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
