// Package plugin runs software-management plugin executables and
// speaks their line-oriented subprocess protocol (§4.5, §9): prepare,
// update-list (streamed over stdin), install, remove, finalize, list,
// version. Framing is newline-terminated, tab-separated records with
// embedded tabs/newlines percent-encoded so a module name or version
// string can never desynchronise the stream.
//
// Grounded on the teacher's internal/tools/shell_exec.go: timeout via
// context, captured/truncated stdout+stderr, exit-code-to-result
// mapping. Generalized from "run one ad hoc shell command" to "run a
// fixed-contract plugin subcommand and parse its structured output".
package plugin

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/thin-edge/tedge-core/internal/mapper"
	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// Action is one entry of an update-list stream.
type Action string

const (
	ActionInstall Action = "install"
	ActionRemove  Action = "remove"
)

// UpdateRecord is one `action<TAB>name<TAB>version<TAB>file-path` line
// streamed to a plugin's update-list subcommand over stdin.
type UpdateRecord struct {
	Action   Action
	Name     string
	Version  string
	FilePath string
}

// ModuleVersion is one `name<TAB>version` line reported by a plugin's
// list subcommand. A trailing tab with no version text denotes an
// unknown version (UnknownVersion is true).
type ModuleVersion struct {
	Name           string
	Version        string
	UnknownVersion bool
}

// Executor runs one plugin's executable and enforces a timeout per
// invocation.
type Executor struct {
	Path           string
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// NewExecutor creates an Executor with the teacher's defaults (30s
// timeout, 100KiB captured output) unless overridden by the caller.
func NewExecutor(path string) *Executor {
	return &Executor{Path: path, DefaultTimeout: 30 * time.Second, MaxOutputBytes: 100 * 1024}
}

// Prepare runs the plugin's `prepare` subcommand.
func (e *Executor) Prepare(ctx context.Context) error {
	_, err := e.run(ctx, "prepare")
	return err
}

// Finalize runs the plugin's `finalize` subcommand.
func (e *Executor) Finalize(ctx context.Context) error {
	_, err := e.run(ctx, "finalize")
	return err
}

// Install runs `install <name> [--module-version v] [--file path]`.
func (e *Executor) Install(ctx context.Context, name, version, filePath string) error {
	args := []string{"install", name}
	if version != "" {
		args = append(args, "--module-version", version)
	}
	if filePath != "" {
		args = append(args, "--file", filePath)
	}
	_, err := e.run(ctx, args...)
	return err
}

// Remove runs `remove <name> [--module-version v]`.
func (e *Executor) Remove(ctx context.Context, name, version string) error {
	args := []string{"remove", name}
	if version != "" {
		args = append(args, "--module-version", version)
	}
	_, err := e.run(ctx, args...)
	return err
}

// Version runs `version <name>` and returns the reported version, or
// "" if the plugin does not know about the module.
func (e *Executor) Version(ctx context.Context, name string) (string, error) {
	out, err := e.run(ctx, "version", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

// List runs `list` and parses its `name<TAB>version` lines.
func (e *Executor) List(ctx context.Context) ([]ModuleVersion, error) {
	out, err := e.run(ctx, "list")
	if err != nil {
		return nil, err
	}
	return parseListOutput(out.Stdout), nil
}

func parseListOutput(stdout string) []ModuleVersion {
	var mods []ModuleVersion
	sc := bufio.NewScanner(strings.NewReader(stdout))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, '\t')
		if idx < 0 {
			mods = append(mods, ModuleVersion{Name: decodeField(line), UnknownVersion: true})
			continue
		}
		name := decodeField(line[:idx])
		version := decodeField(line[idx+1:])
		mods = append(mods, ModuleVersion{Name: name, Version: version, UnknownVersion: version == ""})
	}
	return mods
}

// UpdateList runs the plugin's `update-list` subcommand and streams
// records over stdin as newline-terminated, tab-separated, percent-
// encoded records, then waits for completion.
func (e *Executor) UpdateList(ctx context.Context, records []UpdateRecord) error {
	var stdin bytes.Buffer
	for _, r := range records {
		fmt.Fprintf(&stdin, "%s\t%s\t%s\t%s\n",
			encodeField(string(r.Action)), encodeField(r.Name), encodeField(r.Version), encodeField(r.FilePath))
	}
	_, err := e.runWithStdin(ctx, stdin.Bytes(), "update-list")
	return err
}

// encodeField percent-encodes tab and newline so a field's content
// can never be mistaken for a record separator.
func encodeField(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\t", "%09")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// decodeField exactly reverses encodeField's three escapes.
func decodeField(s string) string {
	s = strings.ReplaceAll(s, "%0A", "\n")
	s = strings.ReplaceAll(s, "%09", "\t")
	s = strings.ReplaceAll(s, "%25", "%")
	return s
}

// result holds one subprocess invocation's captured output.
type result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (e *Executor) run(ctx context.Context, args ...string) (*result, error) {
	return e.runWithStdin(ctx, nil, args...)
}

func (e *Executor) runWithStdin(ctx context.Context, stdin []byte, args ...string) (*result, error) {
	timeout := e.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.Path, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := &result{
		Stdout: truncate(stdout.String(), e.maxOutputBytesOrDefault()),
		Stderr: truncate(stderr.String(), e.maxOutputBytesOrDefault()),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return res, &tedgeerr.Timeout{OperationID: e.Path, Step: strings.Join(args, " ")}
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return res, &tedgeerr.PluginError{Plugin: e.Path, Reason: err.Error()}
		}
	}
	if res.ExitCode != 0 {
		reason := mapper.Sanitise(res.Stderr, mapper.DefaultSmartRESTThreshold)
		return res, &tedgeerr.PluginError{Plugin: e.Path, Reason: reason}
	}
	return res, nil
}

func (e *Executor) maxOutputBytesOrDefault() int {
	if e.MaxOutputBytes <= 0 {
		return 100 * 1024
	}
	return e.MaxOutputBytes
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n[... output truncated ...]"
}
