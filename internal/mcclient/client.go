package mcclient

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	DefaultBinary = "mc"
	DefaultAlias  = "managedminioinst"
)

// waitDelay bounds how long a killed mc may hold its output pipes open.
const waitDelay = 5 * time.Second

var log = logf.Log.WithName("mcclient")

type Options struct {
	// Binary is the mc executable, resolved through PATH when relative.
	Binary string
	// Alias is the name the target is registered under in the scoped config dir.
	Alias string
	// TempDir is where the per-call config directories are created, the OS default when empty.
	TempDir string
	// Timeout bounds a whole call, alias setup included. Zero means no bound.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = DefaultBinary
	}
	if o.Alias == "" {
		o.Alias = DefaultAlias
	}
	return o
}

// Client runs mc as a subprocess. Every call gets its own config directory
// holding only the alias of its target, so concurrent calls never share state.
type Client struct {
	target Target
	opts   Options
}

var _ Transport = &Client{}

func New(target Target, opts Options) *Client {
	return &Client{target: target, opts: opts.withDefaults()}
}

func NewFactory(opts Options) Factory {
	return func(target Target) Transport {
		return New(target, opts)
	}
}

func (c *Client) Exec(ctx context.Context, args ...string) (records Records, err error) {
	family := CommandFamily(c.opts.Alias, args)
	start := time.Now()
	defer func() {
		commandDuration.WithLabelValues(family).Observe(time.Since(start).Seconds())
		if err != nil {
			commandFailures.WithLabelValues(family, failureKind(err)).Inc()
		}
	}()

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	configDir, err := os.MkdirTemp(c.opts.TempDir, "mc-config-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(configDir); rmErr != nil {
			log.Error(rmErr, "failed to remove mc config dir", "dir", configDir)
		}
	}()

	aliasArgs := []string{"alias", "set", c.opts.Alias, c.target.Endpoint, c.target.AccessKey, c.target.SecretKey}
	if _, err := c.run(ctx, configDir, aliasArgs, ErrAuthContextFailed, "alias set"); err != nil {
		return nil, err
	}

	stdout, err := c.run(ctx, configDir, args, ErrCommandFailed, family)
	if err != nil {
		return nil, err
	}

	return ParseRecords(stdout)
}

func (c *Client) run(ctx context.Context, configDir string, args []string, kind error, family string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.opts.Binary, append([]string{"--config-dir", configDir, "--json"}, args...)...)
	cmd.Env = childEnv()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &CommandError{
			Kind:     kind,
			Command:  family,
			ExitCode: exitCode,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	return stdout.Bytes(), nil
}

// childEnv drops MC_HOST_* so aliases only come from the scoped config dir.
func childEnv() []string {
	env := os.Environ()
	filtered := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "MC_HOST_") {
			continue
		}
		filtered = append(filtered, kv)
	}
	return filtered
}

// CommandFamily names a command for metrics and logs, e.g. "quota set" or
// "admin policy attach". Targets, flags and free arguments are left out.
func CommandFamily(alias string, args []string) string {
	limit := 2
	if len(args) > 0 && args[0] == "admin" {
		limit = 3
	}

	var words []string
	for _, arg := range args {
		if len(words) == limit || strings.HasPrefix(arg, "-") || strings.Contains(arg, "/") || arg == alias {
			break
		}
		words = append(words, arg)
	}
	if len(words) == 0 {
		return "unknown"
	}
	return strings.Join(words, " ")
}
