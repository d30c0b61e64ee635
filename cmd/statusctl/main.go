// Command statusctl is the operator CLI of a statusd server.
//
// Usage:
//
//	statusctl [--server URL] upload <file.yaml>
//	statusctl [--server URL] state
//	statusctl [--server URL] health [zone-id]
//	statusctl [--server URL] publish <id> <Capability|Server> <status>
//	statusctl [--server URL] watch
//
// The server address defaults to $STATUSCTL_SERVER, then
// http://127.0.0.1:8080.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
	"golang.org/x/exp/slices"

	"github.com/dreamware/statusboard/internal/client"
	"github.com/dreamware/statusboard/internal/inventory"
	"github.com/dreamware/statusboard/internal/mirror"
)

var errUsage = errors.New("usage: statusctl [--server URL] upload|state|health|publish|watch [args]")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli holds the parsed global flags shared by every subcommand.
type cli struct {
	api     *client.Client
	out     io.Writer
	log     *slog.Logger
	retries int
	backoff time.Duration
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("statusctl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	serverURL := fs.StringP("server", "s", getenv("STATUSCTL_SERVER", "http://127.0.0.1:8080"), "statusd base URL")
	verbose := fs.BoolP("verbose", "v", false, "verbose mode - show debug logs")
	retries := fs.Int("retries", 10, "watch: connection attempts before giving up")
	backoff := fs.Duration("backoff", 400*time.Millisecond, "watch: delay between connection attempts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}

	c := &cli{
		api:     client.New(*serverURL),
		out:     out,
		log:     newLogger(*verbose),
		retries: *retries,
		backoff: *backoff,
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "upload":
		if len(cmdArgs) != 1 {
			return errors.New("usage: statusctl upload <file.yaml>")
		}
		return c.upload(ctx, cmdArgs[0])
	case "state":
		return c.state(ctx)
	case "health":
		if len(cmdArgs) > 1 {
			return errors.New("usage: statusctl health [zone-id]")
		}
		return c.health(ctx, cmdArgs)
	case "publish":
		if len(cmdArgs) != 3 {
			return errors.New("usage: statusctl publish <id> <Capability|Server> <status>")
		}
		return c.publish(ctx, cmdArgs[0], cmdArgs[1], cmdArgs[2])
	case "watch":
		return c.watch(ctx)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func (c *cli) upload(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	resp, err := c.api.Upload(ctx, path, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %d capabilities, %d zones, %d servers, %d relationships\n",
		resp.Message,
		resp.Summary.Capabilities,
		resp.Summary.Zones,
		resp.Summary.Servers,
		resp.Summary.Relationships)
	return nil
}

func (c *cli) state(ctx context.Context) error {
	state, err := c.api.State(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

func (c *cli) health(ctx context.Context, args []string) error {
	if len(args) == 1 {
		status, err := c.api.ZoneHealthOf(ctx, args[0])
		if err != nil {
			return err
		}
		printHealth(c.out, map[string]inventory.ServerStatus{args[0]: status})
		return nil
	}
	health, err := c.api.ZoneHealth(ctx)
	if err != nil {
		return err
	}
	printHealth(c.out, health)
	return nil
}

func (c *cli) publish(ctx context.Context, id, kind, status string) error {
	u := inventory.StatusUpdate{ID: id, Type: inventory.EntityKind(kind), Status: status}
	if err := c.api.PublishStatus(ctx, u); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s -> %s\n", kind, id, status)
	return nil
}

// watch mirrors the server and prints zone health after every change until
// ctx is done. Lost connections are redialed up to c.retries times in a row.
func (c *cli) watch(ctx context.Context) error {
	wsURL, err := c.api.WebSocketURL()
	if err != nil {
		return err
	}
	m, err := mirror.New(mirror.Config{Logger: c.log})
	if err != nil {
		return err
	}

	// OnMessage runs on the goroutine calling Run.
	syncs := 0
	mc, err := mirror.NewClient(mirror.ClientConfig{
		URL:    wsURL,
		Mirror: m,
		Logger: c.log,
		OnMessage: func(msgType string, err error) {
			if err != nil {
				return
			}
			switch msgType {
			case inventory.MessageCurrentState:
				syncs++
				fallthrough
			case inventory.MessageStatusUpdate:
				fmt.Fprintf(c.out, "-- %s\n", msgType)
				printHealth(c.out, m.ZoneHealthAll())
			case inventory.MessageError:
				if p, ok := m.LastError(); ok {
					fmt.Fprintf(c.out, "-- error: %s\n", p.Message)
				}
			}
		},
	})
	if err != nil {
		return err
	}

	failures := 0
	for {
		before := syncs
		err := mc.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if syncs > before {
			failures = 0
		}
		if err == nil {
			err = errors.New("connection closed by server")
		}
		failures++
		if failures >= c.retries {
			return fmt.Errorf("giving up after %d attempts: %w", failures, err)
		}
		c.log.Warn("connection failed, retrying", "attempt", failures, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.backoff):
		}
	}
}

func printHealth(w io.Writer, health map[string]inventory.ServerStatus) {
	ids := make([]string, 0, len(health))
	for id := range health {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ZONE\tHEALTH")
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%s\n", id, health[id])
	}
	_ = tw.Flush()
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel}))
}

// getenv returns the value of environment variable k, or def when unset.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
