// ABOUTME: remote subcommand: controls a running player over websocket
// ABOUTME: Finds players with mDNS unless an address is given
package remote

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/resonate-playout/internal/client"
	"github.com/Resonate-Protocol/resonate-playout/internal/config"
	"github.com/Resonate-Protocol/resonate-playout/internal/discovery"
	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/protocol"
)

var errNoPlayer = errors.NewStd("no player found")

type options struct {
	addr    string
	player  string
	timeout time.Duration
	watch   bool
}

// Command creates the remote command
func Command(ctx *config.Context) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "remote COMMAND [VALUE]",
		Short: "Control a running player",
		Long: `Send a command to a player started with --remote.

Commands: ` + strings.Join(protocol.Commands, ", ") + `, list

volume takes 0-100, skip and silence take milliseconds.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "list" {
				return list(cmd, opts)
			}
			return send(cmd, ctx, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.addr, "addr", "a", "", "Player host:port (browse mDNS when empty)")
	flags.StringVarP(&opts.player, "player", "p", "", "Pick the discovered player with this name")
	flags.DurationVar(&opts.timeout, "timeout", 3*time.Second, "mDNS browse and connect timeout")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "Keep printing status updates")

	return cmd
}

func list(cmd *cobra.Command, opts *options) error {
	instances, err := discovery.Browse(cmd.Context(), opts.timeout)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(instances) == 0 {
		fmt.Fprintln(out, "no players found")
		return nil
	}
	for _, inst := range instances {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", inst.Name, inst.Addr(), inst.Backend, inst.Version)
	}
	return nil
}

// parseCommand turns CLI arguments into a protocol command
func parseCommand(args []string) (protocol.Command, error) {
	cmd := protocol.Command{Command: args[0]}
	if len(args) < 2 {
		return cmd, nil
	}
	v, err := strconv.Atoi(args[1])
	if err != nil {
		return cmd, errors.New(err).
			Component("remote").
			Category(errors.CategoryValidation).
			Context("command", args[0]).
			Context("value", args[1]).
			Build()
	}
	cmd.Value = v
	return cmd, nil
}

// resolve picks the player address from --addr or mDNS
func resolve(ctx context.Context, opts *options) (string, string, error) {
	if opts.addr != "" {
		return opts.addr, "/playout", nil
	}
	instances, err := discovery.Browse(ctx, opts.timeout)
	if err != nil {
		return "", "", err
	}
	for _, inst := range instances {
		if opts.player == "" || inst.Name == opts.player {
			return inst.Addr(), inst.Path, nil
		}
	}
	return "", "", errors.New(errNoPlayer).
		Component("remote").
		Category(errors.CategoryNotFound).
		Context("player", opts.player).
		Build()
}

func send(cmd *cobra.Command, cfg *config.Context, opts *options, args []string) error {
	command, err := parseCommand(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	addr, path, err := resolve(ctx, opts)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	c, err := client.Connect(dialCtx, client.Config{
		ServerAddr: addr,
		Path:       path,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	status, err := c.Command(dialCtx, command)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printStatus(out, c.Hello().Name, status)

	if !opts.watch {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case st := <-c.Statuses():
			printStatus(out, c.Hello().Name, st)
		}
	}
}

func printStatus(w io.Writer, name string, st protocol.Status) {
	track := "-"
	if st.Track != nil {
		track = st.Track.Title
		if st.Track.Artist != "" {
			track = st.Track.Artist + " - " + track
		}
	}
	volume := strconv.Itoa(st.Volume)
	if st.Muted {
		volume += " (muted)"
	}
	underrun := ""
	if st.Underrun {
		underrun = " UNDERRUN"
	}
	fmt.Fprintf(w, "%s: %s | %s | %d Hz | vol %s | buffer %d%%%s\n",
		name, st.State, track, st.StreamRate, volume, st.BufferPercent(), underrun)
}
