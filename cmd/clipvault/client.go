package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"go.klb.dev/clipvault/internal/grpcservice"
	"go.klb.dev/clipvault/internal/ipc"
	"go.klb.dev/clipvault/internal/tlsconf"
)

const callTimeout = 10 * time.Second

// addClientFlags adds the flags every daemon client command shares.
func addClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("socket", ipc.SocketPath(), "IPC socket of the local daemon")
	f.String("server", "", "daemon TCP address (host:port); bypasses the IPC socket")
	f.String("token", "", "shared secret for --server (must match the daemon)")
	addConfigFlag(cmd)
}

// newClientCmd builds a command that talks to the daemon. run receives a
// connected client and a context bounded by callTimeout.
func newClientCmd(use, short string, args cobra.PositionalArgs, setup func(*cobra.Command),
	run func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *grpcservice.Client, args []string) error,
) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Args:    args,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			c, transport, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			if err := run(ctx, cmd, v, c, args); err != nil {
				return fmt.Errorf("%s (via %s): %w", cmd.Name(), transport, err)
			}
			return nil
		},
	}
	addClientFlags(cmd)
	if setup != nil {
		setup(cmd)
	}
	return cmd
}

// dialDaemon connects over TCP when --server is given, otherwise over the
// IPC socket. No auth is needed on the socket; it is owner-restricted by the OS.
func dialDaemon(v *viper.Viper) (*grpcservice.Client, string, error) {
	if server := v.GetString("server"); server != "" {
		var opts []grpc.DialOption
		if token := v.GetString("token"); token != "" {
			pair, err := tlsconf.Derive(token)
			if err != nil {
				return nil, "", err
			}
			opts = append(opts,
				grpc.WithTransportCredentials(pair.Credentials()),
				grpcservice.WithToken(token),
			)
		}
		c, err := grpcservice.Dial(server, opts...)
		if err != nil {
			return nil, "", fmt.Errorf("dial %s: %w", server, err)
		}
		return c, "tcp " + server, nil
	}

	socket := v.GetString("socket")
	if !ipc.IsRunning(socket) {
		return nil, "", fmt.Errorf("no clipvault daemon listening on %s (start one with \"clipvault daemon\")", socket)
	}
	c, err := grpcservice.Dial(ipc.Target(socket))
	if err != nil {
		return nil, "", fmt.Errorf("dial %s: %w", socket, err)
	}
	return c, "ipc " + socket, nil
}
