package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fumin/qobserve/cluster"
)

func newLaunchCommand() *cobra.Command {
	var (
		n       int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "launch -n N [-- observe flags]",
		Short: "Run observe on N processes connected over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return errors.Wrap(err, "")
			}
			return launch(cmd.Context(), exe, n, timeout, args)
		},
	}
	cmd.Flags().IntVarP(&n, "procs", "n", 2, "number of processes")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout of every collective")
	return cmd
}

// launch starts n copies of exe running observe, rank 0 hosting the coordinator on a free local port.
func launch(ctx context.Context, exe string, n int, timeout time.Duration, args []string) error {
	if n < 1 {
		return errors.Errorf("%d processes", n)
	}
	addr, err := freeAddr()
	if err != nil {
		return errors.Wrap(err, "")
	}

	g, ctx := errgroup.WithContext(ctx)
	for rank := range n {
		c := exec.CommandContext(ctx, exe, append([]string{"observe"}, args...)...)
		c.Stdout, c.Stderr = os.Stdout, os.Stderr
		c.Env = append(os.Environ(),
			cluster.EnvRank+"="+strconv.Itoa(rank),
			cluster.EnvSize+"="+strconv.Itoa(n),
			cluster.EnvCoordinator+"="+addr,
			cluster.EnvTimeout+"="+timeout.String(),
		)
		g.Go(func() error {
			return errors.Wrap(c.Run(), fmt.Sprintf("rank %d", rank))
		})
	}
	return g.Wait()
}

func freeAddr() (string, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	defer lis.Close()
	return lis.Addr().String(), nil
}
