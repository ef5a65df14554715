// Command qobserve evaluates expectation values of observables on parametrized kernels.
//
//	qobserve observe                     # the deuteron demo on one rank
//	qobserve observe --workers 4         # four ranks in this process
//	qobserve launch -n 4 -- --shots 1000 # four processes over gRPC
//	qobserve spectrum --levels 3
//	qobserve runs --db runs.db
package main

import (
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const logFlags = log.Lmicroseconds | log.Llongfile | log.LstdFlags

var (
	ErrVerification = errors.New("verification failed")
)

func main() {
	log.SetFlags(logFlags)

	if err := mainWithErr(os.Args[1:]); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr(args []string) error {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	cmd.SetArgs(args)
	return errors.Wrap(cmd.Execute(), "")
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qobserve",
		Short:         "Evaluate expectation values of observables on quantum kernels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.AddCommand(newObserveCommand())
	cmd.AddCommand(newLaunchCommand())
	cmd.AddCommand(newSpectrumCommand())
	cmd.AddCommand(newRunsCommand())
	return cmd
}
