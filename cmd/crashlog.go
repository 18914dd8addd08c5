package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"idbcore/internal/commandrouter"
	"idbcore/internal/config"
	"idbcore/internal/crashlog"
	"idbcore/internal/session"
	"idbcore/internal/target"
)

var (
	crashlogProcessName string
	crashlogDirFlag     string
	crashlogUDID        string
)

// crashlogCapability is the commandrouter.Capability wrapping a live
// CrashLogStore, so both `crashlog list` and `crashlog tail` reach the
// store through the same dispatch path every other target-bound
// operation does (spec §4.5).
type crashlogCapability struct {
	store *crashlog.CrashLogStore
	mgr   *session.Manager[crashlog.Predicate, *crashlog.TailOperation, []*crashlog.CrashLog]
}

func (c *crashlogCapability) ID() commandrouter.CapabilityID { return "crashlog" }

func newCrashlogForwarder(dir string) (*commandrouter.Forwarder, *crashlog.CrashLogStore, error) {
	store := crashlog.NewCrashLogStore(dir)
	if err := store.Start(); err != nil {
		return nil, nil, err
	}

	mgr := session.NewManager(session.ManagerConfig[crashlog.Predicate, *crashlog.TailOperation, []*crashlog.CrashLog]{
		Create: func(p crashlog.Predicate) (*crashlog.TailOperation, error) {
			return crashlog.NewTailOperation(store, p), nil
		},
		Poll:     crashlog.TailPoll,
		Capacity: 1,
	})

	tg := target.New(crashlogUDID, target.KindSimulator, "")
	fwd := commandrouter.NewForwarder(tg)
	capability := &crashlogCapability{store: store, mgr: mgr}
	fwd.Register("crashlog", true, func(*target.Target) (commandrouter.Capability, error) {
		return capability, nil
	})
	return fwd, store, nil
}

func crashlogDir() string {
	if crashlogDirFlag != "" {
		return crashlogDirFlag
	}
	return config.Default().CrashLogDirectory
}

func crashlogPredicate() crashlog.Predicate {
	if crashlogProcessName != "" {
		return crashlog.ProcessNameIs(crashlogProcessName)
	}
	return crashlog.Any()
}

func newCrashlogCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "crashlog",
		Short: "Inspect the crash-log store",
	}
	c.AddCommand(newCrashlogListCmd())
	c.AddCommand(newCrashlogTailCmd())
	return c
}

func newCrashlogTailCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "tail",
		Short: "Stream newly-ingested crash reports until interrupted",
		RunE: func(c *cobra.Command, args []string) error {
			fwd, store, err := newCrashlogForwarder(crashlogDir())
			if err != nil {
				return err
			}
			defer store.Stop()

			capAny, err := fwd.Dispatch("crashlog")
			if err != nil {
				return err
			}
			capability := capAny.(*crashlogCapability)
			defer capability.mgr.Close()

			sess, err := capability.mgr.Start(crashlogPredicate()).Await(0)
			if err != nil {
				return err
			}
			defer sess.Terminate()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for {
				crashes, err := sess.ObtainUpdates().AwaitContext(ctx)
				if err != nil {
					return nil
				}
				for _, l := range crashes {
					fmt.Fprintf(c.OutOrStdout(), "%s [%d] %s %s\n", l.ProcessName, l.ProcessIdentifier, l.Date.Format("2006-01-02 15:04:05"), l.ExceptionDescription)
				}
				if sess.IsTerminal() {
					return nil
				}
			}
		},
	}
	c.Flags().StringVar(&crashlogProcessName, "process", "", "filter by process name")
	c.Flags().StringVar(&crashlogDirFlag, "dir", "", "crash report directory (defaults to config CrashLogDirectory)")
	c.Flags().StringVar(&crashlogUDID, "udid", "", "UDID of the target to tail crashes for")
	return c
}

func newCrashlogListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List stored crash reports, optionally filtered by process name",
		RunE: func(c *cobra.Command, args []string) error {
			fwd, store, err := newCrashlogForwarder(crashlogDir())
			if err != nil {
				return err
			}
			defer store.Stop()

			capAny, err := fwd.Dispatch("crashlog")
			if err != nil {
				return err
			}
			capability := capAny.(*crashlogCapability)

			for _, log := range capability.store.Crashes(crashlogPredicate()) {
				fmt.Fprintf(c.OutOrStdout(), "%s [%d] %s %s\n", log.ProcessName, log.ProcessIdentifier, log.Date.Format("2006-01-02 15:04:05"), log.ExceptionDescription)
			}
			return nil
		},
	}
	c.Flags().StringVar(&crashlogProcessName, "process", "", "filter by process name")
	c.Flags().StringVar(&crashlogDirFlag, "dir", "", "crash report directory (defaults to config CrashLogDirectory)")
	c.Flags().StringVar(&crashlogUDID, "udid", "", "UDID of the target to list crashes for")
	return c
}
