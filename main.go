package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cmd := newApp().rootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "m365usermgr",
		Short:         "Batch user administration for a Microsoft 365 tenant",
		Long:          "m365usermgr lists, creates and deletes Entra ID users, assigns licenses,\nissues temporary access passes and purges deleted users through Microsoft Graph.\nEvery command writes a CSV report.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.CredentialsPath, "credentials", defaultCredentialsPath(), "Path to the JSON credential file (tenantId, clientId, clientSecret).")
	flags.StringVar(&a.cfg.JournalPath, "journal", "", "Optional SQLite file recording every run and its results.")
	flags.Float64Var(&a.cfg.RequestsPerSecond, "rate", 0, "Maximum Graph requests per second. 0 means unlimited.")
	flags.IntVar(&a.cfg.PageSize, "page-size", 500, "The number of items to retrieve per page for list queries. Max is 999.")
	flags.BoolVarP(&a.cfg.Verbose, "verbose", "v", false, "Enable debug output.")

	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		if a.cfg.Verbose {
			log.SetLevel(log.DebugLevel)
		}
		if err := checkRuntime(runtime.Version(), minimumRuntime); err != nil {
			return err
		}
		return a.cfg.Validate()
	}

	root.AddCommand(
		a.listUsersCommand(),
		a.createUsersCommand(),
		a.deleteUsersCommand(),
		a.assignLicensesCommand(),
		a.issueTAPCommand(),
		a.listDeletedCommand(),
		a.purgeDeletedCommand(),
		a.listLicensesCommand(),
		a.listSkusCommand(),
		a.healthCheckCommand(),
		a.historyCommand(),
	)
	return root
}
