package cli

import (
	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type CleanupArgs struct {
	RunID string
}

func setupCleanupCommand(flags *Flags) *cobra.Command {
	args := &CleanupArgs{}

	command := &cobra.Command{
		Use:   "cleanup",
		Short: "delete namespaces left behind by harness runs",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, as []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return RunCleanupCommand(cmd, cfg, args)
		},
	}

	command.Flags().StringVar(&args.RunID, "run-id", "", "only delete this run's namespaces; if empty, delete every harness namespace")
	command.Flags().String("context", "", "kubernetes context to use; if empty, uses default context")

	return command
}

func RunCleanupCommand(cmd *cobra.Command, cfg *config.Config, args *CleanupArgs) error {
	kubernetes, err := newKubernetes(cfg)
	if err != nil {
		return harnessError(err)
	}
	manager := &connectivity.NamespaceManager{
		Kubernetes:    kubernetes,
		DeleteTimeout: cfg.Namespace.DeleteTimeout,
	}
	deleted, err := manager.Sweep(cmd.Context(), args.RunID)
	for _, name := range deleted {
		log.Infof("requested deletion of namespace %s", name)
	}
	log.Infof("requested deletion of %d namespaces", len(deleted))
	if err != nil {
		return harnessError(err)
	}
	return nil
}
