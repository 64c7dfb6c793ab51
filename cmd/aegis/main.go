// Command aegis runs the multi-tenant code-review platform's three
// processes — gateway, worker, and scheduler — each a subcommand
// sharing one configuration file and one set of storage/queue/LLM
// collaborators, wired the way cmd/cr wired the teacher's single CLI
// process.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aegisreview/aegis/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	root := &cobra.Command{
		Use:           "aegis",
		Short:         "Multi-tenant, RAG/RLHF-backed code review automation platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to aegis.yaml (searched in ./, /etc/aegis/, $HOME/.aegis/ if unset)")

	root.AddCommand(newGatewayCmd(&configPath))
	root.AddCommand(newWorkerCmd(&configPath))
	root.AddCommand(newSchedulerCmd(&configPath))

	return root.Execute()
}

func loadConfig(configPath string) (config.Config, error) {
	paths := defaultConfigPaths()
	if configPath != "" {
		paths = append([]string{filepath.Dir(configPath)}, paths...)
	}
	return config.Load(config.LoaderOptions{
		ConfigPaths: paths,
		FileName:    "aegis",
		EnvPrefix:   "AEGIS",
	})
}

func defaultConfigPaths() []string {
	paths := []string{".", "/etc/aegis"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".aegis"))
	}
	return paths
}

func fatalf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
