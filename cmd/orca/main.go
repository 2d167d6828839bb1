package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/ASoldo/orca/internal/app"
	"github.com/ASoldo/orca/internal/config"
	"github.com/ASoldo/orca/internal/k8s"
	"github.com/ASoldo/orca/internal/logging"
	"github.com/ASoldo/orca/internal/ui"
)

const minRefreshMs = 500

func main() {
	// client-go logs RBAC noise through klog during watches; keep it quiet.
	klog.InitFlags(nil)
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "FATAL")
	flag.Set("v", "0")
	defer klog.Flush()

	var (
		refreshMs     int
		namespace     string
		allNamespaces bool
		logFilter     string
		logFile       string
		kubeconfig    string
		contextName   string
		themeName     string
	)

	root := &cobra.Command{
		Use:           "orca",
		Short:         "Interactive terminal cockpit for Kubernetes clusters",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if namespace != "" && allNamespaces {
				return usageError("-n/--namespace and -A/--all-namespaces are mutually exclusive")
			}
			if refreshMs < minRefreshMs {
				refreshMs = minRefreshMs
			}

			if logFile == "" {
				if cache, err := os.UserCacheDir(); err == nil {
					logFile = filepath.Join(cache, "orca", "orca.log")
				}
			}
			if err := logging.Init(logging.Config{
				FilePath:   logFile,
				Level:      logging.ParseLevel(logFilter),
				MaxSizeMB:  10,
				MaxBackups: 3,
			}); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}

			client, err := k8s.NewClusterClient(kubeconfig, contextName)
			if err != nil {
				return fmt.Errorf("failed to build Kubernetes client: %w", err)
			}

			model := app.NewModel(app.Options{
				Client:        client,
				Theme:         ui.GetTheme(themeName),
				RefreshMs:     refreshMs,
				Namespace:     namespace,
				AllNamespaces: allNamespaces,
				ReadOnly:      os.Getenv("ORCA_READONLY") == "1",
				ConfigPath:    config.DiscoverPath(),
			})
			defer model.Teardown()

			p := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("terminal error: %w", err)
			}
			return nil
		},
	}

	root.Flags().IntVar(&refreshMs, "refresh-ms", 2000, "refresh interval in milliseconds (minimum 500)")
	root.Flags().StringVarP(&namespace, "namespace", "n", "", "restrict views to one namespace")
	root.Flags().BoolVarP(&allNamespaces, "all-namespaces", "A", false, "show resources across all namespaces")
	root.Flags().StringVar(&logFilter, "log-filter", "info", "log level: debug, info, warn, error")
	root.Flags().StringVar(&logFile, "log-file", "", "log file path (default: user cache dir)")
	root.Flags().StringVar(&kubeconfig, "kubeconfig", "", "path to kubeconfig (default: $KUBECONFIG or ~/.kube/config)")
	root.Flags().StringVar(&contextName, "context", "", "kubeconfig context to use")
	root.Flags().StringVar(&themeName, "theme", "charm", "color theme: charm, dracula, nord")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "orca:", err)
		if isUsageError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type usageErr struct{ msg string }

func (e usageErr) Error() string { return e.msg }

func usageError(msg string) error { return usageErr{msg: msg} }

func isUsageError(err error) bool {
	if _, ok := err.(usageErr); ok {
		return true
	}
	// cobra/pflag parse failures
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.HasPrefix(msg, "invalid argument")
}
