package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"plantid-server-go/internal/bootstrap"
	"plantid-server-go/internal/domain/relay"
	domainshell "plantid-server-go/internal/domain/shell"
	"plantid-server-go/internal/domain/shell/store"
	platformconfig "plantid-server-go/internal/platform/config"
	"plantid-server-go/internal/platform/logging"
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	timeout    time.Duration
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "plantidctl",
		Short:         "Inspect and manage the PlantID shell cache and relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default .config.yaml or $PLANTID_CONFIG)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", time.Minute, "overall command timeout")

	root.AddCommand(newGenerationsCommand(g))
	root.AddCommand(newPurgeCommand(g))
	root.AddCommand(newInstallCommand(g))
	root.AddCommand(newIdentifyCommand(g))
	return root
}

func (g *globals) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.timeout)
}

func (g *globals) load() (*platformconfig.Config, error) {
	return bootstrap.LoadConfig(g.configPath)
}

func (g *globals) openStore() (*platformconfig.Config, store.Store, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	st, err := bootstrap.OpenStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func newGenerationsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "generations",
		Short: "List cache generations and their entry counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context()
			defer cancel()

			cfg, st, err := g.openStore()
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			names, err := st.Generations(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "no generations")
				return nil
			}
			for _, name := range names {
				keys, err := st.Keys(ctx, name)
				if err != nil {
					return err
				}
				marker := " "
				if name == cfg.Shell.Generation {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\t%d entries\n", marker, name, len(keys))
			}
			return nil
		},
	}
}

func newPurgeCommand(g *globals) *cobra.Command {
	var keep string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every generation except the one kept",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context()
			defer cancel()

			cfg, st, err := g.openStore()
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			if keep == "" {
				keep = cfg.Shell.Generation
			}
			names, err := st.Generations(ctx)
			if err != nil {
				return err
			}
			deleted := 0
			for _, name := range names {
				if name == keep {
					continue
				}
				if _, err := st.Delete(ctx, name); err != nil {
					return fmt.Errorf("delete %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
				deleted++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kept %s, deleted %d\n", keep, deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&keep, "keep", "", "generation to keep (default: configured generation)")
	return cmd
}

func newInstallCommand(g *globals) *cobra.Command {
	var generation string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Fetch the shell files into a generation and activate it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context()
			defer cancel()

			cfg, st, err := g.openStore()
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			if generation != "" {
				cfg.Shell.Generation = generation
			}
			origin := bootstrap.ShellOrigin(cfg)
			fetcher, err := bootstrap.NewShellFetcher(cfg, origin)
			if err != nil {
				return err
			}
			worker, err := domainshell.NewCacheWorker(bootstrap.ShellConfig(cfg, origin), st, fetcher, domainshell.WithLogger(logging.Discard()))
			if err != nil {
				return err
			}
			defer worker.Close()

			controller := domainshell.NewController(nil, nil, nil)
			if err := controller.Register(ctx, cfg.Shell.Generation, worker); err != nil {
				return cliError{code: 2, err: fmt.Errorf("install %s failed: %w", cfg.Shell.Generation, err)}
			}

			keys, err := st.Keys(ctx, cfg.Shell.Generation)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, key := range keys {
				fmt.Fprintln(out, key)
			}
			fmt.Fprintf(out, "installed %s (%d files)\n", cfg.Shell.Generation, len(keys))
			return nil
		},
	}
	cmd.Flags().StringVar(&generation, "generation", "", "generation name (default: configured generation)")
	return cmd
}

func newIdentifyCommand(g *globals) *cobra.Command {
	var imagePath, apiKey, mime string
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Send a photo through the relay and print the raw result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if imagePath == "" {
				return fmt.Errorf("--image is required")
			}
			if apiKey == "" {
				apiKey = os.Getenv("ANTHROPIC_API_KEY")
			}
			raw, err := os.ReadFile(imagePath)
			if err != nil {
				return err
			}
			if mime == "" {
				mime = strings.SplitN(http.DetectContentType(raw), ";", 2)[0]
			}

			cfg, err := g.load()
			if err != nil {
				return err
			}
			svc, err := bootstrap.NewRelayService(cfg.Relay, logging.Discard())
			if err != nil {
				return err
			}

			ctx, cancel := g.context()
			defer cancel()
			reply, err := svc.Identify(ctx, relay.IdentificationRequest{
				ImageBase64: base64.StdEncoding.EncodeToString(raw),
				ImageMime:   mime,
				APIKey:      apiKey,
			})
			if err != nil {
				var failure *relay.Failure
				if errors.As(err, &failure) {
					return cliError{code: 3, err: fmt.Errorf("identify failed (%d): %s", failure.Status, failure.Message)}
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(reply.Body))
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "path to the photo")
	cmd.Flags().StringVar(&apiKey, "key", "", "API key (default $ANTHROPIC_API_KEY)")
	cmd.Flags().StringVar(&mime, "mime", "", "image media type (default: sniffed)")
	return cmd
}
