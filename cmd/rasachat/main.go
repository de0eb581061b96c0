// rasachat - chat widget for Rasa REST webhook bots.
// Run with no arguments for the terminal UI, or `rasachat web` for the
// self-hosted browser page.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rasachat/pkg/config"
	"rasachat/pkg/logger"
	"rasachat/pkg/rasa"
	"rasachat/pkg/tui"
	"rasachat/pkg/web"
	"rasachat/pkg/widget"
)

var version = "dev"

func main() {
	var (
		configPath string
		serverURL  string
	)

	root := &cobra.Command{
		Use:          "rasachat",
		Short:        "Chat widget for Rasa REST webhook bots",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup(configPath, serverURL)
			if err != nil {
				return err
			}

			// The terminal belongs to tview; keep log lines off it.
			if f, err := os.OpenFile(config.DefaultLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
				logger.SetOutput(f)
				defer f.Close()
			} else {
				logger.SetOutput(io.Discard)
			}

			ui := tui.New()
			w := widget.New(client, ui)
			ui.Attach(w)

			ctx, cancel := signalContext()
			defer cancel()
			return ui.Run(ctx)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "config file path")
	root.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Rasa server base URL (overrides config)")

	webCmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the browser chat page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := setup(configPath, serverURL)
			if err != nil {
				return err
			}

			srv := web.NewServer(cfg.Web)
			w := widget.New(client, srv)
			srv.Attach(w)

			ctx, cancel := signalContext()
			defer cancel()

			if err := srv.Start(ctx); err != nil {
				return err
			}
			fmt.Printf("Chat page on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)

			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Stop(shutdownCtx)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Probe the Rasa server's /status endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup(configPath, serverURL)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			status, err := client.Status(ctx)
			if err != nil {
				return fmt.Errorf("status check failed: %w", err)
			}
			out, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	sendCmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the bot's reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup(configPath, serverURL)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			sender := "rasachat-cli"
			messages, err := client.Send(ctx, sender, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(messages) == 0 {
				fmt.Println("(no response)")
				return nil
			}
			for _, m := range messages {
				if m.Text != "" {
					fmt.Println(m.Text)
				}
				if m.Image != "" {
					fmt.Println("[image]", m.Image)
				}
				if len(m.Custom) > 0 {
					fmt.Println("[custom]", string(m.Custom))
				}
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("rasachat", version)
		},
	}

	root.AddCommand(webCmd, statusCmd, sendCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config, applies the --server override, configures logging and
// builds the Rasa client shared by every command.
func setup(configPath, serverURL string) (*config.Config, *rasa.Client, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if serverURL != "" {
		cfg.SetServerBaseURL(serverURL)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	logger.InfoCF("main", "configured", map[string]interface{}{
		"server": cfg.ServerBaseURL(),
	})

	client := rasa.NewClient(cfg.ServerBaseURL(), time.Duration(cfg.Server.TimeoutSeconds)*time.Second)
	return cfg, client, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
