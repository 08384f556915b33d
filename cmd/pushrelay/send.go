package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/newthinker/pushrelay/internal/app"
	"github.com/newthinker/pushrelay/internal/core"
	"github.com/newthinker/pushrelay/internal/logger"
	"github.com/newthinker/pushrelay/internal/notifier/pushover"
	"github.com/spf13/cobra"
)

var (
	sendProject   string
	sendMessage   string
	sendURL       string
	sendLevel     string
	sendEventFile string
	sendNew       bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one alert or event through a configured project",
	Long: `Send dispatches a single occurrence through the same rules as the server
and prints the delivery result as JSON. Without --event it sends an alert
built from --message, --url and --level.`,
	Example: `  pushrelay send -c config.yaml -p backend -m "disk almost full" --level warning
  pushrelay send -c config.yaml -p backend --event event.json --new`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendProject, "project", "p", "", "project slug")
	sendCmd.Flags().StringVarP(&sendMessage, "message", "m", "", "alert message")
	sendCmd.Flags().StringVar(&sendURL, "url", "", "alert link")
	sendCmd.Flags().StringVar(&sendLevel, "level", "error", "alert level")
	sendCmd.Flags().StringVar(&sendEventFile, "event", "", "JSON file with an error event")
	sendCmd.Flags().BoolVar(&sendNew, "new", true, "treat the event as the first of its group")
	sendCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	log := logger.Must(logger.Options{Development: debug, Level: logLevel()})
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	application, err := app.New(cfg, pushover.New(cfg.Pushover, log.Named("pushover")), log)
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var result core.Result
	if sendEventFile != "" {
		event, err := readEvent(sendEventFile)
		if err != nil {
			return err
		}
		result, err = application.HandleEvent(ctx, sendProject, event, sendNew)
		if err != nil {
			return err
		}
	} else {
		if sendMessage == "" {
			return fmt.Errorf("--message or --event is required")
		}
		level, err := core.ParseSeverity(sendLevel)
		if err != nil {
			return err
		}
		result, err = application.HandleAlert(ctx, sendProject, core.Alert{
			Message:  sendMessage,
			URL:      sendURL,
			Severity: level,
		})
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if result.Failed() {
		return fmt.Errorf("delivery failed: %s", result.Error)
	}
	return nil
}

func readEvent(path string) (core.ErrorEvent, error) {
	var event core.ErrorEvent
	data, err := os.ReadFile(path)
	if err != nil {
		return event, fmt.Errorf("reading event file: %w", err)
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("decoding event file: %w", err)
	}
	return event, nil
}

// logLevel keeps the one-shot command quiet unless debugging.
func logLevel() string {
	if debug {
		return ""
	}
	return "warn"
}
