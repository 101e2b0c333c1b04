package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-campaign/campaign"
	"github.com/dhcgn/mail-campaign/config"
	"github.com/dhcgn/mail-campaign/progress"
	"github.com/dhcgn/mail-campaign/settings"
	"github.com/dhcgn/mail-campaign/stats"
	"github.com/dhcgn/mail-campaign/suppression"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send the personalized HTML message to every contact in a CSV sheet",
	Long: "Renders the HTML template for each contact and delivers it over SMTP, one " +
		"connection per message. Contacts recorded in the suppression database are " +
		"skipped and contacts that could not be mailed are written to a failure report.",
	Args: cobra.NoArgs,
	RunE: runSend,
}

func init() {
	config.RegisterSendFlags(sendCmd)
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSend(cmd)
	if err != nil {
		return err
	}

	logger, _, cleanup, err := startRun(cfg.Common, "send")
	if err != nil {
		return err
	}
	defer func() {
		_ = cleanup()
	}()

	ctx := cmd.Context()

	list, err := campaign.LoadContacts(cfg.Contacts, cfg.Columns, logger)
	if err != nil {
		return err
	}
	if len(list.Contacts) == 0 {
		pterm.Warning.Println("No contacts with a valid email address")
		return nil
	}
	tmpl, err := campaign.LoadTemplate(cfg.Template)
	if err != nil {
		return err
	}

	transport, err := campaign.NewSMTPTransport(campaign.SMTPOptions{
		Host:               cfg.SMTPServer,
		Port:               cfg.SMTPPort,
		Username:           cfg.SenderEmail,
		Password:           cfg.Secret(),
		Security:           cfg.Security,
		Gmail:              cfg.Gmail,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return err
	}

	opts := campaign.Options{Transport: transport, Logger: logger}
	if cfg.SuppressDB != "" {
		store, err := suppression.Open(cfg.SuppressDB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Suppressor = store
	}

	if cfg.Remember {
		if err := settings.Save(cfg.SettingsFile, cfg.Settings()); err != nil {
			logger.Warn("saving settings failed", "path", cfg.SettingsFile, "error", err)
		} else {
			logger.Info("settings saved", "path", settings.DisplayPath(cfg.SettingsFile))
		}
	}

	bar := progress.New("Sending", len(list.Contacts), cfg.LogLevel == "info")
	opts.Observer = bar.Observe

	c, err := campaign.New(campaign.Config{
		SenderEmail:  cfg.SenderEmail,
		SenderName:   cfg.SenderName,
		Subject:      cfg.Subject,
		Template:     tmpl,
		TestMode:     cfg.TestMode,
		Delay:        cfg.Delay,
		Retries:      cfg.Retries,
		RetryBackoff: cfg.RetryBackoff,
		Gmail:        cfg.Gmail,
	}, opts)
	if err != nil {
		bar.Stop()
		return err
	}

	if cfg.TestMode {
		pterm.Info.Printf("Test mode: every message goes to %s\n", cfg.SenderEmail)
	}

	started := time.Now()
	res, runErr := c.Run(ctx, list.Contacts)
	bar.Stop()

	logger.Info("stats summary", res.Summary.LogAttrs()...)
	progress.PrintSummary(stats.StageCampaign, res.Summary, time.Since(started))

	if len(res.Failed) > 0 {
		if err := campaign.WriteFailureReport(cfg.FailureReport, list.Header, res.Failed); err != nil {
			logger.Error("writing failure report failed", "path", cfg.FailureReport, "error", err)
			return errors.Join(runErr, err)
		}
		pterm.Warning.Printf("%d contacts could not be mailed, see %s\n", len(res.Failed), cfg.FailureReport)
		logger.Info("failure report written", "path", cfg.FailureReport, "failed", len(res.Failed))
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			pterm.Warning.Println("Campaign interrupted")
		}
		return runErr
	}
	pterm.Success.Printf("Campaign %s finished: %d sent\n", res.ID, res.Sent)
	return nil
}
