package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhcgn/mail-campaign/campaign"
	"github.com/dhcgn/mail-campaign/settings"
)

const envPrefix = "MAIL_CAMPAIGN"

// Common holds the options shared by every command.
type Common struct {
	ConfigFile string
	LogLevel   string
	LogDir     string
}

type IMAP struct {
	Host               string
	Port               int
	User               string
	Pass               string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
}

// Scan configures scan-bounces.
type Scan struct {
	Common
	MboxPath              string
	IMAP                  IMAP
	Output                string
	StateDir              string
	SuppressDB            string
	IncludeHeader         []string
	IncludeBody           []string
	ExcludeHeader         []string
	ExcludeBody           []string
	BouncesOnly           bool
	ExtraRules            []string
	IgnoreAddresses       []string
	IncludeDeliveryStatus bool
	Top                   int
}

// Send configures a campaign run.
type Send struct {
	Common
	Contacts           string
	Template           string
	Subject            string
	SenderEmail        string
	SenderName         string
	Password           string
	AppPassword        string
	SMTPServer         string
	SMTPPort           int
	Security           campaign.Security
	Gmail              bool
	InsecureSkipVerify bool
	TestMode           bool
	Delay              time.Duration
	Retries            int
	RetryBackoff       time.Duration
	FailureReport      string
	SuppressDB         string
	SettingsFile       string
	Remember           bool
	Columns            campaign.Columns
}

// Secret returns the SMTP credential for the selected mode.
func (s Send) Secret() string {
	if s.Gmail && s.AppPassword != "" {
		return s.AppPassword
	}
	return s.Password
}

// Settings returns the persisted subset of s.
func (s Send) Settings() settings.Settings {
	return settings.Settings{
		Email:        s.SenderEmail,
		Password:     s.Password,
		AppPassword:  s.AppPassword,
		SenderName:   s.SenderName,
		SMTPServer:   s.SMTPServer,
		SMTPPort:     s.SMTPPort,
		Gmail:        s.Gmail,
		LastContacts: s.Contacts,
		LastTemplate: s.Template,
	}
}

// RegisterCommonFlags attaches the persistent flags to the root command.
func RegisterCommonFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (default ~/.mail-campaign/config.yaml)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
}

// RegisterScanFlags attaches the scan-bounces flags.
func RegisterScanFlags(cmd *cobra.Command) error {
	stateDir, err := defaultDir("state")
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("mbox", "", "Path to the .mbox archive holding bounce messages")
	flags.String("imap-host", "", "Read bounces from this IMAP server instead of an mbox file")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("imap-mailbox", "INBOX", "IMAP folder holding bounce messages")
	flags.StringP("output", "o", "", "Write the rejected addresses to this CSV file")
	flags.String("state-dir", stateDir, "Directory for the incremental scan cache, empty disables it")
	flags.String("suppress-db", "", "Record rejected addresses in this suppression database")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	flags.Bool("bounces-only", false, "Only parse messages whose headers look like delivery failure notifications")
	flags.StringArray("extra-rule", nil, "Additional extraction regex with exactly one capture group")
	flags.StringArray("ignore-address", nil, "Never report this address (e.g. the campaign sender)")
	flags.Bool("include-delivery-status", false, "Also read message/delivery-status parts")
	flags.IntP("top", "t", 10, "Number of rule and filter hits to display")
	return nil
}

// LoadScan converts the parsed flags, environment and config file into a Scan.
func LoadScan(cmd *cobra.Command) (Scan, error) {
	v, common, err := load(cmd)
	if err != nil {
		return Scan{}, err
	}

	cfg := Scan{
		Common:   common,
		MboxPath: strings.TrimSpace(v.GetString("mbox")),
		IMAP: IMAP{
			Host:               v.GetString("imap-host"),
			Port:               v.GetInt("imap-port"),
			User:               v.GetString("imap-user"),
			Pass:               v.GetString("imap-pass"),
			UseTLS:             v.GetBool("use-tls"),
			InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
			Mailbox:            v.GetString("imap-mailbox"),
		},
		Output:                v.GetString("output"),
		StateDir:              v.GetString("state-dir"),
		SuppressDB:            v.GetString("suppress-db"),
		IncludeHeader:         stringList(v, cmd, "include-header"),
		IncludeBody:           stringList(v, cmd, "include-body"),
		ExcludeHeader:         stringList(v, cmd, "exclude-header"),
		ExcludeBody:           stringList(v, cmd, "exclude-body"),
		BouncesOnly:           v.GetBool("bounces-only"),
		ExtraRules:            stringList(v, cmd, "extra-rule"),
		IgnoreAddresses:       stringList(v, cmd, "ignore-address"),
		IncludeDeliveryStatus: v.GetBool("include-delivery-status"),
		Top:                   v.GetInt("top"),
	}
	if cfg.IMAP.Pass == "" {
		cfg.IMAP.Pass = os.Getenv("IMAP_PASS")
	}
	if cfg.StateDir != "" {
		cfg.StateDir = filepath.Clean(cfg.StateDir)
	}

	if err := validateScan(cfg); err != nil {
		return Scan{}, err
	}
	return cfg, nil
}

func validateScan(cfg Scan) error {
	if (cfg.MboxPath == "") == (cfg.IMAP.Host == "") {
		return fmt.Errorf("exactly one of --mbox or --imap-host is required")
	}
	if cfg.IMAP.Host != "" {
		if cfg.IMAP.User == "" {
			return fmt.Errorf("--imap-user is required with --imap-host")
		}
		if cfg.IMAP.Pass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if cfg.IMAP.Port <= 0 || cfg.IMAP.Port > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	}
	includeActive := cfg.BouncesOnly || len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}
	if cfg.Top < 0 {
		return fmt.Errorf("--top must not be negative")
	}
	return nil
}

// RegisterSendFlags attaches the send flags.
func RegisterSendFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("contacts", "", "CSV contact sheet")
	flags.String("template", "", "HTML body template with {{name}}, {{company}} and {{sender_name}}")
	flags.String("subject", "", "Subject line (default \"<sender name> - Servicios que entregan valor\")")
	flags.String("sender-email", "", "Sender address, also the SMTP username")
	flags.String("sender-name", "", "Sender display name")
	flags.String("password", "", "SMTP password (falls back to SMTP_PASS env var)")
	flags.String("app-password", "", "Gmail App Password")
	flags.String("smtp-server", "", "SMTP server hostname")
	flags.Int("smtp-port", 465, "SMTP server port")
	flags.String("security", "auto", "Connection security: auto, ssl, starttls, none")
	flags.Bool("gmail", false, "Gmail mode: smtp.gmail.com, App Password, port 465 or 587")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.Bool("test-mode", false, "Send every message to the sender address instead of the contacts")
	flags.Duration("delay", campaign.DefaultDelay, "Pause between messages")
	flags.Int("retries", 1, "Extra attempts for temporary and network failures")
	flags.Duration("retry-backoff", 10*time.Second, "Wait before the first retry, grows linearly")
	flags.String("failure-report", campaign.DefaultFailureReport, "CSV report of contacts that could not be mailed")
	flags.String("suppress-db", "", "Skip addresses recorded in this suppression database")
	flags.String("settings-file", settings.DefaultFile, "Saved sender settings used for empty flags")
	flags.Bool("remember", false, "Save the sender settings after a successful start")
	flags.String("column-name", campaign.DefaultColumns.Name, "Contact name column")
	flags.String("column-company", campaign.DefaultColumns.Company, "Company column")
	flags.String("column-email", campaign.DefaultColumns.Email, "Email column")
}

// LoadSend converts flags, environment, config file and saved settings into a
// Send. Saved settings only fill values that are still empty.
func LoadSend(cmd *cobra.Command) (Send, error) {
	v, common, err := load(cmd)
	if err != nil {
		return Send{}, err
	}

	security, err := campaign.ParseSecurity(v.GetString("security"))
	if err != nil {
		return Send{}, err
	}

	cfg := Send{
		Common:             common,
		Contacts:           v.GetString("contacts"),
		Template:           v.GetString("template"),
		Subject:            v.GetString("subject"),
		SenderEmail:        v.GetString("sender-email"),
		SenderName:         v.GetString("sender-name"),
		Password:           v.GetString("password"),
		AppPassword:        v.GetString("app-password"),
		SMTPServer:         v.GetString("smtp-server"),
		SMTPPort:           v.GetInt("smtp-port"),
		Security:           security,
		Gmail:              v.GetBool("gmail"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		TestMode:           v.GetBool("test-mode"),
		Delay:              v.GetDuration("delay"),
		Retries:            v.GetInt("retries"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		FailureReport:      v.GetString("failure-report"),
		SuppressDB:         v.GetString("suppress-db"),
		SettingsFile:       v.GetString("settings-file"),
		Remember:           v.GetBool("remember"),
		Columns: campaign.Columns{
			Name:    v.GetString("column-name"),
			Company: v.GetString("column-company"),
			Email:   v.GetString("column-email"),
		},
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("SMTP_PASS")
	}

	if cfg.SettingsFile != "" {
		stored, err := settings.Load(cfg.SettingsFile)
		if err != nil {
			return Send{}, err
		}
		applySettings(&cfg, stored, explicitlySet(v, cmd, "smtp-port"))
	}
	if cfg.Gmail && cfg.SMTPServer == "" {
		cfg.SMTPServer = "smtp.gmail.com"
	}

	if err := validateSend(cfg); err != nil {
		return Send{}, err
	}
	return cfg, nil
}

func applySettings(cfg *Send, stored settings.Settings, portSet bool) {
	if stored.IsZero() {
		return
	}
	fill := func(dst *string, value string) {
		if *dst == "" {
			*dst = value
		}
	}
	fill(&cfg.SenderEmail, stored.Email)
	fill(&cfg.Password, stored.Password)
	fill(&cfg.AppPassword, stored.AppPassword)
	fill(&cfg.SenderName, stored.SenderName)
	fill(&cfg.SMTPServer, stored.SMTPServer)
	fill(&cfg.Contacts, stored.LastContacts)
	fill(&cfg.Template, stored.LastTemplate)
	if !portSet && stored.SMTPPort > 0 {
		cfg.SMTPPort = stored.SMTPPort
	}
	if stored.Gmail {
		cfg.Gmail = true
	}
}

func validateSend(cfg Send) error {
	if cfg.Contacts == "" {
		return fmt.Errorf("--contacts is required")
	}
	if cfg.Template == "" {
		return fmt.Errorf("--template is required")
	}
	if cfg.SenderEmail == "" {
		return fmt.Errorf("--sender-email is required")
	}
	if cfg.SMTPServer == "" {
		return fmt.Errorf("--smtp-server is required")
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return fmt.Errorf("--smtp-port must be between 1 and 65535")
	}
	if cfg.Gmail && cfg.SMTPPort != 465 && cfg.SMTPPort != 587 {
		return campaign.ErrGmailPort
	}
	if cfg.Secret() == "" {
		return fmt.Errorf("SMTP password must be provided via --password, --app-password or SMTP_PASS env var")
	}
	if cfg.Delay < 0 || cfg.Retries < 0 || cfg.RetryBackoff < 0 {
		return fmt.Errorf("--delay, --retries and --retry-backoff must not be negative")
	}
	return nil
}

// load builds a viper instance over the command's flags, MAIL_CAMPAIGN_*
// environment variables and the config file, in that order of precedence.
func load(cmd *cobra.Command) (*viper.Viper, Common, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, Common{}, fmt.Errorf("bind flags: %w", err)
	}

	configFile := v.GetString("config")
	explicit := configFile != ""
	if !explicit {
		dir, err := defaultDir("")
		if err == nil {
			configFile = filepath.Join(dir, "config.yaml")
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
			if explicit || !missing {
				return nil, Common{}, fmt.Errorf("read config %s: %w", configFile, err)
			}
		}
	}

	logLevel := strings.ToLower(v.GetString("log-level"))
	if logLevel == "warning" {
		logLevel = "warn"
	}
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, Common{}, fmt.Errorf("invalid --log-level: %s", logLevel)
	}

	return v, Common{
		ConfigFile: v.ConfigFileUsed(),
		LogLevel:   logLevel,
		LogDir:     v.GetString("log-dir"),
	}, nil
}

// stringList reads repeatable flags. Values given on the command line are taken
// verbatim; viper would split them on commas, which breaks regex quantifiers.
func stringList(v *viper.Viper, cmd *cobra.Command, key string) []string {
	if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
		if values, err := cmd.Flags().GetStringArray(key); err == nil {
			return values
		}
	}
	return v.GetStringSlice(key)
}

// explicitlySet reports whether key came from the command line, the
// environment or the config file rather than a flag default.
func explicitlySet(v *viper.Viper, cmd *cobra.Command, key string) bool {
	if cmd.Flags().Changed(key) || v.InConfig(key) {
		return true
	}
	_, ok := os.LookupEnv(envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_")))
	return ok
}

func defaultDir(sub string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mail-campaign", sub), nil
}
