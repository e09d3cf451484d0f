// Package config defines the process configuration and CLI flag surface
// from §6, loaded via a cobra command tree with viper backing the
// optional --config-file (grounded on the teacher pack's
// internal/config.LoadConfig pattern, generalized from a single
// viper.New/ReadInConfig/Unmarshal call into flag-overridable defaults).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thinkparq/mgmtd/errors"
)

// ExitCode mirrors §6's fixed process exit codes.
type ExitCode int

const (
	ExitOK           ExitCode = 0
	ExitConfigError  ExitCode = 1
	ExitStoreError   ExitCode = 2
	ExitBindError    ExitCode = 3
	ExitFatalRuntime ExitCode = 4
)

// Config is the fully resolved process configuration: CLI flags override
// values loaded from --config-file, which override the built-in
// defaults returned by defaults().
type Config struct {
	ConfigFile string `mapstructure:"-"`
	DBFile     string `mapstructure:"db_file"`
	Init       bool   `mapstructure:"-"`

	BeemsgPort int `mapstructure:"beemsg_port"`
	GRPCPort   int `mapstructure:"grpc_port"`

	TLSDisable bool   `mapstructure:"tls_disable"`
	TLSCert    string `mapstructure:"tls_cert_file"`
	TLSKey     string `mapstructure:"tls_key_file"`

	AuthDisable bool   `mapstructure:"auth_disable"`
	AuthFile    string `mapstructure:"auth_file"`

	Interfaces      []string `mapstructure:"interfaces"`
	ConnectionLimit int      `mapstructure:"connection_limit"`

	RegistrationDisable     bool `mapstructure:"registration_disable"`
	NodeOfflineTimeoutSec   int  `mapstructure:"node_offline_timeout"`
	ClientAutoRemoveTimeout int  `mapstructure:"client_auto_remove_timeout"`

	QuotaEnable         bool `mapstructure:"quota_enable"`
	QuotaEnforce        bool `mapstructure:"quota_enforce"`
	QuotaUpdateInterval int  `mapstructure:"quota_update_interval"`

	LogTarget string `mapstructure:"log_target"` // "journald" or "stderr"
	LogLevel  string `mapstructure:"log_level"`
}

func defaults() Config {
	return Config{
		DBFile:                  "/var/lib/beegfs/mgmtd.db",
		BeemsgPort:              8008,
		GRPCPort:                8010,
		ConnectionLimit:         12,
		NodeOfflineTimeoutSec:   180,
		ClientAutoRemoveTimeout: 1800,
		QuotaUpdateInterval:     60,
		LogTarget:               "stderr",
		LogLevel:                "info",
	}
}

// NewRootCommand builds the "beegfs-mgmtd" cobra command, binding every
// flag named in §6. run receives the fully resolved Config after flags and
// --config-file have both been applied.
func NewRootCommand(version string, run func(Config) ExitCode) *cobra.Command {
	cfg := defaults()
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "beegfs-mgmtd",
		Short:         "BeeGFS cluster management service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.ConfigFile != "" {
				// Snapshot the flags the user set explicitly before the
				// config file overwrites cfg, so they can be reapplied
				// afterward: flags outrank the config file, which outranks
				// the defaults.
				explicit := cfg
				v.SetConfigFile(cfg.ConfigFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading --config-file: %w", err)
				}
				if err := v.Unmarshal(&cfg); err != nil {
					return fmt.Errorf("parsing --config-file: %w", err)
				}
				reapplyExplicitFlags(cmd, &cfg, explicit)
			}
			code := run(cfg)
			if code != ExitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ConfigFile, "config-file", cfg.ConfigFile, "path to a YAML/JSON/TOML config file")
	flags.StringVar(&cfg.DBFile, "db-file", cfg.DBFile, "path to the SQLite database file")
	flags.BoolVar(&cfg.Init, "init", false, "initialize a new database at --db-file and exit")
	flags.IntVar(&cfg.BeemsgPort, "beemsg-port", cfg.BeemsgPort, "UDP/TCP port for the BeeMsg protocol")
	flags.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "TCP port for the administrative RPC service")
	flags.BoolVar(&cfg.TLSDisable, "tls-disable", cfg.TLSDisable, "disable TLS on the RPC service")
	flags.StringVar(&cfg.TLSCert, "tls-cert-file", cfg.TLSCert, "PEM certificate file for the RPC service")
	flags.StringVar(&cfg.TLSKey, "tls-key-file", cfg.TLSKey, "PEM private key file for the RPC service")
	flags.BoolVar(&cfg.AuthDisable, "auth-disable", cfg.AuthDisable, "disable shared-secret authentication")
	flags.StringVar(&cfg.AuthFile, "auth-file", cfg.AuthFile, "path to the file holding the shared secret")
	flags.StringSliceVar(&cfg.Interfaces, "interfaces", cfg.Interfaces, "comma-separated list of interface names to advertise")
	flags.IntVar(&cfg.ConnectionLimit, "connection-limit", cfg.ConnectionLimit, "max pooled BeeMsg TCP connections per peer")
	flags.BoolVar(&cfg.RegistrationDisable, "registration-disable", cfg.RegistrationDisable, "reject new node registrations")
	flags.IntVar(&cfg.NodeOfflineTimeoutSec, "node-offline-timeout", cfg.NodeOfflineTimeoutSec, "seconds without a heartbeat before a node is marked OFFLINE")
	flags.IntVar(&cfg.ClientAutoRemoveTimeout, "client-auto-remove-timeout", cfg.ClientAutoRemoveTimeout, "seconds without a heartbeat before a client node is removed")
	flags.BoolVar(&cfg.QuotaEnable, "quota-enable", cfg.QuotaEnable, "enable the quota pull/compare/push cycle")
	flags.BoolVar(&cfg.QuotaEnforce, "quota-enforce", cfg.QuotaEnforce, "treat exceeded quotas as enforced rather than advisory")
	flags.IntVar(&cfg.QuotaUpdateInterval, "quota-update-interval", cfg.QuotaUpdateInterval, "seconds between quota cycles")
	flags.StringVar(&cfg.LogTarget, "log-target", cfg.LogTarget, "journald or stderr")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, or error")

	return cmd
}

// reapplyExplicitFlags restores, onto cfg (just populated from the config
// file), every field whose flag the user actually passed on the command
// line, using the pre-config-file snapshot in explicit.
func reapplyExplicitFlags(cmd *cobra.Command, cfg *Config, explicit Config) {
	flags := cmd.Flags()
	if flags.Changed("db-file") {
		cfg.DBFile = explicit.DBFile
	}
	if flags.Changed("beemsg-port") {
		cfg.BeemsgPort = explicit.BeemsgPort
	}
	if flags.Changed("grpc-port") {
		cfg.GRPCPort = explicit.GRPCPort
	}
	if flags.Changed("tls-disable") {
		cfg.TLSDisable = explicit.TLSDisable
	}
	if flags.Changed("tls-cert-file") {
		cfg.TLSCert = explicit.TLSCert
	}
	if flags.Changed("tls-key-file") {
		cfg.TLSKey = explicit.TLSKey
	}
	if flags.Changed("auth-disable") {
		cfg.AuthDisable = explicit.AuthDisable
	}
	if flags.Changed("auth-file") {
		cfg.AuthFile = explicit.AuthFile
	}
	if flags.Changed("interfaces") {
		cfg.Interfaces = explicit.Interfaces
	}
	if flags.Changed("connection-limit") {
		cfg.ConnectionLimit = explicit.ConnectionLimit
	}
	if flags.Changed("registration-disable") {
		cfg.RegistrationDisable = explicit.RegistrationDisable
	}
	if flags.Changed("node-offline-timeout") {
		cfg.NodeOfflineTimeoutSec = explicit.NodeOfflineTimeoutSec
	}
	if flags.Changed("client-auto-remove-timeout") {
		cfg.ClientAutoRemoveTimeout = explicit.ClientAutoRemoveTimeout
	}
	if flags.Changed("quota-enable") {
		cfg.QuotaEnable = explicit.QuotaEnable
	}
	if flags.Changed("quota-enforce") {
		cfg.QuotaEnforce = explicit.QuotaEnforce
	}
	if flags.Changed("quota-update-interval") {
		cfg.QuotaUpdateInterval = explicit.QuotaUpdateInterval
	}
	if flags.Changed("log-target") {
		cfg.LogTarget = explicit.LogTarget
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = explicit.LogLevel
	}
	// ConfigFile and Init are never sourced from the config file itself.
	cfg.ConfigFile = explicit.ConfigFile
	cfg.Init = explicit.Init
}

// exitError carries a §6 exit code out of cobra's RunE without printing an
// extra error line; main inspects it to pick os.Exit's argument.
type exitError struct{ code ExitCode }

func (e *exitError) Error() string { return "" }

func (e *exitError) Code() ExitCode { return e.code }

// Validate checks the structural constraints §6 implies (port ranges, TLS
// file pairing) before the supervisor attempts to bind anything.
func (c Config) Validate() error {
	if c.BeemsgPort <= 0 || c.BeemsgPort > 65535 {
		return fmt.Errorf("--beemsg-port out of range: %d", c.BeemsgPort)
	}
	if c.GRPCPort <= 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("--grpc-port out of range: %d", c.GRPCPort)
	}
	if !c.TLSDisable && (c.TLSCert == "" || c.TLSKey == "") {
		return fmt.Errorf("--tls-cert-file and --tls-key-file are required unless --tls-disable is set")
	}
	switch strings.ToLower(c.LogTarget) {
	case "journald", "stderr":
	default:
		return fmt.Errorf("--log-target must be journald or stderr, got %q", c.LogTarget)
	}
	return nil
}

// ExitCodeFor maps err's errors.Kind to the fixed §6 process exit codes. A
// nil err maps to ExitOK.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitOK
	}
	switch errors.KindOf(err) {
	case errors.KindConfig:
		return ExitConfigError
	case errors.KindIO, errors.KindMigrationFailed:
		return ExitStoreError
	case errors.KindBind:
		return ExitBindError
	default:
		return ExitFatalRuntime
	}
}
