package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Seednode/partydisplay/catalog"
	"github.com/Seednode/partydisplay/hub"
)

type Config struct {
	bind        string
	catalog     string
	characters  string
	partyFile   string
	port        int
	prefix      string
	profile     bool
	queueSize   int
	recruitment string
	staticDir   string
	tlsCert     string
	tlsKey      string
	verbose     bool
	version     bool
	watch       bool
	writeWait   time.Duration

	logger *zap.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.partyFile == "" {
		return errors.New("--party-file must not be empty")
	}
	if c.queueSize < 1 {
		return fmt.Errorf("invalid queue size (must be positive): %d", c.queueSize)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) sources() catalog.Sources {
	return catalog.Sources{
		Processed:   c.catalog,
		Characters:  c.characters,
		Recruitment: c.recruitment,
	}
}

// bindFlags lets every flag in fs be set from a PARTYDISPLAY_ environment
// variable, unless it was given on the command line.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PARTYDISPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "partydisplay",
		Short:         "Keeps a six-member party in sync between every connected display.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			cfg.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cfg.logger != nil {
				_ = cfg.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.StringVar(&cfg.catalog, "catalog", "data/characters_processed.json", "processed character list, json or yaml (env: PARTYDISPLAY_CATALOG)")
	pfs.StringVar(&cfg.characters, "characters", "data/characters.json", "character name to image mapping (env: PARTYDISPLAY_CHARACTERS)")
	pfs.StringVar(&cfg.partyFile, "party-file", "data/party.json", "file the party is persisted to (env: PARTYDISPLAY_PARTY_FILE)")
	pfs.StringVar(&cfg.recruitment, "recruitment", "data/recruitment.json", "character name to recruitment info mapping (env: PARTYDISPLAY_RECRUITMENT)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PARTYDISPLAY_VERBOSE)")

	fs := cmd.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PARTYDISPLAY_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 5000, "port to listen on (env: PARTYDISPLAY_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PARTYDISPLAY_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PARTYDISPLAY_PROFILE)")
	fs.IntVar(&cfg.queueSize, "queue-size", hub.DefaultQueueSize, "messages buffered per client before it is dropped (env: PARTYDISPLAY_QUEUE_SIZE)")
	fs.StringVar(&cfg.staticDir, "static-dir", "static", "directory served under /static (env: PARTYDISPLAY_STATIC_DIR)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PARTYDISPLAY_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PARTYDISPLAY_TLS_KEY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PARTYDISPLAY_VERSION)")
	fs.BoolVar(&cfg.watch, "watch", true, "reload the party when another process rewrites the party file (env: PARTYDISPLAY_WATCH)")
	fs.DurationVar(&cfg.writeWait, "write-timeout", 10*time.Second, "time allowed to write a message to a client (env: PARTYDISPLAY_WRITE_TIMEOUT)")

	bindFlags(v, pfs)
	bindFlags(v, fs)

	cmd.AddCommand(newMergeCmd(cfg), newPartyCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partydisplay v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
