package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/fsmanager"
	"github.com/hscfs-project/hscfs-core/internal/hscfslog"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// lpaRange is a pflag.Value accepting "start-end" and splitting it into
// the meta-journal ring's bounding LPAs, so the ring can be given as the
// single range a device layout actually describes it as, rather than as
// two separately-fallible flags.
type lpaRange struct {
	start, end uint32
	set        bool
}

func (r *lpaRange) String() string {
	if !r.set {
		return ""
	}
	return fmt.Sprintf("%d-%d", r.start, r.end)
}

func (r *lpaRange) Set(s string) error {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return fmt.Errorf("journal-lpa-range must be start-end, got %q", s)
	}
	start, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return fmt.Errorf("journal-lpa-range start: %w", err)
	}
	end, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return fmt.Errorf("journal-lpa-range end: %w", err)
	}
	r.start, r.end, r.set = uint32(start), uint32(end), true
	return nil
}

func (r *lpaRange) Type() string { return "start-end" }

var journalRange lpaRange

// bindJournalRangeFlag registers the combined journal-lpa-range flag
// directly against the pflag set cobra exposes, rather than through
// viper's struct-unmarshal path, since lpaRange isn't a shape
// mapstructure can decode into.
func bindJournalRangeFlag(flags *pflag.FlagSet) {
	flags.Var(&journalRange, "journal-lpa-range", "meta-journal ring as start-end LPA, e.g. 100-200 (overrides journal-start-lpa/journal-end-lpa)")
}

func journalLPA(v uint32) ondisk.LPA { return ondisk.LPA(v) }

// mountConfig is the flag/env/config-file surface, unmarshaled by viper
// and translated 1:1 into an fsmanager.Config. Grounded on the teacher's
// cmd/root.go + cmd/flags.go split: persistent flags bound once in
// init, a single package-level config struct filled by viper.Unmarshal
// rather than read flag-by-flag at call sites.
type mountConfig struct {
	DentryCacheSize  int `mapstructure:"dentry-cache-size"`
	NodeCacheSize    int `mapstructure:"node-cache-size"`
	DirDataCacheSize int `mapstructure:"dirdata-cache-size"`
	SitCacheSize     int `mapstructure:"sit-cache-size"`
	NatCacheSize     int `mapstructure:"nat-cache-size"`
	FileCacheSize    int `mapstructure:"file-cache-size"`
	PageCacheSize    int `mapstructure:"page-cache-size"`
	FdTableSize      int `mapstructure:"fd-table-size"`

	JournalStartLPA     uint32 `mapstructure:"journal-start-lpa"`
	JournalEndLPA       uint32 `mapstructure:"journal-end-lpa"`
	CommitQueueCapacity int    `mapstructure:"commit-queue-capacity"`
}

var (
	cfgFile string
	bindErr error
	cfg     mountConfig
)

var rootCmd = &cobra.Command{
	Use:   "hscfsmount",
	Short: "Bring up the HSCFS filesystem core against a block device",
	Long: `hscfsmount assembles an fsmanager.Root from cache-size and
journal-geometry flags and keeps it running until signaled to shut
down. It carries no POSIX mount surface of its own; wiring the running
core to a kernel mount point is left to a caller embedding this module.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		return runMount(cmd.Context())
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	bindJournalRangeFlag(flags)
	flags.StringVar(&cfgFile, "config-file", "", "path to a YAML config file overriding the defaults below")
	flags.Int("dentry-cache-size", 0, "max pinned+cached dentries (0: fsmanager default)")
	flags.Int("node-cache-size", 0, "max pinned+cached node blocks (0: fsmanager default)")
	flags.Int("dirdata-cache-size", 0, "max pinned+cached directory data blocks (0: fsmanager default)")
	flags.Int("sit-cache-size", 0, "max cached SIT blocks (0: fsmanager default)")
	flags.Int("nat-cache-size", 0, "max cached NAT blocks (0: fsmanager default)")
	flags.Int("file-cache-size", 0, "max open file objects (0: fsmanager default)")
	flags.Int("page-cache-size", 0, "max dirty data pages held before forced write-back (0: fsmanager default)")
	flags.Int("fd-table-size", 0, "max simultaneously open file descriptors (0: fsmanager default)")
	flags.Uint32("journal-start-lpa", 0, "first LPA of the on-device meta-journal ring")
	flags.Uint32("journal-end-lpa", 0, "one past the last LPA of the on-device meta-journal ring")
	flags.Int("commit-queue-capacity", 0, "buffered journal commits before Commit blocks (0: fsmanager default)")

	bindErr = viper.BindPFlags(flags)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			bindErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}
	viper.SetEnvPrefix("HSCFS")
	viper.AutomaticEnv()
	if err := viper.Unmarshal(&cfg); err != nil {
		bindErr = fmt.Errorf("unmarshaling config: %w", err)
	}
}

// runMount builds the Device this binary ships (see DESIGN.md: real
// vendor transport wiring is out of scope, so this is the same
// FakeDevice the test suite uses, now driving a live process instead of
// a unit test), starts the core, and blocks until ctx is canceled.
func runMount(ctx context.Context) error {
	dev := device.NewFakeDevice()

	startLPA, endLPA := cfg.JournalStartLPA, cfg.JournalEndLPA
	if journalRange.set {
		startLPA, endLPA = journalRange.start, journalRange.end
	}

	root, err := fsmanager.New(ctx, fsmanager.Config{
		Device:              dev,
		DentryCacheSize:     cfg.DentryCacheSize,
		NodeCacheSize:       cfg.NodeCacheSize,
		DirDataCacheSize:    cfg.DirDataCacheSize,
		SitCacheSize:        cfg.SitCacheSize,
		NatCacheSize:        cfg.NatCacheSize,
		FileCacheSize:       cfg.FileCacheSize,
		PageCacheSize:       cfg.PageCacheSize,
		FdTableSize:         cfg.FdTableSize,
		JournalStartLPA:     journalLPA(startLPA),
		JournalEndLPA:       journalLPA(endLPA),
		CommitQueueCapacity: cfg.CommitQueueCapacity,
		Log:                 hscfslog.New("hscfsmount"),
	})
	if err != nil {
		return fmt.Errorf("starting filesystem core: %w", err)
	}

	<-ctx.Done()
	return root.Shutdown(context.Background())
}
