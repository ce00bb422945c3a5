package cmd

import (
	"fmt"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tarpack/tarpack/pkg/dlogger"
	"github.com/tarpack/tarpack/pkg/engine"
	"github.com/tarpack/tarpack/pkg/fingerprint"
	"github.com/tarpack/tarpack/pkg/scan"
	"github.com/tarpack/tarpack/pkg/storage"
	"github.com/tarpack/tarpack/pkg/storage/localfs"
	"github.com/tarpack/tarpack/pkg/storage/sthree"
	"go.uber.org/zap"
)

type flagsT struct {
	root struct {
		store    string
		logLevel string
	}
	sync struct {
		sizeThreshold  string
		countThreshold int
		cutoff         string
		crossDir       bool
		compression    string
		fastCompare    string
		concurrency    int
		maxAttempts    int
		backoff        time.Duration
		excludes       []string
		withACLs       bool
		sparse         bool
		followSymlinks bool
	}
	download struct {
		dest string
	}
}

var params flagsT

func addStoreFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&params.root.store, "store", "",
		"remote store, localfs:<directory> or s3:<bucket>")
	_ = viper.BindPFlag("store", cmd.PersistentFlags().Lookup("store"))
}

func addLogLevelFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&params.root.logLevel, "loglevel", "info",
		"log level (info, debug, none)")
	_ = viper.BindPFlag("loglevel", cmd.PersistentFlags().Lookup("loglevel"))
}

func addSyncFlags(cmd *cobra.Command) {
	fls := cmd.Flags()
	fls.StringVar(&params.sync.sizeThreshold, "size-threshold", "32MB",
		"total uncompressed size bound for one aggregated container")
	fls.IntVar(&params.sync.countThreshold, "count-threshold", 1000,
		"member count bound for one aggregated container")
	fls.StringVar(&params.sync.cutoff, "cutoff", "",
		"per-file aggregation cutoff; files at or above it transfer standalone (defaults to the size threshold)")
	fls.BoolVar(&params.sync.crossDir, "cross-directory", false,
		"let under-threshold groups aggregate across directory boundaries")
	fls.StringVar(&params.sync.compression, "compression", "none",
		"container compression codec (none, gzip, zstd)")
	fls.StringVar(&params.sync.fastCompare, "fast-compare", "mtime-size",
		"fingerprint shortcut mode (always-hash, mtime-size)")
	_ = viper.BindPFlag("compression", fls.Lookup("compression"))
	_ = viper.BindPFlag("fast-compare", fls.Lookup("fast-compare"))
	fls.IntVar(&params.sync.concurrency, "concurrency", engine.DefaultConcurrency,
		"transfer worker pool size")
	fls.IntVar(&params.sync.maxAttempts, "max-attempts", engine.DefaultMaxAttempts,
		"attempts per transfer before it is marked failed")
	fls.DurationVar(&params.sync.backoff, "initial-backoff", engine.DefaultInitialBackoff,
		"first retry delay; later delays grow exponentially")
	fls.StringSliceVar(&params.sync.excludes, "exclude", nil,
		"shell patterns for paths to leave out of the sync")
	fls.BoolVar(&params.sync.withACLs, "acls", false,
		"capture and restore POSIX ACLs where the platform supports them")
	fls.BoolVar(&params.sync.sparse, "sparse", true,
		"detect sparse files and transfer only their data extents")
	fls.BoolVar(&params.sync.followSymlinks, "follow-symlinks", false,
		"sync symlinked files as regular files")
}

func addDestFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&params.download.dest, "destination", "",
		"directory to restore into")
	_ = cmd.MarkFlagRequired("destination")
}

// paramsToStore builds the remote store from the --store flag (or the
// store config key).
func paramsToStore() (storage.Store, error) {
	storeURL := params.root.store
	if storeURL == "" {
		storeURL = viper.GetString("store")
	}
	scheme, location, found := strings.Cut(storeURL, ":")
	if !found || location == "" {
		return nil, fmt.Errorf("store %q: expected localfs:<directory> or s3:<bucket>", storeURL)
	}
	switch scheme {
	case "localfs":
		return localfs.New(afero.NewBasePathFs(afero.NewOsFs(), location))
	case "s3":
		return sthree.New(sthree.Bucket(location)), nil
	default:
		return nil, fmt.Errorf("store %q: unknown scheme %q", storeURL, scheme)
	}
}

func paramsToLogger() (*zap.Logger, error) {
	return dlogger.GetLogger(params.root.logLevel)
}

// paramsToEngine assembles the sync engine for root against the
// configured remote.
func paramsToEngine(root string) (*engine.Engine, error) {
	remote, err := paramsToStore()
	if err != nil {
		return nil, err
	}
	logger, err := paramsToLogger()
	if err != nil {
		return nil, err
	}

	sizeThreshold, err := units.RAMInBytes(params.sync.sizeThreshold)
	if err != nil {
		return nil, fmt.Errorf("size-threshold %q: %w", params.sync.sizeThreshold, err)
	}
	var cutoff int64
	if params.sync.cutoff != "" {
		cutoff, err = units.RAMInBytes(params.sync.cutoff)
		if err != nil {
			return nil, fmt.Errorf("cutoff %q: %w", params.sync.cutoff, err)
		}
	}
	mode, ok := fingerprint.ParseMode(params.sync.fastCompare)
	if !ok {
		return nil, fmt.Errorf("fast-compare %q: expected always-hash or mtime-size", params.sync.fastCompare)
	}

	return engine.New(root, remote,
		engine.Compression(params.sync.compression),
		engine.FastCompare(mode),
		engine.SizeThreshold(sizeThreshold),
		engine.CountThreshold(params.sync.countThreshold),
		engine.Cutoff(cutoff),
		engine.CrossDirectory(params.sync.crossDir),
		engine.Concurrency(params.sync.concurrency),
		engine.MaxAttempts(params.sync.maxAttempts),
		engine.InitialBackoff(params.sync.backoff),
		engine.ScanOptions(
			scan.Exclude(params.sync.excludes...),
			scan.WithACLs(params.sync.withACLs),
			scan.WithSparseDetection(params.sync.sparse),
			scan.FollowSymlinks(params.sync.followSymlinks),
		),
		engine.Logger(logger),
	)
}
