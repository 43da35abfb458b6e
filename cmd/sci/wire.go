package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/config"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/ledger"
	s3mirror "github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/mirror/s3"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/toolbox"
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	return config.LoadConfig(path)
}

func toolsFromConfig(cfg *config.Config) toolbox.Tools {
	return toolbox.Tools{
		Converter:            cfg.Tools.Converter,
		Segment:              cfg.Tools.Segment,
		LabelVertebrae:       cfg.Tools.LabelVertebrae,
		LabelUtils:           cfg.Tools.LabelUtils,
		Register:             cfg.Tools.Register,
		ApplyTransfo:         cfg.Tools.ApplyTransfo,
		Viewer:               cfg.Tools.Viewer,
		QCOpener:             cfg.Tools.QCOpener,
		SegmentationColormap: cfg.Viewer.SegmentationColormap,
		Opacity:              cfg.Viewer.Opacity,
	}
}

// openMirror returns nil without a configured bucket.
func openMirror(ctx context.Context, cfg *config.Config) (*s3mirror.Store, error) {
	if cfg.Mirror.Bucket == "" {
		return nil, nil
	}
	return s3mirror.New(ctx, s3mirror.Config{
		Region:    cfg.Mirror.Region,
		Bucket:    cfg.Mirror.Bucket,
		Prefix:    cfg.Mirror.Prefix,
		Endpoint:  cfg.Mirror.Endpoint,
		PathStyle: cfg.Mirror.PathStyle,
	})
}

// openLedger returns nil when the ledger is switched off or cannot be
// opened. The ledger is a record of the run, not a part of it.
func openLedger(ctx context.Context, cfg *config.Config, results string, logger log.FieldLogger) *ledger.Ledger {
	if !cfg.LedgerEnabled() {
		return nil
	}
	l, err := ledger.Open(ctx, cfg.LedgerDSN(results))
	if err != nil {
		logger.WithError(err).Warn("ledger not available, resolutions are not recorded")
		return nil
	}
	return l
}

// openHistory opens the ledger for status queries. The default ledger file
// is only read when a run already created it.
func openHistory(ctx context.Context, cfg *config.Config, results string, logger log.FieldLogger) *ledger.Ledger {
	if cfg.Ledger.DSN == "" {
		if _, err := os.Stat(cfg.LedgerDSN(results)); err != nil {
			return nil
		}
	}
	return openLedger(ctx, cfg, results, logger)
}
