package wiring

import (
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/milestone/internal/infrastructure/config"
	"github.com/felixgeelhaar/milestone/pkg/remote"
	"github.com/felixgeelhaar/milestone/pkg/storage"
)

// Workspace bundles the configuration and the store it selects.
type Workspace struct {
	Root   string
	Config *config.Config
	Logger *slog.Logger

	// Exactly one of Store and Remote is set, depending on Config.Mode.
	Store  *storage.FileStore
	Remote *remote.Client
}

func NewWorkspace(root string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{Root: root, Config: cfg, Logger: logger}

	switch cfg.Mode {
	case config.ModeShared:
		client, err := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Bucket, cfg.Remote.Key,
			remote.WithTimeout(cfg.Remote.Timeout))
		if err != nil {
			return nil, fmt.Errorf("remote store: %w", err)
		}
		ws.Remote = client
	default:
		ws.Store = storage.NewFileStore(root, logger)
	}
	return ws, nil
}

// Shared reports whether the workspace replicates through the remote store.
func (w *Workspace) Shared() bool {
	return w.Remote != nil
}
