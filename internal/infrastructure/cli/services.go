package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/milestone/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/milestone/pkg/application"
)

// pushWait bounds how long one-shot commands wait for their pushes.
const pushWait = 15 * time.Second

func getProjectRoot() (string, error) {
	if projectPath != "" {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return "", fmt.Errorf("invalid project path %q: %w", projectPath, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("project path %q: %w", abs, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("project path %q is not a directory", abs)
		}
		return abs, nil
	}
	return os.Getwd()
}

func loadServicesForCurrentDir() (*wiring.AppServices, error) {
	root, err := getProjectRoot()
	if err != nil {
		return nil, err
	}
	services, err := wiring.BuildAppServices(root, slog.Default())
	if err != nil {
		return nil, MapError(fmt.Errorf("failed to build services: %w", err))
	}
	return services, nil
}

// startServices loads the workspace and bootstraps the controller. An
// unreachable remote is reported as a warning; the command continues on the
// bundled roadmap.
func startServices(ctx context.Context) (*wiring.AppServices, error) {
	services, err := loadServicesForCurrentDir()
	if err != nil {
		return nil, err
	}
	if err := services.Sync.Start(ctx); err != nil {
		slog.Warn("working offline", "err", err)
	}
	return services, nil
}

// startServicesForWrite is startServices for one-shot commands that change
// the roadmap. When the shared remote cannot be read the command stops before
// mutating: the in-memory copy is the bundled roadmap and pushing it would
// overwrite the real one.
func startServicesForWrite(ctx context.Context) (*wiring.AppServices, error) {
	services, err := loadServicesForCurrentDir()
	if err != nil {
		return nil, err
	}
	if err := services.Sync.Start(ctx); err != nil {
		if services.Sync.Variant() == application.VariantShared {
			services.Sync.Close()
			return nil, NewCLIError("remote unreachable, nothing was changed",
				"Retry, or run 'milestone sync' to check the connection", err)
		}
		slog.Warn("working offline", "err", err)
	}
	return services, nil
}

// finish waits for in-flight pushes and webhook deliveries, then closes the
// controller.
func finish(services *wiring.AppServices) {
	ctx, cancel := context.WithTimeout(context.Background(), pushWait)
	defer cancel()
	if err := services.Sync.Wait(ctx); err != nil {
		slog.Warn("gave up waiting for pending pushes", "err", err)
	}
	if services.Notifier != nil {
		if err := services.Notifier.Wait(ctx); err != nil {
			slog.Warn("gave up waiting for webhook deliveries", "err", err)
		}
	}
	services.Sync.Close()
}
