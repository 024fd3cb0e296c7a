package wiring

import (
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/milestone/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/milestone/pkg/ai"
	"github.com/felixgeelhaar/milestone/pkg/application"
	domainai "github.com/felixgeelhaar/milestone/pkg/domain/ai"
	"github.com/felixgeelhaar/milestone/pkg/storage"
)

// AppServices exposes the application layer services wired together with a workspace.
type AppServices struct {
	Workspace *Workspace
	Sync      *application.SyncController
	Advisory  *application.AdvisoryService
	Transfer  *application.TransferService
	Provider  domainai.Provider

	// Notifier is nil when no webhooks are configured. It is subscribed to Sync.
	Notifier *webhook.Notifier

	// ProviderErr is set when the configured AI provider could not be built
	// and the mock fallback is in use.
	ProviderErr error
}

// BuildAppServices wires the controller and services for a repo root. The
// controller is returned unstarted.
func BuildAppServices(root string, logger *slog.Logger) (*AppServices, error) {
	if logger == nil {
		logger = slog.Default()
	}

	workspace, err := NewWorkspace(root, logger)
	if err != nil {
		return nil, err
	}

	provider, providerErr := LoadAIProvider(workspace.Config)
	if providerErr != nil {
		providerErr = fmt.Errorf("AI provider config fallback: %w", providerErr)
		logger.Warn("using mock AI provider", "err", providerErr)
		provider = ai.NewResilientProvider(&ai.MockProvider{Model: "fallback"})
	}

	opts := application.SyncOptions{
		PollInterval:      workspace.Config.Sync.PollInterval,
		SuppressionWindow: workspace.Config.Sync.SuppressionWindow,
		Logger:            logger,
	}

	var controller *application.SyncController
	if workspace.Shared() {
		controller, err = application.NewSyncController(workspace.Remote, nil, opts)
	} else {
		controller, err = application.NewSyncController(nil, workspace.Store, opts)
	}
	if err != nil {
		return nil, err
	}

	services := &AppServices{
		Workspace:   workspace,
		Sync:        controller,
		Advisory:    application.NewAdvisoryService(provider, workspace.Config.AppName, logger),
		Transfer:    application.NewTransferService(logger),
		Provider:    provider,
		ProviderErr: providerErr,
	}

	if hooks := workspace.Config.Notify.Webhooks; len(hooks) > 0 {
		dlPath, err := storage.NewFileStore(root, logger).ResolvePath(webhook.DeadLetterFile)
		if err != nil {
			return nil, err
		}
		notifier := webhook.NewNotifier(hooks, webhook.NewDeadLetterStore(dlPath), logger)
		controller.Subscribe(func(v application.View) {
			notifier.Observe(controller.ID(), v)
		})
		services.Notifier = notifier
	}

	return services, nil
}
