package startup

// Service wiring. The order matters: durable storage first, then the
// feeds and wakeups, then the flow manager (which resurrects
// checkpoints), and only then is the node opened to traffic.

// The transport is registered by the embedding application before
// startup - in production a broker client, in tests the in-process
// bus shared between nodes.

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/datastore"
	"github.com/varunkm/corda/logging"
	"github.com/varunkm/corda/services"
	"github.com/varunkm/corda/services/flowmanager"
	"github.com/varunkm/corda/services/journal"
	"github.com/varunkm/corda/services/notifications"
)

type NodeServices struct {
	ConfigObj *config.Config
	Manager   *flowmanager.FlowManagerService
}

// StartNodeServices brings up everything except inbound traffic.
// Callers register their flow classes on the returned manager and
// then call Serve().
func StartNodeServices(
	ctx context.Context, wg *sync.WaitGroup,
	config_obj *config.Config) (*NodeServices, error) {

	logger := logging.GetLogger(config_obj, &logging.NodeComponent)

	var result *multierror.Error

	_, err := datastore.GetDB(config_obj)
	if err != nil {
		result = multierror.Append(result, err)
	}

	_, err = services.GetTransport(config_obj)
	if err != nil {
		result = multierror.Append(result, err)
	}

	err = journal.StartJournalService(ctx, wg, config_obj)
	if err != nil {
		result = multierror.Append(result, err)
	}

	err = notifications.StartNotificationService(ctx, wg, config_obj)
	if err != nil {
		result = multierror.Append(result, err)
	}

	// An external ledger engine registers itself before startup;
	// otherwise the node runs with the in-process one.
	_, err = services.GetLedger(config_obj)
	if err != nil {
		services.RegisterLedger(config_obj, services.NewInMemoryLedger())
	}

	err = result.ErrorOrNil()
	if err != nil {
		return nil, err
	}

	manager, err := flowmanager.StartFlowManagerService(ctx, wg, config_obj)
	if err != nil {
		return nil, err
	}

	logger.Info("Node services for <green>%v</> started.",
		config_obj.PartyName)

	return &NodeServices{
		ConfigObj: config_obj,
		Manager:   manager,
	}, nil
}
