package appservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v4"
)

const defaultAPITimeout = 30 * time.Second

// webAppsAPI is the subset of armappservice.WebAppsClient used for restarts.
type webAppsAPI interface {
	Restart(ctx context.Context, resourceGroupName string, name string, options *armappservice.WebAppsClientRestartOptions) (armappservice.WebAppsClientRestartResponse, error)
	RestartSlot(ctx context.Context, resourceGroupName string, name string, slot string, options *armappservice.WebAppsClientRestartSlotOptions) (armappservice.WebAppsClientRestartSlotResponse, error)
}

// AzureRestarter implements Restarter using the Azure Resource Manager SDK.
// The credential and client are created on first use so runs that never need a
// restart do not require Azure credentials.
type AzureRestarter struct {
	timeout   time.Duration
	newClient func(subscriptionID string) (webAppsAPI, error)

	mu      sync.Mutex
	clients map[string]webAppsAPI
}

// NewAzureRestarter returns a restarter authenticating with DefaultAzureCredential.
func NewAzureRestarter(timeout time.Duration) *AzureRestarter {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	return &AzureRestarter{
		timeout:   timeout,
		newClient: newWebAppsClient,
		clients:   make(map[string]webAppsAPI),
	}
}

func newWebAppsClient(subscriptionID string) (webAppsAPI, error) {
	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}
	client, err := armappservice.NewWebAppsClient(subscriptionID, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("create web apps client: %w", err)
	}
	return client, nil
}

// Restart sends a non-blocking restart for the slot. It returns once Azure
// accepts the request; it does not wait for the app to come back.
func (r *AzureRestarter) Restart(ctx context.Context, slot Slot) error {
	if r == nil {
		return errors.New("azure restarter is not initialized")
	}
	if slot.SubscriptionID == "" {
		return errors.New("subscription id is required for restart")
	}
	if slot.ResourceGroup == "" || slot.App == "" {
		return errors.New("resource group and app name are required for restart")
	}

	client, err := r.client(slot.SubscriptionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if slot.IsProduction() {
		_, err = client.Restart(ctx, slot.ResourceGroup, slot.App, &armappservice.WebAppsClientRestartOptions{
			Synchronous: to.Ptr(false),
		})
	} else {
		_, err = client.RestartSlot(ctx, slot.ResourceGroup, slot.App, slot.Name, &armappservice.WebAppsClientRestartSlotOptions{
			Synchronous: to.Ptr(false),
		})
	}
	if err != nil {
		return fmt.Errorf("restart %s/%s: %w", slot.App, slotLabel(slot), err)
	}
	return nil
}

func (r *AzureRestarter) client(subscriptionID string) (webAppsAPI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[subscriptionID]; ok {
		return client, nil
	}
	client, err := r.newClient(subscriptionID)
	if err != nil {
		return nil, err
	}
	r.clients[subscriptionID] = client
	return client, nil
}

func slotLabel(slot Slot) string {
	if slot.IsProduction() {
		return ProductionSlot
	}
	return slot.Name
}
