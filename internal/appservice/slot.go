package appservice

import (
	"context"
	"fmt"
	"strings"
)

// ProductionSlot is the slot name Azure uses for the main deployment.
const ProductionSlot = "production"

// Slot identifies one deployment slot of an App Service web app.
type Slot struct {
	SubscriptionID string
	ResourceGroup  string
	App            string // Web app name
	Name           string // Slot name; empty is treated as production
}

// IsProduction reports whether the slot is the production slot.
func (s Slot) IsProduction() bool {
	name := strings.TrimSpace(s.Name)
	return name == "" || name == ProductionSlot
}

// BaseURL returns the public azurewebsites.net URL of the slot.
func (s Slot) BaseURL() string {
	if s.IsProduction() {
		return fmt.Sprintf("https://%s.azurewebsites.net", s.App)
	}
	return fmt.Sprintf("https://%s-%s.azurewebsites.net", s.App, s.Name)
}

// URL joins a path onto the slot's base URL by plain concatenation.
func (s Slot) URL(path string) string {
	return s.BaseURL() + path
}

// Restarter restarts a web app slot.
//
// Callers treat Restart as fire-and-forget; implementations should return once
// the request is accepted rather than waiting for the app to come back.
type Restarter interface {
	Restart(ctx context.Context, slot Slot) error
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func(ctx context.Context, slot Slot) error

// Restart implements Restarter.
func (f RestarterFunc) Restart(ctx context.Context, slot Slot) error {
	return f(ctx, slot)
}
