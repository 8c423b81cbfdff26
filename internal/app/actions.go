package app

import (
	"context"

	"lanpad/internal/deck"
	"lanpad/internal/settings"
	"lanpad/internal/ui"
)

// actions adapts the app's subsystems to the UI's operation surface.
type actions struct {
	app *App
}

// Actions returns the [ui.Actions] implementation backed by this app.
func (a *App) Actions() ui.Actions {
	return actions{app: a}
}

func (x actions) CopyCard(id int) error {
	return x.app.deck.CopyCard(id)
}

func (x actions) StartEdit(id int) (deck.Card, error) {
	return x.app.deck.StartEdit(id)
}

func (x actions) CancelEdit(id int) {
	x.app.deck.CancelEdit(id)
}

func (x actions) CommitEdit(id int, text string) {
	x.app.deck.CommitEdit(id, text)
}

func (x actions) Correct(ctx context.Context, id int) error {
	return x.app.gateway.Correct(ctx, id)
}

func (x actions) CancelCorrection() {
	x.app.gateway.Cancel()
}

func (x actions) Test(ctx context.Context) error {
	return x.app.gateway.Test(ctx)
}

func (x actions) Reconnect(ctx context.Context) error {
	x.app.manager.Reconnect(ctx)
	return nil
}

func (x actions) UpdateSettings(mutate func(*settings.Settings)) error {
	_, err := x.app.store.Update(mutate)
	return err
}
