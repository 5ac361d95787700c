package app

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Redispatch retries delivery of alert events whose sinks failed earlier.
func (a *App) Redispatch(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher := a.newDispatcher(store)
	if dispatcher == nil {
		return errors.New("alerting not enabled; nothing to redispatch")
	}

	delivered, err := dispatcher.Redispatch(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "redelivered %d event(s)\n", delivered)
	return nil
}
