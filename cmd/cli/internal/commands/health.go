package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/eddits-console/internal/models"
)

// HealthCmd checks the backend health endpoint. It does not need a session.
type HealthCmd struct {
	Wait time.Duration `help:"Keep polling until healthy or this much time has passed" default:"0s"`
}

func (c *HealthCmd) Run(ctx context.Context, globals *Globals) error {
	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var status *models.HealthStatus
	if c.Wait > 0 {
		status, err = a.Health.Wait(ctx, c.Wait)
	} else {
		status, err = a.Health.Check(ctx)
	}

	if status != nil {
		fmt.Fprintf(globals.stdout(), "%s: status=%s database=%s version=%s\n", a.Gateway.BaseURL(), status.Status, status.Database, status.Version)
		if status.DatabaseError != "" {
			fmt.Fprintf(globals.stdout(), "database error: %s\n", status.DatabaseError)
		}
	}

	return err
}
