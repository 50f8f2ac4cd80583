package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/tools"
)

// ManSpider crawls the SMB shares of a network with domain credentials
type ManSpider struct {
	Layout model.Layout
	Tools  tools.Toolbox
	Creds  model.Credentials
	Mode   tools.SpiderMode
}

func (m ManSpider) Category() model.Category {
	return m.Mode.Category
}

// Pipeline fails when manspider failed before logging in anywhere. A failing
// crawl with some logins is kept like a successful one.
func (m ManSpider) Pipeline(ctx context.Context, cidr string, steps *Steps) error {
	var loggedIn int
	err := steps.Run(ctx, "manspider", func(ctx context.Context) error {
		res, err := m.Tools.Manspider(ctx, m.Layout.ManspiderDir(cidr), cidr, m.Mode, m.Creds)
		loggedIn = len(res.LoggedIn)
		slog.InfoContext(ctx, "manspider output normalized",
			"mode", m.Mode.Name,
			"hosts", len(res.Hosts),
			"logged_in", len(res.LoggedIn),
			"files_with_matches", res.Accumulated,
		)
		return err
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && loggedIn == 0 {
		return fmt.Errorf("%w: %w", ErrNothingCollected, err)
	}
	return nil
}
