package commands

import (
	"context"
	"fmt"
	"os"

	"git.home.luguber.info/inful/buildworker/internal/task"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	TaskInput
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	t, err := decode(b.TaskInput, task.DecodeBuildTask)
	if err != nil {
		return err
	}
	return withApp(g, root, func(ctx context.Context, a *app) error {
		res, err := a.pipeline.Run(ctx, t)
		if err != nil {
			return err
		}
		if res.Skipped {
			fmt.Fprintf(os.Stdout, "Build of %s skipped: another worker holds the lock\n", t.ServiceID)
			return nil
		}
		fmt.Fprintf(os.Stdout, "Built %s %s (%s) at commit %s\n",
			t.ServiceID, t.DeployVersion, res.Artifact.Location(), res.Commit.ShortHash())
		return nil
	})
}
