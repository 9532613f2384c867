package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/buildworker/internal/task"
)

// DeployCmd groups the marketplace install flows.
type DeployCmd struct {
	Image DeployImageCmd `cmd:"" help:"Pull a marketplace image into the local registry and start the service"`
	Slug  DeploySlugCmd  `cmd:"" help:"Fetch a marketplace slug into the publish root and trigger an upgrade"`
}

// DeployImageCmd implements 'deploy image'.
type DeployImageCmd struct {
	TaskInput
}

func (d *DeployImageCmd) Run(g *Global, root *CLI) error {
	t, err := decode(d.TaskInput, func(r io.Reader) (*task.DeployTask, error) { return task.DecodeDeployTask(r, true) })
	if err != nil {
		return err
	}
	return withApp(g, root, func(ctx context.Context, a *app) error {
		if err := a.publisher.DeployImage(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Deployed %s for %s/%s\n", t.Image, t.TenantName, t.ServiceAlias)
		return nil
	})
}

// DeploySlugCmd implements 'deploy slug'.
type DeploySlugCmd struct {
	TaskInput
}

func (d *DeploySlugCmd) Run(g *Global, root *CLI) error {
	t, err := decode(d.TaskInput, func(r io.Reader) (*task.DeployTask, error) { return task.DecodeDeployTask(r, false) })
	if err != nil {
		return err
	}
	return withApp(g, root, func(ctx context.Context, a *app) error {
		if err := a.publisher.DeploySlug(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Deployed slug %s/%s for %s/%s\n", t.ServiceKey, t.AppVersion, t.TenantName, t.ServiceAlias)
		return nil
	})
}

// ImportImageCmd implements 'import-image'.
type ImportImageCmd struct {
	TaskInput
}

func (i *ImportImageCmd) Run(g *Global, root *CLI) error {
	t, err := decode(i.TaskInput, task.DecodeImportTask)
	if err != nil {
		return err
	}
	return withApp(g, root, func(ctx context.Context, a *app) error {
		if err := a.publisher.ImportImage(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Imported %s for %s/%s\n", t.Image, t.TenantName, t.ServiceAlias)
		return nil
	})
}
