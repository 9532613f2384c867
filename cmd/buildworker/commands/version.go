package commands

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/buildworker/internal/version"
)

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (VersionCmd) Run() error {
	_, err := fmt.Fprintln(os.Stdout, version.String())
	return err
}
