package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/kronoslang/kronos/internal/bytecode"
)

// List prints the names of every demo program registered in
// internal/bytecode.Demos.
func (c *Cmd) List(ctx context.Context, stdio mainer.Stdio, args []string) error {
	for _, name := range bytecode.DemoNames() {
		fmt.Fprintln(stdio.Stdout, name)
	}
	return nil
}
