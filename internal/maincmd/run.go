package maincmd

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/kronoslang/kronos/internal/bytecode"
	"github.com/kronoslang/kronos/internal/vm"
)

// Run executes each named demo program in its own fresh VM and writes its
// printed output to stdio.Stdout.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return RunDemos(ctx, stdio, args...)
}

func RunDemos(ctx context.Context, stdio mainer.Stdio, names ...string) error {
	for _, name := range names {
		code, err := bytecode.BuildDemo(name)
		if err != nil {
			return printError(stdio, err)
		}

		m := vm.New()
		var buf bytes.Buffer
		m.SetStdout(&buf)

		ret, rerr := m.RunProgram(code)
		if ret != nil {
			ret.Release()
		}
		if rerr != nil {
			return printError(stdio, fmt.Errorf("%s: %s: %s", name, rerr.Kind, rerr.Error()))
		}
		if _, err := stdio.Stdout.Write(buf.Bytes()); err != nil {
			return printError(stdio, err)
		}
	}
	return nil
}
