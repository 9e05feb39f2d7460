package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/kronoslang/kronos/internal/bytecode"
)

// Disasm prints each named demo program's disassembled instruction stream.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return DisasmDemos(ctx, stdio, args...)
}

func DisasmDemos(ctx context.Context, stdio mainer.Stdio, names ...string) error {
	for i, name := range names {
		code, err := bytecode.BuildDemo(name)
		if err != nil {
			return printError(stdio, err)
		}
		if len(names) > 1 {
			if i > 0 {
				fmt.Fprintln(stdio.Stdout)
			}
			fmt.Fprintf(stdio.Stdout, "; %s\n", name)
		}
		fmt.Fprint(stdio.Stdout, bytecode.Disassemble(code))
	}
	return nil
}
