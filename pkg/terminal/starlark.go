package terminal

import (
	"github.com/go-delve/dlveval/pkg/proc"
	"github.com/go-delve/dlveval/pkg/terminal/starbind"
)

type starlarkContext struct {
	term *Term
}

var _ starbind.Context = starlarkContext{}

func (ctx starlarkContext) Target() *proc.Target {
	return ctx.term.tgt
}

func (ctx starlarkContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	cmdfn := func(t *Term, ctx callContext, args string) error {
		return fn(args)
	}
	ctx.term.cmds.Register(name, cmdfn, helpMsg)
}

func (ctx starlarkContext) CallCommand(cmdstr string) error {
	return ctx.term.cmds.Call(cmdstr, ctx.term)
}

func (ctx starlarkContext) Scope() (thread, frame int) {
	if ctx.term.tgt == nil {
		return 0, 0
	}
	return ctx.term.tgt.CurrentThread()
}
