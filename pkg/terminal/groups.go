package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	runCmds
	dataCmds
	threadCmds
	stackCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Resuming the inferior", runCmds},
	{"Evaluating expressions and viewing memory", dataCmds},
	{"Listing and switching between threads", threadCmds},
	{"Selecting frames", stackCmds},
	{"Other commands", otherCmds},
}
