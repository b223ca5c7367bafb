package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

func init() {
	buildInfo = moduleBuildInfo
}

// moduleBuildInfo lists the main module and every dependency linked into
// the binary, one per line.
func moduleBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "not built in module mode"
	}

	var sb strings.Builder
	writeModule(&sb, "mod", &info.Main)
	for _, dep := range info.Deps {
		writeModule(&sb, "dep", dep)
	}
	return sb.String()
}

func writeModule(sb *strings.Builder, kind string, m *debug.Module) {
	fmt.Fprintf(sb, " %s\t%s\t%s\t%s", kind, m.Path, m.Version, m.Sum)
	if m.Replace != nil {
		fmt.Fprintf(sb, "\t=> %s\t%s\t%s", m.Replace.Path, m.Replace.Version, m.Replace.Sum)
	}
	sb.WriteByte('\n')
}
