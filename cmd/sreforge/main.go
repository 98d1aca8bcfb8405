// Command sreforge runs the SRE root-cause debate engine: a CLI
// entrypoint, grounded on the teacher's cmd/superagent/main.go shape,
// generalized from a single gin.Default() call into a cobra command
// tree so config loading, flag parsing, and the serve subcommand are
// independently testable (_examples/thoreinstein-rig's cmd/root.go
// pattern).
package main

func main() {
	Execute()
}
