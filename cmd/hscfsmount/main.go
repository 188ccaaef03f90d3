// Command hscfsmount brings up the HSCFS filesystem core as a
// standalone process, for exercising it against a block device outside
// of this module's own test suite. Grounded on the teacher's
// cmd/root.go + top-level main() split.
package main

func main() {
	Execute()
}
