//go:build !unix

package process

import "os/exec"

// killGroupOnCancel keeps the exec.CommandContext default of killing only the direct child.
func killGroupOnCancel(*exec.Cmd) {}
