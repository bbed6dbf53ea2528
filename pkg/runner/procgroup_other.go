//go:build !unix

package runner

import "os/exec"

// killGroupOnCancel keeps the default behavior of killing the harness
// only; process groups are not available here.
func killGroupOnCancel(*exec.Cmd) {}
