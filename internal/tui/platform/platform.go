package platform

import (
	"bytes"
	"fmt"
	"os/exec"
)

type clipboardCommand struct {
	name string
	args []string
}

var clipboardCommands = []clipboardCommand{
	{name: "pbcopy"},
	{name: "xclip", args: []string{"-selection", "clipboard"}},
	{name: "wl-copy"},
}

// CopyToClipboard pipes text into the first clipboard tool that succeeds.
func CopyToClipboard(text string) error {
	for _, c := range availableClipboardCommands(exec.LookPath) {
		cmd := exec.Command(c.name, c.args...)
		cmd.Stdin = bytes.NewBufferString(text)
		if err := cmd.Run(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no clipboard command available")
}

func availableClipboardCommands(lookPath func(string) (string, error)) []clipboardCommand {
	var out []clipboardCommand
	for _, c := range clipboardCommands {
		if _, err := lookPath(c.name); err == nil {
			out = append(out, c)
		}
	}
	return out
}
