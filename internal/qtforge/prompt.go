package qtforge

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// askForConfirmation prompts on in and defaults to 'yes' on an empty answer.
// EOF or a read error counts as 'no'.
func askForConfirmation(in io.Reader, p colorPrinter, format string, a ...any) bool {
	reader := bufio.NewReader(in)
	fullPrompt := fmt.Sprintf("%s [Y/n]: ", fmt.Sprintf(format, a...))

	for {
		cPrintf(p, "%s", fullPrompt)
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			return false
		}
		response = strings.ToLower(strings.TrimSpace(response))

		if response == "y" || response == "yes" || response == "" {
			return true
		}
		if response == "n" || response == "no" {
			return false
		}
		if err != nil {
			return false
		}
		cPrintln(colWarn, "Invalid input.")
	}
}
