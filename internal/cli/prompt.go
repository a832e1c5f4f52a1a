package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForCapture waits for the user to press Enter. It returns false when
// the user types q or quit, or input ends.
func PromptForCapture(in *bufio.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Press Enter to capture (q to quit): ")

	input, err := in.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			log.Warn().Err(err).Msg("Failed to read input, stopping")
		}
		return false
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "q", "quit", "exit":
		return false
	}
	return true
}
