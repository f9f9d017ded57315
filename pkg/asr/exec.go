package asr

import (
	"context"
	"fmt"
	"os/exec"
)

func runCommand(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %v\noutput: %s", bin, err, output)
	}
	return output, nil
}
