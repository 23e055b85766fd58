package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

// CommandRunner shells out to a local predictor CLI (the training
// stack's predict script) and parses the JSON score map it prints.
// Useful when the model runs on the same host and no serving API is up.
type CommandRunner struct {
	command []string
	timeout time.Duration
}

func NewCommandRunner(command []string) *CommandRunner {
	return &CommandRunner{command: command, timeout: 120 * time.Second}
}

func (r *CommandRunner) Classify(ctx context.Context, imagePath string) (domain.Scores, error) {
	if len(r.command) == 0 {
		return nil, domain.ErrClassifierUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append(append([]string{}, r.command[1:]...), imagePath)
	cmd := exec.CommandContext(ctx, r.command[0], args...)

	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("predictor exited with code %d: %s", ee.ExitCode(), string(ee.Stderr))
		}
		return nil, fmt.Errorf("predictor failed: %w", err)
	}

	var scores map[string]float64
	if err := json.Unmarshal(out, &scores); err != nil {
		return nil, fmt.Errorf("predictor output is not a score map: %w", err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("predictor returned no scores")
	}
	return domain.Scores(scores), nil
}
