package agent

import (
	"context"
	"fmt"
	"os"

	"natsume/internal/osexec"
)

type CheckResult struct {
	Name string
	Err  error
}

// Check verifies the host prerequisites for the sync and session flows.
// All checks run; the caller decides what a failure means.
func (a *Agent) Check(ctx context.Context) []CheckResult {
	commands := []struct {
		name string
		cmd  osexec.Command
	}{
		{name: "passwordless sudo for useradd", cmd: osexec.Command{Name: "sudo", Args: []string{"-n", "useradd", "--help"}}},
		{name: "passwordless sudo for userdel", cmd: osexec.Command{Name: "sudo", Args: []string{"-n", "userdel", "--help"}}},
		{name: "reverse proxy installed", cmd: osexec.Command{Name: "which", Args: []string{a.cfg.ReverseProxyService}}},
	}

	results := make([]CheckResult, 0, len(commands)+1)
	for _, c := range commands {
		_, err := a.runner.Run(ctx, c.cmd)
		results = append(results, CheckResult{Name: c.name, Err: err})
	}
	results = append(results, CheckResult{
		Name: "reverse proxy configuration writable",
		Err:  checkWritable(a.cfg.ReverseProxyConfigPath),
	})
	return results
}

func checkWritable(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open %s for writing: %w", path, err)
	}
	return file.Close()
}
