// Package session drives the kiosk between contestants: autologin for the
// managed OS user, ending that user's sessions, and recreating the account.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"

	"natsume/internal/config"
	"natsume/internal/fsutil"
	"natsume/internal/osexec"
)

type State string

const (
	StateLocked             State = "Locked"
	StateReadyForContestant State = "ReadyForContestant"
	StateActive             State = "Active"
)

// ErrNotLocked guards the destructive reset.
var ErrNotLocked = errors.New("kiosk is not locked")

const (
	daemonSection    = "[daemon]"
	autologinEnable  = "AutomaticLoginEnable=true"
	autologinUserKey = "AutomaticLogin="
)

type Manager struct {
	user       string
	password   string
	configPath string
	service    string
	runner     osexec.Runner
}

func NewManager(cfg *config.ClientConfig, runner osexec.Runner) *Manager {
	return &Manager{
		user:       cfg.PlayerUser,
		password:   cfg.PlayerUserPassword,
		configPath: cfg.LoginManagerConfig,
		service:    cfg.LoginManagerService,
		runner:     runner,
	}
}

// State derives the current kiosk state from the login manager
// configuration and logind.
func (m *Manager) State(ctx context.Context) (State, error) {
	active, err := m.sessionActive(ctx)
	if err != nil {
		return "", err
	}
	if active {
		return StateActive, nil
	}

	lines, err := m.readConfig()
	if err != nil {
		return "", err
	}
	if hasAutologin(lines, m.user) {
		return StateReadyForContestant, nil
	}
	return StateLocked, nil
}

// EnableAutologin moves Locked to ReadyForContestant.
func (m *Manager) EnableAutologin(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx)

	lines, err := m.readConfig()
	if err != nil {
		return &osexec.StepError{Step: "read login manager configuration", Err: err}
	}
	lines = insertAutologin(removeAutologin(lines, m.user), m.user)
	if err := m.writeConfig(lines); err != nil {
		return &osexec.StepError{Step: "write login manager configuration", Err: err}
	}
	logger.Info("autologin configured", "user", m.user, "path", m.configPath)

	if err := m.restartLoginManager(ctx); err != nil {
		return err
	}
	logger.Info("kiosk ready for contestant", "user", m.user)
	return nil
}

// Terminate moves ReadyForContestant or Active to Locked.
func (m *Manager) Terminate(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx)

	lines, err := m.readConfig()
	if err != nil {
		return &osexec.StepError{Step: "read login manager configuration", Err: err}
	}
	if err := m.writeConfig(removeAutologin(lines, m.user)); err != nil {
		return &osexec.StepError{Step: "write login manager configuration", Err: err}
	}
	logger.Info("autologin removed", "user", m.user, "path", m.configPath)

	active, err := m.sessionActive(ctx)
	if err != nil {
		return &osexec.StepError{Step: "query user sessions", Err: err}
	}
	if active {
		if _, err := osexec.Step(ctx, m.runner, "terminate user sessions", osexec.Command{
			Name: "loginctl",
			Args: []string{"terminate-user", m.user},
		}); err != nil {
			return err
		}
		logger.Info("user sessions terminated", "user", m.user)
	} else {
		logger.Info("no open session to terminate", "user", m.user)
	}

	if err := m.restartLoginManager(ctx); err != nil {
		return err
	}
	logger.Info("kiosk locked", "user", m.user)
	return nil
}

// Reset deletes and recreates the managed account, wiping its home
// directory. Without force it only runs in the Locked state.
func (m *Manager) Reset(ctx context.Context, force bool) error {
	logger := logr.FromContextOrDiscard(ctx)

	if !force {
		state, err := m.State(ctx)
		if err != nil {
			return fmt.Errorf("failed to determine kiosk state: %w", err)
		}
		if state != StateLocked {
			return fmt.Errorf("%w: current state is %s, run terminate first", ErrNotLocked, state)
		}
	}

	if _, err := osexec.Step(ctx, m.runner, "delete user", osexec.Command{
		Name: "userdel",
		Args: []string{"-r", m.user},
	}); err != nil {
		return err
	}
	logger.Info("user deleted", "user", m.user)

	if _, err := osexec.Step(ctx, m.runner, "create user", osexec.Command{
		Name: "useradd",
		Args: []string{"-m", m.user},
	}); err != nil {
		return err
	}
	logger.Info("user created", "user", m.user)

	if m.password != "" {
		if _, err := osexec.Step(ctx, m.runner, "set password", osexec.Command{
			Name:  "chpasswd",
			Stdin: m.user + ":" + m.password + "\n",
		}); err != nil {
			return err
		}
		logger.Info("user password set", "user", m.user)
	}
	return nil
}

func (m *Manager) restartLoginManager(ctx context.Context) error {
	_, err := osexec.Step(ctx, m.runner, "restart login manager", osexec.Command{
		Name: "systemctl",
		Args: []string{"restart", m.service},
	})
	return err
}

// sessionActive asks logind for the user's state. Any state but offline
// (active, online, closing, lingering) leaves processes to terminate.
// loginctl exits non-zero for users without any session, which counts as
// inactive.
func (m *Manager) sessionActive(ctx context.Context) (bool, error) {
	res, err := m.runner.Run(ctx, osexec.Command{
		Name: "loginctl",
		Args: []string{"show-user", m.user, "--property=State", "--value"},
	})
	if err != nil {
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, err
	}
	switch strings.TrimSpace(res.Stdout) {
	case "", "offline":
		return false, nil
	default:
		return true, nil
	}
}

func (m *Manager) readConfig() ([]string, error) {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.configPath, err)
	}
	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

func (m *Manager) writeConfig(lines []string) error {
	return fsutil.ReplaceFile(m.configPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

func isAutologinLine(line, user string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == autologinEnable || trimmed == autologinUserKey+user
}

func hasAutologin(lines []string, user string) bool {
	var enabled, named bool
	for _, line := range lines {
		switch strings.TrimSpace(line) {
		case autologinEnable:
			enabled = true
		case autologinUserKey + user:
			named = true
		}
	}
	return enabled && named
}

func removeAutologin(lines []string, user string) []string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if !isAutologinLine(line, user) {
			kept = append(kept, line)
		}
	}
	return kept
}

// insertAutologin places the directives directly under [daemon], adding the
// section when the file has none.
func insertAutologin(lines []string, user string) []string {
	directives := []string{autologinEnable, autologinUserKey + user}
	for i, line := range lines {
		if strings.TrimSpace(line) == daemonSection {
			out := make([]string, 0, len(lines)+len(directives))
			out = append(out, lines[:i+1]...)
			out = append(out, directives...)
			return append(out, lines[i+1:]...)
		}
	}
	out := append([]string{}, lines...)
	out = append(out, daemonSection)
	return append(out, directives...)
}
