package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/tgpt/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program adapts app.Run to the service manager's Start/Stop calls.
type program struct {
	params app.RunParams
	logger service.Logger

	cancel context.CancelFunc
	done   chan error
}

// Start must not block: the bot runs in its own goroutine until Stop.
func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)

	go func() {
		err := app.Run(ctx, p.params)
		if err != nil && ctx.Err() == nil {
			// Failed on its own: exit so the service manager restarts us.
			if p.logger != nil {
				_ = p.logger.Error(err)
			}
			os.Exit(1)
		}
		p.done <- err
	}()
	return nil
}

// Stop cancels the run and waits for the modules to shut down.
func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// serviceConfig describes the installed service. The config path is made
// absolute since service managers do not start in the caller's directory.
func serviceConfig(cfgPath string, user bool) (*service.Config, error) {
	if cfgPath == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}
	abs, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, err
	}

	return &service.Config{
		Name:        app.ServiceName,
		DisplayName: "tgpt Telegram bot",
		Description: "Telegram bot answering with a large language model.",
		Arguments:   []string{"service", "run", "--config", abs},
		Option: service.KeyValue{
			"UserService": user,
			"Restart":     "on-failure",
		},
	}, nil
}

func newService(cmd *cobra.Command, user bool) (service.Service, *program, error) {
	params := runParams(cmd)
	cfg, err := serviceConfig(params.ConfigPath, user)
	if err != nil {
		return nil, nil, err
	}
	params.ConfigPath = cfg.Arguments[len(cfg.Arguments)-1]

	prg := &program{params: params}
	s, err := service.New(prg, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("service: %w", err)
	}
	if prg.logger, err = s.Logger(nil); err != nil {
		return nil, nil, fmt.Errorf("service: logger: %w", err)
	}
	return s, prg, nil
}

func serviceCmd() *cobra.Command {
	var user bool
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control tgpt as a system service",
	}
	cmd.PersistentFlags().BoolVar(&user, "user", false, "Manage a per-user service instead of a system one")

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the tgpt service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, _, err := newService(cmd, user)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: done\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the state of the tgpt service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := newService(cmd, user)
			if err != nil {
				return err
			}
			status, err := s.Status()
			if errors.Is(err, service.ErrNotInstalled) {
				fmt.Fprintln(cmd.OutOrStdout(), "not installed")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(status))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := newService(cmd, user)
			if err != nil {
				return err
			}
			return s.Run()
		},
	})
	return cmd
}

func statusText(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
