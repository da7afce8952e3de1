package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"agentloop/internal/application/port/input"
	"agentloop/internal/di"
	"agentloop/internal/domain/entity"
	"agentloop/internal/infrastructure/snapshot"
	"agentloop/internal/infrastructure/userinteraction"
	"agentloop/internal/usecase/executor"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run the agent on a task read from the arguments or stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.TrimSpace(strings.Join(args, " "))
		if task == "" {
			fmt.Println("\nEnter a task for the agent:")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read task: %w", err)
			}
			task = strings.TrimSpace(line)
		}
		if task == "" {
			return errors.New("task is empty")
		}

		return session(cmd, task, func(ctx context.Context, runner input.AgentRunner) (*input.RunResult, error) {
			return runner.Run(ctx, task)
		}, "")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <snapshot>",
	Short: "Resume a paused run from its snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		state, err := snapshot.ReadFile(afero.NewOsFs(), path)
		if err != nil {
			return err
		}
		if !state.Resumable() {
			return fmt.Errorf("run in %s is %s and cannot be resumed", path, state.Status)
		}
		return session(cmd, "resume", func(ctx context.Context, runner input.AgentRunner) (*input.RunResult, error) {
			return runner.Resume(ctx, state)
		}, path)
	},
}

type runFunc func(ctx context.Context, runner input.AgentRunner) (*input.RunResult, error)

// session runs fn with the console observer attached. The first interrupt
// pauses the run at the next safe point, the second cancels it. The state
// is written to snapshotPath, or to a new file in the state dir when empty.
func session(cmd *cobra.Command, taskName string, fn runFunc, snapshotPath string) error {
	cfg, secrets, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	container, err := di.NewContainer(cfg, secrets, taskName)
	if err != nil {
		return err
	}
	defer container.Close()

	observer := userinteraction.NewConsoleObserver(os.Stdout, cfg.MaxIterations)
	runner := container.NewRunner(executor.WithObserver(observer))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-interrupts:
				if observer.PauseRequested() {
					container.Logger.Warn("Second interrupt, cancelling run")
					cancel()
					return
				}
				color.Yellow("\nPausing after the current step, press Ctrl-C again to abort")
				observer.RequestPause()
			}
		}
	}()

	container.Logger.Info("Task started", "task", taskName)
	fmt.Println("\nAgent started...")

	res, runErr := fn(ctx, runner)
	if errors.Is(runErr, entity.ErrRunStopped) {
		return runErr
	}

	state := runner.Snapshot()
	if res != nil {
		state = res.State
	}

	if snapshotPath == "" {
		snapshotPath = container.Snapshots.Path(uuid.NewString())
	}
	if err := snapshot.WriteFile(container.Fs, snapshotPath, state); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	if runErr != nil {
		container.Logger.Error("Task failed", "error", runErr, "snapshot", snapshotPath)
		fmt.Printf("\nRun failed: %v\nState saved to %s\n", runErr, snapshotPath)
		return runErr
	}

	container.Logger.Info("Task finished", "status", state.Status, "iterations", state.Iteration)
	observer.ShowResult(state, res.FinalAnswer, res.Usage)
	if state.Resumable() {
		fmt.Printf("Resume with: agent resume %s\n", snapshotPath)
	} else {
		fmt.Printf("State saved to %s\n", snapshotPath)
	}
	return nil
}
