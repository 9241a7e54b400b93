// Command triage is the keyboard-driven review screen for autocam projects:
// a grid over the PENDING/BLURRY/CLEAN/FINAL sets, polling the server and
// pushing keep/rescue decisions back.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"autocam/pkg/api"
	"autocam/pkg/collection"
	"autocam/pkg/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var project string
	root := &cobra.Command{
		Use:          "triage",
		Short:        "Review photos and build the FINAL set",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath(configPath)
			if err != nil {
				return err
			}
			return runReview(path, project)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/autocam/config.yaml)")
	root.Flags().StringVar(&project, "project", "", "project id (default first project on the server)")
	root.AddCommand(newLoginCmd(&configPath), newProjectsCmd(&configPath))
	return root
}

func resolveConfigPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	return defaultConfigPath()
}

func newLoginCmd(configPath *string) *cobra.Command {
	var username, password, server string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the token in the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath(*configPath)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			if server != "" {
				cfg.ServerURL = server
			}
			client := api.New(cfg.ServerURL, "")
			token, _, err := client.Login(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			cfg.Token = token
			if err := saveConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in, token saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&server, "server", "", "server base url")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newProjectsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects with photo and selection counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath(*configPath)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			client := api.New(cfg.ServerURL, cfg.Token)
			projects, err := client.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range projects {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-30s photos=%d selected=%d\n", p.ID, p.Name, p.PhotoCount, p.SelectedCount)
			}
			return nil
		},
	}
}

func runReview(configPath, projectFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Token == "" {
		return fmt.Errorf("not logged in, run: triage login --server %s -u <user> -p <pass>", cfg.ServerURL)
	}

	logger := zerolog.Nop()
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = zerolog.New(f).With().Timestamp().Logger()
	}

	client := api.New(cfg.ServerURL, cfg.Token)
	projectID := projectFlag
	if projectID == "" {
		projectID = cfg.ProjectID
	}
	if projectID == "" {
		projects, err := client.ListProjects(context.Background())
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		if len(projects) == 0 {
			return fmt.Errorf("no projects on %s, create one first", cfg.ServerURL)
		}
		projectID = projects[0].ID
	}

	store := collection.NewStore()
	store.SetLogger(logger)
	trans := session.NewTransitioner(store, client, logger)
	syncer := session.NewSyncer(store, client, projectID, cfg.PollInterval, logger)

	m := newModel(store, trans, cfg.Columns, logger)
	p := tea.NewProgram(m, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	syncer.OnSync = func(err error) { p.Send(syncDoneMsg{err: err}) }
	go syncer.Run(ctx)

	_, err = p.Run()
	trans.Close()
	return err
}
