package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pixrepo/internal/domain"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage image sources",
}

var sourceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a source",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		provider, _ := flags.GetString("provider")
		owner, _ := flags.GetString("owner")
		repo, _ := flags.GetString("repo")
		branch, _ := flags.GetString("branch")
		path, _ := flags.GetString("path")

		// Tokens come from the environment so they stay out of shell history.
		token := os.Getenv("PIXREPO_TOKEN")

		svc, err := openServices(cmd.Context())
		if err != nil {
			return err
		}
		src, err := svc.Sources.Create(cmd.Context(), name, domain.SourceConfig{
			Provider: domain.Provider(provider),
			Owner:    owner,
			Repo:     repo,
			Branch:   branch,
			Token:    token,
			Path:     path,
		})
		if err != nil {
			return fmt.Errorf("add source: %w", err)
		}
		return printSources(cmd, []domain.Source{*src})
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices(cmd.Context())
		if err != nil {
			return err
		}
		sources, err := svc.Sources.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sources: %w", err)
		}
		return printSources(cmd, sources)
	},
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <source-id>",
	Short: "Remove a source; its images stay in the remote repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices(cmd.Context())
		if err != nil {
			return err
		}
		if err := svc.Sources.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("remove source: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	},
}

func printSources(cmd *cobra.Command, sources []domain.Source) error {
	return render(cmd.OutOrStdout(), output, toSourceViews(sources),
		[]string{"ID", "NAME", "PROVIDER", "REPO", "BRANCH", "PATH"},
		func(s sourceView) []string {
			repo := s.Repo
			if s.Owner != "" {
				repo = s.Owner + "/" + s.Repo
			}
			return []string{s.ID, s.Name, s.Provider, repo, s.Branch, s.Path}
		})
}

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.AddCommand(sourceAddCmd, sourceListCmd, sourceRemoveCmd)

	f := sourceAddCmd.Flags()
	f.String("name", "", "Display name (defaults to owner/repo/path)")
	f.String("provider", "github", "Provider: github, gitee or s3")
	f.String("owner", "", "Repository owner")
	f.String("repo", "", "Repository name, or bucket for s3")
	f.String("branch", "", "Branch (defaults per provider)")
	f.String("path", "", "Directory inside the repository, or key prefix for s3")
	if err := sourceAddCmd.MarkFlagRequired("repo"); err != nil {
		panic(fmt.Errorf("failed to mark flag `repo` as required: %w", err))
	}
}
