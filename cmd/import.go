package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/app"
	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/sources"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Fetch jobs from the sources and merge them into the catalog",
	Long: "Without --user the run is a scheduled one: queries come from --query or from every user's preferences. " +
		"With --user the run goes through the import cooldown and the monthly quota.",
	Run: func(cmd *cobra.Command, _ []string) {
		runImport(cmd)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("user", "u", "", "import on behalf of the user")
	importCmd.Flags().StringSliceP("source", "s", nil, "sources to use (partner, headhunter, scraper, adzuna). Default is every configured source")
	importCmd.Flags().StringArrayP("query", "q", nil, "search query, optionally with a location after '@' (\"golang developer@Berlin\")")
	importCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation")
	importCmd.Flags().Bool("dry-run", false, "use in-memory stores; nothing is written to the database")
}

func runImport(cmd *cobra.Command) {
	ctx := cmd.Context()

	logger, config := bootstrap("import")

	req, err := importRequest(cmd)
	if err != nil {
		logger.Fatal("parsing flags", zap.Error(err))
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	if !autoApprove && !confirmImport(req, dryRun) {
		logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return
	}

	rt, err := newRuntime(ctx, config, logger, runtimeOptions{DryRun: dryRun})
	if err != nil {
		logger.Fatal("building the runtime", zap.Error(err))
	}
	defer rt.Close()

	res, err := rt.service.Import(ctx, req)
	printJSON(res)
	if err != nil {
		rt.Close()
		logger.Fatal("import failed", zap.Error(err))
	}

	if !res.Allowed {
		logger.Info("import was not allowed", zap.Timep("next_allowed_at", res.NextAllowedAt))
	}
	if rt.queue != nil {
		logger.Debug("embedding queue", zap.Any("stats", rt.queue.Stats()))
	}
}

func importRequest(cmd *cobra.Command) (app.ImportRequest, error) {
	user, _ := cmd.Flags().GetString("user")
	rawSources, _ := cmd.Flags().GetStringSlice("source")
	rawQueries, _ := cmd.Flags().GetStringArray("query")

	req := app.ImportRequest{UserID: strings.TrimSpace(user)}
	for _, raw := range rawSources {
		src, err := catalog.ParseSource(raw)
		if err != nil {
			return req, err
		}
		req.Sources = append(req.Sources, src)
	}
	for _, raw := range rawQueries {
		req.Queries = append(req.Queries, parseQuery(raw))
	}
	return req, nil
}

// parseQuery splits "text@location" at the last '@'.
func parseQuery(raw string) sources.Query {
	text, location := raw, ""
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		text, location = raw[:i], raw[i+1:]
	}
	return sources.Query{Text: strings.TrimSpace(text), Location: strings.TrimSpace(location)}
}

func confirmImport(req app.ImportRequest, dryRun bool) bool {
	who := "all users"
	if req.UserID != "" {
		who = "user " + req.UserID
	}
	label := fmt.Sprintf("Import for %s (%d sources, %d queries, dry run: %t)?", who, len(req.Sources), len(req.Queries), dryRun)

	prompt := promptui.Select{
		Label: label,
		Items: []string{PromptYes, PromptNo},
	}
	_, action, err := prompt.Run()
	if err != nil {
		if !errors.Is(err, promptui.ErrInterrupt) {
			log.Printf("prompt failed: %v", err)
		}
		return false
	}
	return action == PromptYes
}

func printJSON(v any) {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("encoding output: %v", err)
		return
	}
	fmt.Println(string(pretty))
}
