package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PATRIC3/judge-host/internal/judge"
	"github.com/PATRIC3/judge-host/pkg/client"
)

func getClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.NewClient(client.Config{BaseURL: server, Timeout: 5 * time.Minute})
}

func languageFromPath(path string) judge.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return judge.LanguagePython
	case ".cpp", ".cc", ".cxx":
		return judge.LanguageCpp
	default:
		return ""
	}
}

func readFileIfSet(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the judge service's queue depth and worker count",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := getClient(cmd)
	status, err := c.Status(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Queue: %d\n", status.Queue)
	fmt.Printf("Workers: %d\n", status.NumWorkers)
	return nil
}

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <source-file>",
		Short: "Execute a submission and compare its output against an expected file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSubmit,
	}
	cmd.Flags().StringP("input", "i", "", "Path to a file fed to the submission's stdin")
	cmd.Flags().StringP("expected", "e", "", "Path to the expected stdout file")
	cmd.Flags().StringP("lang", "l", "", "Override language detection (python, cpp)")
	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	sourcePath := args[0]
	source, err := readFileIfSet(sourcePath)
	if err != nil {
		return err
	}

	inputPath, _ := cmd.Flags().GetString("input")
	input, err := readFileIfSet(inputPath)
	if err != nil {
		return err
	}

	expectedPath, _ := cmd.Flags().GetString("expected")
	expected, err := readFileIfSet(expectedPath)
	if err != nil {
		return err
	}

	lang, _ := cmd.Flags().GetString("lang")
	language := judge.Language(lang)
	if language == "" {
		language = languageFromPath(sourcePath)
	}

	c := getClient(cmd)
	results, err := c.Judge(context.Background(), []judge.Submission{
		{Language: language, Source: source, Input: input, Expected: expected},
	})
	if err != nil {
		return err
	}

	return printResult(results[0])
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <source-file>",
		Short: "Execute a submission without comparing its output",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	cmd.Flags().StringP("input", "i", "", "Path to a file fed to the submission's stdin")
	cmd.Flags().StringP("lang", "l", "", "Override language detection (python, cpp)")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	sourcePath := args[0]
	source, err := readFileIfSet(sourcePath)
	if err != nil {
		return err
	}

	inputPath, _ := cmd.Flags().GetString("input")
	input, err := readFileIfSet(inputPath)
	if err != nil {
		return err
	}

	lang, _ := cmd.Flags().GetString("lang")
	language := judge.Language(lang)
	if language == "" {
		language = languageFromPath(sourcePath)
	}

	c := getClient(cmd)
	results, err := c.Run(context.Background(), []judge.Submission{
		{Language: language, Source: source, Input: input},
	})
	if err != nil {
		return err
	}

	return printResult(results[0])
}

func printResult(result judge.Result) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if result.Reason != judge.ReasonNone {
		os.Exit(1)
	}
	if !result.RunSuccess {
		os.Exit(1)
	}
	return nil
}
