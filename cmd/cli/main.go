// Command cli is a local, sandbox-free runner for the Plan-Retrieve-Execute
// solver: it submits one question straight to loop.Solve from the terminal
// without going through the HTTP surface, for manual trials and scripting.
// The flag/command dispatch style is grounded on mbflow's own cmd/cli
// command-line tool.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/smilemakc/mbflow-inference/internal/artifact"
	"github.com/smilemakc/mbflow-inference/internal/config"
	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/execclient"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/audit"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
	"github.com/smilemakc/mbflow-inference/internal/loop"
	"github.com/smilemakc/mbflow-inference/internal/preprocess"
)

const usage = `inference-cli - submit one task to the solver

USAGE:
    inference-cli solve -question "<text>" [options]
    inference-cli solve -file question.txt [options]
    inference-cli version
    inference-cli help

SOLVE OPTIONS:
    -question <text>     The question to solve (mutually exclusive with -file)
    -file <path>          Read the question from a file (mutually exclusive with -question)
    -context <path>       Attach a dataset/context file for the File Analyzer (repeatable)
    -difficulty <hint>    Force "code" or "non_code" (default: let the Analyzer decide)
    -model <name>         LLM model name (default: OPENAI_MODEL env or "gpt-4o-mini")
    -artifact-dir <path>  Directory for per-round artifacts (default: ./data/artifacts)
    -timeout <duration>   Overall wall-clock budget for the task (default: 10m)

ENVIRONMENT VARIABLES:
    OPENAI_API_KEY        API key for the OpenAI client (always used)
    OPENAI_MODEL          Default model name
`

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	godotenv.Load()

	switch os.Args[1] {
	case "solve":
		runSolve(os.Args[2:])
	case "version":
		fmt.Println("inference-cli " + version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
}

type contextFiles []string

func (c *contextFiles) String() string { return strings.Join(*c, ",") }
func (c *contextFiles) Set(v string) error {
	*c = append(*c, v)
	return nil
}

func runSolve(args []string) {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	question := fs.String("question", "", "question text")
	file := fs.String("file", "", "path to a file holding the question")
	difficulty := fs.String("difficulty", "", "code | non_code")
	model := fs.String("model", envOr("OPENAI_MODEL", "gpt-4o-mini"), "LLM model name")
	artifactDir := fs.String("artifact-dir", "./data/artifacts", "artifact output directory")
	timeout := fs.Duration("timeout", 10*time.Minute, "overall task timeout")
	var contexts contextFiles
	fs.Var(&contexts, "context", "attach a context file (repeatable)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	q, err := resolveQuestion(*question, *file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	files, err := preprocess.AnalyzeFiles(contexts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error analyzing context files:", err)
		os.Exit(1)
	}

	bundle := domain.ContextBundle{
		Question:            q,
		Files:               files,
		CrossReferenceIndex: preprocess.BuildCrossReferenceIndex(nil, files),
		DifficultyHint:      *difficulty,
	}

	log := logger.New(config.LoggingConfig{Level: "info", Format: "text"})

	llm := llmclient.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), *model)
	exec := execclient.NewLocalPythonExecutor()

	taskID := uuid.New().String()
	recorder, err := artifact.NewFileRecorder(*artifactDir, taskID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error creating artifact recorder:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	deps := loop.Deps{LLM: llm, Executor: exec, Recorder: recorder, Log: log, Audit: audit.New(os.Stderr, taskID)}
	result, err := loop.Solve(ctx, deps, bundle, config.DefaultSolveConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "solve failed:", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func resolveQuestion(question, file string) (string, error) {
	switch {
	case question != "" && file != "":
		return "", fmt.Errorf("-question and -file are mutually exclusive")
	case question != "":
		return question, nil
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return "", err
		}
		defer f.Close()
		b, err := io.ReadAll(bufio.NewReader(f))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	default:
		return "", fmt.Errorf("one of -question or -file is required")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
