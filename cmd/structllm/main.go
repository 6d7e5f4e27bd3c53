// Command structllm asks a language model for a JSON object with the
// fields given on the command line or in a config file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/lemon-mint/structllm"
	"github.com/lemon-mint/structllm/coerce"
	"github.com/lemon-mint/structllm/config"
	"github.com/lemon-mint/structllm/directory"
	"github.com/lemon-mint/structllm/provider/clarifai"
	"github.com/lemon-mint/structllm/retrieval"
	"github.com/lemon-mint/structllm/schema"

	_ "github.com/lemon-mint/structllm/provider/aistudio"
	_ "github.com/lemon-mint/structllm/provider/anthropic"
	_ "github.com/lemon-mint/structllm/provider/ollama"
	_ "github.com/lemon-mint/structllm/provider/openai"
	_ "github.com/lemon-mint/structllm/provider/vertexai"
)

type fieldFlags []config.Field

func (f *fieldFlags) String() string {
	parts := make([]string, len(*f))
	for i, fl := range *f {
		parts[i] = fl.Name + "=" + fl.Type
	}
	return strings.Join(parts, ",")
}

func (f *fieldFlags) Set(s string) error {
	fl, err := config.ParseField(s)
	if err != nil {
		return err
	}
	*f = append(*f, fl)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("structllm", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		flagConfig     string
		flagEnv        string
		flagModel      string
		flagProvider   string
		flagRAG        bool
		flagListModels bool
		flagShowSchema bool
		flagYAML       bool
		fields         fieldFlags
	)
	fs.StringVar(&flagConfig, "config", "", "YAML config file")
	fs.StringVar(&flagEnv, "env", ".env", "dotenv file loaded before the environment is read")
	fs.StringVar(&flagModel, "model", "", "model key or name (overrides config)")
	fs.StringVar(&flagProvider, "provider", "", "llm provider (overrides config)")
	fs.Var(&fields, "field", "output field as name=type, repeatable (overrides config fields)")
	fs.BoolVar(&flagRAG, "rag", false, "ground the answer in documents retrieved from the configured app")
	fs.BoolVar(&flagListModels, "list-models", false, "list the models reachable with the token and exit")
	fs.BoolVar(&flagShowSchema, "show-schema", true, "print the schema before the answer")
	fs.BoolVar(&flagYAML, "yaml", false, "print the schema as YAML")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := config.LoadEnvFile(flagEnv); err != nil {
		fmt.Fprintf(stderr, "load %s: %v\n", flagEnv, err)
		return 2
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if len(fields) > 0 {
		cfg.Fields = fields
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var dir *directory.Directory
	var searcher retrieval.Searcher
	if flagListModels || flagRAG || (cfg.Provider == clarifai.ProviderName && isDirectoryKey(cfg.Model)) {
		cc, err := clarifai.NewClient(ctx, cfg.ClarifaiConfigs(logger)...)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		defer cc.Close()
		dir = directory.New(cc, directory.WithLogger(logger))
		searcher = cc
	}

	if flagListModels {
		return listModels(ctx, dir, cfg.RAG.Token, stdout, stderr)
	}

	opts := []structllm.SessionOption{
		structllm.WithLogger(logger),
		structllm.WithToken(cfg.RAG.Token),
		structllm.WithSchemaOptions(schema.WithMaxFields(cfg.MaxFields)),
		structllm.WithCoercer(coerce.New(
			coerce.WithTimeout(cfg.Timeout.Std()),
			coerce.WithLogger(logger),
		)),
	}
	if cfg.Strict {
		opts = append(opts, structllm.WithStrictValidation())
	}
	if flagRAG {
		if err := cfg.ValidateRAG(); err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		fetcher := retrieval.NewHTTPFetcher(cfg.RAG.Token, cfg.FetcherOptions()...)
		opts = append(opts, structllm.WithRetriever(retrieval.NewRetriever(searcher, fetcher, cfg.RetrieverOptions(logger)...)))
	}
	// directory keys only name clarifai models
	if dir != nil && cfg.Provider == clarifai.ProviderName && isDirectoryKey(cfg.Model) {
		opts = append(opts, structllm.WithDirectory(dir))
	}

	client, err := structllm.NewLLMClient(ctx, cfg.Provider, cfg.ProviderConfigs(logger)...)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	opts = append(opts, structllm.WithLLMClient(client))

	session := structllm.NewSession(opts...)
	defer session.Close()

	desc, err := session.BuildSchema(cfg.FieldSpecs())
	if err != nil {
		fmt.Fprintf(stderr, "schema: %v\n", err)
		if desc == nil {
			return 2
		}
	}

	if flagShowSchema {
		if err := printSchema(stdout, desc, flagYAML); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	if cfg.Model == "" {
		fmt.Fprintln(stderr, "no model: set -model, model in the config file, or "+config.EnvModel)
		return 2
	}
	if err := session.SelectModel(ctx, cfg.Model, cfg.LLMConfig()); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	query, err := readQuery(fs.Args(), stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	res, err := session.Chat(ctx, query, flagRAG)
	if errors.Is(err, coerce.ErrParseFailure) {
		logger.Info("unparseable reply", zap.Error(err))
		fmt.Fprintln(stdout, res.Raw)
		fmt.Fprintln(stderr, "The model reply is not valid JSON for this schema. Please try again.")
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if flagRAG && res.FailedFetches > 0 {
		fmt.Fprintf(stderr, "%d retrieved documents could not be fetched\n", res.FailedFetches)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Object); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func isDirectoryKey(model string) bool {
	return strings.Contains(model, ":") && !strings.Contains(model, "://")
}

func listModels(ctx context.Context, dir *directory.Directory, token string, stdout, stderr io.Writer) int {
	listing, err := dir.List(ctx, token)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	for _, e := range listing.Entries() {
		fmt.Fprintf(stdout, "%s\t%s\n", e.Key, e.URL)
	}
	return 0
}

func printSchema(w io.Writer, desc *schema.Descriptor, asYAML bool) error {
	if asYAML {
		out, err := desc.YAML()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, strings.TrimRight(out, "\n"))
		return err
	}
	_, err := fmt.Fprintln(w, desc.String())
	return err
}

func readQuery(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read query: %w", err)
	}
	q := strings.TrimSpace(string(b))
	if q == "" {
		return "", errors.New("no query: pass it as arguments or on stdin")
	}
	return q, nil
}
