// cmd/tools/applicant-lookup/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/urfave/cli/v2"

	"applicant-registry/internal/common/config"
	"applicant-registry/internal/common/database"
	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/common/validation"
	"applicant-registry/internal/lookup"
	"applicant-registry/internal/lookup/store"
	"applicant-registry/internal/models"
	"applicant-registry/pkg/registry"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "applicant-lookup",
		Usage: "Run tiered applicant lookups and inspect the lookup configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
			&cli.StringSliceFlag{
				Name:  "weight",
				Usage: "Override a field weight, as name=value (repeatable)",
			},
			&cli.Float64Flag{
				Name:  "threshold",
				Usage: "Trigram similarity threshold",
				Value: lookup.DefaultSimilarityThreshold,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "lookup",
				Usage:  "Look up applicants of one kind and print the three tiers as JSON",
				Action: lookupCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kind",
						Aliases:  []string{"k"},
						Usage:    "Applicant kind (individual, entrepreneur, organization)",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:    "field",
						Aliases: []string{"f"},
						Usage:   "Search criterion as name=value; JSON objects are accepted for legal_address",
					},
					&cli.StringFlag{
						Name:    "seed",
						Aliases: []string{"s"},
						Usage:   "JSON file with applicant records for the in-memory store",
					},
					&cli.StringFlag{
						Name:    "dsn",
						Usage:   "PostgreSQL connection string; overrides --seed",
						EnvVars: []string{"REGISTRY_DSN"},
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Lookup deadline",
						Value: 10 * time.Second,
					},
				},
			},
			{
				Name:   "weights",
				Usage:  "Print the effective field weights",
				Action: weightsCommand,
			},
			{
				Name:   "activities",
				Usage:  "Print the activity registry describing the lookup workers",
				Action: activitiesCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Config file supplying worker timeouts and retries",
					},
					&cli.StringFlag{
						Name:  "registry-version",
						Usage: "Registry version",
						Value: "1.0.0",
					},
				},
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema lookup requests are validated against",
				Action: schemaCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "batch",
						Usage: "Print the batch request schema instead",
					},
				},
			},
		},
	}
}

func lookupCommand(c *cli.Context) error {
	kind, err := models.ParseApplicantKind(c.String("kind"))
	if err != nil {
		return err
	}
	fields, err := parseFields(c.StringSlice("field"))
	if err != nil {
		return err
	}
	weights, err := parseWeights(c.StringSlice("weight"))
	if err != nil {
		return err
	}
	scorer, err := lookup.NewScorer(weights, c.Float64("threshold"))
	if err != nil {
		return err
	}

	log := logger.NewStructured(c.String("log-level"), "console")

	st, closeStore, err := openStore(c, scorer, log)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := lookup.NewService(st, lookup.Options{Weights: weights, Threshold: scorer.Threshold()}, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	resp, err := svc.Lookup(ctx, kind, fields)
	if err != nil {
		return err
	}
	return printJSON(c, resp)
}

func openStore(c *cli.Context, scorer *lookup.Scorer, log logger.Logger) (lookup.Store, func(), error) {
	if dsn := c.String("dsn"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, err
		}
		pg := database.NewPostgresFromDB(db)
		if err := pg.Ping(c.Context); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store.NewPostgresStore(db, log), func() { pg.Close() }, nil
	}

	mem, err := store.NewMemoryStore(scorer)
	if err != nil {
		return nil, nil, err
	}
	if path := c.String("seed"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		records, err := store.LoadRecords(f)
		if err != nil {
			return nil, nil, err
		}
		if err := mem.Add(records...); err != nil {
			return nil, nil, err
		}
	}
	return mem, func() {}, nil
}

func weightsCommand(c *cli.Context) error {
	weights, err := parseWeights(c.StringSlice("weight"))
	if err != nil {
		return err
	}

	m := weights.Map()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(c.App.Writer, "%-20s %g\n", name, m[name])
	}
	fmt.Fprintf(c.App.Writer, "%-20s %g\n", "threshold", c.Float64("threshold"))
	return nil
}

func activitiesCommand(c *cli.Context) error {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	reg := registry.Build(cfg, c.String("registry-version"))
	if err := reg.Validate(); err != nil {
		return err
	}
	return registry.Write(c.App.Writer, reg)
}

func schemaCommand(c *cli.Context) error {
	schema := validation.LookupSchema()
	if c.Bool("batch") {
		schema = validation.BatchSchema()
	}
	data, err := validation.SchemaJSON(schema)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(data))
	return err
}

// parseFields turns name=value pairs into a criteria map. Values that
// look like JSON objects are decoded.
func parseFields(pairs []string) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("field %q: expected name=value", pair)
		}
		name = strings.TrimSpace(name)

		if strings.HasPrefix(strings.TrimSpace(value), "{") {
			var obj map[string]interface{}
			if err := json.Unmarshal([]byte(value), &obj); err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			fields[name] = obj
			continue
		}
		fields[name] = value
	}
	return fields, nil
}

func parseWeights(pairs []string) (lookup.FieldWeights, error) {
	raw := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return lookup.FieldWeights{}, fmt.Errorf("weight %q: expected name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return lookup.FieldWeights{}, fmt.Errorf("weight %s: %w", name, err)
		}
		raw[name] = v
	}
	return lookup.NewFieldWeights(raw)
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
