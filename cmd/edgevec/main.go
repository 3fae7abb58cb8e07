// Command edgevec manages vector index snapshots from the command
// line: create an index, insert vectors from JSON lines, search,
// inspect a snapshot, and compact away tombstones. Snapshots live
// either in standalone .evec files or in a SQLite catalog.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edgevec/edgevec"
	"github.com/edgevec/edgevec/pkg/meta"
	"github.com/edgevec/edgevec/pkg/store"
)

var (
	snapshotPath string
	catalogPath  string
	configPath   string
	verbose      bool
)

// fileConfig mirrors the YAML index config file.
type fileConfig struct {
	Dimensions     int     `yaml:"dimensions"`
	Metric         string  `yaml:"metric"`
	IndexType      string  `yaml:"index_type"`
	M              int     `yaml:"m"`
	M0             int     `yaml:"m0"`
	EfConstruction int     `yaml:"ef_construction"`
	EfSearch       int     `yaml:"ef_search"`
	Quantization   string  `yaml:"quantization"`
	Metadata       bool    `yaml:"metadata"`
	CleanupRatio   float64 `yaml:"cleanup_ratio"`
}

var rootCmd = &cobra.Command{
	Use:   "edgevec",
	Short: "Manage EdgeVec index snapshots",
	Long:  `A command-line interface for creating, querying, and inspecting EdgeVec vector index snapshots.`,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty index snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		dims, _ := cmd.Flags().GetInt("dimensions")
		metricName, _ := cmd.Flags().GetString("metric")
		quantization, _ := cmd.Flags().GetString("quantization")
		indexType, _ := cmd.Flags().GetString("type")

		cfg := edgevec.DefaultConfig(dims)
		cfg.Metric = metricName
		cfg.Quantization = quantization
		cfg.IndexType = edgevec.IndexType(indexType)

		if configPath != "" {
			fc, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			cfg = applyFileConfig(cfg, fc)
		}
		if verbose {
			cfg.Logger = edgevec.NewStdLogger(edgevec.LevelDebug)
		}

		idx, err := edgevec.New(cfg)
		if err != nil {
			return err
		}
		if err := writeSnapshot(idx); err != nil {
			return err
		}

		fmt.Printf("Created %s index: %d dimensions, metric %s\n",
			cfg.IndexType, cfg.Dimensions, cfg.Metric)
		return nil
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert <vectors.jsonl>",
	Short: "Batch-insert vectors from a JSON lines file",
	Long: `Each line holds {"vector": [..], "metadata": {..}} where metadata
values are strings, numbers, booleans, or string arrays.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := readSnapshot()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		type line struct {
			Vector   []float32                  `json:"vector"`
			Metadata map[string]json.RawMessage `json:"metadata"`
		}

		inserted, failed := 0, 0
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var l line
			if err := json.Unmarshal([]byte(text), &l); err != nil {
				failed++
				continue
			}

			if l.Metadata == nil {
				_, err = idx.Insert(l.Vector)
			} else {
				md, convErr := convertMetadata(l.Metadata)
				if convErr != nil {
					failed++
					continue
				}
				_, err = idx.InsertWithMetadata(l.Vector, md)
			}
			if err != nil {
				failed++
				continue
			}
			inserted++
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		if err := writeSnapshot(idx); err != nil {
			return err
		}
		fmt.Printf("Inserted %d vectors (%d failed)\n", inserted, failed)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <vector>",
	Short: "Search the snapshot for nearest neighbors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		filterSrc, _ := cmd.Flags().GetString("filter")
		strategy, _ := cmd.Flags().GetString("strategy")

		query, err := parseVector(args[0])
		if err != nil {
			return err
		}

		idx, err := readSnapshot()
		if err != nil {
			return err
		}

		if filterSrc != "" {
			matches, err := idx.SearchFiltered(query, k, filterSrc, strategy)
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Printf("%d\t%g\n", m.ID, m.Score)
			}
			return nil
		}

		results, err := idx.Search(query, k)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%d\t%g\n", r.ID, r.Score)
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print snapshot shape and statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := readSnapshot()
		if err != nil {
			return err
		}

		cfg := idx.Config()
		fmt.Printf("type:         %s\n", cfg.IndexType)
		fmt.Printf("dimensions:   %d\n", cfg.Dimensions)
		fmt.Printf("metric:       %s\n", cfg.Metric)
		fmt.Printf("quantization: %s\n", cfg.Quantization)
		fmt.Printf("metadata:     %v\n", cfg.MetadataEnabled)
		fmt.Printf("count:        %d\n", idx.Count())

		stats, err := json.MarshalIndent(idx.Stats(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(stats))
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Remove tombstoned vectors and rewrite the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := readSnapshot()
		if err != nil {
			return err
		}

		before := idx.Count()
		idx.Compact()
		if err := writeSnapshot(idx); err != nil {
			return err
		}
		fmt.Printf("Compacted: %d live vectors\n", before)
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the snapshot catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := store.Open(catalogPath)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		infos, err := c.List(context.Background())
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Printf("%s\t%s\t%dd\t%s\t%d vectors\t%d bytes\n",
				info.Name, info.IndexType, info.Dimensions, info.Metric, info.Count, info.SizeBytes)
		}
		return nil
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Import the snapshot file into the catalog under a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := readSnapshot()
		if err != nil {
			return err
		}

		c, err := store.Open(catalogPath)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		id, err := c.Save(context.Background(), args[0], idx)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %q (%s)\n", args[0], id)
		return nil
	},
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("invalid config file: %w", err)
	}
	return fc, nil
}

func applyFileConfig(cfg edgevec.Config, fc fileConfig) edgevec.Config {
	if fc.Dimensions != 0 {
		cfg.Dimensions = fc.Dimensions
	}
	if fc.Metric != "" {
		cfg.Metric = fc.Metric
	}
	if fc.IndexType != "" {
		cfg.IndexType = edgevec.IndexType(fc.IndexType)
	}
	if fc.M != 0 {
		cfg.M = fc.M
	}
	if fc.M0 != 0 {
		cfg.M0 = fc.M0
	}
	if fc.EfConstruction != 0 {
		cfg.EfConstruction = fc.EfConstruction
	}
	if fc.EfSearch != 0 {
		cfg.EfSearch = fc.EfSearch
	}
	if fc.Quantization != "" {
		cfg.Quantization = fc.Quantization
	}
	if fc.Metadata {
		cfg.MetadataEnabled = true
	}
	if fc.CleanupRatio != 0 {
		cfg.CleanupThreshold = fc.CleanupRatio
	}
	return cfg
}

// convertMetadata maps JSON metadata values onto the typed metadata
// union: strings, numbers (integral -> int), booleans, string arrays.
func convertMetadata(raw map[string]json.RawMessage) (map[string]meta.Value, error) {
	out := make(map[string]meta.Value, len(raw))
	for key, msg := range raw {
		var v interface{}
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, err
		}
		switch tv := v.(type) {
		case string:
			out[key] = meta.String(tv)
		case float64:
			if tv == float64(int64(tv)) {
				out[key] = meta.Int(int64(tv))
			} else {
				out[key] = meta.Float(tv)
			}
		case bool:
			out[key] = meta.Bool(tv)
		case []interface{}:
			arr := make([]string, 0, len(tv))
			for _, e := range tv {
				s, ok := e.(string)
				if !ok {
					return nil, fmt.Errorf("array value for %q is not a string", key)
				}
				arr = append(arr, s)
			}
			out[key] = meta.StringArray(arr)
		default:
			return nil, fmt.Errorf("unsupported metadata value for %q", key)
		}
	}
	return out, nil
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", part, err)
		}
		vec = append(vec, float32(val))
	}
	return vec, nil
}

func readSnapshot() (*edgevec.Index, error) {
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return edgevec.Load(data)
}

func writeSnapshot(idx *edgevec.Index) error {
	if err := os.WriteFile(snapshotPath, idx.Save(), 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&snapshotPath, "snapshot", "s", "index.evec", "snapshot file path")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "catalog.db", "snapshot catalog path")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML index config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	createCmd.Flags().Int("dimensions", 128, "vector dimensions")
	createCmd.Flags().String("metric", "l2", "distance metric (l2, cosine, dot)")
	createCmd.Flags().String("quantization", "none", "quantization mode (none, sq8, binary, sq8+binary)")
	createCmd.Flags().String("type", "hnsw", "index type (hnsw, flat)")

	searchCmd.Flags().IntP("k", "k", 10, "number of results")
	searchCmd.Flags().StringP("filter", "f", "", "metadata filter expression")
	searchCmd.Flags().String("strategy", "auto", "filter strategy (auto, pre, post)")

	catalogCmd.AddCommand(catalogListCmd, catalogImportCmd)
	rootCmd.AddCommand(createCmd, insertCmd, searchCmd, inspectCmd, compactCmd, catalogCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
