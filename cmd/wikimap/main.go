package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-wikimap/internal/logger"
	"github.com/joeblew999/plat-wikimap/internal/markers"
	"github.com/joeblew999/plat-wikimap/internal/server"
)

// Options defines all CLI flags and env vars for the wikimap server.
// Flags: --host, --port, --data-dir, --web-dir, --redis-url, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR,
// SERVICE_REDIS_URL, SERVICE_LOG_LEVEL
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir  string `doc:"Directory for maps, settings and progress" default:".data"`
	WebDir   string `doc:"Path to web/ directory" default:"web"`
	RedisURL string `doc:"Redis URL for account progress sync; empty keeps progress local"`
	LogLevel string `doc:"Log level (debug, info, warn, error)" default:"info"`
}

func newServer(opts *Options) *server.Server {
	if opts.LogLevel != "" {
		os.Setenv("LOG_LEVEL", opts.LogLevel)
	}
	logger.Init()
	return server.New(server.Config{
		Host:     opts.Host,
		Port:     fmt.Sprintf("%d", opts.Port),
		DataDir:  opts.DataDir,
		WebDir:   opts.WebDir,
		RedisURL: opts.RedisURL,
	})
}

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load(".env")

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		srv := newServer(opts)

		hooks.OnStart(func() {
			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			logger.Log.WithField("data", opts.DataDir).Infof("plat-wikimap API server starting on %s", baseURL)
			logger.Log.Infof("docs %s/docs, openapi %s/openapi.json, metrics %s/metrics", baseURL, baseURL, baseURL)

			if err := http.ListenAndServe(addr, srv); err != nil {
				logger.Log.Fatalf("Server error: %v", err)
			}
		})
		hooks.OnStop(func() {
			if err := srv.Close(); err != nil {
				logger.Log.WithError(err).Warn("closing server resources")
			}
		})
	})

	cli.Root().Use = "wikimap"
	cli.Root().Short = "Interactive game wiki map server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// check subcommand: validate map definition files
	checkCmd := &cobra.Command{
		Use:   "check <file>...",
		Short: "Validate map definition files",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			failed := false
			for _, path := range args {
				def, err := markers.DecodeFile(path)
				if err == nil {
					_, err = markers.New(def, markers.Options{})
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					failed = true
					continue
				}
				n := 0
				for _, c := range def.Categories {
					for _, l := range c.Layers {
						n += len(l.Markers)
					}
				}
				fmt.Printf("%s: ok (%s, %d markers)\n", path, def.ID, n)
			}
			if failed {
				os.Exit(1)
			}
		},
	}
	cli.Root().AddCommand(checkCmd)

	cli.Run()
}
