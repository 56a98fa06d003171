// Command lightingagent runs the lighting agent web service: REST endpoints
// for chat threads, messages and runs backed by MongoDB, with run progress
// streamed over SSE while an OpenAI-compatible model drives the light plugin
// through tool calls.
//
// Configuration comes from an optional YAML file (-config) overridden by
// environment variables; see the config package for the full list.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"goa.design/clue/health"
	"goa.design/clue/log"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/engine"
	"github.com/matthewbolanos/sk-party-planning-committee/api"
	"github.com/matthewbolanos/sk-party-planning-committee/config"
	openaimodel "github.com/matthewbolanos/sk-party-planning-committee/features/model/openai"
	"github.com/matthewbolanos/sk-party-planning-committee/features/plugins"
	storemongo "github.com/matthewbolanos/sk-party-planning-committee/features/store/mongo"
	clmongo "github.com/matthewbolanos/sk-party-planning-committee/features/store/mongo/clients/mongo"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		addrF   = flag.String("http-addr", "", "HTTP listen address (overrides configuration)")
		dbgF    = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "load configuration")
	}
	if *addrF != "" {
		cfg.HTTP.Addr = *addrF
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	mongoClient, err := mongodriver.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	cancel()
	if err != nil {
		log.Fatalf(ctx, err, "connect to mongodb at %s", cfg.Mongo.URI)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Errorf(ctx, err, "disconnect mongodb")
		}
	}()

	storeClient, err := clmongo.New(clmongo.Options{
		Client:   mongoClient,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatalf(ctx, err, "initialize mongodb store")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = storeClient.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Fatalf(ctx, err, "ping mongodb")
	}

	threads, err := storemongo.NewThreadStore(storeClient)
	if err != nil {
		log.Fatalf(ctx, err, "build thread store")
	}
	messages, err := storemongo.NewMessageStore(storeClient)
	if err != nil {
		log.Fatalf(ctx, err, "build message store")
	}

	completer, err := openaimodel.NewFromDeployment(openaimodel.Deployment{
		Kind:           cfg.OpenAI.DeploymentType,
		APIKey:         cfg.OpenAI.APIKey,
		ModelID:        cfg.OpenAI.ModelID,
		DeploymentName: cfg.OpenAI.DeploymentName,
		Endpoint:       cfg.OpenAI.Endpoint,
		OrgID:          cfg.OpenAI.OrgID,
	})
	if err != nil {
		log.Fatalf(ctx, err, "build completion client")
	}

	var catalogue plugins.Group
	for name, svc := range cfg.PluginServices {
		doc, err := os.ReadFile(svc.Document)
		if err != nil {
			log.Fatalf(ctx, err, "read plugin document for %s", name)
		}
		cat, err := plugins.New(plugins.Options{
			PluginName: name,
			Document:   doc,
			Endpoints:  svc.Endpoints,
		})
		if err != nil {
			log.Fatalf(ctx, err, "build plugin catalogue for %s", name)
		}
		catalogue = append(catalogue, cat)
	}

	eng, err := engine.New(engine.Options{
		Completer:   completer,
		Messages:    messages,
		Catalogue:   catalogue,
		Instruction: cfg.Instruction,
	})
	if err != nil {
		log.Fatalf(ctx, err, "build run engine")
	}

	svc, err := api.New(api.Options{
		Threads:    threads,
		Messages:   messages,
		Runner:     eng,
		Middleware: []func(http.Handler) http.Handler{log.HTTP(ctx)},
	})
	if err != nil {
		log.Fatalf(ctx, err, "build api service")
	}

	mux := chi.NewRouter()
	mux.Get("/healthz", healthzHandler(storeClient))
	mux.Mount("/", svc.Handler())

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf(ctx, "HTTP server listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "shutdown HTTP server")
	}
	wg.Wait()
	log.Printf(ctx, "exited")
}

// healthzHandler reports liveness of the service dependencies.
func healthzHandler(pingers ...health.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, p := range pingers {
			if err := p.Ping(r.Context()); err != nil {
				log.Errorf(r.Context(), err, "health check %s", p.Name())
				http.Error(w, fmt.Sprintf("%s: unhealthy", p.Name()), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}
}
