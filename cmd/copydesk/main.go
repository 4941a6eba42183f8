package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/copydesk/dbopen"
	"github.com/hazyhaar/copydesk/desk"
	"github.com/hazyhaar/copydesk/docpipe"
	"github.com/hazyhaar/copydesk/kit"
	"github.com/hazyhaar/copydesk/llm"
	"github.com/hazyhaar/copydesk/mailroom"
	"github.com/hazyhaar/copydesk/objstore"
	"github.com/hazyhaar/copydesk/webfetch"
	"github.com/hazyhaar/copydesk/wppub"
)

// fileConfig is the optional YAML config (COPYDESK_CONFIG). Env vars
// cover the common settings; the file carries the structured ones.
type fileConfig struct {
	SiteID    string                 `yaml:"site_id"`
	WordPress wppub.Config           `yaml:"wordpress"`
	LLM       llm.OpenAIConfig       `yaml:"llm"`
	Poll      mailroom.PollerConfig  `yaml:"poll"`
	Browser   webfetch.BrowserConfig `yaml:"browser"`
	Docs      docpipe.Config         `yaml:"docs"`
}

func main() {
	port := env("PORT", "8086")
	dbPath := env("DB_PATH", "db/copydesk.db")
	mediaDir := env("MEDIA_DIR", "data/media")
	mediaBase := env("MEDIA_BASE_URL", "http://localhost:"+port+"/media")
	spoolDir := env("MAIL_SPOOL", "")
	mcpTransport := env("MCP_TRANSPORT", "")
	adminUser := env("ADMIN_USER", "admin")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		slog.Error("ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	// Logging. Stdio MCP owns stdout, so logs move to stderr in that mode.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logOut := os.Stdout
	if mcpTransport == "stdio" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	var cfg fileConfig
	if path := os.Getenv("COPYDESK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("config file", "path", path, "error", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			slog.Error("config parse", "path", path, "error", err)
			os.Exit(1)
		}
	}
	cfg.LLM.Logger = logger
	cfg.WordPress.Logger = logger
	cfg.Poll.Logger = logger
	cfg.Browser.Logger = logger
	cfg.Docs.Logger = logger

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Database.
	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll(), dbopen.WithSchema(desk.Schema))
	if err != nil {
		slog.Error("open db", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Media storage, served under /media.
	objects, err := objstore.NewDisk(mediaDir, mediaBase)
	if err != nil {
		slog.Error("media store", "error", err)
		os.Exit(1)
	}

	// Fetchers. The browser renderer is optional; without it meipian
	// falls back to its static strategy only.
	client := webfetch.NewClient(webfetch.ClientConfig{})
	var renderer webfetch.Renderer
	if remote := env("BROWSER_REMOTE_URL", cfg.Browser.RemoteURL); remote != "" || os.Getenv("BROWSER_LOCAL") == "1" {
		cfg.Browser.RemoteURL = remote
		rod := webfetch.NewRodRenderer(cfg.Browser)
		defer rod.Close()
		renderer = rod
	}

	deps := desk.Deps{
		DB:      db,
		Docs:    docpipe.New(cfg.Docs),
		Objects: objects,
		Client:  client,
		Weixin:  webfetch.NewWeixin(client, logger),
		Meipian: webfetch.NewMeipian(client, renderer, logger),
		Generic: webfetch.NewGeneric(client, logger),
	}

	if key := env("OPENAI_API_KEY", cfg.LLM.APIKey); key != "" {
		cfg.LLM.APIKey = key
		cfg.LLM.BaseURL = env("OPENAI_BASE_URL", cfg.LLM.BaseURL)
		cfg.LLM.Model = env("OPENAI_MODEL", cfg.LLM.Model)
		oa, err := llm.NewOpenAI(cfg.LLM)
		if err != nil {
			slog.Error("llm client", "error", err)
			os.Exit(1)
		}
		deps.Transformer = llm.NewTransformer(oa, llm.TransformConfig{Logger: logger})
	} else {
		slog.Info("no llm key configured, transform disabled")
	}

	if site := env("WP_SITE_URL", cfg.WordPress.SiteURL); site != "" {
		cfg.WordPress.SiteURL = site
		cfg.WordPress.Username = env("WP_USERNAME", cfg.WordPress.Username)
		cfg.WordPress.Password = env("WP_APP_PASSWORD", cfg.WordPress.Password)
		wp, err := wppub.New(cfg.WordPress)
		if err != nil {
			slog.Error("wordpress client", "error", err)
			os.Exit(1)
		}
		deps.Publisher = wp
	} else {
		slog.Info("no wordpress site configured, publish disabled")
	}

	svc := desk.New(deps, desk.Config{
		SiteID: env("SITE_ID", cfg.SiteID),
		Logger: logger,
	})

	// Mail poller, fed by the spool directory the gateway writes into.
	if spoolDir != "" {
		fetcher, err := newSpoolFetcher(spoolDir, logger)
		if err != nil {
			slog.Error("mail spool", "error", err)
			os.Exit(1)
		}
		cfg.Poll.Schedule = env("POLL_SCHEDULE", cfg.Poll.Schedule)
		poller := mailroom.NewPoller(fetcher, svc, cfg.Poll)
		if err := poller.Start(ctx); err != nil {
			slog.Error("poller start", "error", err)
			os.Exit(1)
		}
		defer poller.Stop()
	} else {
		slog.Info("no mail spool configured, ingest over HTTP only")
	}

	// Optional MCP stdio surface alongside the HTTP API.
	if mcpTransport == "stdio" {
		srv := mcp.NewServer(&mcp.Implementation{Name: "copydesk", Version: "1.0.0"}, nil)
		svc.RegisterMCP(srv)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("mcp server", "error", err)
			}
		}()
	}

	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("admin credentials", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Rehosted media referenced by placeholder maps and published posts.
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin(adminUser, adminHash))

		r.Post("/api/ingest", func(w http.ResponseWriter, r *http.Request) {
			var msgs []mailroom.Message
			if err := json.NewDecoder(r.Body).Decode(&msgs); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.IngestBatch(r.Context(), msgs); err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 202, map[string]int{"accepted": len(msgs)})
		})

		r.Get("/api/submissions", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			subs, err := svc.ListSubmissions(r.Context(), limit)
			if err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, subs)
		})

		r.Get("/api/submissions/{submissionID}", func(w http.ResponseWriter, r *http.Request) {
			sub, err := svc.GetSubmission(r.Context(), chi.URLParam(r, "submissionID"))
			if err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, sub)
		})

		r.Get("/api/submissions/{submissionID}/draft", func(w http.ResponseWriter, r *http.Request) {
			draft, err := svc.DraftBySubmission(r.Context(), chi.URLParam(r, "submissionID"))
			if err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, draft)
		})

		r.Post("/api/submissions/{submissionID}/transform", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "submissionID")
			if err := svc.Transform(r.Context(), id); err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "transformed"})
		})

		r.Get("/api/drafts/{draftID}", func(w http.ResponseWriter, r *http.Request) {
			detail, err := svc.DraftDetail(r.Context(), chi.URLParam(r, "draftID"))
			if err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, detail)
		})

		r.Put("/api/drafts/{draftID}", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				RichContent string `json:"rich_content"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			version, changed, err := svc.ApplyEdit(editorCtx(r), chi.URLParam(r, "draftID"), req.RichContent)
			if err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, map[string]any{"version": version, "changed": changed})
		})

		r.Post("/api/drafts/{draftID}/restore", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Version int `json:"version"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			version, err := svc.Restore(editorCtx(r), chi.URLParam(r, "draftID"), req.Version)
			if err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, map[string]int{"version": version})
		})

		r.Post("/api/drafts/{draftID}/publish", func(w http.ResponseWriter, r *http.Request) {
			postID, err := svc.Publish(r.Context(), chi.URLParam(r, "draftID"))
			if err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, map[string]int64{"post_id": postID})
		})

		r.Get("/api/duplicates", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			dups, err := svc.DuplicateLog(r.Context(), limit)
			if err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, dups)
		})

		r.Get("/api/runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
			entries, err := svc.RunLog(r.Context(), chi.URLParam(r, "runID"))
			if err != nil {
				writeError(w, httpStatus(err), err)
				return
			}
			writeJSON(w, 200, entries)
		})
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("copydesk listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}

// requireAdmin guards the API with basic auth; the bcrypt compare keeps
// the check constant-time. The authenticated user becomes the editor
// identity recorded on draft snapshots.
func requireAdmin(user string, hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || bcrypt.CompareHashAndPassword(hash, []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="copydesk"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(kit.WithEditorID(r.Context(), u)))
		})
	}
}

// editorCtx lets a client act as a named editor via X-Editor-ID; the
// basic-auth user stays the default.
func editorCtx(r *http.Request) context.Context {
	ctx := r.Context()
	if id := r.Header.Get("X-Editor-ID"); id != "" {
		ctx = kit.WithEditorID(ctx, id)
	}
	return ctx
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, desk.ErrNotFound):
		return 404
	case errors.Is(err, desk.ErrInvalidInput):
		return 400
	case errors.Is(err, desk.ErrNotConfigured):
		return 503
	default:
		return 500
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
