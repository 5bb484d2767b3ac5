// Package server serves the local chat UI and its JSON API.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alnah/go-chatmark/internal/assets"
	"github.com/alnah/go-chatmark/internal/chat"
	"github.com/alnah/go-chatmark/internal/pipeline"
	"github.com/alnah/go-chatmark/internal/store"
)

const (
	maxBodyBytes = 1 << 20

	readHeaderTimeout = 5 * time.Second
	// Long enough for a slow completion plus rendering.
	writeTimeout = 3 * time.Minute
	idleTimeout  = 2 * time.Minute

	defaultShutdownTimeout = 10 * time.Second
	defaultTitle           = "chatmark"
)

// Renderer turns message text into HTML.
type Renderer interface {
	Render(ctx context.Context, text string) string
	RenderUser(text string) string
	HighlightStyle() string
}

// ChatClient sends queries and keeps per-conversation context.
type ChatClient interface {
	Send(ctx context.Context, conversationID, query string) (chat.Reply, error)
	Known(conversationID string) bool
	SetHistory(conversationID string, msgs []chat.Message)
	Forget(conversationID string)
}

// ConversationStore persists conversations.
type ConversationStore interface {
	New(title string) (store.Conversation, error)
	List() ([]store.Conversation, error)
	Get(id string) (store.Conversation, error)
	Delete(id string) error
	AppendMessage(id, text string, isUser bool) (store.Conversation, bool, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	renderer Renderer
	chat     ChatClient
	store    ConversationStore
	assets   assets.Loader
	logger   *slog.Logger

	page         *template.Template
	pageData     pageData
	highlightCSS string
	dateFormat   string
	now          func() time.Time
}

// pageData fills the index template.
type pageData struct {
	Title         string
	Model         string
	KaTeXStyleURL string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for requests and failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAssets replaces the embedded UI assets, e.g. with a Resolver over a
// custom directory.
func WithAssets(l assets.Loader) Option {
	return func(s *Server) {
		if l != nil {
			s.assets = l
		}
	}
}

// WithModel names the model in the page placeholder text.
func WithModel(model string) Option {
	return func(s *Server) { s.pageData.Model = model }
}

// WithKaTeXStyleURL links the KaTeX stylesheet from the page.
func WithKaTeXStyleURL(url string) Option {
	return func(s *Server) { s.pageData.KaTeXStyleURL = url }
}

// WithDateFormat sets the format for conversation dates older than yesterday.
func WithDateFormat(format string) Option {
	return func(s *Server) { s.dateFormat = format }
}

// New creates a Server. The page template and highlight stylesheet are
// prepared once here.
func New(r Renderer, c ChatClient, st ConversationStore, opts ...Option) (*Server, error) {
	s := &Server{
		renderer: r,
		chat:     c,
		store:    st,
		assets:   assets.NewEmbeddedLoader(),
		logger:   slog.New(slog.DiscardHandler),
		pageData: pageData{Title: defaultTitle, Model: "the assistant"},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	src, err := s.assets.Load(assets.KindTemplate, assets.IndexTemplate)
	if err != nil {
		return nil, fmt.Errorf("loading page template: %w", err)
	}
	s.page, err = template.New(assets.IndexTemplate).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing page template: %w", err)
	}

	s.highlightCSS, err = pipeline.HighlightCSS(r.HighlightStyle())
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the router with all middleware and routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))

	r.Get("/", s.index)
	r.Get("/health", health)
	r.Get("/assets/highlight.css", s.highlightStylesheet)
	r.Get("/assets/{file}", s.asset)

	r.Route("/api", func(r chi.Router) {
		r.Post("/render", s.render)
		r.Post("/ask", s.ask)
		r.Get("/test", s.testResponse)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.listConversations)
			r.Get("/{id}", s.getConversation)
			r.Delete("/{id}", s.deleteConversation)
		})
	})

	return r
}

// Run listens on addr and serves until ctx is done, then drains active
// requests for up to shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, s.pageData); err != nil {
		s.logger.Error("rendering page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) highlightStylesheet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", assets.KindStyle.ContentType())
	_, _ = w.Write([]byte(s.highlightCSS))
}

func (s *Server) asset(w http.ResponseWriter, r *http.Request) {
	kind, name, err := assets.ParseFileName(chi.URLParam(r, "file"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	content, err := s.assets.Load(kind, name)
	if err != nil {
		if !errors.Is(err, assets.ErrAssetNotFound) {
			s.logger.Warn("loading asset", "file", chi.URLParam(r, "file"), "error", err)
		}
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", kind.ContentType())
	_, _ = w.Write([]byte(content))
}
