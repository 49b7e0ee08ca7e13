package preview

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/config"
	"github.com/n0needt0/synthlog/internal/emitter"
	"github.com/n0needt0/synthlog/internal/sink"
)

const (
	DefaultCount = 10
	MaxCount     = 1000
)

// BuildFunc creates the generator for a format name
type BuildFunc func(format string) (*emitter.Generator, error)

// Server answers GET /api/v2/preview/{format} with freshly synthesized records.
// Generators are built on first use and reused; they are not safe for
// concurrent use so every request holds mu.
type Server struct {
	Config     *config.Config
	build      BuildFunc
	clock      func() time.Time
	mu         sync.Mutex
	generators map[string]*emitter.Generator
	wg         sync.WaitGroup
	httpServer *http.Server
}

func NewServer(conf *config.Config, build BuildFunc) *Server {
	return &Server{
		Config:     conf,
		build:      build,
		clock:      time.Now,
		generators: make(map[string]*emitter.Generator),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/v2/preview/{format}", s.handlePreview).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return r
}

func (s *Server) Listen() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Config.Server.PreviewPort),
		Handler: s.Router(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Infof("Starting preview server on :%d", s.Config.Server.PreviewPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Error starting preview server: %v", err)
		}
	}()

	return nil
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Errorf("Preview server shutdown error: %v", err)
		} else {
			log.Info("Preview server shutdown complete")
		}
	}
	s.wg.Wait()
}

func (s *Server) generator(format string) (*emitter.Generator, error) {
	if g, ok := s.generators[format]; ok {
		return g, nil
	}
	g, err := s.build(format)
	if err != nil {
		return nil, err
	}
	s.generators[format] = g
	return g, nil
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	format := mux.Vars(r)["format"]

	count := DefaultCount
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxCount {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "count must be between 1 and %d", MaxCount)
			return
		}
		count = n
	}

	framing, err := sink.ParseFraming(r.URL.Query().Get("output"))
	if err != nil || framing == sink.Parquet {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("output must be raw or ndjson"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.generator(format)
	if err != nil {
		log.Warnf("preview %s: %v", format, err)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(err.Error()))
		return
	}

	var sb strings.Builder
	for i := 0; i < count; i++ {
		rec, err := g.Next(s.clock())
		if err != nil {
			log.Errorf("preview %s: %v", format, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		line := rec.Line
		if framing == sink.NDJSON {
			if line, err = sink.Envelope(rec); err != nil {
				log.Errorf("preview %s: %v", format, err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	if framing == sink.NDJSON {
		w.Header().Set("Content-Type", "application/x-ndjson")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(sb.String()))
}
