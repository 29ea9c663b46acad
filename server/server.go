package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/tuzkov/prusaLapse/service"
	"github.com/tuzkov/prusaLapse/timelapse"
)

type Server interface {
	Start(ctx context.Context) error
}

type server struct {
	log *slog.Logger
	cfg *Config

	addr    string
	svc     service.Service
	limiter *rate.Limiter
}

type Config struct {
	service.Config

	Addr     string
	LogLevel string
}

func NewServer(ctx context.Context, log *slog.Logger, cfg *Config) (Server, error) {
	if log == nil {
		log = slog.Default()
	}
	svc, err := service.NewService(ctx, log, &cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("fail to create service: %w", err)
	}
	return newServer(log, cfg, svc), nil
}

func newServer(log *slog.Logger, cfg *Config, svc service.Service) *server {
	return &server{
		log: log.With("svc", "server"),
		cfg: cfg,

		addr: cfg.Addr,
		svc:  svc,
		// forced snapshots queue on the download lock, keep them rare
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

func (srv *server) Start(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:    srv.addr,
		Handler: srv.routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	err := httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (srv *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/snapshot", srv.Snapshot)
	r.Get("/stream", srv.Stream)
	r.Get("/status", srv.Status)
	r.With(srv.rateLimit).Post("/snap", srv.Snap)
	r.Handle("/list/*",
		http.StripPrefix("/list/",
			http.FileServer(http.Dir(srv.cfg.TimelapseConfig.Snapshot.DataDir))))

	return r
}

func (srv *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !srv.limiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (srv *server) Snapshot(w http.ResponseWriter, req *http.Request) {
	srv.log.Debug("Snapshot call")
	frame, err := srv.svc.Snapshot(req.Context())
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")

	_, err = w.Write(frame)
	if err != nil {
		srv.log.Error("Snapshot write error", "err", err)
	}
}

func (srv *server) Stream(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	stream, err := srv.svc.Stream(ctx)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	srv.log.Info("Started stream")

	const boundary = `frame`
	w.Header().Set("Content-Type", `multipart/x-mixed-replace;boundary=`+boundary)
	mpWriter := multipart.NewWriter(w)
	mpWriter.SetBoundary(boundary)

	defer func() {
		srv.log.Info("Finished stream")
		// exaust chan
		for {
			_, ok := <-stream
			if !ok {
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-stream:
			if !ok {
				return
			}

			iw, err := mpWriter.CreatePart(textproto.MIMEHeader{
				"Content-Type":   []string{"image/jpeg"},
				"Content-Length": []string{strconv.Itoa(len(frame))},
			})
			if err != nil {
				srv.log.Error("fail to send part", "err", err)
				return
			}

			_, err = iw.Write(frame)
			if err != nil {
				srv.log.Error("fail to write part", "err", err)
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

func (srv *server) Status(w http.ResponseWriter, req *http.Request) {
	st, err := srv.svc.Status(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		srv.log.Error("Status write error", "err", err)
	}
}

func (srv *server) Snap(w http.ResponseWriter, req *http.Request) {
	srv.log.Debug("snap call")
	err := srv.svc.ForceSnap(req.Context())
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNoCamera):
		return http.StatusNotFound
	case errors.Is(err, timelapse.ErrNoSession):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
