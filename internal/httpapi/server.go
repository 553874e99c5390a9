// Package httpapi exposes the hostel service over HTTP with gin. Mutating
// requests are serialized through one lock so that a single process is the
// only writer of its store.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"hostelcore/internal/blob"
	"hostelcore/internal/core"
)

// Option configures a Server.
type Option func(*Server)

// WithBlobStore serves stored attachments under /attachments.
func WithBlobStore(store blob.Store) Option {
	return func(s *Server) { s.blobs = store }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(l core.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAutoDismisser arms auto-dismiss timers for outcomes shown in a
// notification feed and routes explicit dismissals through d.
func WithAutoDismisser(d *core.AutoDismisser) Option {
	return func(s *Server) { s.dismisser = d }
}

// Server owns the gin engine.
type Server struct {
	svc       *core.Service
	blobs     blob.Store
	metrics   http.Handler
	logger    core.Logger
	dismisser *core.AutoDismisser

	writeMu sync.Mutex
	engine  *gin.Engine
}

// New builds the router.
func New(svc *core.Service, opts ...Option) *Server {
	s := &Server{svc: svc, logger: nopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	r.GET("/attachments/*key", s.attachment)

	v1 := r.Group("/api/v1")
	v1.Use(s.serializeWrites())

	v1.GET("/lookup", s.lookupStudent)
	v1.GET("/dashboard", s.dashboard)

	students := v1.Group("/students")
	{
		students.POST("", s.registerStudent)
		students.GET("", s.listStudents)
		students.GET("/:id", s.getStudent)
		students.PATCH("/:id", s.updateStudent)
		students.DELETE("/:id", s.deleteStudent)
		students.PUT("/:id/room", s.assignRoom)
		students.PUT("/:id/warning", s.setWarning)
		students.PUT("/:id/image", s.uploadProfileImage)
		students.GET("/:id/notifications", s.notifications)
		students.POST("/:id/notifications/read", s.markRead)
		students.POST("/:id/notifications/read-all", s.markAllRead)
		students.POST("/:id/notifications/clear", s.clearNotifications)
	}

	sessions := v1.Group("/sessions")
	{
		sessions.POST("", s.signIn)
		sessions.GET("/:id", s.getSession)
		sessions.DELETE("/:id", s.signOut)
	}

	hostels := v1.Group("/hostels")
	{
		hostels.POST("", s.createHostel)
		hostels.GET("", s.listHostels)
		hostels.GET("/:id", s.getHostel)
		hostels.PUT("/:id", s.updateHostel)
		hostels.DELETE("/:id", s.deleteHostel)
	}

	requests := v1.Group("/requests")
	{
		requests.POST("", s.submitRequest)
		requests.GET("", s.listRequests)
		requests.GET("/:id", s.getRequest)
		requests.POST("/:id/approve", s.approveRequest)
		requests.POST("/:id/reject", s.rejectRequest)
		requests.POST("/:id/dismiss", s.dismiss(core.OutcomeAllocation))
	}

	leaves := v1.Group("/leaves")
	{
		leaves.POST("", s.submitLeave)
		leaves.GET("", s.listLeaves)
		leaves.POST("/:id/approve", s.approveLeave)
		leaves.POST("/:id/reject", s.rejectLeave)
		leaves.POST("/:id/dismiss", s.dismiss(core.OutcomeLeave))
	}

	complaints := v1.Group("/complaints")
	{
		complaints.POST("", s.submitComplaint)
		complaints.GET("", s.listComplaints)
		complaints.GET("/:id", s.getComplaint)
		complaints.PUT("/:id/status", s.setComplaintStatus)
		complaints.PUT("/:id/image", s.uploadComplaintImage)
	}

	announcements := v1.Group("/announcements")
	{
		announcements.POST("", s.postAnnouncement)
		announcements.GET("", s.listAnnouncements)
		announcements.DELETE("/:id", s.deleteAnnouncement)
	}

	v1.GET("/menu", s.getMenu)
	v1.PUT("/menu", s.publishMenu)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "transferCapacity": s.svc.TransferCapacity()})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
