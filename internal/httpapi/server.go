// Package httpapi serves the operator API over Echo: unread matches, read
// marks, favorites, cleanup runs and audit history.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/tsesc/tw-homedog/internal/cleanup"
	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/dedup"
	"github.com/tsesc/tw-homedog/internal/globaltime"
	"github.com/tsesc/tw-homedog/internal/match"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	DedupParams     dedup.Params
}

type Server struct {
	pool    *db.Pool
	logger  zerolog.Logger
	cleaner *cleanup.Engine
	opts    Options
}

func NewServer(pool *db.Pool, logger zerolog.Logger, opts Options) (*Server, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	params := opts.DedupParams
	if params == (dedup.Params{}) {
		params = dedup.DefaultParams()
	}

	cleaner, err := cleanup.NewEngine(pool, logger, params)
	if err != nil {
		return nil, fmt.Errorf("build cleanup engine: %w", err)
	}

	return &Server{
		pool:    pool,
		logger:  logger,
		cleaner: cleaner,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			DedupParams:     params,
		},
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/matches", s.handleMatches)
	api.GET("/listings", s.handleListings)
	api.POST("/read", s.handleMarkRead)
	api.GET("/favorites", s.handleFavoritesList)
	api.POST("/favorites", s.handleFavoriteAdd)
	api.DELETE("/favorites/:source/:listing_id", s.handleFavoriteRemove)
	api.POST("/cleanup", s.handleCleanup)
	api.GET("/audit", s.handleAudit)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("homedog api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("homedog api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	counts, err := db.CountReadState(c.Request().Context(), s.pool, "")
	if err != nil {
		s.logger.Error().Err(err).Msg("health check query failed")
		return internalError(c, "Database unavailable")
	}
	return success(c, map[string]any{
		"service":  "homedog",
		"time":     globaltime.UTC(),
		"listings": counts,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := db.CollectStats(c.Request().Context(), s.pool)
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleMatches(c echo.Context) error {
	filters, fieldErrors := parseMatchFilters(c)
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	window := match.Page{Offset: (page - 1) * pageSize, Limit: pageSize}
	items, total, err := match.FindUnreadMatches(c.Request().Context(), s.pool, filters, window, globaltime.UTC())
	if err != nil {
		s.logger.Error().Err(err).Msg("query matches failed")
		return internalError(c, "Failed to load matches")
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total_items": total,
			"total_pages": totalPages,
		},
		"filters": filters,
	})
}

func (s *Server) handleListings(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	source := strings.TrimSpace(c.QueryParam("source"))
	items, err := db.ListingsWithReadState(c.Request().Context(), s.pool, source, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("query listings failed")
		return internalError(c, "Failed to load listings")
	}

	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":      page,
			"page_size": pageSize,
		},
		"source": source,
	})
}

type listingRef struct {
	Source    string `json:"source"`
	ListingID string `json:"listing_id"`
}

func (r listingRef) validate() map[string]string {
	fieldErrors := map[string]string{}
	if strings.TrimSpace(r.Source) == "" {
		fieldErrors["source"] = "is required"
	}
	if strings.TrimSpace(r.ListingID) == "" {
		fieldErrors["listing_id"] = "is required"
	}
	return fieldErrors
}

type markReadRequest struct {
	Source    string       `json:"source"`
	ListingID string       `json:"listing_id"`
	Items     []listingRef `json:"items"`
}

// handleMarkRead accepts either a single {source, listing_id} body or an
// items list; the list form marks everything in one transaction.
func (s *Server) handleMarkRead(c echo.Context) error {
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be JSON with source and listing_id, or an items list"})
	}

	if len(req.Items) > 0 {
		return s.markManyRead(c, req.Items)
	}

	ref := listingRef{Source: req.Source, ListingID: req.ListingID}
	if fieldErrors := ref.validate(); len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	marked, err := db.MarkListingRead(c.Request().Context(), s.pool, strings.TrimSpace(ref.Source), strings.TrimSpace(ref.ListingID), globaltime.UTC())
	if err != nil {
		s.logger.Error().Err(err).Str("source", ref.Source).Str("listing_id", ref.ListingID).Msg("mark read failed")
		return internalError(c, "Failed to mark listing read")
	}
	if !marked {
		return failNotFound(c, "Listing not found")
	}

	return success(c, map[string]any{
		"source":     strings.TrimSpace(ref.Source),
		"listing_id": strings.TrimSpace(ref.ListingID),
		"read":       true,
	})
}

func (s *Server) markManyRead(c echo.Context, items []listingRef) error {
	ids := make([]db.ListingIdentity, 0, len(items))
	fieldErrors := map[string]string{}
	for i, item := range items {
		for field, msg := range item.validate() {
			fieldErrors[fmt.Sprintf("items[%d].%s", i, field)] = msg
		}
		ids = append(ids, db.ListingIdentity{
			Source:    strings.TrimSpace(item.Source),
			ListingID: strings.TrimSpace(item.ListingID),
		})
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	marked, err := db.MarkListingsRead(c.Request().Context(), s.pool, ids, globaltime.UTC())
	if err != nil {
		s.logger.Error().Err(err).Int("items", len(ids)).Msg("bulk mark read failed")
		return internalError(c, "Failed to mark listings read")
	}

	return success(c, map[string]any{
		"requested": len(ids),
		"marked":    marked,
	})
}

func (s *Server) handleFavoritesList(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), 100, 1, 1000)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	items, err := db.ListFavorites(c.Request().Context(), s.pool, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query favorites failed")
		return internalError(c, "Failed to load favorites")
	}

	return success(c, map[string]any{"items": items})
}

func (s *Server) handleFavoriteAdd(c echo.Context) error {
	var ref listingRef
	if err := c.Bind(&ref); err != nil {
		return failValidation(c, map[string]string{"body": "must be JSON with source and listing_id"})
	}
	if fieldErrors := ref.validate(); len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	added, err := db.AddFavorite(c.Request().Context(), s.pool, strings.TrimSpace(ref.Source), strings.TrimSpace(ref.ListingID), globaltime.UTC())
	if err != nil {
		s.logger.Error().Err(err).Str("source", ref.Source).Str("listing_id", ref.ListingID).Msg("add favorite failed")
		return internalError(c, "Failed to add favorite")
	}
	if !added {
		return failNotFound(c, "Listing not found")
	}

	return successWithStatus(c, http.StatusCreated, map[string]any{
		"source":     strings.TrimSpace(ref.Source),
		"listing_id": strings.TrimSpace(ref.ListingID),
		"favorite":   true,
	})
}

func (s *Server) handleFavoriteRemove(c echo.Context) error {
	source := strings.TrimSpace(c.Param("source"))
	listingID := strings.TrimSpace(c.Param("listing_id"))
	if source == "" || listingID == "" {
		return failValidation(c, map[string]string{"path": "source and listing_id are required"})
	}

	removed, err := db.RemoveFavorite(c.Request().Context(), s.pool, source, listingID)
	if err != nil {
		s.logger.Error().Err(err).Str("source", source).Str("listing_id", listingID).Msg("remove favorite failed")
		return internalError(c, "Failed to remove favorite")
	}
	if !removed {
		return failNotFound(c, "Favorite not found")
	}

	return success(c, map[string]any{
		"source":     source,
		"listing_id": listingID,
		"favorite":   false,
	})
}

func (s *Server) handleCleanup(c echo.Context) error {
	apply := false
	if raw := strings.TrimSpace(c.QueryParam("apply")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return failValidation(c, map[string]string{"apply": "must be a boolean"})
		}
		apply = parsed
	}

	batchSize, err := parsePositiveInt(c.QueryParam("batch_size"), 200, 1, 10_000)
	if err != nil {
		return failValidation(c, map[string]string{"batch_size": err.Error()})
	}

	report, err := s.cleaner.Run(c.Request().Context(), cleanup.Options{BatchSize: batchSize, Apply: apply})
	if err != nil {
		if errors.Is(err, cleanup.ErrAlreadyRunning) {
			return fail(c, http.StatusConflict, "Cleanup already running", nil)
		}
		s.logger.Error().Err(err).Msg("cleanup run failed")
		return internalError(c, "Cleanup run failed")
	}

	return success(c, report)
}

func (s *Server) handleAudit(c echo.Context) error {
	event := strings.TrimSpace(strings.ToLower(c.QueryParam("event")))
	switch event {
	case "", db.AuditEventIngestSkip, db.AuditEventCleanupMerge:
	default:
		return failValidation(c, map[string]string{"event": "must be ingest_skip or cleanup_merge"})
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), 50, 1, 1000)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	items, err := db.RecentAudits(c.Request().Context(), s.pool, event, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query audits failed")
		return internalError(c, "Failed to load audit events")
	}

	return success(c, map[string]any{
		"items": items,
		"event": event,
	})
}

func parseMatchFilters(c echo.Context) (match.Filters, map[string]string) {
	filters := match.Filters{}
	fieldErrors := map[string]string{}

	if v, err := parseOptionalInt64(c.QueryParam("price_min")); err != nil {
		fieldErrors["price_min"] = err.Error()
	} else {
		filters.PriceMin = v
	}
	if v, err := parseOptionalInt64(c.QueryParam("price_max")); err != nil {
		fieldErrors["price_max"] = err.Error()
	} else {
		filters.PriceMax = v
	}
	if v, err := parseOptionalFloat(c.QueryParam("size_min_ping")); err != nil {
		fieldErrors["size_min_ping"] = err.Error()
	} else {
		filters.SizeMinPing = v
	}
	if v, err := parseOptionalFloat(c.QueryParam("size_max_ping")); err != nil {
		fieldErrors["size_max_ping"] = err.Error()
	} else {
		filters.SizeMaxPing = v
	}
	if v, err := parseOptionalInt(c.QueryParam("build_year_min")); err != nil {
		fieldErrors["build_year_min"] = err.Error()
	} else {
		filters.BuildYearMin = v
	}
	if v, err := parseOptionalInt(c.QueryParam("build_year_max")); err != nil {
		fieldErrors["build_year_max"] = err.Error()
	} else {
		filters.BuildYearMax = v
	}
	if v, err := parseIntList(c.QueryParam("rooms")); err != nil {
		fieldErrors["rooms"] = err.Error()
	} else {
		filters.RoomCounts = v
	}
	if v, err := parseIntList(c.QueryParam("bathrooms")); err != nil {
		fieldErrors["bathrooms"] = err.Error()
	} else {
		filters.BathroomCounts = v
	}

	filters.Districts = splitList(c.QueryParam("districts"))
	filters.KeywordsInclude = splitList(c.QueryParam("keywords"))
	filters.KeywordsExclude = splitList(c.QueryParam("exclude"))

	if len(fieldErrors) == 0 {
		if err := filters.Validate(); err != nil {
			fieldErrors["filters"] = err.Error()
		}
	}
	return filters, fieldErrors
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIntList(raw string) ([]int, error) {
	var out []int
	for _, part := range splitList(raw) {
		value, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("must be a comma-separated list of integers")
		}
		out = append(out, value)
	}
	return out, nil
}

func parseOptionalInt64(raw string) (*int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("must be an integer")
	}
	return &value, nil
}

func parseOptionalInt(raw string) (*int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, fmt.Errorf("must be an integer")
	}
	return &value, nil
}

func parseOptionalFloat(raw string) (*float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, fmt.Errorf("must be a number")
	}
	return &value, nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
