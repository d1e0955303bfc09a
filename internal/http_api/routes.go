package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/health", s.health)

	settlement := s.router.Group("/api/v1/settlement", s.requireRunAuth)
	settlement.POST("/run", s.triggerRun)
	settlement.GET("/runs", s.listRuns)
}
