package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"inkwell-backend/internal/database"
	"inkwell-backend/internal/llm"
	"inkwell-backend/internal/llm/discovery"
	"inkwell-backend/internal/logger"
)

// TeamService provides HTTP handlers for team management, generation, and
// network discovery.
type TeamService struct {
	team    *llm.Team
	store   *database.TeamStore
	scanner *discovery.Scanner
}

// NewTeamService creates the service. store may be nil to disable
// persistence.
func NewTeamService(team *llm.Team, store *database.TeamStore, scanner *discovery.Scanner) *TeamService {
	if scanner == nil {
		scanner = discovery.NewScanner()
	}
	return &TeamService{team: team, store: store, scanner: scanner}
}

// SetupRoutes registers all routes on the given router group.
func (s *TeamService) SetupRoutes(r *gin.RouterGroup) {
	team := r.Group("/team")
	{
		team.GET("/members", s.ListMembersHandler())
		team.POST("/members", s.AddMemberHandler())
		team.DELETE("/members/:id", s.RemoveMemberHandler())
		team.PUT("/members/:id/enabled", s.SetEnabledHandler())
		team.PUT("/primary", s.SetPrimaryHandler())

		team.GET("/availability", s.AvailabilityHandler())
		team.POST("/warmup", s.WarmUpHandler())

		team.POST("/generate", s.GenerateHandler())
		team.POST("/parallel", s.ParallelHandler())
		team.POST("/route", s.RouteHandler())
		team.POST("/members/:id/stream", s.StreamHandler())
	}

	disc := r.Group("/discovery")
	{
		disc.POST("/scan", s.ScanHandler())
		disc.GET("/servers", s.DiscoveredServersHandler())
		disc.GET("/local", s.CheckLocalHandler())
	}
}

// addMemberRequest carries the fields of a member config plus the credential,
// which lives outside BackendConfig's JSON shape.
type addMemberRequest struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name" binding:"required"`
	Provider            string  `json:"provider" binding:"required"`
	Model               string  `json:"model" binding:"required"`
	Endpoint            string  `json:"endpoint"`
	APIKey              string  `json:"api_key"`
	Temperature         *float64 `json:"temperature"`
	MaxTokens           int      `json:"max_tokens"`
	SpeedTier           string   `json:"speed_tier"`
	CostTier            string   `json:"cost_tier"`
	SupportsToolCalling bool     `json:"supports_tool_calling"`
}

// ListMembersHandler returns all team members in registration order.
func (s *TeamService) ListMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		primaryID := ""
		if primary, ok := s.team.Registry().Primary(); ok {
			primaryID = primary.ID
		}
		c.JSON(http.StatusOK, gin.H{
			"members": s.team.Registry().List(),
			"primary": primaryID,
		})
	}
}

// AddMemberHandler registers a new team member.
func (s *TeamService) AddMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		cfg := llm.NewBackendConfig(req.ID, req.Name, llm.ProviderType(req.Provider), req.Model)
		if cfg.ID == "" {
			cfg.ID = req.Name
		}
		cfg.Endpoint = req.Endpoint
		cfg.APIKey = req.APIKey
		cfg.SupportsToolCalling = req.SupportsToolCalling
		if req.Temperature != nil {
			cfg.Temperature = req.Temperature
		}
		if req.MaxTokens != 0 {
			cfg.MaxTokens = req.MaxTokens
		}
		if req.SpeedTier != "" {
			cfg.SpeedTier = llm.SpeedTier(req.SpeedTier)
		}
		if req.CostTier != "" {
			cfg.CostTier = llm.CostTier(req.CostTier)
		}

		if err := s.team.Registry().Add(cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		s.persist(c)
		c.JSON(http.StatusCreated, gin.H{"id": cfg.ID})
	}
}

// RemoveMemberHandler deletes a team member.
func (s *TeamService) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.team.Registry().Remove(c.Param("id")); err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		s.persist(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// SetEnabledHandler flips a member's enabled flag.
func (s *TeamService) SetEnabledHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Enabled *bool `json:"enabled" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		if err := s.team.Registry().SetEnabled(c.Param("id"), *req.Enabled); err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		s.persist(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// SetPrimaryHandler designates the primary member.
func (s *TeamService) SetPrimaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ID string `json:"id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		if err := s.team.Registry().SetPrimary(req.ID); err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		s.persist(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "primary": req.ID})
	}
}

// AvailabilityHandler probes all enabled members.
func (s *TeamService) AvailabilityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"availability": s.team.CheckAllAvailability(c.Request.Context())})
	}
}

// WarmUpHandler warms all enabled members.
func (s *TeamService) WarmUpHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"warmed": s.team.WarmUpAll(c.Request.Context())})
	}
}

type generateRequest struct {
	Prompt      string   `json:"prompt" binding:"required"`
	System      string   `json:"system"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Preferred   []string `json:"preferred"`
}

func (r *generateRequest) options() *llm.GenerateOptions {
	return &llm.GenerateOptions{
		System:      r.System,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
}

// GenerateHandler runs the sequential fallback chain.
func (s *TeamService) GenerateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		result, err := s.team.GenerateWithFallback(c.Request.Context(), req.Prompt, req.options(), req.Preferred...)
		if err != nil {
			respondGenerationError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ParallelHandler fans the prompt out to the requested members.
func (s *TeamService) ParallelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			generateRequest
			IDs []string `json:"ids"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		outcomes, err := s.team.ParallelGenerate(c.Request.Context(), req.Prompt, req.options(), req.IDs)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}

		results := make(map[string]gin.H, len(outcomes))
		for id, o := range outcomes {
			entry := gin.H{"text": o.Text}
			if o.Failed() {
				entry["error"] = o.Err.Error()
			}
			results[id] = entry
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// RouteHandler picks members by task category and generates.
func (s *TeamService) RouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			generateRequest
			Task string `json:"task" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		result, err := s.team.RouteByTask(c.Request.Context(), req.Prompt, req.options(), llm.TaskType(req.Task))
		if err != nil {
			respondGenerationError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// StreamHandler streams a generation from one member as NDJSON.
func (s *TeamService) StreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider, ok := s.team.Registry().Provider(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "team member not found: " + c.Param("id")})
			return
		}

		var req generateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		ctx := c.Request.Context()
		chunks, err := provider.Stream(ctx, req.Prompt, req.options())
		if err != nil {
			respondGenerationError(c, err)
			return
		}

		c.Header("Content-Type", "application/x-ndjson")
		c.Header("Cache-Control", "no-cache")
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		for chunk := range chunks {
			msg := gin.H{"content": chunk.Content, "done": chunk.Done}
			if chunk.Err != nil {
				msg["error"] = chunk.Err.Error()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				return
			}
			if _, err := c.Writer.Write(append(data, '\n')); err != nil {
				return
			}
			flusher.Flush()

			if ctx.Err() != nil {
				return
			}
		}
	}
}

// ScanHandler sweeps a CIDR range for Ollama servers. With no range given it
// scans the machine's local /24.
func (s *TeamService) ScanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			CIDR string `json:"cidr"`
		}
		// Body is optional; an empty request scans the local subnet.
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
				return
			}
		}

		cidr := req.CIDR
		if cidr == "" {
			var err error
			cidr, err = discovery.LocalSubnet()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		results, err := s.scanner.Scan(c.Request.Context(), cidr)
		if err != nil && len(results) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if s.store != nil && len(results) > 0 {
			if err := s.store.SaveDiscovered(c.Request.Context(), results); err != nil {
				logger.Warn("failed to persist discovery results", "error", err)
			}
		}
		c.JSON(http.StatusOK, gin.H{"cidr": cidr, "servers": results})
	}
}

// DiscoveredServersHandler returns servers seen by past scans.
func (s *TeamService) DiscoveredServersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.store == nil {
			c.JSON(http.StatusOK, gin.H{"servers": []discovery.Result{}})
			return
		}
		results, err := s.store.ListDiscovered(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"servers": results})
	}
}

// CheckLocalHandler probes localhost for an Ollama server.
func (s *TeamService) CheckLocalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, ok := s.scanner.CheckLocal(c.Request.Context())
		if !ok {
			c.JSON(http.StatusOK, gin.H{"running": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"running": true, "server": result})
	}
}

// persist writes the current team snapshot. Persistence failures are logged,
// not surfaced; the in-memory mutation already happened.
func (s *TeamService) persist(c *gin.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSnapshot(c.Request.Context(), s.team.Registry().Serialize()); err != nil {
		logger.Warn("failed to persist team snapshot", "error", err)
	}
}

func statusForError(err error) int {
	if llm.IsMemberNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func respondGenerationError(c *gin.Context, err error) {
	var allFailed *llm.AllFailedError
	if errors.As(err, &allFailed) {
		attempts := make([]gin.H, len(allFailed.Attempts))
		for i, a := range allFailed.Attempts {
			attempts[i] = gin.H{"member": a.MemberID, "error": a.Err.Error()}
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": allFailed.Error(), "attempts": attempts})
		return
	}
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}
