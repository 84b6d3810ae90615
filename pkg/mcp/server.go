package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/cennso/sitegen/pkg/build"
	"github.com/cennso/sitegen/pkg/config"
	"github.com/cennso/sitegen/pkg/models"
)

const (
	serverName    = "sitegen"
	serverVersion = "0.4.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig // Must be validated
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
}

// siteBuilder runs one full build of the configured site
type siteBuilder interface {
	Run(ctx context.Context) (*models.BuildManifest, error)
}

// Server exposes the table of contents pipeline and site builds as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
	newBuilder func(opts build.Options) siteBuilder
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
	}
	s.newBuilder = func(opts build.Options) siteBuilder {
		return build.NewBuilder(s.cfg.AppConfig, opts, s.log)
	}

	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	listDocumentsTool := mcp.NewTool("list_documents",
		mcp.WithDescription("List the content documents of the site with their routes, titles and heading counts"),
		mcp.WithString("collection",
			mcp.Description("Only list documents of this collection key (optional)"),
		),
	)
	s.mcpServer.AddTool(listDocumentsTool, s.handleListDocuments)

	getTOCTool := mcp.NewTool("get_toc",
		mcp.WithDescription("Get the table of contents of a document by route, as a JSON tree and a Markdown list of anchor links"),
		mcp.WithString("route",
			mcp.Required(),
			mcp.Description("Page route, e.g. '/docs/getting-started'"),
		),
	)
	s.mcpServer.AddTool(getTOCTool, s.handleGetTOC)

	extractTOCTool := mcp.NewTool("extract_toc",
		mcp.WithDescription("Build a table of contents from raw Markdown. Headings of level 2-6 outside code fences are included."),
		mcp.WithString("markdown",
			mcp.Required(),
			mcp.Description("Markdown source"),
		),
	)
	s.mcpServer.AddTool(extractTOCTool, s.handleExtractTOC)

	searchSectionsTool := mcp.NewTool("search_sections",
		mcp.WithDescription("Search the sections of the last build's search index; results link to heading anchors"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query (case-insensitive substring match)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return (default: 10, max: 100)"),
		),
	)
	s.mcpServer.AddTool(searchSectionsTool, s.handleSearchSections)

	buildSiteTool := mcp.NewTool("build_site",
		mcp.WithDescription("Start a background build of the site. Returns immediately with a job ID."),
		mcp.WithBoolean("fresh",
			mcp.Description("Discard the build cache and render every page"),
		),
	)
	s.mcpServer.AddTool(buildSiteTool, s.handleBuildSite)

	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status of a build job, or list all jobs when job_id is omitted"),
		mcp.WithString("job_id",
			mcp.Description("The job ID returned by build_site"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	s.log.Infof("Registered %d MCP tools", 6)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running build jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
