package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cennso/sitegen/pkg/build"
	"github.com/cennso/sitegen/pkg/content"
	"github.com/cennso/sitegen/pkg/models"
	"github.com/cennso/sitegen/pkg/toc"
)

// handleListDocuments handles the list_documents tool
func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collection := request.GetString("collection", "")
	appCfg := s.cfg.AppConfig
	if collection != "" {
		if _, ok := appCfg.Collections[collection]; !ok {
			return mcp.NewToolResultError(fmt.Sprintf("collection '%s' not found", collection)), nil
		}
	}

	docs, err := s.loadDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load content: %v", err)), nil
	}

	documents := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		coll := appCfg.CollectionFor(doc.Route)
		if collection != "" && coll != collection {
			continue
		}
		info := map[string]interface{}{
			"route":       doc.Route,
			"source_path": doc.SourcePath,
			"title":       doc.Title,
			"headings":    toc.Count(toc.Build(doc.Body)),
		}
		if doc.FrontMatter.Description != "" {
			info["description"] = doc.FrontMatter.Description
		}
		if coll != "" {
			info["collection"] = coll
		}
		documents = append(documents, info)
	}

	result := map[string]interface{}{
		"site":            appCfg.Site.Name,
		"documents":       documents,
		"total_documents": len(documents),
		"config_path":     s.cfg.ConfigPath,
	}

	// Last build info from the manifest
	if manifest, err := build.LoadManifest(appCfg.StateDir); err == nil && manifest != nil {
		result["last_build"] = map[string]interface{}{
			"run_id":   manifest.RunID,
			"finished": manifest.EndTime.Format(time.RFC3339),
			"pages":    manifest.TotalPages,
			"failed":   manifest.Failed,
		}
	}
	if job := s.jobManager.ActiveJob(appCfg.Site.Name); job != nil {
		result["active_job"] = job.ID
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetTOC handles the get_toc tool
func (s *Server) handleGetTOC(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	route := normalizeRoute(request.GetString("route", ""))
	if route == "" {
		return mcp.NewToolResultError("route parameter is required"), nil
	}

	docs, err := s.loadDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load content: %v", err)), nil
	}
	var doc *content.Document
	for _, d := range docs {
		if d.Route == route {
			doc = d
			break
		}
	}
	if doc == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no document with route '%s'", route)), nil
	}

	result, err := tocResult(toc.Build(doc.Body))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result["route"] = doc.Route
	result["title"] = doc.Title
	result["source_path"] = doc.SourcePath
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleExtractTOC handles the extract_toc tool
func (s *Server) handleExtractTOC(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src := request.GetString("markdown", "")
	if strings.TrimSpace(src) == "" {
		return mcp.NewToolResultError("markdown parameter is required"), nil
	}

	entries := toc.Assign(toc.ExtractHeadings(src))
	result, err := tocResult(toc.BuildTree(entries))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	headings := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		headings = append(headings, map[string]interface{}{
			"id":    e.ID,
			"title": e.Title,
			"level": e.Level,
			"line":  e.Line,
		})
	}
	result["headings"] = headings
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleSearchSections handles the search_sections tool
func (s *Server) handleSearchSections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	maxResults := request.GetInt("max_results", 10)
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	indexPath := filepath.Join(s.cfg.AppConfig.OutputDir, s.cfg.AppConfig.Search.Filename)
	results, err := searchIndex(indexPath, query, maxResults)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return mcp.NewToolResultError("no search index found; run build_site with search enabled first"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to search index: %v", err)), nil
	}

	response := map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_matches": len(results),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBuildSite handles the build_site tool
func (s *Server) handleBuildSite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fresh := request.GetBool("fresh", false)
	siteName := s.cfg.AppConfig.Site.Name

	job, created := s.jobManager.CreateJob(siteName, fresh)
	if !created {
		result := map[string]interface{}{
			"status":  "already_running",
			"message": "A build is already in progress for this site",
			"job_id":  job.ID,
			"site":    siteName,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	go s.runBuildJob(job.ID, fresh)

	result := map[string]interface{}{
		"status":  "started",
		"message": "Build started successfully",
		"job_id":  job.ID,
		"site":    siteName,
		"fresh":   fresh,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetJobStatus handles the get_job_status tool. Without a job_id it lists every
// job of this server session, newest first.
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		jobs := s.jobManager.ListJobs()
		sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
		summaries := make([]map[string]interface{}, 0, len(jobs))
		for _, job := range jobs {
			summaries = append(summaries, jobSummary(job))
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"jobs":       summaries,
			"total_jobs": len(summaries),
		})), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}
	return mcp.NewToolResultText(formatJSON(jobSummary(job))), nil
}

func jobSummary(job *Job) map[string]interface{} {
	result := map[string]interface{}{
		"job_id":     job.ID,
		"site":       job.SiteName,
		"status":     job.Status,
		"started_at": job.StartedAt.Format(time.RFC3339),
		"fresh":      job.Fresh,
	}
	if job.RunID != "" {
		result["run_id"] = job.RunID
		result["pages"] = map[string]int{
			"total":    job.PagesTotal,
			"rendered": job.PagesRendered,
			"cached":   job.PagesCached,
			"failed":   job.PagesFailed,
		}
	}
	if job.Audit != nil {
		result["audit"] = job.Audit
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	return result
}

// runBuildJob runs a build job in the background
func (s *Server) runBuildJob(jobID string, fresh bool) {
	s.jobManager.UpdateStatus(jobID, models.JobStatusRunning, "")
	jobCtx := s.jobManager.GetContext(jobID)

	manifest, err := s.newBuilder(build.Options{Fresh: fresh}).Run(jobCtx)
	s.jobManager.SetResult(jobID, manifest)

	switch {
	case err == nil:
		s.jobManager.UpdateStatus(jobID, models.JobStatusCompleted, "")
	case errors.Is(err, context.Canceled):
		s.jobManager.UpdateStatus(jobID, models.JobStatusCancelled, "")
	default:
		s.log.WithField("job_id", jobID).Errorf("Build job failed: %v", err)
		s.jobManager.UpdateStatus(jobID, models.JobStatusFailed, err.Error())
	}
}

func (s *Server) loadDocuments(ctx context.Context) ([]*content.Document, error) {
	loader, err := content.NewLoader(content.Options{
		ContentDir:      s.cfg.AppConfig.ContentDir,
		ExcludePatterns: s.cfg.AppConfig.ExcludePatterns,
	}, s.log)
	if err != nil {
		return nil, err
	}
	return loader.LoadAll(ctx)
}

// tocResult renders a forest as the JSON tree plus its Markdown list form
func tocResult(forest []*toc.Node) (map[string]interface{}, error) {
	if forest == nil {
		forest = []*toc.Node{}
	}
	var md strings.Builder
	if err := toc.WriteMarkdown(&md, forest); err != nil {
		return nil, fmt.Errorf("failed to format table of contents: %w", err)
	}
	return map[string]interface{}{
		"toc":         forest,
		"markdown":    md.String(),
		"total_nodes": toc.Count(forest),
	}, nil
}

// normalizeRoute accepts "docs/intro", "/docs/intro/" and "/docs/intro" alike
func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return ""
	}
	route = "/" + strings.Trim(route, "/")
	return route
}

// searchIndex streams a search-index.jsonl file and returns up to maxResults matches
func searchIndex(indexPath, query string, maxResults int) ([]map[string]interface{}, error) {
	file, err := os.Open(indexPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	results := make([]map[string]interface{}, 0)
	queryLower := strings.ToLower(query)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // up to 10MB per line
	for scanner.Scan() && len(results) < maxResults {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec models.SearchRecord
		if err := parseJSONLine(line, &rec); err != nil {
			continue
		}

		matchLocation := ""
		switch {
		case strings.Contains(strings.ToLower(rec.Title), queryLower):
			matchLocation = "title"
		case strings.Contains(strings.ToLower(rec.Content), queryLower):
			matchLocation = "content"
		case strings.Contains(strings.ToLower(strings.Join(rec.Breadcrumb, " ")), queryLower):
			matchLocation = "breadcrumb"
		default:
			continue
		}

		result := map[string]interface{}{
			"url":            rec.URL,
			"route":          rec.Route,
			"anchor":         rec.Anchor,
			"title":          rec.Title,
			"page_title":     rec.PageTitle,
			"snippet":        extractSnippet(rec.Content, query, 150),
			"match_location": matchLocation,
		}
		if len(rec.Breadcrumb) > 0 {
			result["breadcrumb"] = rec.Breadcrumb
		}
		results = append(results, result)
	}
	if err := scanner.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// extractSnippet extracts a snippet around the query match, slicing on rune
// boundaries so multi-byte UTF-8 characters are never split.
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	queryRunes := []rune(strings.ToLower(query))
	contentLowerRunes := []rune(strings.ToLower(content))

	idx := -1
	for i := 0; i <= len(contentLowerRunes)-len(queryRunes); i++ {
		if string(contentLowerRunes[i:i+len(queryRunes)]) == string(queryRunes) {
			idx = i
			break
		}
	}

	if idx == -1 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	start := idx - maxLen/2
	if start < 0 {
		start = 0
	}
	end := idx + len(queryRunes) + maxLen/2
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

func parseJSONLine(line string, rec *models.SearchRecord) error {
	return json.Unmarshal([]byte(line), rec)
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
