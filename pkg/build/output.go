package build

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cennso/sitegen/pkg/models"
	"github.com/cennso/sitegen/pkg/toc"
	"github.com/cennso/sitegen/pkg/utils"
)

const (
	pageFileName     = "index.html"
	tocFileName      = "toc.json"
	manifestFileName = "manifest.yaml"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}{{with .SiteTitle}} | {{.}}{{end}}</title>
</head>
<body>
<main>
{{if .ShowTitle}}<h1>{{.Title}}</h1>
{{end}}{{if .TOC}}<nav class="toc" aria-label="Table of contents">
{{template "toc" .TOC}}
</nav>
{{end}}<article>
{{.Content}}</article>
</main>
</body>
</html>
{{define "toc"}}<ul>{{range .}}<li><a href="#{{.ID}}">{{.Title}}</a>{{if .Children}}{{template "toc" .Children}}{{end}}</li>{{end}}</ul>{{end}}`))

type pageView struct {
	Title     string
	SiteTitle string
	ShowTitle bool
	TOC       []*toc.Node
	Content   template.HTML
}

// OutputPath returns the slash-separated path of a route's page relative to the output directory
func OutputPath(route string) string {
	return path.Join(strings.TrimPrefix(route, "/"), pageFileName)
}

// writePage writes "<route>/index.html" and "<route>/toc.json" below outputDir.
func writePage(outputDir, route string, view pageView) error {
	dir := filepath.Join(outputDir, filepath.FromSlash(strings.TrimPrefix(route, "/")))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create page directory: %w", utils.ErrFilesystem, err)
	}

	f, err := os.Create(filepath.Join(dir, pageFileName))
	if err != nil {
		return fmt.Errorf("%w: create page file: %w", utils.ErrFilesystem, err)
	}
	bw := bufio.NewWriter(f)
	if err := pageTemplate.Execute(bw, view); err != nil {
		f.Close()
		return fmt.Errorf("%w: execute page template: %v", utils.ErrRender, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%w: write page file: %w", utils.ErrFilesystem, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close page file: %w", utils.ErrFilesystem, err)
	}

	tocJSON, err := toc.MarshalJSON(view.TOC)
	if err != nil {
		return fmt.Errorf("marshal table of contents: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tocFileName), append(tocJSON, '\n'), 0644); err != nil {
		return fmt.Errorf("%w: write %s: %w", utils.ErrFilesystem, tocFileName, err)
	}
	return nil
}

// writeSearchIndex writes one JSON record per line
func writeSearchIndex(filePath string, records []models.SearchRecord) error {
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create search index: %w", utils.ErrFilesystem, err)
	}
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return fmt.Errorf("encode search record '%s': %w", rec.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%w: write search index: %w", utils.ErrFilesystem, err)
	}
	return f.Close()
}

// ManifestPath returns the location of the build manifest
func ManifestPath(stateDir string) string {
	return filepath.Join(stateDir, manifestFileName)
}

// LoadManifest reads the manifest of the last build. Returns nil without error when
// no build has been recorded yet.
func LoadManifest(stateDir string) (*models.BuildManifest, error) {
	data, err := os.ReadFile(ManifestPath(stateDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read manifest: %w", utils.ErrFilesystem, err)
	}
	var m models.BuildManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest YAML: %v", utils.ErrParsing, err)
	}
	return &m, nil
}

func writeManifest(stateDir string, m *models.BuildManifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("%w: create state directory: %w", utils.ErrFilesystem, err)
	}
	if err := os.WriteFile(ManifestPath(stateDir), data, 0644); err != nil {
		return fmt.Errorf("%w: write manifest: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// removeStale deletes the page files of routes built last time but not this time.
// Only files recorded in the previous manifest with a known status are touched.
func removeStale(outputDir string, prev *models.BuildManifest, current map[string]bool, log *logrus.Entry) int {
	if prev == nil {
		return 0
	}
	removed := 0
	for _, p := range prev.Pages {
		if current[p.Route] || p.OutputPath == "" || !p.Status.IsValid() {
			continue
		}
		dir := filepath.Join(outputDir, filepath.FromSlash(path.Dir(p.OutputPath)))
		for _, name := range []string{pageFileName, tocFileName} {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warnf("Failed to remove stale %s for %s: %v", name, p.Route, err)
			}
		}
		// Only succeeds once the directory is empty
		_ = os.Remove(dir)
		removed++
	}
	return removed
}

// copyStatic copies every file below srcDir into outputDir, keeping relative paths.
// Returns the number of files copied. A missing srcDir copies nothing.
func copyStatic(srcDir, outputDir string) (int, error) {
	if _, err := os.Stat(srcDir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	copied := 0
	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		dst := filepath.Join(outputDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0755)
		}
		if err := copyFile(p, dst); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("%w: copy static directory '%s': %w", utils.ErrFilesystem, srcDir, err)
	}
	return copied, nil
}

// copyFile leaves dst untouched when its content already matches src
func copyFile(src, dst string) error {
	if dstHash, err := utils.CalculateFileSHA256(dst); err == nil {
		if srcHash, err := utils.CalculateFileSHA256(src); err == nil && srcHash == dstHash {
			return nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
