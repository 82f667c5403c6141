// Package manifest loads case manifests: the YAML files that carry a case's
// scraped portal fields and the paths of its downloaded evidence.
package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/caseaudit/internal/model"
)

// Manifest describes one case.
//
//	case_id: 48500.000123/2024-11
//	contract_code: CT-001
//	cnpj: 12.345.678/0001-90
//	debt_amount: R$ 4.846,53
//	evidence:
//	  - name: Relatorio ANEEL.pdf
//	    path: docs/relatorio.pdf
//	    section: Inscrição no CADIN
type Manifest struct {
	model.CaseData `yaml:",inline"`
	Evidence       []model.EvidenceItem `yaml:"evidence" json:"evidence"`
	// Source is the file the manifest was loaded from, if any.
	Source string `yaml:"-" json:"-"`
}

// Load reads a manifest file. Relative evidence paths resolve against the
// manifest's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}
	m, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: parse %s", path)
	}
	m.Source = path
	return m, nil
}

// Parse decodes manifest YAML, resolving relative evidence paths against
// baseDir. An empty baseDir leaves them untouched.
func Parse(data []byte, baseDir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "manifest: decode yaml")
	}
	m.Resolve(baseDir)
	return &m, nil
}

// Resolve makes relative evidence paths absolute against baseDir and
// defaults empty display names to the file name.
func (m *Manifest) Resolve(baseDir string) {
	for i := range m.Evidence {
		ev := &m.Evidence[i]
		ev.FilePath = strings.TrimSpace(ev.FilePath)
		if ev.FilePath != "" && baseDir != "" && !filepath.IsAbs(ev.FilePath) {
			ev.FilePath = filepath.Join(baseDir, ev.FilePath)
		}
		if strings.TrimSpace(ev.DisplayName) == "" && ev.FilePath != "" {
			ev.DisplayName = filepath.Base(ev.FilePath)
		}
	}
}

// Paths returns the evidence file paths.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.Evidence))
	for _, ev := range m.Evidence {
		if ev.FilePath != "" {
			paths = append(paths, ev.FilePath)
		}
	}
	return paths
}

// Glob lists the *.yaml and *.yml manifests in dir, sorted by name.
func Glob(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: list %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
