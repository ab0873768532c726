package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

// playbookFile is the YAML layout of a playbook seed file
type playbookFile struct {
	Playbooks []models.PlaybookDraft `yaml:"playbooks"`
}

// ParsePlaybooks decodes playbook drafts from YAML
func ParsePlaybooks(data []byte) ([]models.PlaybookDraft, error) {
	var f playbookFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse playbooks: %w", err)
	}
	return f.Playbooks, nil
}

// LoadPlaybooks reads a seed file and saves every valid playbook into the
// engine. Invalid entries are skipped and logged. Returns how many were saved.
func LoadPlaybooks(path string, engine *PlaybookEngine, log *logger.Logger) (int, error) {
	log = log.WithComponent("playbook-loader")

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read playbook file: %w", err)
	}

	drafts, err := ParsePlaybooks(data)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, d := range drafts {
		// seed ids are labels only; every seed creates a new playbook
		d.ID = ""
		if d.Author == "" {
			d.Author = "seed"
		}
		pb, err := engine.Save(d)
		if err != nil {
			log.Warn().Err(err).Str("name", d.Name).Str("file", path).Msg("invalid playbook skipped")
			continue
		}
		log.Debug().Str("playbook_id", pb.ID).Str("name", pb.Name).Msg("playbook loaded")
		loaded++
	}

	log.Info().Int("loaded", loaded).Int("total", len(drafts)).Str("file", path).Msg("playbooks loaded")
	return loaded, nil
}
