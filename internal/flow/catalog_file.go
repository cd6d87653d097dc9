package flow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// catalogFile is the on-disk layout of a question catalog override.
type catalogFile struct {
	Flows []flowDoc `yaml:"flows"`
}

type flowDoc struct {
	Flow      string        `yaml:"flow"`
	Title     string        `yaml:"title"`
	Intro     string        `yaml:"intro"`
	Questions []questionDoc `yaml:"questions"`
}

type questionDoc struct {
	Key          string              `yaml:"key"`
	Prompt       string              `yaml:"prompt"`
	Input        string              `yaml:"input"`
	Options      []optionDoc         `yaml:"options"`
	Placeholder  string              `yaml:"placeholder"`
	ProfileField string              `yaml:"profile_field"`
	Condition    map[string][]string `yaml:"condition"`
}

type optionDoc struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// LoadCatalogFile reads question sets from a YAML file. Every flow in the file
// must be a known flow kind and every set must validate.
func LoadCatalogFile(path string) ([]models.QuestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	sets, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	slog.Debug("LoadCatalogFile: catalog loaded", "path", path, "flows", len(sets))
	return sets, nil
}

// ParseCatalog decodes YAML catalog data. Unknown fields are rejected.
func ParseCatalog(data []byte) ([]models.QuestionSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc catalogFile
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog is empty")
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[models.FlowKind]bool, len(doc.Flows))
	sets := make([]models.QuestionSet, 0, len(doc.Flows))
	for i, f := range doc.Flows {
		kind, err := models.ParseFlowKind(f.Flow)
		if err != nil {
			return nil, fmt.Errorf("flows[%d]: %w", i, err)
		}
		if seen[kind] {
			return nil, fmt.Errorf("flows[%d]: duplicate flow %q", i, kind)
		}
		seen[kind] = true

		set := models.QuestionSet{Flow: kind, Title: f.Title, Intro: f.Intro}
		for _, q := range f.Questions {
			set.Questions = append(set.Questions, q.question())
		}
		if err := set.Validate(); err != nil {
			return nil, fmt.Errorf("flows[%d]: %w", i, err)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func (q questionDoc) question() models.Question {
	out := models.Question{
		Key:          q.Key,
		Prompt:       q.Prompt,
		InputKind:    models.InputKind(q.Input),
		Placeholder:  q.Placeholder,
		ProfileField: q.ProfileField,
	}
	for _, o := range q.Options {
		label := o.Label
		if label == "" {
			label = o.Value
		}
		out.Options = append(out.Options, models.Option{Value: o.Value, Label: label})
	}
	if len(q.Condition) > 0 {
		out.Condition = models.Condition(q.Condition)
	}
	return out
}

// MergeCatalog replaces the sets in base with the override of the same flow,
// keeping the order of base. Overrides for flows absent from base are appended.
func MergeCatalog(base, overrides []models.QuestionSet) []models.QuestionSet {
	byFlow := make(map[models.FlowKind]models.QuestionSet, len(overrides))
	for _, s := range overrides {
		byFlow[s.Flow] = s
	}
	out := make([]models.QuestionSet, 0, len(base)+len(overrides))
	for _, s := range base {
		if o, ok := byFlow[s.Flow]; ok {
			s = o
			delete(byFlow, o.Flow)
		}
		out = append(out, s)
	}
	for _, s := range overrides {
		if _, ok := byFlow[s.Flow]; ok {
			out = append(out, s)
		}
	}
	return out
}
