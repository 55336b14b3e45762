// Package templates serves the infrastructure templates deployed by the provisioning workflow from the binary.
package templates

import (
	"context"
	"embed"
	"io/fs"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"gopkg.in/yaml.v3"
)

//go:embed *.yaml
var files embed.FS

var ErrTemplateNotFound = errors.New("template not found", j.C("ERR_6f2d8a1c5e9b3047"))

// Provider implements provision.TemplateProvider.
type Provider struct {
	fsys fs.FS
}

func New() *Provider {
	return &Provider{fsys: files}
}

// NewFromFS serves templates from fsys instead of the embedded set. Templates are looked up as <name>.yaml.
func NewFromFS(fsys fs.FS) *Provider {
	return &Provider{fsys: fsys}
}

func (p *Provider) GetTemplate(ctx context.Context, name string) (string, error) {
	b, err := fs.ReadFile(p.fsys, name+".yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return "", errors.Wrap(ErrTemplateNotFound, "", j.KV("name", name))
	} else if err != nil {
		return "", err
	}

	return string(b), nil
}

// Sections lists the keys of the top level mapping named section, for example the Outputs of a template, in the
// order they are declared.
func Sections(template, section string) ([]string, error) {
	var doc yaml.Node
	err := yaml.Unmarshal([]byte(template), &doc)
	if err != nil {
		return nil, errors.Wrap(err, "parse template")
	}

	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("template is not a mapping")
	}

	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != section {
			continue
		}

		m := root.Content[i+1]
		if m.Kind != yaml.MappingNode {
			return nil, errors.New("section is not a mapping", j.KV("section", section))
		}

		var keys []string
		for k := 0; k+1 < len(m.Content); k += 2 {
			keys = append(keys, m.Content[k].Value)
		}

		return keys, nil
	}

	return nil, nil
}
