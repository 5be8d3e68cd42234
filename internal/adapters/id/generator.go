package id

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) generate(prefix string) string {
	id, err := gonanoid.New(21)
	if err != nil {
		return prefix + "_fallback"
	}
	return prefix + "_" + id
}

func (g *Generator) GenerateTurnID() string {
	return g.generate("turn")
}

func (g *Generator) GenerateMemoryID() string {
	return g.generate("mem")
}

func (g *Generator) GenerateClusterID() string {
	return g.generate("cls")
}

func (g *Generator) GenerateToolUseID() string {
	return g.generate("tu")
}

func (g *Generator) GenerateCitationID() string {
	return g.generate("cit")
}
