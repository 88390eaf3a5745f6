package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config holds all configuration
type Config struct {
	Models    []Model         `hcl:"model,block"`
	Variables []Variable      `hcl:"variable,block"`
	Research  *ResearchConfig `hcl:"research,block"`
	Search    *SearchConfig   `hcl:"search,block"`
	Storage   *StorageConfig  `hcl:"storage,block"`
	Reports   []ReportConfig  `hcl:"report,block"`
	Server    *ServerConfig   `hcl:"server,block"`

	// ResolvedVars holds the resolved variable values for runtime use
	ResolvedVars map[string]cty.Value `hcl:"-"`
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model '%s': %w", m.Name, err)
		}
	}

	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable '%s': %w", v.Name, err)
		}
	}

	if c.Research != nil {
		if err := c.Research.Validate(c.Models); err != nil {
			return fmt.Errorf("research: %w", err)
		}
	}

	for _, r := range c.Reports {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("report '%s': %w", r.Name, err)
		}
	}

	return nil
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	return loadFromFiles(files)
}

// parsedBlocks holds all blocks extracted from a file in one pass
type parsedBlocks struct {
	Variables []*hcl.Block
	Models    []*hcl.Block
	Research  []*hcl.Block
	Search    []*hcl.Block
	Storage   []*hcl.Block
	Reports   []*hcl.Block
	Server    []*hcl.Block
}

// loadFromFiles implements staged loading: variables → models → everything else
func loadFromFiles(files []string) (*Config, error) {
	// Parse all files and extract all block types in a single pass
	parser := hclparse.NewParser()
	var allParsedBlocks []parsedBlocks

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("[1] parse %s: %w", file, diags)
		}

		content, _, diags := hclFile.Body.PartialContent(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{
				{Type: "variable", LabelNames: []string{"name"}},
				{Type: "model", LabelNames: []string{"name"}},
				{Type: "research"},
				{Type: "search"},
				{Type: "storage"},
				{Type: "report", LabelNames: []string{"name"}},
				{Type: "server"},
			},
		})
		if diags.HasErrors() {
			return nil, fmt.Errorf("[2] partial content %s: %w", file, diags)
		}

		var pb parsedBlocks
		for _, block := range content.Blocks {
			switch block.Type {
			case "variable":
				pb.Variables = append(pb.Variables, block)
			case "model":
				pb.Models = append(pb.Models, block)
			case "research":
				pb.Research = append(pb.Research, block)
			case "search":
				pb.Search = append(pb.Search, block)
			case "storage":
				pb.Storage = append(pb.Storage, block)
			case "report":
				pb.Reports = append(pb.Reports, block)
			case "server":
				pb.Server = append(pb.Server, block)
			}
		}
		allParsedBlocks = append(allParsedBlocks, pb)
	}

	// Stage 1: Load variables (no context needed)
	var allVars []Variable
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Variables {
			var v Variable
			v.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, nil, &v)
			if diags.HasErrors() {
				return nil, fmt.Errorf("[3] decode variable %s: %w", v.Name, diags)
			}
			allVars = append(allVars, v)
		}
	}

	// Build vars context
	varsCtx, resolvedVars := buildVarsContext(allVars)

	// Stage 2: Load models (with vars context)
	var allModels []Model
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Models {
			var m Model
			m.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, varsCtx, &m)
			if diags.HasErrors() {
				return nil, diags
			}
			allModels = append(allModels, m)
		}
	}

	// Build models context so later blocks can reference models.{name}.{model}
	modelsCtx := buildModelsContext(varsCtx, allModels)

	// Stage 3: Load remaining blocks (with vars + models context)
	cfg := &Config{
		Variables:    allVars,
		Models:       allModels,
		ResolvedVars: resolvedVars,
	}

	for _, pb := range allParsedBlocks {
		for _, block := range pb.Research {
			if cfg.Research != nil {
				return nil, fmt.Errorf("duplicate research block")
			}
			var r ResearchConfig
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &r)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode research block: %w", diags)
			}
			cfg.Research = &r
		}

		for _, block := range pb.Search {
			if cfg.Search != nil {
				return nil, fmt.Errorf("duplicate search block")
			}
			var s SearchConfig
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &s)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode search block: %w", diags)
			}
			cfg.Search = &s
		}

		for _, block := range pb.Storage {
			if cfg.Storage != nil {
				return nil, fmt.Errorf("duplicate storage block")
			}
			var st StorageConfig
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &st)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode storage block: %w", diags)
			}
			cfg.Storage = &st
		}

		for _, block := range pb.Reports {
			var rep ReportConfig
			rep.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &rep)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode report block '%s': %w", rep.Name, diags)
			}
			cfg.Reports = append(cfg.Reports, rep)
		}

		for _, block := range pb.Server {
			if cfg.Server != nil {
				return nil, fmt.Errorf("duplicate server block")
			}
			var srv ServerConfig
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &srv)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode server block: %w", diags)
			}
			cfg.Server = &srv
		}
	}

	if cfg.Research == nil {
		cfg.Research = &ResearchConfig{}
	}
	cfg.Research.Defaults()

	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	cfg.Storage.Defaults()

	return cfg, nil
}

// buildVarsContext creates context with just vars
func buildVarsContext(vars []Variable) (*hcl.EvalContext, map[string]cty.Value) {
	varsMap := make(map[string]cty.Value)
	fileVars, _ := LoadVarsFromFile()
	for _, v := range vars {
		if val, ok := fileVars[v.Name]; ok {
			varsMap[v.Name] = cty.StringVal(val)
		} else if envVal := os.Getenv(v.EnvName()); envVal != "" {
			varsMap[v.Name] = cty.StringVal(envVal)
		} else if v.Default != "" {
			varsMap[v.Name] = cty.StringVal(v.Default)
		} else {
			varsMap[v.Name] = cty.StringVal("")
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"vars": cty.ObjectVal(varsMap),
		},
	}, varsMap
}

// buildModelsContext adds models to existing context
func buildModelsContext(ctx *hcl.EvalContext, models []Model) *hcl.EvalContext {
	modelsMap := make(map[string]cty.Value)
	for _, m := range models {
		providerModels := make(map[string]cty.Value)
		for _, modelKey := range m.AllowedModels {
			providerModels[modelKey] = cty.StringVal(modelKey)
		}
		modelsMap[m.Name] = cty.ObjectVal(providerModels)
	}

	// Copy existing vars and add models
	newVars := make(map[string]cty.Value)
	for k, v := range ctx.Variables {
		newVars[k] = v
	}
	newVars["models"] = cty.ObjectVal(modelsMap)

	return &hcl.EvalContext{
		Variables: newVars,
	}
}
