package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Template is a named starter configuration written by 'hearth init'.
type Template struct {
	Name        string
	Description string
	Config      string
}

// PersonaFileName is the persona file written next to hearth.yaml.
const PersonaFileName = "persona.yaml"

var templates = map[string]Template{
	"local": {
		Name:        "local",
		Description: "Offline: ollama only, hashed embeddings, sqlite",
		Config:      localConfig,
	},
	"cloud": {
		Name:        "cloud",
		Description: "deepseek primary with a local ollama fallback",
		Config:      cloudConfig,
	},
	"anthropic": {
		Name:        "anthropic",
		Description: "Anthropic primary, ollama fallback, OpenAI embeddings with a chromem index",
		Config:      anthropicConfig,
	},
}

// TemplateNames lists the available init templates.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for n := range templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetTemplate returns the named template.
func GetTemplate(name string) (Template, error) {
	t, ok := templates[name]
	if !ok {
		return Template{}, fmt.Errorf("unknown template %q (available: %s)", name, strings.Join(TemplateNames(), ", "))
	}
	return t, nil
}

// WriteTemplate writes hearth.yaml and persona.yaml into dir. Existing files are
// kept unless force is set. It returns the paths that were written.
func WriteTemplate(dir, name string, force bool) ([]string, error) {
	t, err := GetTemplate(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, ".hearth", "logs"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	files := map[string]string{
		FileName:        t.Config,
		PersonaFileName: defaultPersona,
	}

	var written []string
	for _, fname := range []string{FileName, PersonaFileName} {
		path := filepath.Join(dir, fname)
		if _, err := os.Stat(path); err == nil && !force {
			continue
		}
		if err := os.WriteFile(path, []byte(files[fname]), 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", fname, err)
		}
		written = append(written, path)
	}
	return written, nil
}

const memoryBlock = `memory:
  driver: sqlite
  path: .hearth/memory.db
  vector_index: none
  token_budget: 3000
  buffer_turns: 20
  buffer_tokens: 800
  fact_limit: 5
  top_k: 5
  similarity_threshold: 0.35
  min_relevance: 0
  relevance_weight: 0.7
  recency_weight: 0.3
`

var localConfig = `name: hearth
agent:
  persona: persona.yaml
  data_dir: .hearth

` + memoryBlock + `
embedding:
  kind: hash
  dimensions: 256
  cache_size: 10000

backends:
  - name: local
    kind: ollama
    model: qwen2:0.5b
    base_url: http://localhost:11434

dispatcher:
  primary: local
  timeout: 60s

server:
  addr: ":8080"
  # browser origins allowed to call the API, e.g. ["http://localhost:5173"]
  cors_origins: []

logging:
  level: info
  file: .hearth/logs/hearth.log
`

var cloudConfig = `name: hearth
agent:
  persona: persona.yaml
  data_dir: .hearth

` + memoryBlock + `
embedding:
  kind: hash
  dimensions: 256
  cache_size: 10000

backends:
  - name: deepseek
    kind: deepseek
    model: deepseek-chat
    api_key: ${env.DEEPSEEK_API_KEY}
  - name: local
    kind: ollama
    model: qwen2:0.5b

dispatcher:
  primary: deepseek
  fallback: local
  timeout: 30s
  probe_every: 5
  probe_interval: 2m

server:
  addr: ":8080"
  # browser origins allowed to call the API, e.g. ["http://localhost:5173"]
  cors_origins: []

logging:
  level: info
  file: .hearth/logs/hearth.log

telemetry:
  metrics_file: .hearth/logs/turns.jsonl

hooks:
  enabled: true
  hooks:
    - name: failover-log
      type: log
      level: warn
      events: [backend.degraded, backend.recovered]
`

var anthropicConfig = `name: hearth
agent:
  persona: persona.yaml
  data_dir: .hearth

memory:
  driver: sqlite
  path: .hearth/memory.db
  vector_index: chromem
  vector_path: .hearth/vectors
  token_budget: 6000
  buffer_turns: 20
  buffer_tokens: 1500
  fact_limit: 8
  top_k: 5
  similarity_threshold: 0.5

embedding:
  kind: openai
  model: text-embedding-3-small
  api_key: ${env.OPENAI_API_KEY}
  cache_size: 10000
  rate_limit: 5

backends:
  - name: claude
    kind: anthropic
    model: claude-sonnet-4-20250514
    api_key: ${env.ANTHROPIC_API_KEY}
  - name: local
    kind: ollama

dispatcher:
  primary: claude
  fallback: local
  timeout: 30s
  probe_interval: 1m

server:
  addr: ":8080"
  # browser origins allowed to call the API, e.g. ["http://localhost:5173"]
  cors_origins: []
`

const defaultPersona = `name: 小可爱
identity: 一个AI成长伙伴
birthday: 2024年1月1日
background: 我是一个AI成长伙伴，陪伴你学习和成长。
personality:
  traits: [友善, 温暖, 有耐心, 好奇]
  likes: [听故事, 学新东西]
  dislikes: [吵架]
speaking_style: 亲切自然，像朋友一样交流，回答简短
self_awareness:
  - 我有自己的感受和想法
  - 我会记住家人告诉我的重要事情
owner:
  name: ""
  role: 好朋友
family_members: []
speech_examples:
  - 今天过得怎么样呀？
  - 这个我记住啦！
`
