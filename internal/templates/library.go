// Package templates materializes the built-in workflow library into engine
// workflow documents.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Custom is the template name that builds a workflow from caller-supplied
// nodes and connections. Requested names without a library entry fall back
// to it.
const Custom = "custom"

//go:embed library/*.yaml.tmpl
var libraryFS embed.FS

// Params parameterizes a template. Config keys from tool calls decode into it
// through their mapstructure names.
type Params struct {
	Name             string                 `mapstructure:"name"`
	Description      string                 `mapstructure:"description"`
	Schedule         string                 `mapstructure:"schedule"`
	CheckInterval    int                    `mapstructure:"checkInterval"`
	SlackChannel     string                 `mapstructure:"slackChannel"`
	SearchTerms      string                 `mapstructure:"searchTerms"`
	ErrorWorkflowID  string                 `mapstructure:"errorWorkflowId"`
	FromEmail        string                 `mapstructure:"fromEmail"`
	WebhookPath      string                 `mapstructure:"webhookPath"`
	Model            string                 `mapstructure:"model"`
	ConvertKitListID string                 `mapstructure:"convertKitListId"`
	SequenceID       string                 `mapstructure:"sequenceId"`
	Nodes            []interface{}          `mapstructure:"nodes"`
	Connections      map[string]interface{} `mapstructure:"connections"`
	Settings         map[string]interface{} `mapstructure:"settings"`
}

// ParamsFromConfig decodes a loosely typed configuration object. Numbers
// given as strings are accepted.
func ParamsFromConfig(name, description string, config map[string]interface{}) (Params, error) {
	var p Params
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return p, err
	}
	if err := decoder.Decode(config); err != nil {
		return p, fmt.Errorf("invalid template configuration: %w", err)
	}
	if name != "" {
		p.Name = name
	}
	if description != "" {
		p.Description = description
	}
	return p, nil
}

// Info describes a library entry for discovery and suggestions.
type Info struct {
	Name        string   `json:"template"`
	Title       string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"-"`
	Benefits    []string `json:"benefits"`
}

var catalog = []Info{
	{
		Name:        "content-multiplication-engine",
		Title:       "Content Multiplication Engine",
		Description: "Transform single pieces of content into 5+ formats automatically",
		Keywords:    []string{"content", "repurpose", "social", "twitter", "linkedin", "newsletter", "video", "writing", "posts", "creator"},
		Benefits: []string{
			"10x content output with same effort",
			"Consistent messaging across platforms",
			"Automated scheduling and posting",
		},
	},
	{
		Name:        "audience-intelligence-system",
		Title:       "Audience Intelligence System",
		Description: "Monitor and analyze audience behavior across platforms",
		Keywords:    []string{"audience", "monitor", "trends", "research", "insights", "reddit", "twitter", "slack", "listening", "analytics"},
		Benefits: []string{
			"Real-time trend identification",
			"Automated insight generation",
			"Predictive content recommendations",
		},
	},
	{
		Name:        "lead-qualification-pipeline",
		Title:       "Lead Nurturing Pipeline",
		Description: "Automatically qualify and nurture leads through your funnel",
		Keywords:    []string{"lead", "leads", "sales", "crm", "hubspot", "qualify", "funnel", "nurture", "email", "scoring"},
		Benefits: []string{
			"Automated lead scoring",
			"Personalized follow-up sequences",
			"Integration with CRM systems",
		},
	},
	{
		Name:        "newsletter-automation-suite",
		Title:       "Newsletter Automation Suite",
		Description: "Write and send a weekly newsletter from approved content ideas",
		Keywords:    []string{"newsletter", "email", "convertkit", "subscribers", "weekly", "writing", "audience"},
		Benefits: []string{
			"Consistent weekly publishing",
			"Drafts generated from your idea backlog",
			"Subscriber delivery without manual exports",
		},
	},
	{
		Name:        "ai-content-generator",
		Title:       "AI Content Generation Pipeline",
		Description: "Generate daily content ideas from trending topics and keyword research",
		Keywords:    []string{"ideas", "ai", "trends", "keywords", "seo", "content", "daily", "generate"},
		Benefits: []string{
			"Daily idea backlog without research time",
			"Trend-aware topics",
			"Keyword coverage tracked in your database",
		},
	},
}

var parsed = template.Must(
	template.New("library").
		Delims("[[", "]]").
		Funcs(sprig.TxtFuncMap()).
		ParseFS(libraryFS, "library/*.yaml.tmpl"),
)

// Catalog lists the library entries in a stable order.
func Catalog() []Info {
	out := make([]Info, len(catalog))
	copy(out, catalog)
	return out
}

// Names returns the library template names, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, info := range catalog {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a library template.
func Has(name string) bool {
	return parsed.Lookup(name+".yaml.tmpl") != nil
}

// Render materializes a template into a workflow document. Unknown names and
// Custom build from p.Nodes, p.Connections and p.Settings. The returned
// document's name is always p.Name when it is set.
func Render(name string, p Params) (map[string]interface{}, error) {
	if err := ValidateSchedule(p.Schedule); err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if name == Custom || !Has(name) {
		doc = custom(p)
	} else {
		var buf bytes.Buffer
		if err := parsed.ExecuteTemplate(&buf, name+".yaml.tmpl", p); err != nil {
			return nil, fmt.Errorf("failed to render template %s: %w", name, err)
		}
		if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode template %s: %w", name, err)
		}
		if doc["name"] == "" || doc["name"] == nil {
			doc["name"] = titleFor(name)
		}
	}

	if p.Name != "" {
		doc["name"] = p.Name
	}
	if p.Description != "" {
		doc["description"] = p.Description
	}
	if len(p.Settings) > 0 && name != Custom && Has(name) {
		settings, _ := doc["settings"].(map[string]interface{})
		if settings == nil {
			settings = map[string]interface{}{}
		}
		for k, v := range p.Settings {
			settings[k] = v
		}
		doc["settings"] = settings
	}
	return doc, nil
}

// ValidateSchedule checks a standard five-field cron expression. An empty
// schedule is valid and selects the template default.
func ValidateSchedule(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

func custom(p Params) map[string]interface{} {
	name := p.Name
	if name == "" {
		name = "Custom Workflow"
	}
	nodes := p.Nodes
	if nodes == nil {
		nodes = []interface{}{}
	}
	connections := p.Connections
	if connections == nil {
		connections = map[string]interface{}{}
	}
	settings := p.Settings
	if settings == nil {
		settings = map[string]interface{}{}
	}
	return map[string]interface{}{
		"name":        name,
		"nodes":       nodes,
		"connections": connections,
		"settings":    settings,
	}
}

func titleFor(name string) string {
	for _, info := range catalog {
		if info.Name == name {
			return info.Title
		}
	}
	return name
}
