package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Security limits on schema documents and instance data, matched to the
// caps used by the system this runtime reimplements. These exist to bound
// the cost of validating adversarial input, not to enforce application
// semantics.
const (
	MaxSchemaComplexity = 1000
	WarnSchemaComplexity = 500
	MaxSchemaDepth       = 20

	MaxStringLength         = 100_000
	MaxArrayLength          = 10_000
	MaxObjectProperties     = 1_000
	SecurityStringHardLimit = 1_000_000
)

// blockedPatterns flags strings that look like injection attempts across
// several classes: script injection, SQL injection, shell command
// injection, path traversal, and XML external entity declarations.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)(union|select|insert|update|delete|drop|create|alter)\s+`),
	regexp.MustCompile(`(?i)(or|and)\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`[;&|` + "`" + `$(){}\[\]\\]`),
	regexp.MustCompile(`\.\.[\\/]`),
	regexp.MustCompile(`(?i)<!entity`),
	regexp.MustCompile(`(?i)<!doctype`),
}

// SecurityFinding describes one security concern surfaced while scanning an
// instance value or schema document.
type SecurityFinding struct {
	Path     string
	Message  string
	Severity string // "warning" or "error"
}

// SecurityScanner applies size/depth/complexity caps and injection-pattern
// detection to instance data independent of JSON Schema validation proper.
type SecurityScanner struct {
	maxStringLength     int
	maxArrayLength      int
	maxObjectProperties int
	maxDepth            int
	allowDangerousContent bool
	extraPatterns       []*regexp.Regexp
}

// NewSecurityScanner returns a scanner configured with the default caps.
func NewSecurityScanner() *SecurityScanner {
	return &SecurityScanner{
		maxStringLength:     MaxStringLength,
		maxArrayLength:      MaxArrayLength,
		maxObjectProperties: MaxObjectProperties,
		maxDepth:            MaxSchemaDepth,
	}
}

// WithDangerousContentAllowed reports injection-pattern matches as warnings
// instead of errors, for deployments that deliberately accept raw
// markup/script content.
func (s *SecurityScanner) WithDangerousContentAllowed(allow bool) *SecurityScanner {
	s.allowDangerousContent = allow
	return s
}

// AddBlockedPattern registers an additional regular expression to flag
// during scans, alongside the built-in injection patterns.
func (s *SecurityScanner) AddBlockedPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile blocked pattern: %w", err)
	}
	s.extraPatterns = append(s.extraPatterns, re)
	return nil
}

// ScanValue walks a decoded JSON value (as produced by encoding/json into
// interface{}) and reports size, depth, and content findings.
func (s *SecurityScanner) ScanValue(data interface{}) []SecurityFinding {
	var findings []SecurityFinding
	s.scan(data, "", 0, &findings)
	return findings
}

func (s *SecurityScanner) scan(data interface{}, path string, depth int, findings *[]SecurityFinding) {
	if depth > s.maxDepth {
		*findings = append(*findings, SecurityFinding{
			Path:     path,
			Message:  fmt.Sprintf("nesting depth exceeds maximum %d", s.maxDepth),
			Severity: "error",
		})
		return
	}

	switch v := data.(type) {
	case string:
		s.scanString(v, path, findings)
	case []interface{}:
		if len(v) > s.maxArrayLength {
			*findings = append(*findings, SecurityFinding{
				Path:     path,
				Message:  fmt.Sprintf("array length %d exceeds maximum %d", len(v), s.maxArrayLength),
				Severity: "warning",
			})
		}
		for i, item := range v {
			s.scan(item, fmt.Sprintf("%s[%d]", path, i), depth+1, findings)
		}
	case map[string]interface{}:
		if len(v) > s.maxObjectProperties {
			*findings = append(*findings, SecurityFinding{
				Path:     path,
				Message:  fmt.Sprintf("object has %d properties, exceeds maximum %d", len(v), s.maxObjectProperties),
				Severity: "warning",
			})
		}
		for k, val := range v {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			s.scan(val, childPath, depth+1, findings)
		}
	}
}

func (s *SecurityScanner) scanString(v, path string, findings *[]SecurityFinding) {
	if len(v) > s.maxStringLength {
		*findings = append(*findings, SecurityFinding{
			Path:     path,
			Message:  fmt.Sprintf("string length %d exceeds recommended maximum %d", len(v), s.maxStringLength),
			Severity: "warning",
		})
	}
	if len(v) > SecurityStringHardLimit {
		*findings = append(*findings, SecurityFinding{
			Path:     path,
			Message:  fmt.Sprintf("string length %d exceeds hard limit %d", len(v), SecurityStringHardLimit),
			Severity: "error",
		})
	}

	severity := "error"
	if s.allowDangerousContent {
		severity = "warning"
	}

	for _, pattern := range blockedPatterns {
		if pattern.MatchString(v) {
			*findings = append(*findings, SecurityFinding{
				Path:     path,
				Message:  "value matches a blocked injection pattern",
				Severity: severity,
			})
			break
		}
	}
	for _, pattern := range s.extraPatterns {
		if pattern.MatchString(v) {
			*findings = append(*findings, SecurityFinding{
				Path:     path,
				Message:  "value matches a custom blocked pattern",
				Severity: severity,
			})
			break
		}
	}
}

// HasErrors reports whether any finding in the slice is severity "error".
func HasErrors(findings []SecurityFinding) bool {
	for _, f := range findings {
		if f.Severity == "error" {
			return true
		}
	}
	return false
}

// SchemaComplexity computes a schema complexity score the same way the
// nesting-depth cap is computed: one point per node, plus one per declared
// property, plus double per combinator branch (allOf/anyOf/oneOf).
func SchemaComplexity(schemaDoc map[string]interface{}) int {
	return complexityOf(schemaDoc, 0)
}

func complexityOf(node interface{}, depth int) int {
	if depth > 20 {
		return 1000
	}
	obj, ok := node.(map[string]interface{})
	if !ok {
		if arr, ok := node.([]interface{}); ok {
			total := 0
			for _, item := range arr {
				total += complexityOf(item, depth+1)
			}
			return total
		}
		return 1
	}

	complexity := 1
	if properties, ok := obj["properties"].(map[string]interface{}); ok {
		complexity += len(properties)
		for _, propSchema := range properties {
			complexity += complexityOf(propSchema, depth+1)
		}
	}
	if items, ok := obj["items"]; ok {
		complexity += complexityOf(items, depth+1)
	}
	for _, key := range []string{"allOf", "anyOf", "oneOf"} {
		if schemas, ok := obj[key].([]interface{}); ok {
			complexity += len(schemas) * 2
			for _, sub := range schemas {
				complexity += complexityOf(sub, depth+1)
			}
		}
	}
	return complexity
}

// SchemaDepth computes the maximum nesting depth of a schema document.
func SchemaDepth(schemaDoc map[string]interface{}) int {
	return depthOf(schemaDoc, 0)
}

func depthOf(node interface{}, depth int) int {
	obj, ok := node.(map[string]interface{})
	if !ok {
		return depth
	}
	max := depth
	if properties, ok := obj["properties"].(map[string]interface{}); ok {
		for _, propSchema := range properties {
			if d := depthOf(propSchema, depth+1); d > max {
				max = d
			}
		}
	}
	if items, ok := obj["items"]; ok {
		if d := depthOf(items, depth+1); d > max {
			max = d
		}
	}
	for _, key := range []string{"allOf", "anyOf", "oneOf"} {
		if schemas, ok := obj[key].([]interface{}); ok {
			for _, sub := range schemas {
				if d := depthOf(sub, depth+1); d > max {
					max = d
				}
			}
		}
	}
	return max
}

// ValidateToolName rejects empty tool names and names containing "..", "/"
// or "\". This is stricter than the path-traversal pattern applied to
// instance strings, which only flags "../" and "..\".
func ValidateToolName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("tool name %q contains unsafe characters", name)
	}
	return nil
}

// MaxURILength bounds a resource URI passed to resources/read,
// resources/subscribe, or resources/unsubscribe.
const MaxURILength = 2048

// dangerousURISchemes are scheme prefixes that never identify a legitimate
// server-side resource and are rejected outright rather than merely warned
// about.
var dangerousURISchemes = []string{
	"javascript:",
	"data:text/html",
	"vbscript:",
	"file:///proc",
	"file:///sys",
}

// ValidateResourceURI rejects a resource URI that is oversized, uses a
// scheme with no legitimate server-side meaning, or attempts path traversal.
// Applied to every incoming uri before it reaches a registered reader.
func ValidateResourceURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("uri cannot be empty")
	}
	if len(uri) > MaxURILength {
		return fmt.Errorf("uri length %d exceeds maximum %d", len(uri), MaxURILength)
	}
	lower := strings.ToLower(uri)
	for _, scheme := range dangerousURISchemes {
		if strings.HasPrefix(lower, scheme) {
			return fmt.Errorf("uri scheme %q is not permitted", scheme)
		}
	}
	if strings.Contains(uri, "..\\") || strings.Contains(uri, "../") {
		return fmt.Errorf("uri %q contains a path traversal sequence", uri)
	}
	return nil
}

// MaxToolDescriptionLength is the point past which a tool description is
// still accepted but flagged as a registration-time warning.
const MaxToolDescriptionLength = 1000

// ValidateToolDescription reports a non-fatal warning when desc is long
// enough to likely degrade a client's tool-picker UI, without rejecting
// registration.
func ValidateToolDescription(desc string) (warning string, tooLong bool) {
	if len(desc) > MaxToolDescriptionLength {
		return fmt.Sprintf("tool description is %d characters, exceeding the recommended maximum of %d", len(desc), MaxToolDescriptionLength), true
	}
	return "", false
}
